// Package store implements the listing store ports on Postgres. Queries are
// built with squirrel and executed through the instrumented sqlx connection.
package store

import (
	"strings"

	"findtrades/shared/database"

	sq "github.com/Masterminds/squirrel"
)

// Stores groups the four store implementations over one connection.
type Stores struct {
	Providers     *Providers
	Trades        *Trades
	Associations  *Associations
	Subscriptions *Subscriptions
}

// New creates every store over db.
func New(db database.Querier) *Stores {
	return &Stores{
		Providers:     NewProviders(db),
		Trades:        NewTrades(db),
		Associations:  NewAssociations(db),
		Subscriptions: NewSubscriptions(db),
	}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s anywhere, with the
// wildcard characters of s escaped.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
