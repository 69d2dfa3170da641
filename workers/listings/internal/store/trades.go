package store

import (
	"context"
	"fmt"

	"findtrades/shared/database"
	"findtrades/workers/listings/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

var tradeColumns = []string{"id", "name", "COALESCE(category, '') AS category"}

// Trades reads the trade taxonomy.
type Trades struct {
	db database.Querier
}

// NewTrades creates a trade store.
func NewTrades(db database.Querier) *Trades {
	return &Trades{db: db}
}

// ListAll returns every trade ordered by id.
func (s *Trades) ListAll(ctx context.Context) ([]domain.Trade, error) {
	return s.selectTrades(ctx, psql.Select(tradeColumns...).From("trades").OrderBy("id"))
}

// FindByIDs returns the trades with the given ids.
func (s *Trades) FindByIDs(ctx context.Context, ids []int64) ([]domain.Trade, error) {
	if len(ids) == 0 {
		return []domain.Trade{}, nil
	}
	return s.selectTrades(ctx, psql.Select(tradeColumns...).
		From("trades").
		Where("id = ANY(?)", pq.Array(ids)).
		OrderBy("id"))
}

// SearchByName returns up to limit trades whose name contains term.
func (s *Trades) SearchByName(ctx context.Context, term string, limit int) ([]domain.Trade, error) {
	b := psql.Select(tradeColumns...).
		From("trades").
		Where(sq.ILike{"name": containsPattern(term)}).
		OrderBy("id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return s.selectTrades(ctx, b)
}

func (s *Trades) selectTrades(ctx context.Context, b sq.SelectBuilder) ([]domain.Trade, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build trade query: %w", err)
	}
	var trades []domain.Trade
	if err := s.db.Select(ctx, &trades, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}
	return trades, nil
}
