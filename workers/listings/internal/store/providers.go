package store

import (
	"context"
	"fmt"

	"findtrades/shared/database"
	"findtrades/workers/listings/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

const providerRole = "provider"

var providerColumns = []string{
	"id",
	"full_name",
	"COALESCE(avatar_url, '') AS avatar_url",
	"COALESCE(address, '') AS address",
	"COALESCE(bio, '') AS bio",
	"COALESCE(rating, 0) AS rating",
	"is_verified",
	"is_online",
	"COALESCE(phone, '') AS phone",
}

// Providers reads provider profiles.
type Providers struct {
	db database.Querier
}

// NewProviders creates a provider store.
func NewProviders(db database.Querier) *Providers {
	return &Providers{db: db}
}

// Search runs the base predicate query.
func (s *Providers) Search(ctx context.Context, q domain.ProviderQuery) ([]domain.Provider, error) {
	if q.IncludeIDs != nil && len(q.IncludeIDs) == 0 {
		return []domain.Provider{}, nil
	}

	query, args, err := searchQuery(q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build provider query: %w", err)
	}

	var providers []domain.Provider
	if err := s.db.Select(ctx, &providers, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search providers: %w", err)
	}
	return providers, nil
}

func searchQuery(q domain.ProviderQuery) sq.SelectBuilder {
	b := psql.Select(providerColumns...).
		From("profiles").
		Where(sq.Eq{"role": providerRole}).
		Where(sq.NotEq{"full_name": nil}).
		Where(sq.NotEq{"full_name": ""})

	if q.RequireVerified {
		b = b.Where(sq.Eq{"is_verified": true})
	}
	if q.MinRating > 0 {
		b = b.Where(sq.GtOrEq{"rating": q.MinRating})
	}
	if q.OnlineOnly {
		b = b.Where(sq.Eq{"is_online": true})
	}
	if q.City != "" {
		b = b.Where(sq.ILike{"address": containsPattern(q.City)})
	}
	for _, term := range q.Terms {
		p := containsPattern(term)
		b = b.Where(sq.Or{
			sq.ILike{"full_name": p},
			sq.ILike{"bio": p},
			sq.ILike{"address": p},
		})
	}
	if q.IncludeIDs != nil {
		b = b.Where("id = ANY(?::uuid[])", pq.Array(q.IncludeIDs))
	}
	if len(q.ExcludeIDs) > 0 {
		b = b.Where("NOT (id = ANY(?::uuid[]))", pq.Array(q.ExcludeIDs))
	}

	switch q.Sort {
	case domain.SortName:
		b = b.OrderBy("lower(full_name) ASC", "id ASC")
	default:
		b = b.OrderBy("rating DESC NULLS LAST", "id ASC")
	}

	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		b = b.Offset(uint64(q.Offset))
	}
	return b
}
