package store

import (
	"context"
	"fmt"

	"findtrades/shared/database"
	"findtrades/workers/listings/internal/domain"

	"github.com/lib/pq"
)

type associationRow struct {
	ProviderID string        `db:"provider_id"`
	TradeIDs   pq.Int64Array `db:"trade_ids"`
}

// Associations reads provider to trade associations.
type Associations struct {
	db database.Querier
}

// NewAssociations creates an association store.
func NewAssociations(db database.Querier) *Associations {
	return &Associations{db: db}
}

// FindByProviderIDs returns the associations of the given providers.
func (s *Associations) FindByProviderIDs(ctx context.Context, providerIDs []string) ([]domain.TradeAssociation, error) {
	if len(providerIDs) == 0 {
		return []domain.TradeAssociation{}, nil
	}

	query, args, err := psql.Select("provider_id", "trade_ids").
		From("provider_trades").
		Where("provider_id = ANY(?::uuid[])", pq.Array(providerIDs)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build association query: %w", err)
	}

	var rows []associationRow
	if err := s.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read associations: %w", err)
	}

	out := make([]domain.TradeAssociation, len(rows))
	for i, r := range rows {
		out[i] = domain.TradeAssociation{ProviderID: r.ProviderID, TradeIDs: []int64(r.TradeIDs)}
	}
	return out, nil
}

// ProvidersWithAnyTrade returns the providers whose trade array overlaps
// tradeIDs.
func (s *Associations) ProvidersWithAnyTrade(ctx context.Context, tradeIDs []int64) ([]string, error) {
	if len(tradeIDs) == 0 {
		return []string{}, nil
	}

	query, args, err := psql.Select("DISTINCT provider_id").
		From("provider_trades").
		Where("trade_ids && ?::int[]", pq.Array(tradeIDs)).
		OrderBy("provider_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build association query: %w", err)
	}

	var ids []string
	if err := s.db.Select(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read providers by trade: %w", err)
	}
	return ids, nil
}
