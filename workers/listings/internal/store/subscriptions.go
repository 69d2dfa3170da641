package store

import (
	"context"
	"fmt"

	"findtrades/shared/database"
	"findtrades/workers/listings/internal/domain"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

const activeStatus = "active"

type subscriptionRow struct {
	ProviderID string `db:"provider_id"`
	Plan       string `db:"plan"`
	Status     string `db:"status"`
}

func (r subscriptionRow) toDomain() domain.Subscription {
	return domain.Subscription{
		ProviderID: r.ProviderID,
		Tier:       domain.ParseTier(r.Plan),
		Active:     r.Status == activeStatus,
	}
}

// Subscriptions reads provider subscriptions. Rows are never cached.
type Subscriptions struct {
	db database.Querier
}

// NewSubscriptions creates a subscription store.
func NewSubscriptions(db database.Querier) *Subscriptions {
	return &Subscriptions{db: db}
}

// FindActiveByProviderIDs returns the active subscriptions of the given
// providers.
func (s *Subscriptions) FindActiveByProviderIDs(ctx context.Context, providerIDs []string) ([]domain.Subscription, error) {
	if len(providerIDs) == 0 {
		return []domain.Subscription{}, nil
	}
	return s.selectSubscriptions(ctx, activeQuery().
		Where("provider_id = ANY(?::uuid[])", pq.Array(providerIDs)))
}

// ListActive returns every active subscription.
func (s *Subscriptions) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	return s.selectSubscriptions(ctx, activeQuery().OrderBy("provider_id"))
}

func activeQuery() sq.SelectBuilder {
	return psql.Select("provider_id", "plan", "status").
		From("subscriptions").
		Where(sq.Eq{"status": activeStatus})
}

func (s *Subscriptions) selectSubscriptions(ctx context.Context, b sq.SelectBuilder) ([]domain.Subscription, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build subscription query: %w", err)
	}
	var rows []subscriptionRow
	if err := s.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}
	out := make([]domain.Subscription, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
