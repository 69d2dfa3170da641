package trade

import (
	"context"
	"fmt"

	"findtrades/shared/observability"
	"findtrades/workers/listings/internal/domain"
)

// DefaultMatchCap bounds how many trades one term may resolve to.
const DefaultMatchCap = 10

// Resolver maps a trade term to the set of providers working in a matching
// trade.
type Resolver struct {
	catalog      *Catalog
	associations domain.AssociationStore
	matchCap     int

	logger  observability.Logger
	metrics observability.Metrics
}

// NewResolver creates a Resolver. A non-positive matchCap uses DefaultMatchCap.
func NewResolver(catalog *Catalog, associations domain.AssociationStore, matchCap int, provider observability.Provider) *Resolver {
	if matchCap <= 0 {
		matchCap = DefaultMatchCap
	}
	return &Resolver{
		catalog:      catalog,
		associations: associations,
		matchCap:     matchCap,
		logger:       provider.Logger("trade.resolver"),
		metrics:      provider.Metrics("trade"),
	}
}

// Resolve returns the ids of providers associated with any trade whose name
// contains term. A term matching no trade yields an empty set and no error.
func (r *Resolver) Resolve(ctx context.Context, term string) (map[string]struct{}, error) {
	providers := make(map[string]struct{})

	tradeIDs, err := r.catalog.Match(ctx, term, r.matchCap)
	if err != nil {
		r.metrics.RecordError("trade_resolve", "match_failed")
		return nil, fmt.Errorf("failed to match trade %q: %w", term, err)
	}
	if len(tradeIDs) == 0 {
		r.logger.Debug(ctx, "No trade matches term", observability.Fields{"term": term})
		return providers, nil
	}

	ids, err := r.associations.ProvidersWithAnyTrade(ctx, tradeIDs)
	if err != nil {
		r.metrics.RecordError("trade_resolve", "associations_failed")
		return nil, fmt.Errorf("failed to resolve providers for trade %q: %w", term, err)
	}
	for _, id := range ids {
		providers[id] = struct{}{}
	}

	r.metrics.RecordResultSize("trade_providers", len(providers))
	r.logger.Debug(ctx, "Resolved trade term", observability.Fields{
		"term":      term,
		"trades":    len(tradeIDs),
		"providers": len(providers),
	})
	return providers, nil
}
