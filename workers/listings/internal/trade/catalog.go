// Package trade resolves trade terms against the taxonomy and maps trade
// ids to names and provider ids.
package trade

import (
	"context"
	"strings"
	"time"

	"findtrades/shared/observability"
	"findtrades/workers/listings/internal/batch"
	"findtrades/workers/listings/internal/cache"
	"findtrades/workers/listings/internal/domain"
)

// CacheKeyPrefix prefixes every taxonomy entry in the reference cache.
const CacheKeyPrefix = "taxonomy:"

const taxonomyKey = CacheKeyPrefix + "trades"

// Catalog reads the trade taxonomy through the reference cache.
type Catalog struct {
	store   domain.TradeStore
	cache   *cache.Cache
	fetcher *batch.Fetcher
	ttl     time.Duration

	logger  observability.Logger
	metrics observability.Metrics
}

// NewCatalog creates a Catalog caching the taxonomy for ttl.
func NewCatalog(store domain.TradeStore, c *cache.Cache, fetcher *batch.Fetcher, ttl time.Duration, provider observability.Provider) *Catalog {
	return &Catalog{
		store:   store,
		cache:   c,
		fetcher: fetcher,
		ttl:     ttl,
		logger:  provider.Logger("trade.catalog"),
		metrics: provider.Metrics("trade"),
	}
}

// All returns the whole taxonomy.
func (c *Catalog) All(ctx context.Context) ([]domain.Trade, error) {
	return cache.GetOrLoad(ctx, c.cache, taxonomyKey, c.ttl, c.store.ListAll)
}

// Match returns the ids of trades whose name contains term, ignoring case,
// at most limit of them. When the taxonomy cannot be loaded the store-side
// name search is used instead.
func (c *Catalog) Match(ctx context.Context, term string, limit int) ([]int64, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, nil
	}

	trades, err := c.All(ctx)
	if err != nil {
		c.metrics.RecordError("trade_match", "taxonomy_unavailable")
		c.logger.Warn(ctx, "Taxonomy unavailable, searching trades in store", observability.Fields{
			"term":  term,
			"error": err.Error(),
		})
		trades, err = c.store.SearchByName(ctx, term, limit)
		if err != nil {
			return nil, err
		}
	}

	var ids []int64
	for _, t := range trades {
		if limit > 0 && len(ids) == limit {
			break
		}
		if strings.Contains(strings.ToLower(t.Name), term) {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

// Names resolves trade ids to names. Ids missing from the cached taxonomy
// are looked up in the store; ids that cannot be resolved are left out.
// partial reports that a store lookup for missing ids failed.
func (c *Catalog) Names(ctx context.Context, ids []int64) (names map[int64]string, partial bool) {
	names = make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, false
	}

	trades, err := c.All(ctx)
	if err != nil {
		c.logger.Warn(ctx, "Taxonomy unavailable, resolving trade names in store", observability.Fields{
			"error": err.Error(),
		})
	}
	byID := make(map[int64]string, len(trades))
	for _, t := range trades {
		byID[t.ID] = t.Name
	}

	var missing []int64
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			names[id] = name
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return names, false
	}

	result := batch.FetchByIDs(ctx, c.fetcher, missing, c.store.FindByIDs)
	for _, t := range result.Rows {
		names[t.ID] = t.Name
	}
	return names, result.Partial()
}
