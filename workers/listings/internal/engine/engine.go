// Package engine resolves a filter set into one page of ranked, enriched
// listings.
//
// A query is planned first. Without a trade term the provider store
// paginates; page 0 carries the top-tier block and every later page skips
// it. With a trade term the matching providers form a bounded candidate set
// that is sorted and paginated in memory. The providers of the page are then
// enriched with trade names and tiers. Enrichment is best-effort and bounded
// by its own timeout: a partial failure returns a degraded page, never an
// error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"findtrades/shared/observability"
	"findtrades/workers/listings/internal/batch"
	"findtrades/workers/listings/internal/domain"
	"findtrades/workers/listings/internal/planner"
	"findtrades/workers/listings/internal/ranking"
	"findtrades/workers/listings/internal/trade"
)

// Engine is the listing query engine.
type Engine struct {
	opts Options

	providers     domain.ProviderStore
	associations  domain.AssociationStore
	subscriptions domain.SubscriptionStore

	catalog *trade.Catalog
	planner *planner.Planner
	fetcher *batch.Fetcher
	ranker  *ranking.Ranker

	logger  observability.Logger
	metrics observability.Metrics
}

// New wires an Engine. It fails with a CONFIGURATION_MISSING error when a
// required dependency is nil.
func New(deps Deps, opts Options) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	obs := deps.Observability
	fetcher := batch.New(opts.MaxIDsPerQuery, opts.MaxInFlight, obs)
	catalog := trade.NewCatalog(deps.Trades, deps.Cache, fetcher, opts.TaxonomyTTL, obs)
	resolver := trade.NewResolver(catalog, deps.Associations, opts.TradeMatchCap, obs)

	return &Engine{
		opts:          opts,
		providers:     deps.Providers,
		associations:  deps.Associations,
		subscriptions: deps.Subscriptions,
		catalog:       catalog,
		planner:       planner.New(resolver, deps.Sniffer, obs),
		fetcher:       fetcher,
		ranker:        ranking.New(),
		logger:        obs.Logger("engine"),
		metrics:       obs.Metrics("engine"),
	}, nil
}

// Options returns the effective tunables.
func (e *Engine) Options() Options {
	return e.opts
}

// Query resolves one page for filters. The page index is filters.Page.
func (e *Engine) Query(ctx context.Context, filters domain.FilterSet) (domain.Page, error) {
	if err := filters.Validate(); err != nil {
		return domain.Page{}, err
	}
	f := filters.Normalize()

	e.metrics.StartOperation("query")
	defer e.metrics.EndOperation("query")
	start := time.Now()

	plan, err := e.planner.Plan(ctx, f)
	if err != nil {
		return domain.Page{}, e.fail(ctx, "plan", err)
	}

	var page domain.Page
	switch plan.Strategy {
	case domain.CandidateSetPaginated:
		page, err = e.candidateSetPage(ctx, f, plan)
	default:
		page, err = e.storePage(ctx, f, plan)
	}
	if err != nil {
		return domain.Page{}, e.fail(ctx, "base_query", err)
	}

	page.Page = f.Page
	page.Strategy = plan.Strategy

	e.metrics.RecordDuration("query", time.Since(start).Seconds())
	e.metrics.RecordSuccess("query_" + string(plan.Strategy))
	e.metrics.RecordResultSize("page", len(page.Listings))
	e.logger.Debug(ctx, "Resolved listings page", observability.Fields{
		"strategy":   plan.Strategy,
		"page":       f.Page,
		"trade_term": plan.TradeTerm,
		"sniffed":    plan.Sniffed,
		"listings":   len(page.Listings),
		"has_more":   page.HasMore,
		"degraded":   page.Degraded,
	})
	return page, nil
}

// fail maps a base query failure onto the error returned to the caller.
func (e *Engine) fail(ctx context.Context, operation string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.metrics.RecordError(operation, "cancelled")
		return fmt.Errorf("%s aborted: %w", operation, ctxErr)
	}
	var de *domain.DomainError
	if errors.As(err, &de) {
		e.metrics.RecordError(operation, de.Code)
		return err
	}
	e.metrics.RecordError(operation, "store_unavailable")
	e.logger.Error(ctx, "Listing query failed", err, observability.Fields{"operation": operation})
	return domain.StoreUnavailable(err)
}

// storePage lets the provider store paginate. Page 0 is the top-tier block
// plus the head of the remaining providers; page n reads the remainder at
// offset (PageSize-len(block)) + (n-1)*PageSize. Each read asks for one row
// more than the page needs to detect HasMore.
func (e *Engine) storePage(ctx context.Context, f domain.FilterSet, plan planner.Plan) (domain.Page, error) {
	base := domain.NewProviderQuery(f, plan.Terms)

	block, blockDegraded, err := e.tierBlock(ctx, base)
	if err != nil {
		return domain.Page{}, err
	}

	size := e.opts.PageSize
	fill := size - len(block)

	q := base
	q.ExcludeIDs = domain.IDs(block)
	want := fill
	if f.Page == 0 {
		q.Limit = fill + 1
	} else {
		offset, ok := ranking.Offset(f.Page, fill, size)
		if !ok {
			return domain.Page{Listings: []domain.Listing{}, Degraded: blockDegraded}, nil
		}
		q.Offset = offset
		q.Limit = size + 1
		want = size
	}

	rows, err := e.providers.Search(ctx, q)
	if err != nil {
		return domain.Page{}, fmt.Errorf("failed to read page %d: %w", f.Page, err)
	}
	hasMore := len(rows) > want
	rows = rows[:min(len(rows), want)]

	listings := make([]domain.Listing, 0, len(block)+len(rows))
	if f.Page == 0 {
		listings = append(listings, block...)
	}
	for _, p := range rows {
		listings = append(listings, domain.NewListing(p, nil, domain.TierNone))
	}

	listings, degraded := e.enrich(ctx, listings, true)
	return domain.Page{
		Listings: e.ranker.Rank(listings, f.Page, f.Sort),
		HasMore:  hasMore,
		Degraded: degraded || blockDegraded,
	}, nil
}

// tierBlock returns the first PageSize top-tier providers matching base, in
// sort order. When the active subscriptions cannot be read the block is
// empty and the returned flag is set.
func (e *Engine) tierBlock(ctx context.Context, base domain.ProviderQuery) ([]domain.Listing, bool, error) {
	subs, err := e.subscriptions.ListActive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, err
		}
		e.metrics.RecordError("tier_block", "partial_failure")
		e.logger.Warn(ctx, "Active subscriptions unavailable, skipping tier block", observability.Fields{
			"code":  domain.CodeEnrichmentPartial,
			"error": err.Error(),
		})
		return nil, true, nil
	}

	tiers := make(map[string]domain.Tier)
	for _, s := range subs {
		if s.Active && s.Tier >= e.ranker.TopTier {
			tiers[s.ProviderID] = max(tiers[s.ProviderID], s.Tier)
		}
	}
	if len(tiers) == 0 {
		return nil, false, nil
	}

	ids := make([]string, 0, len(tiers))
	for id := range tiers {
		ids = append(ids, id)
	}

	q := base
	q.Offset = 0
	q.Limit = e.opts.PageSize
	providers, err := batch.FetchAllByIDs(ctx, e.fetcher, ids, e.searchWithin(q))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read tier block: %w", err)
	}

	block := make([]domain.Listing, len(providers))
	for i, p := range providers {
		block[i] = domain.NewListing(p, nil, tiers[p.ID])
	}
	e.ranker.Sort(block, base.Sort)
	return block[:min(len(block), e.opts.PageSize)], false, nil
}

// candidateSetPage fetches every provider of the candidate set, up to
// CandidateCap, and paginates in memory.
func (e *Engine) candidateSetPage(ctx context.Context, f domain.FilterSet, plan planner.Plan) (domain.Page, error) {
	if plan.NoSuchTrade || len(plan.CandidateIDs) == 0 {
		return domain.Page{Listings: []domain.Listing{}}, nil
	}

	q := domain.NewProviderQuery(f, plan.Terms)
	q.Limit = e.opts.CandidateCap
	providers, err := batch.FetchAllByIDs(ctx, e.fetcher, plan.CandidateIDs, e.searchWithin(q))
	if err != nil {
		return domain.Page{}, fmt.Errorf("failed to read candidate set: %w", err)
	}
	slices.SortFunc(providers, f.Sort.Compare)
	if len(providers) > e.opts.CandidateCap {
		e.logger.Warn(ctx, "Candidate set truncated", observability.Fields{
			"candidates": len(providers),
			"cap":        e.opts.CandidateCap,
		})
		providers = providers[:e.opts.CandidateCap]
	}
	e.metrics.RecordResultSize("candidates", len(providers))

	tiers, tiersDegraded := e.tiersFor(ctx, providers)

	candidates := make([]domain.Listing, len(providers))
	for i, p := range providers {
		candidates[i] = domain.NewListing(p, nil, tiers[p.ID])
	}

	page, hasMore := e.ranker.SelectPage(candidates, f.Page, e.opts.PageSize, f.Sort)
	page, degraded := e.enrich(ctx, page, false)

	if tiersDegraded && !degraded {
		e.warnDegraded(ctx, "tiers", len(providers))
	}
	return domain.Page{
		Listings: page,
		HasMore:  hasMore,
		Degraded: degraded || tiersDegraded,
	}, nil
}

// tiersFor reads the tiers of every candidate under the enrichment timeout.
func (e *Engine) tiersFor(ctx context.Context, providers []domain.Provider) (map[string]domain.Tier, bool) {
	ectx, cancel := context.WithTimeout(ctx, e.opts.EnrichmentTimeout)
	defer cancel()

	ids := make([]string, len(providers))
	for i, p := range providers {
		ids[i] = p.ID
	}
	result := batch.FetchByIDs(ectx, e.fetcher, ids, e.subscriptions.FindActiveByProviderIDs)
	return highestTiers(result.Rows), result.Partial()
}

// searchWithin adapts the provider store to a batch lookup restricted to
// each chunk of ids.
func (e *Engine) searchWithin(q domain.ProviderQuery) batch.Lookup[string, domain.Provider] {
	return func(ctx context.Context, ids []string) ([]domain.Provider, error) {
		cq := q
		cq.IncludeIDs = ids
		return e.providers.Search(ctx, cq)
	}
}

// enrich resolves trade names and, when withTiers is set, subscription
// tiers for listings. The association and subscription reads run
// concurrently under EnrichmentTimeout. The returned flag reports a partial
// failure.
func (e *Engine) enrich(ctx context.Context, listings []domain.Listing, withTiers bool) ([]domain.Listing, bool) {
	if len(listings) == 0 {
		return listings, false
	}

	start := time.Now()
	ectx, cancel := context.WithTimeout(ctx, e.opts.EnrichmentTimeout)
	defer cancel()

	ids := domain.IDs(listings)

	var (
		assocs batch.Result[domain.TradeAssociation]
		subs   batch.Result[domain.Subscription]
		wg     sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		assocs = batch.FetchByIDs(ectx, e.fetcher, ids, e.associations.FindByProviderIDs)
	}()
	if withTiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subs = batch.FetchByIDs(ectx, e.fetcher, ids, e.subscriptions.FindActiveByProviderIDs)
		}()
	}
	wg.Wait()

	tradeIDs := make(map[string][]int64, len(assocs.Rows))
	var allTradeIDs []int64
	for _, a := range assocs.Rows {
		tradeIDs[a.ProviderID] = append(tradeIDs[a.ProviderID], a.TradeIDs...)
		allTradeIDs = append(allTradeIDs, a.TradeIDs...)
	}
	names, namesPartial := e.catalog.Names(ectx, allTradeIDs)
	tiers := highestTiers(subs.Rows)

	out := make([]domain.Listing, len(listings))
	for i, l := range listings {
		out[i] = domain.NewListing(l.Provider, tradeNames(tradeIDs[l.ID], names), max(l.Tier, tiers[l.ID]))
	}

	e.metrics.RecordDuration("enrichment", time.Since(start).Seconds())
	degraded := assocs.Partial() || subs.Partial() || namesPartial
	if degraded {
		e.warnDegraded(ctx, "enrichment", len(listings))
	}
	return out, degraded
}

func (e *Engine) warnDegraded(ctx context.Context, stage string, listings int) {
	e.metrics.RecordError(stage, "partial_failure")
	e.logger.Warn(ctx, "Returning degraded listings", observability.Fields{
		"code":     domain.CodeEnrichmentPartial,
		"stage":    stage,
		"listings": listings,
	})
}

// highestTiers maps each provider to its best active tier.
func highestTiers(subs []domain.Subscription) map[string]domain.Tier {
	tiers := make(map[string]domain.Tier, len(subs))
	for _, s := range subs {
		if s.Active {
			tiers[s.ProviderID] = max(tiers[s.ProviderID], s.Tier)
		}
	}
	return tiers
}

// tradeNames maps ids to names in association order, skipping unresolved
// and repeated names.
func tradeNames(ids []int64, names map[int64]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := names[id]; ok && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
