// Package storetest provides an in-memory implementation of the listing
// store ports with call counting, failure injection and latency injection.
package storetest

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"findtrades/workers/listings/internal/domain"
)

// Method names accepted by FailOn, Delay and Calls.
const (
	MethodSearch                  = "Search"
	MethodListAll                 = "ListAll"
	MethodFindTradesByIDs         = "FindByIDs"
	MethodSearchByName            = "SearchByName"
	MethodFindByProviderIDs       = "FindByProviderIDs"
	MethodProvidersWithAnyTrade   = "ProvidersWithAnyTrade"
	MethodFindActiveByProviderIDs = "FindActiveByProviderIDs"
	MethodListActive              = "ListActive"
)

// FailFunc decides whether the nth call (1-based) of a method fails.
type FailFunc func(call int) error

// Store is an in-memory ProviderStore, TradeStore, AssociationStore and
// SubscriptionStore.
type Store struct {
	mu            sync.Mutex
	providers     map[string]domain.Provider
	trades        map[int64]domain.Trade
	associations  map[string][]int64
	subscriptions map[string]domain.Subscription

	calls    map[string]int
	failures map[string]FailFunc
	delays   map[string]time.Duration
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		providers:     make(map[string]domain.Provider),
		trades:        make(map[int64]domain.Trade),
		associations:  make(map[string][]int64),
		subscriptions: make(map[string]domain.Subscription),
		calls:         make(map[string]int),
		failures:      make(map[string]FailFunc),
		delays:        make(map[string]time.Duration),
	}
}

// AddProviders stores providers, replacing any with the same id.
func (s *Store) AddProviders(providers ...domain.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range providers {
		s.providers[p.ID] = p
	}
}

// AddTrades stores taxonomy entries.
func (s *Store) AddTrades(trades ...domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range trades {
		s.trades[t.ID] = t
	}
}

// SetAssociation replaces the trades of a provider. No trade ids removes
// the association.
func (s *Store) SetAssociation(providerID string, tradeIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(tradeIDs) == 0 {
		delete(s.associations, providerID)
		return
	}
	s.associations[providerID] = slices.Clone(tradeIDs)
}

// SetSubscription records a provider's plan.
func (s *Store) SetSubscription(providerID, plan string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[providerID] = domain.Subscription{
		ProviderID: providerID,
		Tier:       domain.ParseTier(plan),
		Active:     active,
	}
}

// FailOn installs a failure hook for method. A nil fn clears it.
func (s *Store) FailOn(method string, fn FailFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = fn
}

// FailAlways makes every call of method return err.
func (s *Store) FailAlways(method string, err error) {
	s.FailOn(method, func(int) error { return err })
}

// Delay makes every call of method wait d or until its context is done.
func (s *Store) Delay(method string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[method] = d
}

// Calls returns how many times method was invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// ResetCalls zeroes every call counter.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.calls)
}

// enter counts the call and applies injected latency and failures.
func (s *Store) enter(ctx context.Context, method string) error {
	s.mu.Lock()
	s.calls[method]++
	call := s.calls[method]
	fail := s.failures[method]
	delay := s.delays[method]
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fail != nil {
		return fail(call)
	}
	return nil
}

// Search applies the base predicate query in memory.
func (s *Store) Search(ctx context.Context, q domain.ProviderQuery) ([]domain.Provider, error) {
	if err := s.enter(ctx, MethodSearch); err != nil {
		return nil, err
	}

	s.mu.Lock()
	var matched []domain.Provider
	for _, p := range s.providers {
		if matches(p, q) {
			matched = append(matched, p)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(matched, q.Sort.Compare)

	if q.Offset >= len(matched) {
		return []domain.Provider{}, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func matches(p domain.Provider, q domain.ProviderQuery) bool {
	if strings.TrimSpace(p.Name) == "" {
		return false
	}
	if q.RequireVerified && !p.Verified {
		return false
	}
	if q.OnlineOnly && !p.Online {
		return false
	}
	if q.MinRating > 0 && p.Rating < q.MinRating {
		return false
	}
	if q.City != "" && !containsFold(p.Address, q.City) {
		return false
	}
	for _, term := range q.Terms {
		if !containsFold(p.Name, term) && !containsFold(p.Bio, term) && !containsFold(p.Address, term) {
			return false
		}
	}
	if q.IncludeIDs != nil && !slices.Contains(q.IncludeIDs, p.ID) {
		return false
	}
	return !slices.Contains(q.ExcludeIDs, p.ID)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ListAll returns the taxonomy ordered by id.
func (s *Store) ListAll(ctx context.Context) ([]domain.Trade, error) {
	if err := s.enter(ctx, MethodListAll); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedTrades(func(domain.Trade) bool { return true }), nil
}

// FindByIDs returns the trades with the given ids.
func (s *Store) FindByIDs(ctx context.Context, ids []int64) ([]domain.Trade, error) {
	if err := s.enter(ctx, MethodFindTradesByIDs); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedTrades(func(t domain.Trade) bool { return slices.Contains(ids, t.ID) }), nil
}

// SearchByName returns up to limit trades whose name contains term.
func (s *Store) SearchByName(ctx context.Context, term string, limit int) ([]domain.Trade, error) {
	if err := s.enter(ctx, MethodSearchByName); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	trades := s.sortedTrades(func(t domain.Trade) bool { return containsFold(t.Name, term) })
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

func (s *Store) sortedTrades(keep func(domain.Trade) bool) []domain.Trade {
	var out []domain.Trade
	for _, t := range s.trades {
		if keep(t) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Trade) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// FindByProviderIDs returns the associations of the given providers.
func (s *Store) FindByProviderIDs(ctx context.Context, providerIDs []string) ([]domain.TradeAssociation, error) {
	if err := s.enter(ctx, MethodFindByProviderIDs); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.TradeAssociation
	for _, id := range providerIDs {
		if tradeIDs, ok := s.associations[id]; ok {
			out = append(out, domain.TradeAssociation{ProviderID: id, TradeIDs: slices.Clone(tradeIDs)})
		}
	}
	return out, nil
}

// ProvidersWithAnyTrade returns providers associated with any of tradeIDs.
func (s *Store) ProvidersWithAnyTrade(ctx context.Context, tradeIDs []int64) ([]string, error) {
	if err := s.enter(ctx, MethodProvidersWithAnyTrade); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for providerID, ids := range s.associations {
		if slices.ContainsFunc(ids, func(id int64) bool { return slices.Contains(tradeIDs, id) }) {
			out = append(out, providerID)
		}
	}
	slices.Sort(out)
	return out, nil
}

// FindActiveByProviderIDs returns the active subscriptions of the given
// providers.
func (s *Store) FindActiveByProviderIDs(ctx context.Context, providerIDs []string) ([]domain.Subscription, error) {
	if err := s.enter(ctx, MethodFindActiveByProviderIDs); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Subscription
	for _, id := range providerIDs {
		if sub, ok := s.subscriptions[id]; ok && sub.Active {
			out = append(out, sub)
		}
	}
	return out, nil
}

// ListActive returns every active subscription ordered by provider id.
func (s *Store) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	if err := s.enter(ctx, MethodListActive); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Subscription
	for _, sub := range s.subscriptions {
		if sub.Active {
			out = append(out, sub)
		}
	}
	slices.SortFunc(out, func(a, b domain.Subscription) int { return strings.Compare(a.ProviderID, b.ProviderID) })
	return out, nil
}

var (
	_ domain.ProviderStore     = (*Store)(nil)
	_ domain.TradeStore        = (*Store)(nil)
	_ domain.AssociationStore  = (*Store)(nil)
	_ domain.SubscriptionStore = (*Store)(nil)
)
