package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"findtrades/shared/observability/mocks"
	"findtrades/workers/listings/internal/cache"
	"findtrades/workers/listings/internal/domain"
	"findtrades/workers/listings/internal/store/storetest"
	"findtrades/workers/listings/internal/trade"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *storetest.Store
	cache  *cache.Cache
	engine *Engine
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	provider := mocks.NewQuietProvider()
	s := storetest.New()
	c := cache.New(provider)

	e, err := New(Deps{
		Providers:     s,
		Trades:        s,
		Associations:  s,
		Subscriptions: s,
		Cache:         c,
		Observability: provider,
		Sniffer:       trade.NewVocabularySniffer(),
	}, opts)
	require.NoError(t, err)

	return &fixture{store: s, cache: c, engine: e}
}

func provider(id string, rating float64, address string) domain.Provider {
	return domain.Provider{
		ID:       id,
		Name:     "Provider " + id,
		Address:  address,
		Rating:   rating,
		Verified: true,
	}
}

// seedProviders adds n verified providers with strictly decreasing ratings,
// so p00 sorts first.
func (f *fixture) seedProviders(n int) []string {
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("p%02d", i)
		f.store.AddProviders(provider(ids[i], 5-float64(i)*0.05, "1 High St, London"))
	}
	return ids
}

func (f *fixture) query(t *testing.T, filters domain.FilterSet) domain.Page {
	t.Helper()
	page, err := f.engine.Query(context.Background(), filters)
	require.NoError(t, err)
	return page
}

func TestNew_ConfigurationMissing(t *testing.T) {
	s := storetest.New()
	provider := mocks.NewQuietProvider()
	full := Deps{
		Providers:     s,
		Trades:        s,
		Associations:  s,
		Subscriptions: s,
		Cache:         cache.New(provider),
		Observability: provider,
	}

	tests := []struct {
		name  string
		strip func(*Deps)
	}{
		{"providers", func(d *Deps) { d.Providers = nil }},
		{"trades", func(d *Deps) { d.Trades = nil }},
		{"associations", func(d *Deps) { d.Associations = nil }},
		{"subscriptions", func(d *Deps) { d.Subscriptions = nil }},
		{"cache", func(d *Deps) { d.Cache = nil }},
		{"observability", func(d *Deps) { d.Observability = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.strip(&deps)

			e, err := New(deps, DefaultOptions())
			assert.Nil(t, e)
			assert.ErrorIs(t, err, domain.ErrConfigurationMissing)
		})
	}

	e, err := New(full, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), e.Options(), "zero options fall back to defaults")
}

func TestQuery_StorePaginatedPagesAreDisjoint(t *testing.T) {
	f := newFixture(t, Options{PageSize: 4})
	ids := f.seedProviders(10)

	page0 := f.query(t, domain.FilterSet{})
	page1 := f.query(t, domain.FilterSet{Page: 1})
	page2 := f.query(t, domain.FilterSet{Page: 2})

	assert.Equal(t, domain.StorePaginated, page0.Strategy)
	assert.Equal(t, ids[0:4], domain.IDs(page0.Listings))
	assert.Equal(t, ids[4:8], domain.IDs(page1.Listings))
	assert.Equal(t, ids[8:10], domain.IDs(page2.Listings))
	assert.True(t, page0.HasMore)
	assert.True(t, page1.HasMore)
	assert.False(t, page2.HasMore)
	assert.Equal(t, 2, page2.Page)
}

func TestQuery_FirstPageLeadsWithEnterprise(t *testing.T) {
	f := newFixture(t, Options{PageSize: 4})
	ids := f.seedProviders(10)
	f.store.SetSubscription(ids[7], "enterprise", true)
	f.store.SetSubscription(ids[2], "pro", true)
	f.store.SetSubscription(ids[9], "enterprise", false)

	page0 := f.query(t, domain.FilterSet{})
	require.NotEmpty(t, page0.Listings)
	assert.Equal(t, domain.TierEnterprise, page0.Listings[0].Tier)
	assert.Equal(t, []string{ids[7], ids[0], ids[1], ids[2]}, domain.IDs(page0.Listings))
	assert.Equal(t, domain.TierPro, page0.Listings[3].Tier)

	page1 := f.query(t, domain.FilterSet{Page: 1})
	assert.Equal(t, []string{ids[3], ids[4], ids[5], ids[6]}, domain.IDs(page1.Listings))

	page2 := f.query(t, domain.FilterSet{Page: 2})
	assert.Equal(t, []string{ids[8], ids[9]}, domain.IDs(page2.Listings))
	assert.False(t, page2.HasMore)
}

func TestQuery_StorePaginatedCoversEveryProviderOnce(t *testing.T) {
	f := newFixture(t, Options{PageSize: 3, MaxIDsPerQuery: 2})
	ids := f.seedProviders(14)
	for _, i := range []int{1, 4, 5, 9, 12} {
		f.store.SetSubscription(ids[i], "enterprise", true)
	}

	seen := make(map[string]int)
	for n := 0; ; n++ {
		page := f.query(t, domain.FilterSet{Page: n})
		for _, l := range page.Listings {
			seen[l.ID]++
		}
		if !page.HasMore {
			break
		}
		require.Less(t, n, 10, "pagination did not terminate")
	}

	assert.Len(t, seen, len(ids))
	for id, count := range seen {
		assert.Equal(t, 1, count, "provider %s listed %d times", id, count)
	}
}

func TestQuery_ExplicitTradeWithoutMatchIsEmpty(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.seedProviders(3)
	f.store.AddTrades(domain.Trade{ID: 1, Name: "Plumber"})

	page := f.query(t, domain.FilterSet{Trade: "astronaut"})

	assert.Empty(t, page.Listings)
	assert.NotNil(t, page.Listings)
	assert.False(t, page.HasMore)
	assert.Equal(t, domain.CandidateSetPaginated, page.Strategy)
	assert.Zero(t, f.store.Calls(storetest.MethodSearch))
}

func TestQuery_ElectricianInLondon(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.store.AddTrades(
		domain.Trade{ID: 1, Name: "Electrician"},
		domain.Trade{ID: 2, Name: "Plumber"},
	)
	f.store.AddProviders(
		provider("a", 4.8, "12 Baker St, London"),
		provider("b", 4.2, "3 Camden Rd, London"),
		provider("c", 3.9, "9 Mile End, London"),
		provider("d", 4.9, "1 Deansgate, Manchester"),
		provider("e", 4.7, "5 Strand, London"),
	)
	for _, id := range []string{"a", "b", "c", "d"} {
		f.store.SetAssociation(id, 1)
	}
	f.store.SetAssociation("e", 2)
	f.store.SetSubscription("a", "enterprise", true)

	page := f.query(t, domain.FilterSet{Trade: "electrician", City: "london", MinRating: 4.0})

	if diff := cmp.Diff([]string{"a", "b"}, domain.IDs(page.Listings)); diff != "" {
		t.Fatalf("listing ids mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4.8, page.Listings[0].Rating)
	assert.Equal(t, domain.TierEnterprise, page.Listings[0].Tier)
	assert.Equal(t, 4.2, page.Listings[1].Rating)
	assert.Equal(t, domain.TierNone, page.Listings[1].Tier)
	assert.Equal(t, []string{"Electrician"}, page.Listings[0].Trades)
	assert.Equal(t, domain.CandidateSetPaginated, page.Strategy)
	assert.False(t, page.HasMore)
	assert.False(t, page.Degraded)
}

func TestQuery_Idempotent(t *testing.T) {
	f := newFixture(t, Options{PageSize: 5})
	ids := f.seedProviders(12)
	f.store.AddTrades(domain.Trade{ID: 1, Name: "Roofer"})
	for i, id := range ids {
		if i%2 == 0 {
			f.store.SetAssociation(id, 1)
		}
	}
	f.store.SetSubscription(ids[6], "enterprise", true)

	for _, filters := range []domain.FilterSet{{}, {Page: 1}, {Trade: "roofer"}, {Trade: "roofer", Page: 1}} {
		first := f.query(t, filters)
		second := f.query(t, filters)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("filters %+v not idempotent (-first +second):\n%s", filters, diff)
		}
	}
}

func TestQuery_AssociationRoundTrip(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.seedProviders(3)
	f.store.AddTrades(domain.Trade{ID: 1, Name: "Locksmith"})
	f.store.SetAssociation("p00", 1)

	page := f.query(t, domain.FilterSet{Trade: "locksmith"})
	assert.Equal(t, []string{"p00"}, domain.IDs(page.Listings))

	f.store.SetAssociation("p02", 1)
	page = f.query(t, domain.FilterSet{Trade: "locksmith"})
	assert.Equal(t, []string{"p00", "p02"}, domain.IDs(page.Listings))
	assert.Equal(t, []string{"Locksmith"}, page.Listings[1].Trades)

	f.store.SetAssociation("p02")
	page = f.query(t, domain.FilterSet{Trade: "locksmith"})
	assert.Equal(t, []string{"p00"}, domain.IDs(page.Listings))
}

func TestQuery_BaseQueryFailureIsStoreUnavailable(t *testing.T) {
	boom := errors.New("connection refused")

	t.Run("store paginated", func(t *testing.T) {
		f := newFixture(t, DefaultOptions())
		f.seedProviders(3)
		f.store.FailAlways(storetest.MethodSearch, boom)

		page, err := f.engine.Query(context.Background(), domain.FilterSet{})
		require.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, page.Listings)
	})

	t.Run("candidate set chunk", func(t *testing.T) {
		f := newFixture(t, Options{MaxIDsPerQuery: 2})
		ids := f.seedProviders(6)
		f.store.AddTrades(domain.Trade{ID: 1, Name: "Tiler"})
		for _, id := range ids {
			f.store.SetAssociation(id, 1)
		}
		f.store.FailOn(storetest.MethodSearch, func(call int) error {
			if call == 2 {
				return boom
			}
			return nil
		})

		page, err := f.engine.Query(context.Background(), domain.FilterSet{Trade: "tiler"})
		require.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.Empty(t, page.Listings)
	})

	t.Run("trade resolution", func(t *testing.T) {
		f := newFixture(t, DefaultOptions())
		f.store.AddTrades(domain.Trade{ID: 1, Name: "Tiler"})
		f.store.FailAlways(storetest.MethodProvidersWithAnyTrade, boom)

		_, err := f.engine.Query(context.Background(), domain.FilterSet{Trade: "tiler"})
		require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestQuery_EnrichmentFailureDegrades(t *testing.T) {
	f := newFixture(t, Options{PageSize: 4})
	ids := f.seedProviders(4)
	f.store.AddTrades(domain.Trade{ID: 1, Name: "Painter"})
	for _, id := range ids {
		f.store.SetAssociation(id, 1)
	}
	f.store.SetSubscription(ids[3], "enterprise", true)
	f.store.FailAlways(storetest.MethodFindByProviderIDs, errors.New("timeout"))
	f.store.FailAlways(storetest.MethodFindActiveByProviderIDs, errors.New("timeout"))

	page := f.query(t, domain.FilterSet{})

	assert.True(t, page.Degraded)
	require.Len(t, page.Listings, 4)
	assert.Equal(t, ids[3], page.Listings[0].ID, "block tier survives failed enrichment")
	assert.Equal(t, domain.TierEnterprise, page.Listings[0].Tier)
	for _, l := range page.Listings {
		assert.NotNil(t, l.Trades)
		assert.Empty(t, l.Trades)
	}
}

func TestQuery_TierBlockFailureDegrades(t *testing.T) {
	f := newFixture(t, Options{PageSize: 3})
	ids := f.seedProviders(4)
	f.store.SetSubscription(ids[2], "enterprise", true)
	f.store.FailAlways(storetest.MethodListActive, errors.New("connection refused"))

	page := f.query(t, domain.FilterSet{})

	assert.True(t, page.Degraded)
	assert.True(t, page.HasMore)
	assert.Equal(t, []string{"p02", "p00", "p01"}, domain.IDs(page.Listings),
		"tiers still come from enrichment, the block is skipped")

	page = f.query(t, domain.FilterSet{Page: 1})
	assert.True(t, page.Degraded)
	assert.Equal(t, []string{"p03"}, domain.IDs(page.Listings))
}

func TestQuery_TradeNameFailureDegrades(t *testing.T) {
	f := newFixture(t, Options{PageSize: 2})
	ids := f.seedProviders(2)
	f.store.AddTrades(domain.Trade{ID: 1, Name: "Plasterer"})
	for _, id := range ids {
		f.store.SetAssociation(id, 1)
	}
	f.store.FailAlways(storetest.MethodListAll, errors.New("timeout"))
	f.store.FailAlways(storetest.MethodFindTradesByIDs, errors.New("timeout"))

	page := f.query(t, domain.FilterSet{})

	assert.True(t, page.Degraded)
	require.Len(t, page.Listings, 2)
	for _, l := range page.Listings {
		assert.Empty(t, l.Trades)
	}
}

func TestQuery_PageBeyondAddressableRange(t *testing.T) {
	tests := []struct {
		name     string
		filters  domain.FilterSet
		strategy domain.Strategy
	}{
		{
			name:     "store paginated",
			filters:  domain.FilterSet{Page: math.MaxInt},
			strategy: domain.StorePaginated,
		},
		{
			name:     "candidate set",
			filters:  domain.FilterSet{Trade: "glazier", Page: math.MaxInt},
			strategy: domain.CandidateSetPaginated,
		},
		{
			name:     "candidate set, page past int64 offsets",
			filters:  domain.FilterSet{Trade: "glazier", Page: 1e18},
			strategy: domain.CandidateSetPaginated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultOptions())
			ids := f.seedProviders(3)
			f.store.AddTrades(domain.Trade{ID: 1, Name: "Glazier"})
			for _, id := range ids {
				f.store.SetAssociation(id, 1)
			}

			page := f.query(t, tt.filters)

			assert.Equal(t, tt.strategy, page.Strategy)
			assert.Empty(t, page.Listings)
			assert.False(t, page.HasMore)
		})
	}
}

func TestQuery_EnrichmentTimeoutDegrades(t *testing.T) {
	f := newFixture(t, Options{PageSize: 3, EnrichmentTimeout: 20 * time.Millisecond})
	f.seedProviders(3)
	f.store.Delay(storetest.MethodFindByProviderIDs, 5*time.Second)

	start := time.Now()
	page := f.query(t, domain.FilterSet{})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, page.Degraded)
	assert.Len(t, page.Listings, 3)
}

func TestQuery_CandidateSetPaginates(t *testing.T) {
	f := newFixture(t, Options{PageSize: 3, MaxIDsPerQuery: 2})
	ids := f.seedProviders(8)
	f.store.AddTrades(domain.Trade{ID: 1, Name: "Gardener"}, domain.Trade{ID: 2, Name: "Landscaper"})
	for i, id := range ids {
		if i != 1 {
			f.store.SetAssociation(id, 2, 1)
		}
	}
	f.store.SetSubscription(ids[6], "enterprise", true)

	page0 := f.query(t, domain.FilterSet{Trade: "gardener"})
	assert.Equal(t, []string{ids[6], ids[0], ids[2]}, domain.IDs(page0.Listings))
	assert.Equal(t, []string{"Landscaper", "Gardener"}, page0.Listings[0].Trades)
	assert.True(t, page0.HasMore)

	page1 := f.query(t, domain.FilterSet{Trade: "gardener", Page: 1})
	assert.Equal(t, []string{ids[3], ids[4], ids[5]}, domain.IDs(page1.Listings))
	assert.True(t, page1.HasMore)

	page2 := f.query(t, domain.FilterSet{Trade: "gardener", Page: 2})
	assert.Equal(t, []string{ids[7]}, domain.IDs(page2.Listings))
	assert.False(t, page2.HasMore)
}

func TestQuery_CandidateCap(t *testing.T) {
	f := newFixture(t, Options{PageSize: 10, CandidateCap: 4, MaxIDsPerQuery: 3})
	ids := f.seedProviders(9)
	f.store.AddTrades(domain.Trade{ID: 1, Name: "Cleaner"})
	for _, id := range ids {
		f.store.SetAssociation(id, 1)
	}

	page := f.query(t, domain.FilterSet{Trade: "cleaner"})

	assert.Equal(t, ids[:4], domain.IDs(page.Listings))
	assert.False(t, page.HasMore)
}

func TestQuery_SniffedTrade(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.store.AddTrades(domain.Trade{ID: 1, Name: "Plumber"})
	f.store.AddProviders(
		domain.Provider{ID: "a", Name: "Pipes R Us", Bio: "24h emergency call outs", Rating: 4.5, Verified: true},
		domain.Provider{ID: "b", Name: "Drip Fixers", Bio: "weekday appointments", Rating: 4.9, Verified: true},
		domain.Provider{ID: "c", Name: "Emergency Sparks", Rating: 5, Verified: true},
	)
	f.store.SetAssociation("a", 1)
	f.store.SetAssociation("b", 1)

	page := f.query(t, domain.FilterSet{Query: "Emergency Plumber"})

	assert.Equal(t, domain.CandidateSetPaginated, page.Strategy)
	assert.Equal(t, []string{"a"}, domain.IDs(page.Listings))
}

func TestQuery_Filters(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.store.AddProviders(
		domain.Provider{ID: "a", Name: "Verified Online", Rating: 4, Verified: true, Online: true},
		domain.Provider{ID: "b", Name: "Unverified", Rating: 5},
		domain.Provider{ID: "c", Name: "", Rating: 5, Verified: true},
		domain.Provider{ID: "d", Name: "Verified Offline", Rating: 3, Verified: true},
	)

	page := f.query(t, domain.FilterSet{})
	assert.Equal(t, []string{"a", "d"}, domain.IDs(page.Listings))

	no := false
	page = f.query(t, domain.FilterSet{VerifiedOnly: &no})
	assert.Equal(t, []string{"b", "a", "d"}, domain.IDs(page.Listings))

	page = f.query(t, domain.FilterSet{OnlineOnly: true})
	assert.Equal(t, []string{"a"}, domain.IDs(page.Listings))

	page = f.query(t, domain.FilterSet{Sort: domain.SortName})
	assert.Equal(t, []string{"d", "a"}, domain.IDs(page.Listings), "offline sorts before online")
}

func TestQuery_InvalidSort(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	_, err := f.engine.Query(context.Background(), domain.FilterSet{Sort: "distance"})
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)
	assert.Zero(t, f.store.Calls(storetest.MethodSearch))
}

func TestQuery_CancelledContext(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.seedProviders(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Query(ctx, domain.FilterSet{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestQuery_TaxonomyIsCached(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.seedProviders(2)
	f.store.AddTrades(domain.Trade{ID: 1, Name: "Glazier"})
	f.store.SetAssociation("p00", 1)

	f.query(t, domain.FilterSet{Trade: "glazier"})
	f.query(t, domain.FilterSet{Trade: "glazier"})
	assert.Equal(t, 1, f.store.Calls(storetest.MethodListAll))

	f.cache.InvalidatePrefix(trade.CacheKeyPrefix)
	f.query(t, domain.FilterSet{Trade: "glazier"})
	assert.Equal(t, 2, f.store.Calls(storetest.MethodListAll))
}
