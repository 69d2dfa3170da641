package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"findtrades/shared/handler"
	"findtrades/shared/observability/mocks"
	"findtrades/workers/listings/internal/cache"
	"findtrades/workers/listings/internal/domain"
	"findtrades/workers/listings/internal/engine"
	"findtrades/workers/listings/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQuerier struct {
	mock.Mock
}

func (m *mockQuerier) Query(ctx context.Context, filters domain.FilterSet) (domain.Page, error) {
	args := m.Called(ctx, filters)
	page, _ := args.Get(0).(domain.Page)
	return page, args.Error(1)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

func listingsRequest(t *testing.T, payload interface{}) handler.Request {
	t.Helper()
	req, err := handler.NewRequest(RequestTypeListings, payload)
	require.NoError(t, err)
	return req
}

func TestListingsWorker_Process(t *testing.T) {
	page := domain.Page{
		Listings: []domain.Listing{domain.NewListing(domain.Provider{ID: "p1", Name: "Sparks"}, []string{"Electrician"}, domain.TierEnterprise)},
		HasMore:  true,
		Strategy: domain.CandidateSetPaginated,
	}
	querier := new(mockQuerier)
	querier.On("Query", mock.Anything, domain.FilterSet{Trade: "electrician", Page: 1}).Return(page, nil)

	w := NewListingsWorker(querier, nil, mocks.NewQuietProvider())
	resp, err := w.Process(context.Background(), listingsRequest(t, QueryRequest{
		Filters: domain.FilterSet{Trade: "electrician", Page: 1},
	}))

	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, "candidate_set_paginated", resp.Metadata["strategy"])
	assert.NotContains(t, resp.Metadata, "degraded")

	var got domain.Page
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, page, got)
	querier.AssertExpectations(t)
}

func TestListingsWorker_DegradedMetadata(t *testing.T) {
	querier := new(mockQuerier)
	querier.On("Query", mock.Anything, mock.Anything).Return(domain.Page{Listings: []domain.Listing{}, Degraded: true}, nil)

	w := NewListingsWorker(querier, nil, mocks.NewQuietProvider())
	resp, err := w.Process(context.Background(), listingsRequest(t, QueryRequest{}))

	require.NoError(t, err)
	assert.Equal(t, "true", resp.Metadata["degraded"])
}

func TestListingsWorker_InvalidPayload(t *testing.T) {
	querier := new(mockQuerier)
	w := NewListingsWorker(querier, nil, mocks.NewQuietProvider())

	req := handler.Request{ID: "req-1", Type: RequestTypeListings, Payload: json.RawMessage(`{"filters": "nope"}`)}
	resp, err := w.Process(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, domain.CodeInvalidFilter, resp.Error.Code)
	assert.False(t, resp.Error.Retryable)
	querier.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestListingsWorker_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"store unavailable", domain.StoreUnavailable(errors.New("refused")), domain.CodeStoreUnavailable, true},
		{"invalid filter", domain.InvalidFilter("unknown sort key distance", nil), domain.CodeInvalidFilter, false},
		{"wrapped domain error", fmt.Errorf("query: %w", domain.StoreUnavailable(nil)), domain.CodeStoreUnavailable, true},
		{"deadline", fmt.Errorf("base_query aborted: %w", context.DeadlineExceeded), handler.CodeTimeout, true},
		{"cancelled", context.Canceled, handler.CodeCancelled, false},
		{"unknown", errors.New("boom"), handler.CodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			querier := new(mockQuerier)
			querier.On("Query", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := NewListingsWorker(querier, nil, mocks.NewQuietProvider())
			resp, err := w.Process(context.Background(), listingsRequest(t, QueryRequest{}))

			require.NoError(t, err)
			require.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
		})
	}
}

func TestListingsWorker_Health(t *testing.T) {
	provider := mocks.NewQuietProvider()

	assert.NoError(t, NewListingsWorker(nil, nil, provider).Health(context.Background()))
	assert.NoError(t, NewListingsWorker(nil, stubPinger{}, provider).Health(context.Background()))
	assert.Error(t, NewListingsWorker(nil, stubPinger{err: errors.New("down")}, provider).Health(context.Background()))
	assert.Equal(t, "listings", NewListingsWorker(nil, nil, provider).Name())
}

func TestListingsWorker_ThroughHandler(t *testing.T) {
	provider := mocks.NewQuietProvider()
	s := storetest.New()
	s.AddProviders(domain.Provider{ID: "p1", Name: "Sparks", Rating: 4.5, Verified: true})
	s.AddTrades(domain.Trade{ID: 1, Name: "Electrician"})
	s.SetAssociation("p1", 1)

	e, err := engine.New(engine.Deps{
		Providers:     s,
		Trades:        s,
		Associations:  s,
		Subscriptions: s,
		Cache:         cache.New(provider),
		Observability: provider,
	}, engine.DefaultOptions())
	require.NoError(t, err)

	h := handler.NewFactory(NewListingsWorker(e, nil, provider), provider).Create()
	resp, err := h.Handle(context.Background(), listingsRequest(t, QueryRequest{
		Filters: domain.FilterSet{Trade: "Electrician"},
	}))

	require.NoError(t, err)
	require.True(t, resp.Success)

	var page domain.Page
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	require.Len(t, page.Listings, 1)
	assert.Equal(t, []string{"Electrician"}, page.Listings[0].Trades)
}

func TestInvalidationWorker_Process(t *testing.T) {
	provider := mocks.NewQuietProvider()
	c := cache.New(provider)
	c.Set("taxonomy:trades", 1, time.Hour)
	c.Set("taxonomy:categories", 2, time.Hour)
	c.Set("other", 3, time.Hour)

	w := NewInvalidationWorker(c, provider)
	req, err := handler.NewRequest(RequestTypeInvalidation, InvalidationMessage{
		Keys:   []string{"other", "missing"},
		Prefix: "taxonomy:",
	})
	require.NoError(t, err)

	resp, err := w.Process(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Success)

	var result InvalidationResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 3, result.Invalidated)
	assert.Zero(t, c.Len())
}

func TestInvalidationWorker_RejectsBadMessages(t *testing.T) {
	provider := mocks.NewQuietProvider()
	w := NewInvalidationWorker(cache.New(provider), provider)

	resp, err := w.Process(context.Background(), handler.Request{ID: "1", Payload: json.RawMessage(`[1,2]`)})
	require.NoError(t, err)
	assert.Equal(t, handler.CodeInvalidReq, resp.Error.Code)

	resp, err = w.Process(context.Background(), handler.Request{ID: "2", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, handler.CodeInvalidReq, resp.Error.Code)

	assert.NoError(t, w.Health(context.Background()))
	assert.Equal(t, "cache_invalidation", w.Name())
}
