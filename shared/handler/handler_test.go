package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"findtrades/shared/config"
	"findtrades/shared/observability/mocks"
	"findtrades/shared/observability/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type contextCapturingWorker struct {
	echoWorker
	ctx context.Context
}

func (w *contextCapturingWorker) Process(ctx context.Context, req Request) (Response, error) {
	w.ctx = ctx
	return w.echoWorker.Process(ctx, req)
}

func TestHandler_HandlePopulatesContext(t *testing.T) {
	worker := &contextCapturingWorker{echoWorker: echoWorker{name: "listings"}}
	cfg := config.DefaultHandlerConfig()
	cfg.Platform = "http"

	h := NewHandler(worker, mocks.NewQuietProvider(), &cfg)
	resp, err := h.Handle(context.Background(), Request{ID: "req-1", Type: "listings"})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "req-1", worker.ctx.Value(types.RequestIDKey))
	assert.Equal(t, "listings", worker.ctx.Value(types.WorkerKey))
	assert.Equal(t, "http", worker.ctx.Value(types.PlatformKey))
}

func TestHandler_MiddlewareOrder(t *testing.T) {
	var order []string
	record := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req Request) (Response, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	h := NewHandler(&echoWorker{name: "w"}, mocks.NewQuietProvider(), nil)
	h.Use(record("outer"))
	h.Use(record("inner"))

	_, err := h.Handle(context.Background(), Request{ID: "1"})

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, config.DefaultHandlerConfig().Timeout, h.Config().Timeout)
}

type failingCloser struct{ closed bool }

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("already closed")
}

func TestGracefulShutdown(t *testing.T) {
	logger := mocks.NewQuietLogger()
	metrics := new(mocks.MockMetrics)
	metrics.On("RecordSuccess", "shutdown_initiated").Return().Once()
	metrics.On("RecordError", "shutdown", "close_failed").Return().Once()
	metrics.On("RecordDuration", "service_uptime", mock.AnythingOfType("float64")).Return().Once()
	metrics.On("RecordSuccess", "shutdown_complete").Return().Once()

	closer := &failingCloser{}
	GracefulShutdown(context.Background(), logger, metrics, time.Now().Add(-time.Minute), nil, closer)

	assert.True(t, closer.closed)
	metrics.AssertExpectations(t)
	logger.AssertCalled(t, "Error", mock.Anything, "Failed to close resource", mock.Anything, mock.Anything)
}
