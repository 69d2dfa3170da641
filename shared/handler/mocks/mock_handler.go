package mocks

import (
	"context"

	"findtrades/shared/config"
	"findtrades/shared/handler"

	"github.com/stretchr/testify/mock"
)

// MockHandler is a testify mock of handler.Runner for exercising the
// platform adapters. Config and Worker are fixed at construction.
type MockHandler struct {
	mock.Mock
	cfg    *config.HandlerConfig
	worker handler.Worker
}

var _ handler.Runner = (*MockHandler)(nil)

// NewMockHandler uses the default handler config when cfg is nil and a
// worker named "listings" when worker is nil.
func NewMockHandler(cfg *config.HandlerConfig, worker handler.Worker) *MockHandler {
	if cfg == nil {
		d := config.DefaultHandlerConfig()
		cfg = &d
	}
	if worker == nil {
		worker = NewMockWorker("listings")
	}
	return &MockHandler{cfg: cfg, worker: worker}
}

func (m *MockHandler) Handle(ctx context.Context, req handler.Request) (handler.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(handler.Response), args.Error(1)
}

func (m *MockHandler) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockHandler) Config() *config.HandlerConfig { return m.cfg }

func (m *MockHandler) Worker() handler.Worker { return m.worker }
