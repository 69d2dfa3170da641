package mocks

import (
	"context"

	"findtrades/shared/handler"

	"github.com/stretchr/testify/mock"
)

// MockWorker is a testify mock of handler.Worker.
type MockWorker struct {
	mock.Mock
}

var _ handler.Worker = (*MockWorker)(nil)

// NewMockWorker returns a worker that answers Name with name.
func NewMockWorker(name string) *MockWorker {
	m := new(MockWorker)
	m.On("Name").Return(name).Maybe()
	return m
}

func (m *MockWorker) Name() string {
	return m.Called().String(0)
}

func (m *MockWorker) Process(ctx context.Context, request handler.Request) (handler.Response, error) {
	args := m.Called(ctx, request)
	return args.Get(0).(handler.Response), args.Error(1)
}

func (m *MockWorker) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
