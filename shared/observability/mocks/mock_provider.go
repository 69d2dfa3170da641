package mocks

import (
	"findtrades/shared/observability/types"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of Provider interface
type MockProvider struct {
	mock.Mock
}

// Logger mocks the Logger method
func (m *MockProvider) Logger(component string) types.Logger {
	args := m.Called(component)
	if logger, ok := args.Get(0).(types.Logger); ok {
		return logger
	}
	return nil
}

// Metrics mocks the Metrics method
func (m *MockProvider) Metrics(component string) types.Metrics {
	args := m.Called(component)
	if metrics, ok := args.Get(0).(types.Metrics); ok {
		return metrics
	}
	return nil
}

// Close mocks the Close method
func (m *MockProvider) Close() error {
	args := m.Called()
	return args.Error(0)
}

// NewQuietProvider returns a MockProvider handing out quiet loggers and
// metrics for any component.
func NewQuietProvider() *MockProvider {
	m := new(MockProvider)
	m.On("Logger", mock.Anything).Return(NewQuietLogger()).Maybe()
	m.On("Metrics", mock.Anything).Return(NewQuietMetrics()).Maybe()
	m.On("Close").Return(nil).Maybe()
	return m
}
