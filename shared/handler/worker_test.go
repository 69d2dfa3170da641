package handler

import (
	"context"
	"errors"
	"testing"

	"findtrades/shared/observability/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoWorker answers every request with the decoded payload.
type echoWorker struct {
	name   string
	health error
}

func (w *echoWorker) Name() string { return w.name }

func (w *echoWorker) Process(ctx context.Context, req Request) (Response, error) {
	var payload map[string]any
	if err := req.Unmarshal(&payload); err != nil && len(req.Payload) > 0 {
		return NewErrorResponse(req.ID, CodeInvalidReq, "undecodable payload", err.Error()), nil
	}
	return NewSuccessResponse(req.ID, map[string]any{
		"processed_by": w.name,
		"payload":      payload,
	})
}

func (w *echoWorker) Health(ctx context.Context) error { return w.health }

func TestWorker_ThroughDefaultPipeline(t *testing.T) {
	w := &echoWorker{name: "listings"}
	h := NewFactory(w, mocks.NewQuietProvider()).CreateHTTP()

	req, err := NewRequest("listings", map[string]any{"filters": map[string]any{"page": 1}})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Success)

	var out struct {
		ProcessedBy string         `json:"processed_by"`
		Payload     map[string]any `json:"payload"`
	}
	require.NoError(t, resp.Unmarshal(&out))
	assert.Equal(t, "listings", out.ProcessedBy)
	assert.Contains(t, out.Payload, "filters")
	assert.NotEmpty(t, resp.Metadata["trace_id"])
}

func TestWorker_HealthPropagates(t *testing.T) {
	down := errors.New("database unreachable")
	h := NewFactory(&echoWorker{name: "listings", health: down}, mocks.NewQuietProvider()).Create()

	assert.ErrorIs(t, h.Health(context.Background()), down)
	assert.Equal(t, "listings", h.Worker().Name())
}
