package handler

import (
	"context"
)

// Worker defines the interface that each worker must implement.
// Workers process requests and return responses without knowing about
// the underlying platform or transport mechanism.
type Worker interface {
	// Name returns the worker name used for logging, metrics and routing.
	Name() string

	// Process unmarshals the request payload, does the work and returns a
	// response. Business failures belong in the Response; a returned error
	// means the request could not be handled at all.
	Process(ctx context.Context, request Request) (Response, error)

	// Health verifies that the worker's dependencies are reachable.
	Health(ctx context.Context) error
}
