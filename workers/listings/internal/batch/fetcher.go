// Package batch splits id-set lookups into chunks the store accepts and runs
// them with bounded parallelism.
package batch

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"findtrades/shared/observability"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize   = 100
	DefaultMaxInFlight = 4
)

// Lookup fetches the rows for one chunk of ids.
type Lookup[ID cmp.Ordered, R any] func(ctx context.Context, ids []ID) ([]R, error)

// Result is the outcome of a best-effort fetch.
type Result[R any] struct {
	Rows   []R
	Chunks int
	Failed int
}

// Partial reports whether any chunk failed.
func (r Result[R]) Partial() bool {
	return r.Failed > 0
}

// Fetcher holds the chunking limits shared by all batched lookups.
type Fetcher struct {
	BatchSize   int
	MaxInFlight int

	logger  observability.Logger
	metrics observability.Metrics
}

// New creates a Fetcher. Non-positive limits fall back to the defaults.
func New(batchSize, maxInFlight int, provider observability.Provider) *Fetcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Fetcher{
		BatchSize:   batchSize,
		MaxInFlight: maxInFlight,
		logger:      provider.Logger("batch"),
		metrics:     provider.Metrics("batch"),
	}
}

// FetchByIDs looks up ids chunk by chunk. A failed chunk is logged and
// counted and its rows are left out; the call itself never fails.
func FetchByIDs[ID cmp.Ordered, R any](ctx context.Context, f *Fetcher, ids []ID, lookup Lookup[ID, R]) Result[R] {
	chunks := Chunk(UniqueSorted(ids), f.BatchSize)
	result := Result[R]{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return result
	}

	start := time.Now()
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(f.MaxInFlight)

	for i, chunk := range chunks {
		i, chunk := i, chunk // per-iteration copies (go directive is 1.21)
		g.Go(func() error {
			rows, err := lookup(ctx, chunk)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				f.metrics.RecordError("batch_chunk", "lookup_failed")
				f.logger.Warn(ctx, "Batch chunk failed", observability.Fields{
					"chunk":      i,
					"chunk_size": len(chunk),
					"error":      err.Error(),
				})
				return nil
			}
			result.Rows = append(result.Rows, rows...)
			return nil
		})
	}
	g.Wait()

	f.record(start, len(result.Rows))
	return result
}

// FetchAllByIDs is the strict variant of FetchByIDs: the first failed chunk
// cancels the rest and its error is returned.
func FetchAllByIDs[ID cmp.Ordered, R any](ctx context.Context, f *Fetcher, ids []ID, lookup Lookup[ID, R]) ([]R, error) {
	chunks := Chunk(UniqueSorted(ids), f.BatchSize)
	if len(chunks) == 0 {
		return nil, nil
	}

	start := time.Now()
	var mu sync.Mutex
	var rows []R

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.MaxInFlight)

	for i, chunk := range chunks {
		i, chunk := i, chunk // per-iteration copies (go directive is 1.21)
		g.Go(func() error {
			chunkRows, err := lookup(gctx, chunk)
			if err != nil {
				f.metrics.RecordError("batch_chunk", "lookup_failed")
				return fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
			}
			mu.Lock()
			rows = append(rows, chunkRows...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.record(start, len(rows))
	return rows, nil
}

func (f *Fetcher) record(start time.Time, rows int) {
	f.metrics.RecordDuration("batch_fetch", time.Since(start).Seconds())
	f.metrics.RecordResultSize("batch_rows", rows)
}

// UniqueSorted returns the distinct ids in ascending order.
func UniqueSorted[ID cmp.Ordered](ids []ID) []ID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk[ID any](ids []ID, size int) [][]ID {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var chunks [][]ID
	for len(ids) > 0 {
		n := min(size, len(ids))
		chunks = append(chunks, ids[:n:n])
		ids = ids[n:]
	}
	return chunks
}
