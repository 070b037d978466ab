package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency is the worker limit when none is configured.
const DefaultBatchConcurrency = 4

// BatchProcessor applies one function to many items with bounded
// concurrency and returns the results in input order. Finalize uses it to
// parse the visited pages in parallel.
type BatchProcessor[T, R any] struct {
	// fn processes one item. It must record failures in its result rather
	// than returning them, so that one bad item never hides the others.
	fn func(ctx context.Context, item T) R

	// concurrency is the maximum number of items processed at once.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*batchSettings)

type batchSettings struct {
	concurrency int
	logger      *slog.Logger
}

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(s *batchSettings) {
		s.logger = logger
	}
}

// WithConcurrency sets the maximum number of items processed at once.
func WithConcurrency(n int) BatchOption {
	return func(s *batchSettings) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor around fn.
func NewBatchProcessor[T, R any](fn func(ctx context.Context, item T) R, opts ...BatchOption) *BatchProcessor[T, R] {
	s := &batchSettings{concurrency: DefaultBatchConcurrency}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return &BatchProcessor[T, R]{
		fn:          fn,
		concurrency: s.concurrency,
		logger:      s.logger,
	}
}

// Process runs fn over items. Each goroutine writes only its own slot of
// the pre-allocated result slice, so results keep input order without a
// lock. Items not started before ctx is cancelled keep their zero value,
// and the context error is returned.
func (bp *BatchProcessor[T, R]) Process(ctx context.Context, items []T) ([]R, error) {
	bp.logger.Debug("starting batch processing",
		"total", len(items),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	results := make([]R, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, item := range items {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			results[i] = bp.fn(ctx, item)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Debug("batch processing complete",
		"total", len(items),
		"elapsed", time.Since(startTime),
	)

	return results, err
}

// ProcessWithCallback runs fn over items and calls callback with every
// result as soon as it is ready. The callback is called from worker
// goroutines and must be safe for concurrent use.
func (bp *BatchProcessor[T, R]) ProcessWithCallback(ctx context.Context, items []T, callback func(result R, index int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, item := range items {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			callback(bp.fn(ctx, item), i)
			return nil
		})
	}

	return g.Wait()
}
