package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/cookieaudit/internal/database"
	"github.com/nao1215/cookieaudit/internal/model"
)

// DefaultCacheTTL is how long a finished run is served from cache.
const DefaultCacheTTL = time.Hour

// Executor runs the audit stages. pipeline.Pipeline implements it.
type Executor interface {
	Execute(ctx context.Context, result *model.AuditResult) error
}

// Store persists finished runs. database.AuditDB implements it.
type Store interface {
	SaveRun(ctx context.Context, result *model.AuditResult) error
	LatestRun(ctx context.Context) (*model.AuditResult, error)
	DeleteRuns(ctx context.Context) (int64, error)
}

// Clearer drops the scan token and the buffered evidence of a run.
// evidence.Service implements it.
type Clearer interface {
	Clear(ctx context.Context, runID string) error
}

// Controller starts audit runs and manages their cache.
type Controller struct {
	exec     Executor
	store    Store
	clearer  Clearer
	cacheTTL time.Duration
	now      func() time.Time
	newRunID func() string
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	entry   CacheEntry
}

// Option configures a Controller.
type Option func(*Controller)

// WithStore persists runs so the cache survives restarts.
func WithStore(store Store) Option {
	return func(c *Controller) {
		c.store = store
	}
}

// WithClearer sets what Clear resets besides the cache.
func WithClearer(clearer Clearer) Option {
	return func(c *Controller) {
		c.clearer = clearer
	}
}

// WithCacheTTL sets the cache lifetime. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(next func() string) Option {
	return func(c *Controller) {
		c.newRunID = next
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a Controller around exec.
func NewController(exec Executor, opts ...Option) *Controller {
	c := &Controller{
		exec:     exec,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
		newRunID: uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes a new audit and caches it. Step failures are recorded in
// the result; the error is only non-nil when the run could not start or
// ctx was cancelled.
func (c *Controller) Run(ctx context.Context) (*model.AuditResult, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrRunInProgress
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	result := model.NewAuditResult(c.newRunID(), c.now())
	c.logger.Info("audit started", "run", result.RunID)

	err := c.exec.Execute(ctx, result)

	result.CompletedAt = c.now()
	result.Elapsed = result.CompletedAt.Sub(result.StartedAt)

	if err != nil && ctx.Err() != nil {
		c.logger.Warn("audit cancelled", "run", result.RunID, "error", err)
		return result, err
	}

	c.mu.Lock()
	c.entry = entryFor(result)
	c.mu.Unlock()

	if c.store != nil {
		if serr := c.store.SaveRun(ctx, result); serr != nil {
			c.logger.Warn("failed to persist audit run", "run", result.RunID, "error", serr)
		}
	}

	c.logger.Info("audit finished",
		"run", result.RunID,
		"elapsed", result.Elapsed,
		"services", len(result.Services),
		"confirmed", result.ConfirmedCount(),
		"partial", result.Partial,
		"errors", len(result.Errors),
	)
	return result, nil
}

// Cached returns the cached run when it is still fresh for a site whose
// active components hash to componentHash. The persisted store is
// consulted when nothing is cached in memory.
func (c *Controller) Cached(ctx context.Context, componentHash string) (*model.AuditResult, error) {
	c.mu.Lock()
	entry := c.entry
	c.mu.Unlock()

	if entry.Result == nil && c.store != nil {
		latest, err := c.store.LatestRun(ctx)
		switch {
		case err == nil:
			entry = entryFor(latest)
			c.mu.Lock()
			if c.entry.Result == nil {
				c.entry = entry
			}
			c.mu.Unlock()
		case !errors.Is(err, database.ErrRunNotFound):
			return nil, err
		}
	}

	if entry.Result == nil {
		return nil, ErrNoCachedRun
	}
	if !entry.Fresh(c.now(), c.cacheTTL, componentHash) {
		if entry.ComponentHash != componentHash {
			c.logger.Info("cached audit invalidated by component change",
				"run", entry.Result.RunID,
				"cached_hash", entry.ComponentHash,
				"current_hash", componentHash,
			)
		}
		return nil, ErrNoCachedRun
	}
	return entry.Result, nil
}

// RunOrCached returns the fresh cached run, or runs a new audit when there
// is none or fresh is set.
func (c *Controller) RunOrCached(ctx context.Context, componentHash string, fresh bool) (*model.AuditResult, bool, error) {
	if !fresh {
		result, err := c.Cached(ctx, componentHash)
		if err == nil {
			return result, true, nil
		}
		if !errors.Is(err, ErrNoCachedRun) {
			c.logger.Warn("audit cache unavailable", "error", err)
		}
	}
	result, err := c.Run(ctx)
	return result, false, err
}

// Clear drops the cached run, the stored runs, and the scan token and
// evidence buffer of the last run.
func (c *Controller) Clear(ctx context.Context) error {
	c.mu.Lock()
	entry := c.entry
	c.entry = CacheEntry{}
	c.mu.Unlock()

	var errs []error
	if c.store != nil {
		if entry.Result == nil {
			if latest, err := c.store.LatestRun(ctx); err == nil {
				entry = entryFor(latest)
			}
		}
		n, err := c.store.DeleteRuns(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.logger.Debug("stored audit runs deleted", "count", n)
		}
	}
	if c.clearer != nil && entry.Result != nil {
		if err := c.clearer.Clear(ctx, entry.Result.RunID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
