package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/cookieaudit/internal/database"
	"github.com/nao1215/cookieaudit/internal/model"
)

type fakeExecutor struct {
	mu    sync.Mutex
	hash  string
	calls int
	err   error
	block chan struct{}
}

func (f *fakeExecutor) Execute(ctx context.Context, result *model.AuditResult) error {
	f.mu.Lock()
	f.calls++
	hash, err, block := f.hash, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	result.ComponentHash = hash
	result.PerformedSteps = append(result.PerformedSteps, "fake")
	return err
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClearer struct {
	mu      sync.Mutex
	cleared []string
}

func (f *fakeClearer) Clear(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, runID)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("run-%d", n)
	}
}

func openTestDB(t *testing.T) *database.AuditDB {
	t.Helper()
	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestControllerRun(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	exec := &fakeExecutor{hash: "h1"}
	c := NewController(exec, WithClock(clock.Now), WithRunIDs(sequentialIDs()))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.RunID != "run-1" || result.ComponentHash != "h1" {
		t.Errorf("result = %+v", result)
	}
	if result.CompletedAt.IsZero() || result.Elapsed < 0 {
		t.Errorf("CompletedAt = %v, Elapsed = %v", result.CompletedAt, result.Elapsed)
	}

	t.Run("default run ids are uuids", func(t *testing.T) {
		t.Parallel()
		r, err := NewController(&fakeExecutor{}).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(r.RunID) != 36 {
			t.Errorf("RunID = %q, want a uuid", r.RunID)
		}
	})
}

func TestControllerStepErrorsDoNotFailTheRun(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{err: errors.New("finalize request failed")}
	c := NewController(exec)

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if result == nil {
		t.Fatal("Run() returned no result")
	}
	if _, err := c.Cached(context.Background(), ""); err != nil {
		t.Errorf("a run with step errors should still be cached: %v", err)
	}
}

func TestControllerCache(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		advance time.Duration
		hash    string
		wantHit bool
	}{
		{"fresh and same components", 10 * time.Minute, "h1", true},
		{"expired", 2 * time.Hour, "h1", false},
		{"components changed", time.Minute, "h2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			exec := &fakeExecutor{hash: "h1"}
			c := NewController(exec, WithClock(clock.Now), WithCacheTTL(time.Hour))

			if _, err := c.Run(context.Background()); err != nil {
				t.Fatal(err)
			}
			clock.Advance(tt.advance)

			_, cached, err := c.RunOrCached(context.Background(), tt.hash, false)
			if err != nil {
				t.Fatalf("RunOrCached() error = %v", err)
			}
			if cached != tt.wantHit {
				t.Errorf("cached = %v, want %v", cached, tt.wantHit)
			}
			wantCalls := 2
			if tt.wantHit {
				wantCalls = 1
			}
			if exec.Calls() != wantCalls {
				t.Errorf("executor calls = %d, want %d", exec.Calls(), wantCalls)
			}
		})
	}

	t.Run("fresh flag bypasses the cache", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{hash: "h1"}
		c := NewController(exec)
		if _, err := c.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		if _, cached, _ := c.RunOrCached(context.Background(), "h1", true); cached {
			t.Error("fresh run served from cache")
		}
	})

	t.Run("zero ttl disables caching", func(t *testing.T) {
		t.Parallel()
		c := NewController(&fakeExecutor{hash: "h1"}, WithCacheTTL(0))
		if _, err := c.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Cached(context.Background(), "h1"); !errors.Is(err, ErrNoCachedRun) {
			t.Errorf("Cached() error = %v, want ErrNoCachedRun", err)
		}
	})
}

// TestControllerPersistentCache checks that a second controller over the
// same database serves the first controller's run.
func TestControllerPersistentCache(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}

	first := NewController(&fakeExecutor{hash: "h1"}, WithStore(db), WithClock(clock.Now), WithRunIDs(sequentialIDs()))
	if _, err := first.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute)
	exec := &fakeExecutor{hash: "h1"}
	second := NewController(exec, WithStore(db), WithClock(clock.Now))

	result, cached, err := second.RunOrCached(context.Background(), "h1", false)
	if err != nil {
		t.Fatalf("RunOrCached() error = %v", err)
	}
	if !cached || result.RunID != "run-1" {
		t.Errorf("cached = %v, run = %q, want the stored run-1", cached, result.RunID)
	}
	if exec.Calls() != 0 {
		t.Errorf("executor ran %d times", exec.Calls())
	}
}

func TestControllerClear(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	clearer := &fakeClearer{}
	c := NewController(&fakeExecutor{hash: "h1"},
		WithStore(db),
		WithClearer(clearer),
		WithRunIDs(sequentialIDs()),
	)

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if _, err := c.Cached(context.Background(), "h1"); !errors.Is(err, ErrNoCachedRun) {
		t.Errorf("Cached() after Clear error = %v, want ErrNoCachedRun", err)
	}
	if _, err := db.LatestRun(context.Background()); !errors.Is(err, database.ErrRunNotFound) {
		t.Errorf("LatestRun() after Clear error = %v, want ErrRunNotFound", err)
	}
	if len(clearer.cleared) != 1 || clearer.cleared[0] != "run-1" {
		t.Errorf("cleared runs = %v, want [run-1]", clearer.cleared)
	}
}

func TestControllerRejectsConcurrentRuns(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{block: make(chan struct{})}
	c := NewController(exec)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background())
		done <- err
	}()

	deadline := time.After(5 * time.Second)
	for exec.Calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := c.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Run() error = %v, want ErrRunInProgress", err)
	}
	close(exec.block)
	if err := <-done; err != nil {
		t.Errorf("first Run() error = %v", err)
	}
}

func TestControllerCancelled(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{block: make(chan struct{})}
	c := NewController(exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if _, err := c.Cached(context.Background(), ""); !errors.Is(err, ErrNoCachedRun) {
		t.Errorf("a cancelled run must not be cached: %v", err)
	}
}
