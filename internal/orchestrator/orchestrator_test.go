package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/cookieaudit/internal/model"
)

func testPages(n int) []model.PageDescriptor {
	pages := make([]model.PageDescriptor, n)
	for i := range pages {
		id := fmt.Sprintf("page-%d", i)
		pages[i] = model.PageDescriptor{ID: id, URL: "https://example.com/" + id, Label: "Page " + id}
	}
	return pages
}

// fakeCollector completes every page except those in never, after first
// sending a malformed message and a completion for another page.
type fakeCollector struct {
	never    map[string]bool
	attempts sync.Map // page id -> *atomic.Int32
	// completeOnAttempt makes a page in never complete from that attempt on.
	completeOnAttempt map[string]int32

	started  atomic.Int32
	reported atomic.Int32
	maxLive  atomic.Int32
	active   atomic.Int32
	mu       sync.Mutex
	urls     []string
}

func (c *fakeCollector) Collect(ctx context.Context, v Visit, reply chan<- Message) {
	c.active.Add(1)
	defer c.active.Add(-1)

	live := c.started.Add(1) - c.reported.Load()
	for {
		prev := c.maxLive.Load()
		if live <= prev || c.maxLive.CompareAndSwap(prev, live) {
			break
		}
	}

	c.mu.Lock()
	c.urls = append(c.urls, v.URL)
	c.mu.Unlock()

	counter, _ := c.attempts.LoadOrStore(v.Page.ID, new(atomic.Int32))
	attempt := counter.(*atomic.Int32).Add(1)

	if c.never[v.Page.ID] && (c.completeOnAttempt[v.Page.ID] == 0 || attempt < c.completeOnAttempt[v.Page.ID]) {
		<-ctx.Done()
		return
	}

	for _, msg := range []Message{{Type: "noise", ScanID: v.Page.ID}, CompleteMessage("someone-else"), {Type: MessageScanComplete}} {
		select {
		case reply <- msg:
		case <-ctx.Done():
			return
		}
	}
	time.Sleep(time.Millisecond)
	select {
	case reply <- CompleteMessage(v.Page.ID):
	case <-ctx.Done():
	}
}

type fakeFinalizer struct {
	activeAtCall int32
	collector    *fakeCollector
	err          error
	gotPages     int
	gotToken     string
}

func (f *fakeFinalizer) Finalize(_ context.Context, pages []model.PageDescriptor, token string) (*model.LiveResult, error) {
	if f.collector != nil {
		f.activeAtCall = f.collector.active.Load()
	}
	f.gotPages = len(pages)
	f.gotToken = token
	if f.err != nil {
		return nil, f.err
	}
	return &model.LiveResult{PagesScanned: len(pages)}, nil
}

func neverSet(pages []model.PageDescriptor, n int) map[string]bool {
	never := make(map[string]bool)
	for _, p := range pages[len(pages)-n:] {
		never[p.ID] = true
	}
	return never
}

func newTestOrchestrator(c Collector, f Finalizer, opts ...Option) *Orchestrator {
	base := []Option{
		WithStagger(time.Millisecond),
		WithPageTimeout(60 * time.Millisecond),
		WithRetryTimeout(80 * time.Millisecond),
	}
	return New(c, f, append(base, opts...)...)
}

func countStatus(statuses map[string]model.PageStatus, want model.PageStatus) int {
	n := 0
	for _, s := range statuses {
		if s == want {
			n++
		}
	}
	return n
}

func TestRun_RetryPassBelowHalf(t *testing.T) {
	t.Parallel()

	pages := testPages(10)
	collector := &fakeCollector{never: neverSet(pages, 2)}
	finalizer := &fakeFinalizer{collector: collector}

	var mu sync.Mutex
	var progress []string
	var retryLabels int
	o := newTestOrchestrator(collector, finalizer,
		WithPageCallback(func(_ string, _ model.PageStatus, _ string) {
			collector.reported.Add(1)
		}),
		WithProgress(func(completed, total int, label string) {
			mu.Lock()
			defer mu.Unlock()
			progress = append(progress, fmt.Sprintf("%d/%d", completed, total))
			if strings.HasPrefix(label, "Retry: ") {
				retryLabels++
			}
		}),
	)

	res, err := o.Run(context.Background(), pages, "tok")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.FirstPassTimeouts) != 2 {
		t.Errorf("FirstPassTimeouts = %v, want 2 pages", res.FirstPassTimeouts)
	}
	if !res.Retried {
		t.Error("expected a retry pass for 2/10 timeouts")
	}
	if got := countStatus(res.Statuses, model.PageStatusOK); got != 8 {
		t.Errorf("ok pages = %d, want 8", got)
	}
	if got := countStatus(res.Statuses, model.PageStatusTimeout); got != 2 {
		t.Errorf("timeout pages = %d, want 2", got)
	}
	if got := collector.maxLive.Load(); got > DefaultConcurrency {
		t.Errorf("max concurrent pages = %d, want <= %d", got, DefaultConcurrency)
	}

	// 10 first-pass events plus 2 retry events.
	if len(progress) != 12 {
		t.Errorf("progress events = %d, want 12: %v", len(progress), progress)
	}
	if progress[9] != "10/10" || progress[11] != "2/2" {
		t.Errorf("progress = %v", progress)
	}
	if retryLabels != 2 {
		t.Errorf("retry labels = %d, want 2", retryLabels)
	}

	if finalizer.activeAtCall != 0 {
		t.Errorf("%d collectors still running when finalize was sent", finalizer.activeAtCall)
	}
	if finalizer.gotPages != 10 || finalizer.gotToken != "tok" {
		t.Errorf("finalize got %d pages, token %q", finalizer.gotPages, finalizer.gotToken)
	}
	if res.Live == nil || len(res.Live.PageStatus) != 10 {
		t.Fatalf("Live = %+v, want page statuses attached", res.Live)
	}
}

func TestRun_NoRetryAtHalfOrMore(t *testing.T) {
	t.Parallel()

	pages := testPages(10)
	collector := &fakeCollector{never: neverSet(pages, 6)}

	res, err := newTestOrchestrator(collector, nil).Run(context.Background(), pages, "tok")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Retried {
		t.Error("6/10 timeouts must not trigger a retry pass")
	}
	if got := countStatus(res.Statuses, model.PageStatusTimeout); got != 6 {
		t.Errorf("timeout pages = %d, want 6", got)
	}
	if res.Live != nil {
		t.Error("no finalizer configured, Live should be nil")
	}
}

func TestRun_RetryRecoversSlowPage(t *testing.T) {
	t.Parallel()

	pages := testPages(4)
	slow := pages[1].ID
	collector := &fakeCollector{
		never:             map[string]bool{slow: true},
		completeOnAttempt: map[string]int32{slow: 2},
	}

	res, err := newTestOrchestrator(collector, nil).Run(context.Background(), pages, "tok")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Retried {
		t.Fatal("expected retry pass")
	}
	if res.Statuses[slow] != model.PageStatusOK {
		t.Errorf("status of %s = %q, want ok after retry", slow, res.Statuses[slow])
	}
	if len(res.FirstPassTimeouts) != 1 || res.FirstPassTimeouts[0] != slow {
		t.Errorf("FirstPassTimeouts = %v", res.FirstPassTimeouts)
	}
}

func TestRun_ObservedOrder(t *testing.T) {
	t.Parallel()

	pages := testPages(2)
	collector := CollectorFunc(func(ctx context.Context, v Visit, reply chan<- Message) {
		if v.Page.ID == pages[0].ID {
			select {
			case <-time.After(30 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
		select {
		case reply <- CompleteMessage(v.Page.ID):
		case <-ctx.Done():
		}
	})

	var order []string
	o := newTestOrchestrator(collector, nil,
		WithConcurrency(2),
		WithPageCallback(func(id string, _ model.PageStatus, _ string) {
			order = append(order, id)
		}),
	)
	if _, err := o.Run(context.Background(), pages, "tok"); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != pages[1].ID {
		t.Errorf("page events in %v, want the fast page first", order)
	}
}

func TestRun_FinalizeError(t *testing.T) {
	t.Parallel()

	pages := testPages(3)
	collector := &fakeCollector{}
	transportErr := errors.New("connection refused")

	res, err := newTestOrchestrator(collector, &fakeFinalizer{err: transportErr}).Run(context.Background(), pages, "tok")
	if !errors.Is(err, ErrFinalize) {
		t.Fatalf("Run() error = %v, want ErrFinalize", err)
	}
	if res == nil || len(res.Statuses) != 3 {
		t.Fatalf("page statuses must survive a finalize failure, got %+v", res)
	}
	if res.Live != nil {
		t.Error("Live should be nil after finalize failure")
	}
}

func TestRun_NavigationURLCarriesTokenAndID(t *testing.T) {
	t.Parallel()

	pages := testPages(1)
	collector := &fakeCollector{}
	if _, err := newTestOrchestrator(collector, nil).Run(context.Background(), pages, "tok"); err != nil {
		t.Fatal(err)
	}

	u, err := url.Parse(collector.urls[0])
	if err != nil {
		t.Fatal(err)
	}
	if got := u.Query().Get(TokenParam); got != "tok" {
		t.Errorf("%s = %q", TokenParam, got)
	}
	if got := u.Query().Get(ScanIDParam); got != pages[0].ID {
		t.Errorf("%s = %q", ScanIDParam, got)
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestOrchestrator(&fakeCollector{}, &fakeFinalizer{}).Run(ctx, testPages(3), "tok")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_InvalidInput(t *testing.T) {
	t.Parallel()

	if _, err := New(&fakeCollector{}, nil).Run(context.Background(), nil, "tok"); !errors.Is(err, ErrNoPages) {
		t.Errorf("empty pages: error = %v, want ErrNoPages", err)
	}
	if _, err := New(nil, nil).Run(context.Background(), testPages(1), "tok"); !errors.Is(err, ErrNoCollector) {
		t.Errorf("nil collector: error = %v, want ErrNoCollector", err)
	}
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		timeouts, total int
		want            bool
	}{
		{0, 10, false},
		{2, 10, true},
		{4, 10, true},
		{5, 10, false},
		{6, 10, false},
		{1, 1, false},
		{1, 3, true},
	}
	for _, tt := range tests {
		if got := ShouldRetry(tt.timeouts, tt.total); got != tt.want {
			t.Errorf("ShouldRetry(%d, %d) = %v, want %v", tt.timeouts, tt.total, got, tt.want)
		}
	}
}

func TestMessageCompletes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  Message
		page string
		want bool
	}{
		{"completion of the page", CompleteMessage("home"), "home", true},
		{"other page", CompleteMessage("login"), "home", false},
		{"wrong type", Message{Type: "loaded", ScanID: "home"}, "home", false},
		{"missing id", Message{Type: MessageScanComplete}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.msg.Completes(tt.page); got != tt.want {
				t.Errorf("Completes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNavigationURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/", "https://example.com/?scan_id=home&scan_token=t%2F1"},
		{"https://example.com/?p=2", "https://example.com/?p=2&scan_id=home&scan_token=t%2F1"},
	}
	for _, tt := range tests {
		if got := NavigationURL(tt.in, "t/1", "home"); got != tt.want {
			t.Errorf("NavigationURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// barrierCollector holds every page until want pages are loading at once,
// or until wait elapses, and records the peak.
type barrierCollector struct {
	want   int32
	wait   time.Duration
	active atomic.Int32
	peak   atomic.Int32
}

func (c *barrierCollector) Collect(ctx context.Context, v Visit, reply chan<- Message) {
	n := c.active.Add(1)
	for {
		prev := c.peak.Load()
		if n <= prev || c.peak.CompareAndSwap(prev, n) {
			break
		}
	}

	deadline := time.Now().Add(c.wait)
	for c.active.Load() < c.want && time.Now().Before(deadline) && ctx.Err() == nil {
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case reply <- CompleteMessage(v.Page.ID):
	case <-ctx.Done():
	}
}

func TestRun_StaggerBeyondDeadlineFillsEverySlot(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := &barrierCollector{want: 3, wait: 2 * time.Second}
	o := New(c, &fakeFinalizer{},
		WithConcurrency(3),
		WithStagger(time.Hour),
		WithPageTimeout(4*time.Second),
	)

	res, err := o.Run(ctx, testPages(3), "tok")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := c.peak.Load(); got != 3 {
		t.Errorf("peak concurrent pages = %d, want 3", got)
	}
	if n := countStatus(res.Statuses, model.PageStatusOK); n != 3 {
		t.Errorf("ok pages = %d, want 3 (%v)", n, res.Statuses)
	}
}
