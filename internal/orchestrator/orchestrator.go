package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/cookieaudit/internal/model"
)

const (
	// DefaultConcurrency is the number of pages loaded at once.
	DefaultConcurrency = 3

	// DefaultStagger spaces out the starts of the initial slot fill.
	DefaultStagger = 200 * time.Millisecond

	// DefaultPageTimeout is how long a page may take to signal completion.
	DefaultPageTimeout = 20 * time.Second

	// DefaultRetryTimeout is the per-page timeout of the retry pass.
	DefaultRetryTimeout = 30 * time.Second

	// RetryConcurrency is the slot count of the retry pass.
	RetryConcurrency = 1
)

const (
	// MessageScanComplete is the only message type a collector may send.
	MessageScanComplete = "scan_complete"

	// TokenParam carries the scan token on the navigation URL.
	TokenParam = "scan_token"

	// ScanIDParam carries the page id on the navigation URL.
	ScanIDParam = "scan_id"
)

// replyBuffer lets a collector deliver a few messages without waiting for
// the watcher to read them.
const replyBuffer = 4

// Message is what a page collector sends when it has finished a page.
type Message struct {
	Type   string `json:"type"`
	ScanID string `json:"scanId"`
}

// CompleteMessage returns the completion message for pageID.
func CompleteMessage(pageID string) Message {
	return Message{Type: MessageScanComplete, ScanID: pageID}
}

// Completes reports whether m is a well-formed completion of pageID.
func (m Message) Completes(pageID string) bool {
	return m.Type == MessageScanComplete && m.ScanID != "" && m.ScanID == pageID
}

// Visit is one page load handed to a collector.
type Visit struct {
	Page model.PageDescriptor

	// URL is the page URL with the scan token and page id appended.
	URL string

	Token string
}

// Collector loads one page in an isolated context and sends a completion
// Message on reply when it is done. Collect must return once ctx is done,
// and must send with a select on ctx.Done() so that a dropped reply
// channel never blocks it.
type Collector interface {
	Collect(ctx context.Context, visit Visit, reply chan<- Message)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(ctx context.Context, visit Visit, reply chan<- Message)

// Collect implements Collector.
func (f CollectorFunc) Collect(ctx context.Context, visit Visit, reply chan<- Message) {
	f(ctx, visit, reply)
}

// Finalizer asks the evidence sink to parse the visited pages and return
// the classified live result of the run.
type Finalizer interface {
	Finalize(ctx context.Context, pages []model.PageDescriptor, token string) (*model.LiveResult, error)
}

// ProgressFunc receives (completed, total, label) after every page event.
type ProgressFunc func(completed, total int, label string)

// PageFunc receives the terminal status of every page as it is observed.
type PageFunc func(pageID string, status model.PageStatus, label string)

// Result is the outcome of a live scan.
type Result struct {
	// Statuses maps every page id to its final status. A page that timed
	// out in the first pass and completed in the retry pass is ok.
	Statuses map[string]model.PageStatus

	// FirstPassTimeouts lists the pages that timed out in the first pass.
	FirstPassTimeouts []string

	// Retried reports whether the retry pass ran.
	Retried bool

	// Live is the finalize response. Nil when finalize failed or no
	// finalizer is configured.
	Live *model.LiveResult
}

// Orchestrator runs the live scan over a page list.
type Orchestrator struct {
	collector    Collector
	finalizer    Finalizer
	concurrency  int
	stagger      time.Duration
	pageTimeout  time.Duration
	retryTimeout time.Duration
	progress     ProgressFunc
	onPage       PageFunc
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency sets the slot count of the first pass.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithStagger sets the delay between starts of the initial slot fill.
func WithStagger(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.stagger = d
		}
	}
}

// WithPageTimeout sets the first-pass per-page timeout.
func WithPageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pageTimeout = d
		}
	}
}

// WithRetryTimeout sets the retry-pass per-page timeout.
func WithRetryTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retryTimeout = d
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithPageCallback sets the per-page status callback.
func WithPageCallback(fn PageFunc) Option {
	return func(o *Orchestrator) {
		o.onPage = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Orchestrator. finalizer may be nil, in which case Run
// stops after the page passes.
func New(collector Collector, finalizer Finalizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		collector:    collector,
		finalizer:    finalizer,
		concurrency:  DefaultConcurrency,
		stagger:      DefaultStagger,
		pageTimeout:  DefaultPageTimeout,
		retryTimeout: DefaultRetryTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ShouldRetry reports whether a retry pass is warranted: at least one
// page timed out, and fewer than half of all pages did.
func ShouldRetry(timeouts, total int) bool {
	return timeouts > 0 && timeouts*2 < total
}

// Run visits pages and then sends one finalize request.
//
// A finalize failure is returned wrapped in ErrFinalize together with a
// Result that still carries every page status. Cancelling ctx stops new
// page loads, lets the in-flight ones time out and returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, pages []model.PageDescriptor, token string) (*Result, error) {
	if o.collector == nil {
		return nil, ErrNoCollector
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	res := &Result{Statuses: make(map[string]model.PageStatus, len(pages))}

	// collectors tracks every collector goroutine of both passes, so that
	// all browsing contexts are gone before finalize is sent.
	var collectors sync.WaitGroup

	o.pass(ctx, &collectors, pages, token, o.concurrency, o.pageTimeout, "", res.Statuses)

	var retry []model.PageDescriptor
	for _, p := range pages {
		if res.Statuses[p.ID] == model.PageStatusTimeout {
			retry = append(retry, p)
			res.FirstPassTimeouts = append(res.FirstPassTimeouts, p.ID)
		}
	}

	if ctx.Err() == nil && ShouldRetry(len(retry), len(pages)) {
		o.logger.Info("retrying timed out pages",
			"pages", len(retry),
			"total", len(pages),
			"timeout", o.retryTimeout,
		)
		res.Retried = true
		o.pass(ctx, &collectors, retry, token, RetryConcurrency, o.retryTimeout, "Retry: ", res.Statuses)
	}

	collectors.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if o.finalizer == nil {
		return res, nil
	}

	live, err := o.finalizer.Finalize(ctx, pages, token)
	if err != nil {
		o.logger.Error("finalize failed", "error", err)
		return res, fmt.Errorf("%w: %v", ErrFinalize, err)
	}
	if live == nil {
		live = &model.LiveResult{}
	}
	live.PageStatus = maps.Clone(res.Statuses)
	res.Live = live
	return res, nil
}

type pageEvent struct {
	page   model.PageDescriptor
	status model.PageStatus
}

// pass drives pages through a pool of concurrency slots and writes each
// terminal status into statuses. It returns once every started page has
// completed or timed out.
func (o *Orchestrator) pass(
	ctx context.Context,
	collectors *sync.WaitGroup,
	pages []model.PageDescriptor,
	token string,
	concurrency int,
	timeout time.Duration,
	labelPrefix string,
	statuses map[string]model.PageStatus,
) {
	events := make(chan pageEvent)
	queue := slices.Clone(pages)
	cancels := make(map[string]context.CancelFunc, concurrency)
	inflight, completed := 0, 0

	start := func() {
		page := queue[0]
		queue = queue[1:]

		pageCtx, cancel := context.WithCancel(ctx)
		cancels[page.ID] = cancel
		reply := make(chan Message, replyBuffer)
		visit := Visit{Page: page, URL: NavigationURL(page.URL, token, page.ID), Token: token}

		inflight++
		collectors.Add(1)
		go func() {
			defer collectors.Done()
			o.collector.Collect(pageCtx, visit, reply)
		}()
		go o.watch(pageCtx, page, reply, timeout, events)

		o.logger.Debug("page loading", "page", page.ID, "url", page.URL)
	}

	limiter := rate.NewLimiter(rate.Every(o.stagger), 1)
	for inflight < concurrency && len(queue) > 0 {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			// The stagger delay would outlast ctx's deadline; the slot is
			// filled without it.
			o.logger.Debug("start stagger skipped", "error", err)
		}
		start()
	}

	for inflight > 0 {
		ev := <-events
		inflight--
		completed++

		if cancel, ok := cancels[ev.page.ID]; ok {
			cancel()
			delete(cancels, ev.page.ID)
		}
		statuses[ev.page.ID] = ev.status

		if ev.status == model.PageStatusTimeout {
			o.logger.Warn("page timed out", "page", ev.page.ID, "timeout", timeout)
		}

		label := labelPrefix + ev.page.Label
		if o.onPage != nil {
			o.onPage(ev.page.ID, ev.status, label)
		}
		if o.progress != nil {
			o.progress(completed, len(pages), label)
		}

		if len(queue) > 0 && ctx.Err() == nil {
			start()
		}
	}
}

// watch waits for the completion message of one page or its timer. Any
// other message is dropped. It always delivers exactly one event.
func (o *Orchestrator) watch(ctx context.Context, page model.PageDescriptor, reply <-chan Message, timeout time.Duration, events chan<- pageEvent) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-reply:
			if !msg.Completes(page.ID) {
				o.logger.Debug("dropping message",
					"page", page.ID,
					"type", msg.Type,
					"scan_id", msg.ScanID,
				)
				continue
			}
			events <- pageEvent{page: page, status: model.PageStatusOK}
			return
		case <-timer.C:
			events <- pageEvent{page: page, status: model.PageStatusTimeout}
			return
		case <-ctx.Done():
			events <- pageEvent{page: page, status: model.PageStatusTimeout}
			return
		}
	}
}

// NavigationURL appends the scan token and the page id to pageURL.
func NavigationURL(pageURL, token, pageID string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		sep := "?"
		if strings.Contains(pageURL, "?") {
			sep = "&"
		}
		return pageURL + sep + TokenParam + "=" + url.QueryEscape(token) +
			"&" + ScanIDParam + "=" + url.QueryEscape(pageID)
	}
	q := u.Query()
	q.Set(TokenParam, token)
	q.Set(ScanIDParam, pageID)
	u.RawQuery = q.Encode()
	return u.String()
}
