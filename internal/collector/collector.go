// Package collector implements the page collector of the live scan over
// plain HTTP. Each visit gets its own client and cookie jar, so no state
// leaks between pages.
package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"slices"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	applog "github.com/nao1215/cookieaudit/internal/log"
	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/orchestrator"
)

const (
	// DefaultMaxBodySize caps how much of a page is read.
	DefaultMaxBodySize = 5 * 1024 * 1024

	// DefaultUserAgent is sent with every page load.
	DefaultUserAgent = "CookieAudit-Collector/1.0"
)

var (
	// scriptCookiePattern finds cookies written by inline script.
	scriptCookiePattern = regexp.MustCompile(`document\.cookie\s*=\s*['"\x60]\s*([^=;'"\x60\s]+)=([^;'"\x60]*)`)

	// storagePattern finds keys written to web storage by inline script.
	storagePattern = regexp.MustCompile(`\b(localStorage|sessionStorage)\.setItem\(\s*['"]([^'"]+)['"]`)
)

// Submitter delivers the evidence of one page to the evidence sink.
type Submitter interface {
	Submit(ctx context.Context, token string, evidence model.PageEvidence) error
}

// HTTPCollector loads pages over HTTP and reports the cookies and storage
// keys they set. It implements orchestrator.Collector.
type HTTPCollector struct {
	submitter   Submitter
	userAgent   string
	headers     map[string]string
	maxBodySize int64
	now         func() time.Time
	logger      *slog.Logger
}

var _ orchestrator.Collector = (*HTTPCollector)(nil)

// Option configures an HTTPCollector.
type Option func(*HTTPCollector)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *HTTPCollector) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHeaders adds headers to every page request.
func WithHeaders(headers map[string]string) Option {
	return func(c *HTTPCollector) {
		c.headers = headers
	}
}

// WithMaxBodySize caps the bytes read from one page.
func WithMaxBodySize(n int64) Option {
	return func(c *HTTPCollector) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPCollector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an HTTPCollector that hands evidence to submitter.
func New(submitter Submitter, opts ...Option) *HTTPCollector {
	c := &HTTPCollector{
		submitter:   submitter,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect loads the page, submits its evidence and then signals
// completion. A page that cannot be loaded sends nothing and is left to
// time out. Completion is signalled even when the submission fails.
func (c *HTTPCollector) Collect(ctx context.Context, visit orchestrator.Visit, reply chan<- orchestrator.Message) {
	evidence, err := c.Load(ctx, visit)
	if err != nil {
		c.logger.Debug("page load failed", "page", visit.Page.ID, "error", err)
		return
	}

	if c.submitter != nil {
		if err := c.submitter.Submit(ctx, visit.Token, evidence); err != nil {
			c.logger.Warn("evidence submission failed", "page", visit.Page.ID, "error", err)
		}
	}

	select {
	case reply <- orchestrator.CompleteMessage(visit.Page.ID):
	case <-ctx.Done():
	}
}

// Load fetches visit.URL with a fresh client and cookie jar and returns
// the evidence it produced. Cookie values never leave this function.
func (c *HTTPCollector) Load(ctx context.Context, visit orchestrator.Visit) (model.PageEvidence, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return model.PageEvidence{}, err
	}

	client := resty.New().
		SetCookieJar(jar).
		SetLogger(applog.NewRestyLogger(c.logger)).
		SetHeader("User-Agent", c.userAgent).
		SetHeaders(c.headers)

	resp, err := client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(visit.URL)
	if err != nil {
		return model.PageEvidence{}, err
	}
	body := resp.RawBody()
	defer body.Close()

	if code := resp.StatusCode(); code < 200 || code > 399 {
		return model.PageEvidence{}, fmt.Errorf("HTTP error: %d", code)
	}

	data, err := io.ReadAll(io.LimitReader(body, c.maxBodySize))
	if err != nil {
		return model.PageEvidence{}, err
	}

	finalURL, err := url.Parse(visit.URL)
	if err != nil {
		return model.PageEvidence{}, err
	}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL
	}

	evidence := model.PageEvidence{
		ScanID:             visit.Page.ID,
		Cookies:            []model.CookieObservation{},
		LocalStorageKeys:   []string{},
		SessionStorageKeys: []string{},
		Timestamp:          c.now(),
	}

	for _, ck := range jar.Cookies(finalURL) {
		evidence.Cookies = addCookie(evidence.Cookies, ck.Name, ck.Value != "")
	}
	for _, m := range scriptCookiePattern.FindAllStringSubmatch(string(data), -1) {
		evidence.Cookies = addCookie(evidence.Cookies, m[1], m[2] != "")
	}
	for _, m := range storagePattern.FindAllStringSubmatch(string(data), -1) {
		if m[1] == "localStorage" {
			evidence.LocalStorageKeys = addKey(evidence.LocalStorageKeys, m[2])
		} else {
			evidence.SessionStorageKeys = addKey(evidence.SessionStorageKeys, m[2])
		}
	}
	return evidence, nil
}

// addCookie appends name once; the first sighting decides hasValue.
func addCookie(cookies []model.CookieObservation, name string, hasValue bool) []model.CookieObservation {
	if name == "" {
		return cookies
	}
	for _, c := range cookies {
		if c.Name == name {
			return cookies
		}
	}
	return append(cookies, model.CookieObservation{Name: name, HasValue: hasValue})
}

func addKey(keys []string, key string) []string {
	if key == "" || slices.Contains(keys, key) {
		return keys
	}
	return append(keys, key)
}
