package evidence

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/cookieaudit/internal/collector"
	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/orchestrator"
	"github.com/nao1215/cookieaudit/internal/reference"
)

var (
	_ collector.Submitter    = (*Service)(nil)
	_ orchestrator.Finalizer = (*Service)(nil)
	_ collector.Submitter    = (*Client)(nil)
	_ orchestrator.Finalizer = (*Client)(nil)
)

const testReference = `
wordpress_core_cookies:
  - {name: wordpress_test_cookie}
  - {name: wordpress_logged_in_*, pattern: prefix}
cookie_heuristics:
  _ga: {category: analytics, service: Google Analytics}
  _fbp: {category: marketing, service: Facebook Pixel}
  _hj: {category: analytics, service: Hotjar}
`

type fakeParser struct {
	mu   sync.Mutex
	urls []string
}

func (p *fakeParser) ParsePage(_ context.Context, url string) model.ContentFinding {
	p.mu.Lock()
	p.urls = append(p.urls, url)
	p.mu.Unlock()

	f := model.NewContentFinding(url)
	switch {
	case strings.HasSuffix(url, "/"):
		f.Statistics = []string{"google-analytics"}
		f.TrackingIDs = []model.TrackingID{{Type: "ga4", Service: "Google Analytics 4", Value: "G-***"}}
	case strings.HasSuffix(url, "/about"):
		f.Statistics = []string{"google-analytics", "hotjar"}
		f.Social = []string{"facebook"}
		f.TrackingIDs = []model.TrackingID{{Type: "ga4", Service: "Google Analytics 4", Value: "G-***"}}
	case strings.HasSuffix(url, "/broken"):
		f.Error = "HTTP error: 500"
	}
	return f
}

func (p *fakeParser) visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := slices.Clone(p.urls)
	slices.Sort(out)
	return out
}

type serviceFixture struct {
	svc    *Service
	parser *fakeParser
	logs   *bytes.Buffer

	mu  sync.Mutex
	now time.Time
}

func (f *serviceFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *serviceFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	ref, err := reference.Parse([]byte(testReference))
	if err != nil {
		t.Fatalf("reference.Parse() error = %v", err)
	}
	f := &serviceFixture{
		parser: &fakeParser{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		logs:   &bytes.Buffer{},
	}
	tokens, err := NewTokenManager(WithClock(f.clock))
	if err != nil {
		t.Fatal(err)
	}
	f.svc = NewService(tokens, f.parser, ref,
		WithServiceClock(f.clock),
		WithLogger(slog.New(slog.NewTextHandler(f.logs, nil))),
	)
	return f
}

func (f *serviceFixture) issue(t *testing.T, runID string) string {
	t.Helper()
	tok, err := f.svc.Tokens().Issue(runID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return tok.Value
}

func TestFilterEvidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		scanID  string
		cookies []string
		want    []string
	}{
		{"drops empty names", "home", []string{"", "  ", "_ga"}, []string{"_ga"}},
		{"drops banner cookies", "home", []string{"cc_cookie", "cc_cookie_prefs", "_ga"}, []string{"_ga"}},
		{"drops platform cookies off the login page", "home", []string{"wordpress_logged_in_abc", "wordpress_test_cookie"}, []string{}},
		{"keeps platform cookies on the login page", "login", []string{"wordpress_test_cookie"}, []string{"wordpress_test_cookie"}},
		{"trims names", "home", []string{" _fbp "}, []string{"_fbp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := model.PageEvidence{ScanID: tt.scanID}
			for _, c := range tt.cookies {
				ev.Cookies = append(ev.Cookies, model.CookieObservation{Name: c, HasValue: true})
			}
			got := FilterEvidence(ev)
			names := []string{}
			for _, c := range got.Cookies {
				names = append(names, c.Name)
			}
			if !slices.Equal(names, tt.want) {
				t.Errorf("cookies = %v, want %v", names, tt.want)
			}
		})
	}

	t.Run("storage keys", func(t *testing.T) {
		t.Parallel()
		got := FilterEvidence(model.PageEvidence{
			ScanID:             "home",
			LocalStorageKeys:   []string{" _hjSession ", ""},
			SessionStorageKeys: []string{"\t"},
		})
		if !slices.Equal(got.LocalStorageKeys, []string{"_hjSession"}) {
			t.Errorf("LocalStorageKeys = %v", got.LocalStorageKeys)
		}
		if len(got.SessionStorageKeys) != 0 {
			t.Errorf("SessionStorageKeys = %v, want empty", got.SessionStorageKeys)
		}
	})
}

func TestServiceSubmitAndFinalize(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	token := f.issue(t, "run-1")

	submissions := []model.PageEvidence{
		{
			ScanID: "home",
			Cookies: []model.CookieObservation{
				{Name: "_ga", HasValue: true},
				{Name: "cc_cookie", HasValue: true},
				{Name: "wordpress_logged_in_x", HasValue: true},
			},
			LocalStorageKeys: []string{"_hjSession"},
		},
		{
			ScanID:  "login",
			Cookies: []model.CookieObservation{{Name: "wordpress_test_cookie", HasValue: true}, {Name: "_ga", HasValue: true}},
		},
		{
			ScanID:             "about",
			Cookies:            []model.CookieObservation{{Name: "_ga", HasValue: true}, {Name: "_fbp", HasValue: false}},
			LocalStorageKeys:   []string{"_hjSession"},
			SessionStorageKeys: []string{"_hjSession"},
		},
	}
	for _, ev := range submissions {
		if err := f.svc.Submit(ctx, token, ev); err != nil {
			t.Fatalf("Submit(%s) error = %v", ev.ScanID, err)
		}
	}

	st, err := f.svc.Status(ctx, token)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.PagesScanned != 3 || st.HasResults {
		t.Errorf("Status() before finalize = %+v", st)
	}

	pages := []model.PageDescriptor{
		{ID: "home", URL: "https://example.com/", Label: "Home"},
		{ID: "login", URL: "https://example.com/login", Label: "Login"},
		{ID: "about", URL: "https://example.com/about", Label: "About"},
		{ID: "broken", URL: "https://example.com/broken", Label: "Broken"},
		{ID: "nourl", URL: "", Label: "No URL"},
	}
	live, err := f.svc.Finalize(ctx, pages, token)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if live.PagesScanned != 4 {
		t.Errorf("PagesScanned = %d, want 4", live.PagesScanned)
	}
	wantVisited := []string{"https://example.com/", "https://example.com/about", "https://example.com/broken"}
	if got := f.parser.visited(); !slices.Equal(got, wantVisited) {
		t.Errorf("parsed pages = %v, want %v", got, wantVisited)
	}

	if !slices.Equal(live.Content.Statistics, []string{"google-analytics", "hotjar"}) {
		t.Errorf("Statistics = %v", live.Content.Statistics)
	}
	if len(live.Content.TrackingIDs) != 1 {
		t.Errorf("TrackingIDs = %v, want one deduplicated entry", live.Content.TrackingIDs)
	}

	wantCookies := []struct {
		name     string
		pages    []string
		category model.Category
	}{
		{"_ga", []string{"home", "login", "about"}, model.CategoryAnalytics},
		{"wordpress_test_cookie", []string{"login"}, model.CategoryNecessary},
		{"_fbp", []string{"about"}, model.CategoryMarketing},
	}
	if len(live.Cookies) != len(wantCookies) {
		t.Fatalf("Cookies = %+v, want %d entries", live.Cookies, len(wantCookies))
	}
	for i, want := range wantCookies {
		got := live.Cookies[i]
		if got.Name != want.name || !slices.Equal(got.Pages, want.pages) || got.Category != want.category {
			t.Errorf("Cookies[%d] = %s %v %s, want %s %v %s",
				i, got.Name, got.Pages, got.Category, want.name, want.pages, want.category)
		}
	}

	if len(live.Storage) != 2 {
		t.Fatalf("Storage = %+v, want local and session entries", live.Storage)
	}
	if live.Storage[0].Type != model.LocalStorage || !slices.Equal(live.Storage[0].Pages, []string{"home", "about"}) {
		t.Errorf("Storage[0] = %+v", live.Storage[0])
	}
	if live.Storage[1].Type != model.SessionStorage || live.Storage[1].Service != "Hotjar" {
		t.Errorf("Storage[1] = %+v", live.Storage[1])
	}

	st, err = f.svc.Status(ctx, token)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.HasResults || st.Timestamp == nil || !st.Timestamp.Equal(f.clock()) || st.PagesScanned != 4 {
		t.Errorf("Status() after finalize = %+v", st)
	}
	if n, _ := f.svc.buffer.Count(ctx, "run-1"); n != 0 {
		t.Errorf("buffer holds %d entries after finalize, want 0", n)
	}
}

func TestServiceRejectsBadTokens(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	ev := model.PageEvidence{ScanID: "home", Cookies: []model.CookieObservation{{Name: "_ga"}}}

	forged := strings.Repeat("a", 32) + "." + strings.Repeat("b", 64)
	if err := f.svc.Submit(ctx, forged, ev); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Submit(forged) error = %v, want ErrInvalidToken", err)
	}
	if !strings.Contains(f.logs.String(), "level=WARN") || !strings.Contains(f.logs.String(), "scan token rejected") {
		t.Errorf("rejection was not logged as a warning: %s", f.logs.String())
	}

	token := f.issue(t, "run-1")
	f.advance(2 * time.Hour)
	if err := f.svc.Submit(ctx, token, ev); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Submit(expired) error = %v, want ErrExpiredToken", err)
	}
	if _, err := f.svc.Finalize(ctx, []model.PageDescriptor{{ID: "home", URL: "https://example.com/"}}, token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Finalize(expired) error = %v, want ErrExpiredToken", err)
	}
	if n, _ := f.svc.buffer.Count(ctx, "run-1"); n != 0 {
		t.Errorf("rejected evidence was buffered")
	}
}

func TestServiceMissingParams(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	token := f.issue(t, "run-1")

	if err := f.svc.Submit(ctx, token, model.PageEvidence{}); !errors.Is(err, ErrMissingParams) {
		t.Errorf("Submit without scan id error = %v", err)
	}
	if err := f.svc.Submit(ctx, "", model.PageEvidence{ScanID: "home"}); !errors.Is(err, ErrMissingParams) {
		t.Errorf("Submit without token error = %v", err)
	}
	if _, err := f.svc.Finalize(ctx, nil, token); !errors.Is(err, ErrMissingParams) {
		t.Errorf("Finalize without pages error = %v", err)
	}
	if _, err := f.svc.Status(ctx, ""); !errors.Is(err, ErrMissingParams) {
		t.Errorf("Status without token error = %v", err)
	}
}

func TestServiceClear(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	token := f.issue(t, "run-1")

	if err := f.svc.Submit(ctx, token, model.PageEvidence{ScanID: "home"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Finalize(ctx, []model.PageDescriptor{{ID: "login", URL: "https://example.com/login"}}, token); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.svc.Result("run-1"); !ok {
		t.Fatal("finalized result was not stored")
	}

	if err := f.svc.Clear(ctx, "run-1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok := f.svc.Result("run-1"); ok {
		t.Error("result survived Clear")
	}
	if err := f.svc.Submit(ctx, token, model.PageEvidence{ScanID: "home"}); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Submit after Clear error = %v, want ErrInvalidToken", err)
	}
}

func TestAggregateWithoutReference(t *testing.T) {
	t.Parallel()

	cookies, storage := Aggregate([]model.PageEvidence{
		{ScanID: "home", Cookies: []model.CookieObservation{{Name: "a"}, {Name: "a"}}},
	}, nil)
	if len(cookies) != 1 || !slices.Equal(cookies[0].Pages, []string{"home"}) {
		t.Errorf("cookies = %+v", cookies)
	}
	if cookies[0].Category != model.CategoryUnclassified {
		t.Errorf("Category = %s, want unclassified", cookies[0].Category)
	}
	if len(storage) != 0 {
		t.Errorf("storage = %+v, want empty", storage)
	}
}
