package static

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/reference"
)

const refData = `
plugins:
  pluginx/pluginx.php:
    name: pluginX
    tracking: true
    category: marketing
    domains: [ads.example.com]
    cookies:
      - {name: _ads_id, category: marketing}
  forms/forms.php:
    name: Forms
    tracking: false
    category: functional
tracking_domains: [ads.example.com, google-analytics.com, googletagmanager.com]
option_keys:
  pluginx_settings: {service: pluginX, category: marketing}
wordpress_core_cookies:
  - {name: wordpress_test_cookie}
skip_components: [cookie-law-info]
`

type fakeSite struct {
	dir     string
	active  []string
	names   map[string]string
	theme   *Theme
	scripts []Script
}

func (s *fakeSite) URL() string                    { return "https://example.com/" }
func (s *fakeSite) ActiveComponents() []string     { return s.active }
func (s *fakeSite) ComponentsDir() string          { return s.dir }
func (s *fakeSite) ComponentName(id string) string { return s.names[id] }
func (s *fakeSite) Theme() *Theme                  { return s.theme }
func (s *fakeSite) EnqueuedScripts() []Script      { return s.scripts }

type fakeOptions map[string]string

func (o fakeOptions) LookupOptions(_ context.Context, names []string) ([]string, error) {
	var out []string
	for _, n := range names {
		if _, ok := o[n]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (o fakeOptions) SearchOptions(_ context.Context, fragment string, limit int) ([]Option, error) {
	var out []Option
	for name, value := range o {
		if strings.Contains(name, fragment) {
			out = append(out, Option{Name: name, Value: value})
		}
	}
	slices.SortFunc(out, func(a, b Option) int { return strings.Compare(a.Name, b.Name) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func newFixture(t *testing.T) (*reference.Database, *fakeSite) {
	t.Helper()

	db, err := reference.Parse([]byte(refData))
	if err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	components := filepath.Join(root, "plugins")
	writeFile(t, filepath.Join(components, "mystery", "mystery.php"), `<?php
// setcookie('commented', 1);
setcookie( 'mystery_id', $v );
$url = "https://www.google-analytics.com/collect";
$again = "https://www.google-analytics.com/collect";
`)
	writeFile(t, filepath.Join(components, "mystery", "inc", "more.php"), `header("Set-Cookie: more_cookie=1");`)
	writeFile(t, filepath.Join(components, "mystery", "vendor", "lib.php"), `setcookie('vendored', 1);`)
	writeFile(t, filepath.Join(components, "mystery", "readme.txt"), `setcookie('text', 1);`)
	writeFile(t, filepath.Join(components, "cookie-law-info", "cookie-law-info.php"), `// google-analytics.com
setcookie('cli_consent', 1);`)

	child := filepath.Join(root, "themes", "child")
	parent := filepath.Join(root, "themes", "parent")
	writeFile(t, filepath.Join(child, "header.php"), "<html>\n<script src=\"https://www.googletagmanager.com/gtm.js?id=GTM-ABCD1234\"></script>\n")
	writeFile(t, filepath.Join(parent, "footer.php"), "gtag('config', 'G-XYZ12345');\n")

	site := &fakeSite{
		dir: components,
		active: []string{
			"pluginx/pluginx.php",
			"forms/forms.php",
			"mystery/mystery.php",
			"cookie-law-info/cookie-law-info.php",
		},
		names: map[string]string{"mystery/mystery.php": "Mystery Plugin"},
		theme: &Theme{Name: "Child", Dir: child, Parent: &Theme{Name: "Parent", Dir: parent}},
		scripts: []Script{
			{Handle: "ga", Src: "https://www.google-analytics.com/analytics.js"},
			{Handle: "local", Src: "/wp-content/x.js"},
			{Handle: "ads", Src: "//cdn.ads.example.com/a.js"},
			{Handle: "lookalike", Src: "https://notads.example.com.evil.net/x.js"},
		},
	}
	return db, site
}

var testOptions = fakeOptions{
	"pluginx_settings": "{}",
	"mystery_config":   `{"tracking": {"id": "GTM-ABC1234"}, "other": ["UA-1234567-1"]}`,
	"forms_style":      "tag-12345 plain",
}

func TestRunStatic(t *testing.T) {
	t.Parallel()

	db, site := newFixture(t)
	result := NewAnalyzer(db, site, WithOptionStore(testOptions)).RunStatic(context.Background())

	if result.Partial {
		t.Error("unexpected partial result")
	}
	if result.ActiveComponents != 4 {
		t.Errorf("ActiveComponents = %d, want 4", result.ActiveComponents)
	}

	t.Run("known components", func(t *testing.T) {
		if len(result.KnownMatches) != 1 || result.KnownMatches[0].Name != "pluginX" {
			t.Fatalf("KnownMatches = %+v", result.KnownMatches)
		}
		if got := result.KnownMatches[0].CookieNames(); !slices.Equal(got, []string{"_ads_id"}) {
			t.Errorf("cookies = %v", got)
		}
		if len(result.CleanComponents) != 1 || result.CleanComponents[0].File != "forms/forms.php" {
			t.Errorf("CleanComponents = %+v", result.CleanComponents)
		}
		want := []model.ComponentRef{{File: "mystery/mystery.php", Name: "Mystery Plugin"}}
		if !slices.Equal(result.UnknownComponents, want) {
			t.Errorf("UnknownComponents = %+v", result.UnknownComponents)
		}
	})

	t.Run("source scan", func(t *testing.T) {
		var cookies, domains []string
		for _, m := range result.SourceMatches {
			if m.Component != "mystery/mystery.php" {
				t.Errorf("match from skipped or known component: %+v", m)
			}
			switch m.Kind {
			case model.SourceMatchCookieCall:
				cookies = append(cookies, m.CookieName+"@"+m.Method)
			case model.SourceMatchTrackingDomain:
				domains = append(domains, m.Domain+"@"+m.File)
				if m.Line != 4 {
					t.Errorf("domain line = %d, want 4", m.Line)
				}
			}
		}
		slices.Sort(cookies)
		if !slices.Equal(cookies, []string{"more_cookie@header", "mystery_id@setcookie"}) {
			t.Errorf("cookie calls = %v", cookies)
		}
		if !slices.Equal(domains, []string{"google-analytics.com@mystery/mystery.php"}) {
			t.Errorf("domains = %v", domains)
		}
	})

	t.Run("enqueued scripts", func(t *testing.T) {
		var got []string
		for _, s := range result.EnqueuedScripts {
			got = append(got, s.Handle+"="+s.Domain)
		}
		if !slices.Equal(got, []string{"ga=google-analytics.com", "ads=ads.example.com"}) {
			t.Errorf("EnqueuedScripts = %v", got)
		}
	})

	t.Run("options", func(t *testing.T) {
		var got []string
		for _, m := range result.OptionMatches {
			got = append(got, string(m.Source)+":"+m.OptionKey+":"+m.Pattern)
		}
		want := []string{
			"known_option_key:pluginx_settings:",
			"tracking_id_pattern:mystery_config:UA-***",
			"tracking_id_pattern:mystery_config:GTM-***",
		}
		if !slices.Equal(got, want) {
			t.Errorf("OptionMatches = %v, want %v", got, want)
		}
	})

	t.Run("theme", func(t *testing.T) {
		var got []string
		for _, m := range result.ThemeMatches {
			got = append(got, string(m.ThemeType)+":"+string(m.Kind)+":"+m.Match+"@"+m.Location())
		}
		want := []string{
			"child:tracking_domain:googletagmanager.com@header.php:2",
			"child:tracking_id:GTM-***@header.php:2",
			"parent:tracking_id:G-***@footer.php:1",
		}
		if !slices.Equal(got, want) {
			t.Errorf("ThemeMatches = %v, want %v", got, want)
		}
	})

	t.Run("core cookies and hash", func(t *testing.T) {
		if len(result.CoreCookies) != 1 {
			t.Errorf("CoreCookies = %+v", result.CoreCookies)
		}
		if result.ComponentHash != ComponentHash(site.active) {
			t.Error("component hash mismatch")
		}
	})

	t.Run("raw identifiers are never stored", func(t *testing.T) {
		data, err := json.Marshal(result)
		if err != nil {
			t.Fatal(err)
		}
		for _, raw := range []string{"ABCD1234", "ABC1234", "1234567", "XYZ12345"} {
			if strings.Contains(string(data), raw) {
				t.Errorf("result contains raw identifier %q", raw)
			}
		}
	})
}

func TestRunStaticFileBudget(t *testing.T) {
	t.Parallel()

	db, site := newFixture(t)
	// A second unknown component that must not be reached.
	writeFile(t, filepath.Join(site.dir, "zeta", "zeta.php"), `setcookie('zeta', 1);`)
	site.active = append(site.active, "zeta/zeta.php")

	result := NewAnalyzer(db, site, WithMaxFiles(1)).RunStatic(context.Background())

	if !result.Partial {
		t.Fatal("expected partial result")
	}
	for _, m := range result.SourceMatches {
		if m.Component == "zeta/zeta.php" {
			t.Errorf("component after budget was scanned: %+v", m)
		}
	}
	if len(result.SourceMatches) == 0 {
		t.Error("findings collected before the budget must be kept")
	}
	if len(result.KnownMatches) != 1 {
		t.Error("known matches must be kept")
	}
}

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func TestRunStaticTimeBudget(t *testing.T) {
	t.Parallel()

	db, site := newFixture(t)
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: time.Minute}

	result := NewAnalyzer(db, site,
		WithOptionStore(testOptions),
		WithMaxScanTime(30*time.Second),
		WithClock(clock.Now),
	).RunStatic(context.Background())

	if !result.Partial {
		t.Fatal("expected partial result")
	}
	if len(result.KnownMatches) != 1 || len(result.UnknownComponents) != 1 {
		t.Error("component detection must survive the time budget")
	}
	if len(result.SourceMatches) != 0 || len(result.ThemeMatches) != 0 {
		t.Error("no inspection should run after the budget is spent")
	}
}

func TestRunStaticCanceledContext(t *testing.T) {
	t.Parallel()

	db, site := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewAnalyzer(db, site).RunStatic(ctx)
	if !result.Partial {
		t.Error("a canceled context should mark the result partial")
	}
}

func TestRunStaticEmptyReference(t *testing.T) {
	t.Parallel()

	_, site := newFixture(t)
	result := NewAnalyzer(reference.Empty(), site).RunStatic(context.Background())

	if len(result.KnownMatches) != 0 {
		t.Errorf("KnownMatches = %+v", result.KnownMatches)
	}
	if len(result.UnknownComponents) != 4 {
		t.Errorf("UnknownComponents = %d, want 4", len(result.UnknownComponents))
	}
}

func TestDetectCookieCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		name   string
		method string
		ok     bool
	}{
		{`setcookie('a', 1);`, "a", "setcookie", true},
		{`  SetCookie ( "b" , $v );`, "b", "setcookie", true},
		{`setrawcookie('c', $v);`, "c", "setrawcookie", true},
		{`$_COOKIE['d'] = 1;`, "d", "$_COOKIE", true},
		{`if ($_COOKIE['e'] == 1) {`, "", "", false},
		{`header('Set-Cookie: f =1');`, "f", "header", true},
		{`// setcookie('g', 1);`, "", "", false},
		{`# setcookie('h', 1);`, "", "", false},
		{` * setcookie('i', 1);`, "", "", false},
	}

	for _, tt := range tests {
		name, method, ok := DetectCookieCall(tt.line)
		if name != tt.name || method != tt.method || ok != tt.ok {
			t.Errorf("DetectCookieCall(%q) = %q, %q, %v", tt.line, name, method, ok)
		}
	}
}

func TestFindTrackingIDsInValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"plain", "UA-1234567-1", []string{"UA-"}},
		{"nested", `{"a": {"b": ["AW-98765432"]}, "c": "DC-1234567"}`, []string{"AW-", "DC-"}},
		{"repeated prefix reported once", `["G-ABCD1234", "G-EFGH5678"]`, []string{"G-"}},
		{"word boundary", "tag-12345", nil},
		{"too short", "GTM-AB", nil},
		{"lower case words", "ua-parser gtm-helpers dc-motors", nil},
		{"lower case id", "ua-1234567-1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got []string
			for _, p := range FindTrackingIDsInValue(tt.raw) {
				got = append(got, p.Prefix)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("FindTrackingIDsInValue(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestComponentHash(t *testing.T) {
	t.Parallel()

	a := ComponentHash([]string{"b/b.php", "a/a.php"})
	b := ComponentHash([]string{"a/a.php", "b/b.php"})
	c := ComponentHash([]string{"a/a.php"})

	if a != b {
		t.Error("hash must not depend on order")
	}
	if a == c {
		t.Error("hash must change when the list changes")
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
}

func TestHostMatchesDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host, domain string
		want         bool
	}{
		{"google-analytics.com", "google-analytics.com", true},
		{"www.Google-Analytics.com", "google-analytics.com", true},
		{"evilgoogle-analytics.com", "google-analytics.com", false},
		{"", "google-analytics.com", false},
	}
	for _, tt := range tests {
		if got := HostMatchesDomain(tt.host, tt.domain); got != tt.want {
			t.Errorf("HostMatchesDomain(%q, %q) = %v", tt.host, tt.domain, got)
		}
	}
}

func TestComponentSlug(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"slug/main.php": "slug",
		"hello.php":     "hello",
		"a/b/c.php":     "a/b",
	}
	for in, want := range tests {
		if got := ComponentSlug(in); got != want {
			t.Errorf("ComponentSlug(%q) = %q, want %q", in, got, want)
		}
	}
}
