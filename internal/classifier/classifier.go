package classifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	applog "github.com/nao1215/cookieaudit/internal/log"
	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/textmatch"
)

const (
	// DefaultTimeout is the fetch timeout of ParsePage.
	DefaultTimeout = 15 * time.Second

	// DefaultUserAgent identifies page fetches in server logs.
	DefaultUserAgent = "CookieAudit-Scanner/1.0"
)

// markerTable is a compiled marker table. markerSlugs maps each distinct
// folded marker to every slug that declares it.
type markerTable struct {
	slugs       []string
	matcher     *textmatch.Matcher
	markerSlugs map[string][]string
}

func compileTable(table []ServiceMarkers) markerTable {
	t := markerTable{markerSlugs: make(map[string][]string)}
	var terms []string
	for _, svc := range table {
		t.slugs = append(t.slugs, svc.Slug)
		for _, m := range svc.Markers {
			key := strings.ToLower(m)
			if !slices.Contains(t.markerSlugs[key], svc.Slug) {
				t.markerSlugs[key] = append(t.markerSlugs[key], svc.Slug)
			}
			terms = append(terms, key)
		}
	}
	t.matcher = textmatch.New(terms, textmatch.WithCaseFold())
	return t
}

// detect returns the slugs with at least one marker in content, in table order.
func (t markerTable) detect(content []byte) []string {
	hit := make(map[string]bool)
	for _, term := range t.matcher.Find(content) {
		for _, slug := range t.markerSlugs[term] {
			hit[slug] = true
		}
	}
	out := make([]string, 0, len(hit))
	for _, slug := range t.slugs {
		if hit[slug] {
			out = append(out, slug)
		}
	}
	return out
}

type compiledPattern struct {
	TrackingPattern
	re *regexp.Regexp
}

// Classifier detects third-party services, tracking identifiers and
// duplicate analytics installs in page HTML. The compiled tables are
// read-only after New, so one Classifier may parse pages concurrently.
type Classifier struct {
	social     markerTable
	thirdParty markerTable
	stats      markerTable
	patterns   []compiledPattern
	stats2x    *textmatch.Matcher

	client    *resty.Client
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithTimeout sets the ParsePage fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent of page fetches.
func WithUserAgent(ua string) Option {
	return func(c *Classifier) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient makes ParsePage send requests through hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Classifier) {
		if hc != nil {
			c.client = resty.NewWithClient(hc)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Classifier over the built-in marker and pattern tables.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		social:     compileTable(SocialMarkers),
		thirdParty: compileTable(ThirdPartyMarkers),
		stats:      compileTable(StatsMarkers),
		timeout:    DefaultTimeout,
		userAgent:  DefaultUserAgent,
		logger:     slog.Default(),
	}
	for _, p := range TrackingPatterns {
		c.patterns = append(c.patterns, compiledPattern{TrackingPattern: p, re: regexp.MustCompile(p.Pattern)})
	}

	var terms []string
	for _, f := range doubleStatsFamilies {
		terms = append(terms, f.Terms...)
	}
	c.stats2x = textmatch.New(terms)

	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		c.client = resty.New().
			SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // audited sites often run self-signed certificates
	}
	c.client.
		SetTimeout(c.timeout).
		SetHeader("User-Agent", c.userAgent).
		SetLogger(applog.NewRestyLogger(c.logger))
	return c
}

// ParseHTML classifies one HTML document. It has no side effects and
// returns the same finding for the same input.
func (c *Classifier) ParseHTML(doc string) model.ContentFinding {
	return c.parse(nil, doc)
}

// ParsePage fetches pageURL and classifies the body. It never fails: a
// transport error, an HTTP status outside 200..399 or an empty body yields
// a finding with empty lists and Error set.
func (c *Classifier) ParsePage(ctx context.Context, pageURL string) model.ContentFinding {
	resp, err := c.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		c.logger.Debug("page fetch failed", "url", pageURL, "error", err)
		f := model.NewContentFinding(pageURL)
		f.Error = err.Error()
		return f
	}

	if code := resp.StatusCode(); code < 200 || code > 399 {
		f := model.NewContentFinding(pageURL)
		f.Error = fmt.Sprintf("HTTP error: %d", code)
		return f
	}

	body := resp.Body()
	if len(body) == 0 {
		f := model.NewContentFinding(pageURL)
		f.Error = "Empty response body"
		return f
	}

	var base *url.URL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil {
		base = raw.Request.URL
	}
	f := c.parse(base, string(body))
	f.URL = pageURL
	return f
}

func (c *Classifier) parse(base *url.URL, doc string) model.ContentFinding {
	f := model.NewContentFinding("")
	content := []byte(doc)

	f.Social = append(f.Social, c.social.detect(content)...)
	f.ThirdParty = append(f.ThirdParty, c.thirdParty.detect(content)...)
	f.Statistics = append(f.Statistics, c.stats.detect(content)...)
	f.TrackingIDs = append(f.TrackingIDs, c.trackingIDs(doc)...)
	f.DoubleStats = append(f.DoubleStats, c.doubleStats(content)...)
	f.Scripts, f.Iframes = extractSources(base, doc)
	return f
}

// trackingIDs runs every pattern over doc. Identifiers are reported in
// pattern order, deduplicated by type and raw identifier, then redacted.
func (c *Classifier) trackingIDs(doc string) []model.TrackingID {
	var out []model.TrackingID
	for _, p := range c.patterns {
		seen := make(map[string]bool)
		for _, m := range p.re.FindAllStringSubmatch(doc, -1) {
			raw := m[0]
			if len(m) > 1 && m[1] != "" {
				raw = m[1]
			}
			if seen[raw] {
				continue
			}
			seen[raw] = true
			out = append(out, model.NewTrackingID(p.Type, p.Service, p.Redacted(), raw))
		}
	}
	return out
}

// doubleStats sums the raw occurrence count of each family's script names
// and flags the family when the sum exceeds one. Raw counting means a page
// that references the same loader twice in one tag is flagged too.
func (c *Classifier) doubleStats(content []byte) []string {
	counts := c.stats2x.Count(content)
	if len(counts) == 0 {
		return nil
	}
	var out []string
	for _, fam := range doubleStatsFamilies {
		n := 0
		for _, term := range fam.Terms {
			n += counts[term]
		}
		if n > 1 {
			out = append(out, fam.Name)
		}
	}
	return out
}

// extractSources returns the src attributes of script and iframe elements.
// Relative sources are resolved against base; without a base only
// absolute and protocol-relative sources are kept.
func extractSources(base *url.URL, doc string) (scripts, iframes []string) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, nil
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "iframe") {
			if src := resolveSource(base, getAttr(n, "src")); src != "" {
				if n.Data == "script" {
					scripts = appendUnique(scripts, src)
				} else {
					iframes = appendUnique(iframes, src)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return scripts, iframes
}

func resolveSource(base *url.URL, src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if base != nil {
		return base.ResolveReference(u).String()
	}
	if u.IsAbs() {
		return u.String()
	}
	if u.Host != "" {
		u.Scheme = "https"
		return u.String()
	}
	return ""
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func appendUnique(dst []string, v string) []string {
	if slices.Contains(dst, v) {
		return dst
	}
	return append(dst, v)
}
