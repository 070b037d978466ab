package export

import (
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/reference"
)

// ScanSource identifies documents produced by this scanner.
const ScanSource = "cookieaudit"

// Error messages added to the document.
const (
	errPartialStatic = "static analysis stopped early because a scan budget was exceeded"
	errNoLiveResult  = "live scan results are not available"
)

// Option configures Export.
type Option func(*exporter)

// WithScannerVersion sets meta.scannerVersion.
func WithScannerVersion(version string) Option {
	return func(e *exporter) {
		e.version = version
	}
}

type exporter struct {
	static  *model.StaticResult
	live    *model.LiveResult
	version string

	siteURL    string
	siteHost   string
	siteDomain string

	known map[string]model.KnownComponentMatch
}

// Export projects a static result and a live result into the canonical
// audit document. Either input may be nil; the matching sections are then
// empty. Export performs no I/O.
func Export(static *model.StaticResult, live *model.LiveResult, opts ...Option) CanonicalAuditDocument {
	e := &exporter{static: static, live: live, known: map[string]model.KnownComponentMatch{}}
	if e.static == nil {
		e.static = &model.StaticResult{}
	}
	if e.live == nil {
		e.live = &model.LiveResult{Content: model.NewContentFinding("")}
	}
	for _, opt := range opts {
		opt(e)
	}

	e.siteURL = e.static.SiteURL
	if e.siteURL != "" && !strings.HasSuffix(e.siteURL, "/") {
		e.siteURL += "/"
	}
	e.siteHost = hostOf(e.static.SiteURL)
	e.siteDomain = registrable(e.siteHost)
	for _, m := range e.static.KnownMatches {
		e.known[m.File] = m
	}

	doc := CanonicalAuditDocument{
		URL:               e.siteURL,
		FinalURL:          e.siteURL,
		Cookies:           e.cookies(),
		Storage:           e.storage(),
		TrackingPixels:    e.trackingPixels(),
		ThirdPartyScripts: e.thirdPartyScripts(),
		TagManagers:       e.tagManagers(),
		Fonts:             e.fonts(),
		Iframes:           e.iframes(),
		ScriptCookieMap:   e.scriptCookieMap(),
		Trackers:          e.trackers(),
		Others:            e.others(),
		RedirectChain:     []string{},
		Errors:            []string{},
		Meta:              e.meta(),
	}

	if !e.static.StartedAt.IsZero() {
		doc.StartedAt = e.static.StartedAt.UTC().Format(time.RFC3339)
	}
	if !e.live.Timestamp.IsZero() {
		doc.CompletedAt = e.live.Timestamp.UTC().Format(time.RFC3339)
		if !e.static.StartedAt.IsZero() && e.live.Timestamp.After(e.static.StartedAt) {
			doc.ScanDuration = e.live.Timestamp.Sub(e.static.StartedAt).Milliseconds()
		}
	}

	if e.static.Partial {
		doc.Errors = append(doc.Errors, errPartialStatic)
	}
	if live == nil {
		doc.Errors = append(doc.Errors, errNoLiveResult)
	}

	doc.Stats = Stats{
		Total:             len(doc.Cookies) + len(doc.Storage) + len(doc.Trackers),
		Cookies:           len(doc.Cookies),
		LocalStorage:      countStorage(doc.Storage, model.LocalStorage),
		SessionStorage:    countStorage(doc.Storage, model.SessionStorage),
		TrackingPixels:    len(doc.TrackingPixels),
		ThirdPartyScripts: len(doc.ThirdPartyScripts),
		TagManagers:       len(doc.TagManagers),
		Fonts:             len(doc.Fonts),
		Iframes:           len(doc.Iframes),
		Trackers:          len(doc.Trackers),
	}
	return doc
}

// cookies lists live cookies first, then declared component cookies not
// seen live, then platform-core cookies. Names are unique.
func (e *exporter) cookies() []Cookie {
	out := []Cookie{}
	seen := map[string]bool{}

	for _, c := range e.live.Cookies {
		seen[c.Name] = true
		block := e.blockFor(c.Component)
		out = append(out, Cookie{
			Name:            c.Name,
			Path:            "/",
			Source:          "javascript",
			IsThirdParty:    e.isThirdParty(c.Service, block),
			Category:        categoryOrUnclassified(c.Category),
			Vendor:          strPtr(c.Service),
			Description:     strPtr(c.Purpose),
			SuggestedBlock:  block,
			FrameContext:    "main-frame",
			DetectionMethod: MethodLiveScan,
			PagesFound:      cloneOrEmpty(c.Pages),
			ComponentSource: strPtr(c.Service),
			ComponentSlug:   strPtr(c.Component),
			Duration:        strPtr(c.Duration),
		})
	}

	for _, m := range e.static.KnownMatches {
		block := blockForDomains(m.Domains)
		for _, def := range m.Cookies {
			if def.Name == "" || seen[def.Name] {
				continue
			}
			seen[def.Name] = true
			category := m.Class
			if def.Category != "" {
				category = model.ParseCategory(def.Category)
			}
			out = append(out, Cookie{
				Name:            def.Name,
				Path:            "/",
				Source:          MethodKnownDatabase,
				IsThirdParty:    e.isThirdParty(m.Name, block),
				Category:        categoryOrUnclassified(category),
				Vendor:          strPtr(m.Name),
				Description:     strPtr(def.Purpose),
				SuggestedBlock:  block,
				FrameContext:    "main-frame",
				DetectionMethod: MethodKnownDatabase,
				PagesFound:      []string{},
				ComponentSource: strPtr(m.Name),
				ComponentSlug:   strPtr(m.File),
				Duration:        strPtr(def.Duration),
			})
		}
	}

	for _, def := range e.static.CoreCookies {
		if def.Name == "" || seen[def.Name] {
			continue
		}
		seen[def.Name] = true
		category := model.CategoryNecessary
		if def.Category != "" {
			category = model.ParseCategory(def.Category)
		}
		out = append(out, Cookie{
			Name:            def.Name,
			Domain:          e.siteHost,
			Path:            "/",
			Source:          MethodPlatformCore,
			Category:        category,
			Vendor:          strPtr(reference.PlatformService),
			Description:     strPtr(def.Purpose),
			FrameContext:    "main-frame",
			DetectionMethod: MethodPlatformCore,
			PagesFound:      []string{},
			ComponentSource: strPtr(reference.PlatformService),
			Duration:        strPtr(def.Duration),
			AdminOnly:       def.AdminOnly,
		})
	}
	return out
}

func (e *exporter) storage() []Storage {
	out := make([]Storage, 0, len(e.live.Storage))
	for _, s := range e.live.Storage {
		out = append(out, Storage{
			Type:            s.Type,
			Key:             s.Name,
			Origin:          e.siteHost,
			Category:        categoryOrUnclassified(s.Category),
			Vendor:          strPtr(s.Service),
			SuggestedBlock:  e.blockFor(s.Component),
			PagesFound:      cloneOrEmpty(s.Pages),
			ComponentSource: strPtr(s.Service),
			ComponentSlug:   strPtr(s.Component),
		})
	}
	return out
}

// trackingPixels infers pixels from detected services, since a passive
// scan cannot see the requests themselves.
func (e *exporter) trackingPixels() []TrackingPixel {
	detected := e.detected()
	out := []TrackingPixel{}
	for _, p := range pixels {
		if !slices.Contains(detected, p.slug) {
			continue
		}
		out = append(out, TrackingPixel{
			URL:             p.domain,
			Domain:          p.domain,
			Type:            p.kind,
			Vendor:          vendorOr(p.slug, p.slug),
			Category:        model.Category(p.category),
			DetectionMethod: MethodHTMLParse,
		})
	}
	return out
}

func (e *exporter) thirdPartyScripts() []Script {
	out := []Script{}
	seen := map[string]bool{}

	for _, s := range e.static.EnqueuedScripts {
		out = append(out, Script{
			URL:             s.Src,
			Domain:          s.Domain,
			Initiator:       e.siteURL,
			Handle:          strPtr(s.Handle),
			DetectionMethod: MethodEnqueuedScript,
		})
		seen[s.Domain] = true
	}

	content := e.live.Content
	for _, slug := range slices.Concat(content.ThirdParty, content.Social, content.Statistics) {
		domain := domains[slug]
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true
		out = append(out, Script{
			URL:             "https://" + domain,
			Domain:          domain,
			Initiator:       e.siteURL,
			DetectionMethod: MethodHTMLParse,
		})
	}

	for _, src := range content.Scripts {
		host := hostOf(src)
		if host == "" || seen[host] || !e.isThirdPartyHost(host) {
			continue
		}
		seen[host] = true
		out = append(out, Script{
			URL:             src,
			Domain:          host,
			Initiator:       e.siteURL,
			DetectionMethod: MethodHTMLSource,
		})
	}
	return out
}

func (e *exporter) tagManagers() []TagManager {
	content := e.live.Content
	gtm := slices.Contains(content.Statistics, "google-tag-manager")
	for _, id := range content.TrackingIDs {
		if id.Type == "gtm" {
			gtm = true
			break
		}
	}
	if !gtm {
		return []TagManager{}
	}
	return []TagManager{{
		URL:             "https://www.googletagmanager.com/gtm.js",
		Domain:          "www.googletagmanager.com",
		Name:            vendors["google-tag-manager"],
		DetectionMethod: MethodHTMLParse,
	}}
}

func (e *exporter) fonts() []Resource {
	detected := e.detected()
	out := []Resource{}
	for _, f := range fontServices {
		if slices.Contains(detected, f.slug) {
			out = append(out, Resource{
				URL:             "https://" + f.domain,
				Domain:          f.domain,
				DetectionMethod: MethodHTMLParse,
			})
		}
	}
	return out
}

func (e *exporter) iframes() []Iframe {
	detected := e.detected()
	out := []Iframe{}
	for _, slug := range iframeServices {
		if !slices.Contains(detected, slug) {
			continue
		}
		domain := domains[slug]
		out = append(out, Iframe{
			Src:             "https://" + domain,
			Origin:          domain,
			Vendor:          vendorOr(slug, ucfirst(slug)),
			Category:        e.live.Content.CategoryOf(slug),
			DetectionMethod: MethodHTMLParse,
		})
	}
	return out
}

// scriptCookieMap maps each declared component domain to the cookies the
// component declares.
func (e *exporter) scriptCookieMap() map[string][]string {
	out := map[string][]string{}
	for _, m := range e.static.KnownMatches {
		names := m.CookieNames()
		if len(m.Domains) == 0 || len(names) == 0 {
			continue
		}
		for _, d := range m.Domains {
			for _, name := range names {
				if !slices.Contains(out[d], name) {
					out[d] = append(out[d], name)
				}
			}
		}
	}
	return out
}

// trackers deduplicates every tracking source by a lower-cased key:
// component name, script domain, service slug, option service or theme match.
func (e *exporter) trackers() []Tracker {
	out := []Tracker{}
	seen := map[string]bool{}
	claim := func(key string) bool {
		key = strings.ToLower(key)
		if key == "" || seen[key] {
			return false
		}
		seen[key] = true
		return true
	}

	for _, m := range e.static.KnownMatches {
		if !claim(m.Name) {
			continue
		}
		t := Tracker{
			Vendor:          strPtr(m.Name),
			Category:        categoryOrUnclassified(m.Class),
			DetectionMethod: MethodKnownDatabase,
			ComponentSlug:   strPtr(m.File),
		}
		if len(m.Domains) > 0 {
			t.Domain = m.Domains[0]
			t.URL = "https://" + m.Domains[0]
		}
		out = append(out, t)
	}

	for _, s := range e.static.EnqueuedScripts {
		if !claim(s.Domain) {
			continue
		}
		out = append(out, Tracker{
			URL:             s.Src,
			Domain:          s.Domain,
			Category:        model.CategoryUnclassified,
			DetectionMethod: MethodEnqueuedScript,
		})
	}

	content := e.live.Content
	for _, slug := range content.Services() {
		if !claim(slug) {
			continue
		}
		t := Tracker{
			Domain:          domains[slug],
			Vendor:          strPtr(vendorOr(slug, ucfirst(strings.ReplaceAll(slug, "-", " ")))),
			Category:        content.CategoryOf(slug),
			DetectionMethod: MethodHTMLParse,
		}
		if t.Domain != "" {
			t.URL = "https://" + t.Domain
		}
		out = append(out, t)
	}

	for _, o := range e.static.OptionMatches {
		if !claim(o.Service) {
			continue
		}
		out = append(out, Tracker{
			Vendor:          strPtr(o.Service),
			Category:        categoryOrUnclassified(o.Class),
			DetectionMethod: MethodOptionsTable,
			ComponentSlug:   strPtr(o.ComponentSlug),
		})
	}

	for _, t := range e.static.ThemeMatches {
		if !claim(t.Match) {
			continue
		}
		out = append(out, Tracker{
			Domain:          t.Match,
			Category:        model.CategoryUnclassified,
			DetectionMethod: MethodThemeScan,
		})
	}
	return out
}

// others lists first-party scripts and frames seen in the served HTML.
func (e *exporter) others() Others {
	o := Others{Scripts: []string{}, Iframes: []string{}, GoogleFonts: []string{}}
	for _, src := range e.live.Content.Scripts {
		host := hostOf(src)
		switch {
		case host == "fonts.googleapis.com" || host == "fonts.gstatic.com":
			o.GoogleFonts = append(o.GoogleFonts, src)
		case host != "" && !e.isThirdPartyHost(host):
			o.Scripts = append(o.Scripts, src)
		}
	}
	for _, src := range e.live.Content.Iframes {
		if host := hostOf(src); host != "" && !e.isThirdPartyHost(host) {
			o.Iframes = append(o.Iframes, src)
		}
	}
	return o
}

func (e *exporter) meta() Meta {
	s := e.static
	m := Meta{
		ScannerVersion:   e.version,
		ScanSource:       ScanSource,
		SiteURL:          e.siteURL,
		ActiveComponents: s.ActiveComponents,
		ActiveTheme:      s.ThemeName,
		PagesScanned:     e.live.PagesScanned,
		StaticScanTime:   s.ScanTime.Seconds(),
		Partial:          s.Partial,
		CleanComponents:  make([]string, 0, len(s.CleanComponents)),
		NotInDatabase:    make([]string, 0, len(s.UnknownComponents)),
		DoubleStats:      cloneOrEmpty(e.live.Content.DoubleStats),
		TrackingIDs:      cloneOrEmpty(e.live.Content.TrackingIDs),
		OptionsTracking:  make([]OptionTracking, 0, len(s.OptionMatches)),
		ThemeTracking:    make([]ThemeTracking, 0, len(s.ThemeMatches)),
		PageStatus:       maps.Clone(e.live.PageStatus),
	}
	if m.PageStatus == nil {
		m.PageStatus = map[string]model.PageStatus{}
	}
	for _, c := range s.CleanComponents {
		m.CleanComponents = append(m.CleanComponents, c.Name)
	}
	for _, c := range s.UnknownComponents {
		m.NotInDatabase = append(m.NotInDatabase, c.Name)
	}
	for _, o := range s.OptionMatches {
		m.OptionsTracking = append(m.OptionsTracking, OptionTracking{Service: o.Service, Category: o.Class, Source: o.Source})
	}
	for _, t := range s.ThemeMatches {
		m.ThemeTracking = append(m.ThemeTracking, ThemeTracking{Theme: t.Theme, File: t.Location(), Match: t.Match, MatchType: t.Kind})
	}
	return m
}

// detected returns the union of social, third-party and statistics slugs.
func (e *exporter) detected() []string {
	c := e.live.Content
	return slices.Concat(c.Social, c.ThirdParty, c.Statistics)
}

// blockFor suggests blocking the first declared domain of component.
func (e *exporter) blockFor(component string) *SuggestedBlock {
	if component == "" {
		return nil
	}
	m, ok := e.known[component]
	if !ok {
		return nil
	}
	return blockForDomains(m.Domains)
}

func blockForDomains(ds []string) *SuggestedBlock {
	if len(ds) == 0 || ds[0] == "" {
		return nil
	}
	return &SuggestedBlock{Type: "domain", Value: ds[0]}
}

// isThirdParty reports whether a cookie set on behalf of service belongs
// to another party. Unnamed and platform services are first party. When
// the service's domain is known, its registrable domain decides.
func (e *exporter) isThirdParty(service string, block *SuggestedBlock) bool {
	if service == "" || service == reference.PlatformService {
		return false
	}
	if block != nil {
		return e.isThirdPartyHost(block.Value)
	}
	return true
}

func (e *exporter) isThirdPartyHost(host string) bool {
	if e.siteDomain == "" {
		return true
	}
	return registrable(host) != e.siteDomain
}

// registrable returns the eTLD+1 of host, or host itself when it has none,
// such as "localhost" or an IP address.
func registrable(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func countStorage(items []Storage, t model.StorageType) int {
	n := 0
	for _, s := range items {
		if s.Type == t {
			n++
		}
	}
	return n
}

func categoryOrUnclassified(c model.Category) model.Category {
	if c == "" {
		return model.CategoryUnclassified
	}
	return c
}

func vendorOr(slug, fallback string) string {
	if v, ok := vendors[slug]; ok {
		return v
	}
	return fallback
}

func ucfirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// cloneOrEmpty returns a copy of s, never nil.
func cloneOrEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}
