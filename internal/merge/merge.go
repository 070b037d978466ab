package merge

import (
	"cmp"
	"net/url"
	"slices"
	"strings"

	"github.com/nao1215/cookieaudit/internal/model"
)

// Result is the output of the merge.
type Result struct {
	Services []model.ServiceRecord

	// CoreCookies are the live cookies classified as necessary.
	CoreCookies []model.LiveCookie

	// AdditionalContent lists content-classifier services that matched
	// no record.
	AdditionalContent []string
}

// BuildServiceMap returns the ordered service records for static and live.
// Either input may be nil.
func BuildServiceMap(static *model.StaticResult, live *model.LiveResult) []model.ServiceRecord {
	return Merge(static, live).Services
}

// Merge runs every pass and returns the full result.
func Merge(static *model.StaticResult, live *model.LiveResult) *Result {
	t := newTable()

	if static != nil {
		t.seed(static.KnownMatches)
		t.enqueuedScripts(static.EnqueuedScripts)
		t.options(static.OptionMatches)
		t.theme(static.ThemeMatches)
	}

	res := &Result{
		CoreCookies:       []model.LiveCookie{},
		AdditionalContent: []string{},
	}
	if live != nil {
		res.CoreCookies = t.liveCookies(live.Cookies)
		t.loadedScripts(live.Content.Scripts)
		res.AdditionalContent = t.content(live.Content)
	}

	res.Services = t.sorted()
	return res
}

// Apply stores the merge of result's static and live parts in result.
func Apply(result *model.AuditResult) {
	m := Merge(result.Static, result.Live)
	result.Services = m.Services
	result.CoreCookies = m.CoreCookies
	result.AdditionalContent = m.AdditionalContent
}

// table is the keyed record set. order keeps insertion order, which is
// the tie-break of the final sort.
type table struct {
	order []*model.ServiceRecord
	byKey map[string]*model.ServiceRecord
}

func newTable() *table {
	return &table{byKey: make(map[string]*model.ServiceRecord)}
}

func (t *table) get(name string) *model.ServiceRecord {
	return t.byKey[model.NormalizeKey(name)]
}

// findOrCreate returns the record of name, creating a potential one with
// category when none exists.
func (t *table) findOrCreate(name string, category model.Category) *model.ServiceRecord {
	if rec := t.get(name); rec != nil {
		return rec
	}
	rec := model.NewServiceRecord(name, category)
	t.order = append(t.order, rec)
	t.byKey[rec.Key] = rec
	return rec
}

// fuzzy returns the first record whose key fuzzily matches name.
func (t *table) fuzzy(name string) *model.ServiceRecord {
	key := model.NormalizeKey(name)
	if rec := t.byKey[key]; rec != nil {
		return rec
	}
	for _, rec := range t.order {
		if model.FuzzyKeyMatch(rec.Key, key) {
			return rec
		}
	}
	return nil
}

// byDomain returns the first record declaring host or a parent of it.
func (t *table) byDomain(host string) *model.ServiceRecord {
	if host == "" {
		return nil
	}
	for _, rec := range t.order {
		for _, d := range rec.Domains {
			if domainMatch(host, d) {
				return rec
			}
		}
	}
	return nil
}

// byCookie returns the first record listing name, exactly or through a
// prefix declaration.
func (t *table) byCookie(name string) *model.ServiceRecord {
	for _, rec := range t.order {
		if rec.HasCookie(name) {
			return rec
		}
	}
	for _, rec := range t.order {
		for _, c := range rec.Cookies.Potential {
			if p := strings.TrimRight(c, "*."); p != c && p != "" && strings.HasPrefix(name, p) {
				return rec
			}
		}
	}
	return nil
}

func (t *table) seed(matches []model.KnownComponentMatch) {
	for _, m := range matches {
		name := m.Name
		if name == "" {
			name = m.File
		}
		rec := t.findOrCreate(name, m.Class)
		rec.AddDomains(m.Domains...)
		rec.AddPotentialCookies(m.CookieNames()...)
	}
}

func (t *table) enqueuedScripts(scripts []model.ScriptMatch) {
	for _, s := range scripts {
		host := hostOf(s.Src)
		if host == "" {
			host = s.Domain
		}
		if host == "" {
			continue
		}
		rec := t.byDomain(host)
		if rec == nil {
			rec = t.findOrCreate(host, model.CategoryOther)
			rec.AddDomains(host)
		}
		rec.AddScripts(s.Src)
	}
}

// loadedScripts attaches scripts seen in served HTML to existing records.
func (t *table) loadedScripts(scripts []string) {
	for _, src := range scripts {
		if rec := t.byDomain(hostOf(src)); rec != nil {
			rec.AddScripts(src)
		}
	}
}

func (t *table) options(matches []model.OptionTableMatch) {
	for _, m := range matches {
		if m.Service == "" {
			continue
		}
		rec := t.fuzzy(m.Service)
		if rec == nil {
			rec = t.findOrCreate(m.Service, m.Class)
		}
		if m.Pattern != "" {
			rec.AddTrackingIDs(m.Pattern)
		}
	}
}

func (t *table) theme(matches []model.ThemeFileMatch) {
	for _, m := range matches {
		var rec *model.ServiceRecord
		if m.Service != "" {
			rec = t.fuzzy(m.Service)
		}
		if rec == nil && m.Kind == model.ThemeMatchTrackingDomain {
			rec = t.byDomain(m.Match)
		}
		if rec == nil {
			name := m.Service
			if name == "" {
				name = m.Match
			}
			rec = t.findOrCreate(name, m.Category())
			if m.Kind == model.ThemeMatchTrackingDomain {
				rec.AddDomains(m.Match)
			}
		}
		if m.Kind == model.ThemeMatchTrackingID {
			rec.AddTrackingIDs(m.Match)
		}
		rec.AddThemeFiles(m.Location())
	}
}

// liveCookies confirms the records of consent-requiring cookies and
// returns the necessary ones.
func (t *table) liveCookies(cookies []model.LiveCookie) []model.LiveCookie {
	core := []model.LiveCookie{}
	for _, c := range cookies {
		if c.Category == model.CategoryNecessary {
			core = append(core, c)
			continue
		}
		if !c.Category.RequiresConsent() {
			continue
		}

		rec := t.byCookie(c.Name)
		if rec == nil && c.Service != "" {
			rec = t.get(c.Service)
		}
		if rec == nil {
			name := c.Service
			if name == "" {
				name = c.Name
			}
			rec = t.findOrCreate(name, c.Category)
		}
		rec.Confirm()
		rec.AddConfirmedCookie(c.Name)
		rec.AddPages(c.Pages...)
	}
	return core
}

// content confirms every record matching a detected service and returns
// the services that matched none.
func (t *table) content(f model.ContentFinding) []string {
	extra := []string{}
	for _, slug := range f.Services() {
		key := model.NormalizeKey(slug)
		matched := false
		for _, rec := range t.order {
			if model.FuzzyKeyMatch(rec.Key, key) {
				rec.Confirm()
				matched = true
			}
		}
		if !matched {
			extra = append(extra, slug)
		}
	}
	for _, id := range f.TrackingIDs {
		if rec := t.fuzzy(id.Service); rec != nil {
			rec.AddTrackingIDs(id.Value)
		}
	}
	return extra
}

func (t *table) sorted() []model.ServiceRecord {
	recs := slices.Clone(t.order)
	slices.SortStableFunc(recs, func(a, b *model.ServiceRecord) int {
		if a.IsConfirmed() != b.IsConfirmed() {
			if a.IsConfirmed() {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Category.Priority(), b.Category.Priority())
	})
	out := make([]model.ServiceRecord, len(recs))
	for i, r := range recs {
		out[i] = *r
	}
	return out
}

func hostOf(src string) string {
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func domainMatch(host, domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	if host == "" || domain == "" {
		return false
	}
	host = strings.ToLower(host)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
