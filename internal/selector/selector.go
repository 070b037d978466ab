package selector

import (
	"cmp"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/cookieaudit/internal/model"
)

const (
	// DefaultMaxPages caps the number of pages returned.
	DefaultMaxPages = 20

	// DefaultTemplateCap caps the number of per-template pages.
	DefaultTemplateCap = 5

	// DefaultShortcodeCap caps the number of pages chosen for embedded markup.
	DefaultShortcodeCap = 3

	homeLabel  = "Homepage"
	loginLabel = "Login Page"
)

// CommerceKinds lists the commerce special pages in selection order.
var CommerceKinds = []string{"shop", "cart", "checkout", "myaccount"}

// ExcludedContentTypes never appear in the page list.
var ExcludedContentTypes = []string{
	"attachment",
	"revision",
	"nav_menu_item",
	"custom_css",
	"customize_changeset",
	"wp_template",
	"wp_template_part",
	"wp_navigation",
	"wp_block",
	"wp_global_styles",
}

// Item is one published content item of the site.
type Item struct {
	ID           string
	Type         string
	TypeLabel    string
	Title        string
	URL          string
	Published    time.Time
	Template     string
	HasShortcode bool
	Public       bool
}

// Source provides the site content the selector picks pages from.
type Source interface {
	HomeURL() string
	LoginURL() string

	// CommercePages maps a commerce kind ("shop", "cart", ...) to its URL.
	// It returns nil when no commerce extension is present.
	CommercePages() map[string]string

	ArchiveURL() string
	SearchURL() string
	Items() []Item
}

// Selector builds page lists.
type Selector struct {
	source       Source
	maxPages     int
	templateCap  int
	shortcodeCap int
	logger       *slog.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithMaxPages sets the page cap. Values below 2 are ignored because home
// and login are always present.
func WithMaxPages(n int) Option {
	return func(s *Selector) {
		if n >= 2 {
			s.maxPages = n
		}
	}
}

// WithTemplateCap sets how many per-template pages are chosen.
func WithTemplateCap(n int) Option {
	return func(s *Selector) {
		if n >= 0 {
			s.templateCap = n
		}
	}
}

// WithShortcodeCap sets how many shortcode pages are chosen.
func WithShortcodeCap(n int) Option {
	return func(s *Selector) {
		if n >= 0 {
			s.shortcodeCap = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Selector) {
		s.logger = logger
	}
}

// New creates a Selector over source.
func New(source Source, opts ...Option) *Selector {
	s := &Selector{
		source:       source,
		maxPages:     DefaultMaxPages,
		templateCap:  DefaultTemplateCap,
		shortcodeCap: DefaultShortcodeCap,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// pageList accumulates candidates in priority order and skips repeated
// URLs and ids.
type pageList struct {
	pages []model.PageDescriptor
	urls  map[string]bool
	ids   map[string]bool
}

func (l *pageList) add(p model.PageDescriptor) bool {
	if p.URL == "" || l.urls[p.URL] || l.ids[p.ID] {
		return false
	}
	l.urls[p.URL] = true
	l.ids[p.ID] = true
	l.pages = append(l.pages, p)
	return true
}

// BuildPageList returns the prioritised page list, capped at the configured
// maximum. Home and login are always the first two entries.
func (s *Selector) BuildPageList() []model.PageDescriptor {
	list := &pageList{urls: map[string]bool{}, ids: map[string]bool{}}

	list.add(model.PageDescriptor{ID: model.HomePageID, URL: s.source.HomeURL(), Label: homeLabel})
	login := model.PageDescriptor{ID: model.LoginPageID, URL: s.source.LoginURL(), Label: loginLabel}
	if !list.add(login) {
		// The login page is mandatory even if it shares the home URL.
		list.pages = append(list.pages, login)
		list.ids[login.ID] = true
	}

	s.addCommercePages(list)
	s.addArchivePage(list)

	items := publicItems(s.source.Items())
	s.addTemplatePages(list, items)
	s.addShortcodePages(list, items)
	s.addContentTypePages(list, items)

	if len(list.pages) > s.maxPages {
		s.logger.Debug("page list truncated",
			"candidates", len(list.pages),
			"max_pages", s.maxPages,
		)
		list.pages = list.pages[:s.maxPages]
	}
	return list.pages
}

func (s *Selector) addCommercePages(list *pageList) {
	pages := s.source.CommercePages()
	if len(pages) == 0 {
		return
	}
	for _, kind := range CommerceKinds {
		url, ok := pages[kind]
		if !ok {
			continue
		}
		list.add(model.PageDescriptor{
			ID:    "commerce-" + kind,
			URL:   url,
			Label: "Commerce: " + title(kind),
		})
	}
}

func (s *Selector) addArchivePage(list *pageList) {
	if u := s.source.ArchiveURL(); u != "" {
		if list.add(model.PageDescriptor{ID: "archive", URL: u, Label: "Archive"}) {
			return
		}
	}
	if u := s.source.SearchURL(); u != "" {
		list.add(model.PageDescriptor{ID: "search", URL: u, Label: "Search Results"})
	}
}

func (s *Selector) addTemplatePages(list *pageList, items []Item) {
	seen := map[string]bool{}
	for _, it := range items {
		if len(seen) >= s.templateCap {
			return
		}
		tpl := strings.TrimSpace(it.Template)
		if tpl == "" || tpl == "default" || seen[tpl] {
			continue
		}
		p := itemPage(it)
		p.Label = "Template " + tpl + ": " + it.Title
		if list.add(p) {
			seen[tpl] = true
		}
	}
}

func (s *Selector) addShortcodePages(list *pageList, items []Item) {
	n := 0
	for _, it := range items {
		if n >= s.shortcodeCap {
			return
		}
		if !it.HasShortcode {
			continue
		}
		p := itemPage(it)
		p.Label = "Embedded content: " + it.Title
		if list.add(p) {
			n++
		}
	}
}

func (s *Selector) addContentTypePages(list *pageList, items []Item) {
	latest := map[string]Item{}
	for _, it := range items {
		if it.Type == "" || slices.Contains(ExcludedContentTypes, it.Type) {
			continue
		}
		if _, ok := latest[it.Type]; !ok {
			latest[it.Type] = it
		}
	}

	types := make([]string, 0, len(latest))
	for typ := range latest {
		types = append(types, typ)
	}
	slices.Sort(types)

	for _, typ := range types {
		list.add(itemPage(latest[typ]))
	}
}

// publicItems returns the public items sorted most recent first, ties
// broken by id so the order is stable.
func publicItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for i, it := range items {
		if !it.Public || it.URL == "" {
			continue
		}
		if it.ID == "" {
			it.ID = "item-" + strconv.Itoa(i+1)
		}
		out = append(out, it)
	}
	slices.SortStableFunc(out, func(a, b Item) int {
		if c := b.Published.Compare(a.Published); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func itemPage(it Item) model.PageDescriptor {
	label := it.TypeLabel
	if label == "" {
		label = title(strings.ReplaceAll(it.Type, "_", " "))
	}
	return model.PageDescriptor{
		ID:    it.ID,
		URL:   it.URL,
		Label: label + ": " + it.Title,
	}
}

func title(s string) string {
	return cases.Title(language.English).String(s)
}
