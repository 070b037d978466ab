package site

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/cookieaudit/internal/selector"
	"github.com/nao1215/cookieaudit/internal/static"
)

// Component is an active component. In YAML it is either a bare id
// ("slug/main.php") or a mapping with id and name.
type Component struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// UnmarshalYAML accepts the scalar shorthand.
func (c *Component) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.ID = node.Value
		return nil
	}
	type plain Component
	return node.Decode((*plain)(c))
}

// ThemeEntry describes a theme directory.
type ThemeEntry struct {
	Name   string      `yaml:"name"`
	Dir    string      `yaml:"dir"`
	Parent *ThemeEntry `yaml:"parent,omitempty"`
}

// Commerce lists the special pages of an e-commerce extension.
type Commerce struct {
	Enabled  bool   `yaml:"enabled"`
	Shop     string `yaml:"shop,omitempty"`
	Cart     string `yaml:"cart,omitempty"`
	Checkout string `yaml:"checkout,omitempty"`
	Account  string `yaml:"account,omitempty"`
}

// ContentItem is one published item.
type ContentItem struct {
	ID           string    `yaml:"id"`
	Type         string    `yaml:"type"`
	TypeLabel    string    `yaml:"type_label,omitempty"`
	Title        string    `yaml:"title"`
	URL          string    `yaml:"url"`
	Published    time.Time `yaml:"published"`
	Template     string    `yaml:"template,omitempty"`
	HasShortcode bool      `yaml:"has_shortcode,omitempty"`
	Private      bool      `yaml:"private,omitempty"`
}

// ScriptEntry is an enqueued front-end script.
type ScriptEntry struct {
	Handle string `yaml:"handle"`
	Src    string `yaml:"src"`
}

// File is the on-disk inventory layout.
type File struct {
	HomeURL         string         `yaml:"home_url"`
	LoginURL        string         `yaml:"login_url,omitempty"`
	ArchiveURL      string         `yaml:"archive_url,omitempty"`
	SearchURL       string         `yaml:"search_url,omitempty"`
	ComponentsDir   string         `yaml:"components_dir,omitempty"`
	Components      []Component    `yaml:"active_components,omitempty"`
	Theme           *ThemeEntry    `yaml:"theme,omitempty"`
	Commerce        Commerce       `yaml:"commerce,omitempty"`
	Content         []ContentItem  `yaml:"content,omitempty"`
	EnqueuedScripts []ScriptEntry  `yaml:"enqueued_scripts,omitempty"`
	Options         map[string]any `yaml:"options,omitempty"`
}

// Inventory is a loaded site description. It implements selector.Source
// and static.Site.
type Inventory struct {
	file File
	home *url.URL
	base string
}

// Load reads an inventory file. Relative directories inside it are
// resolved against the file's own directory.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path) //nolint:gosec // inventory path is user supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read site inventory: %w", err)
	}
	inv, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Parse decodes an inventory. base is used to resolve relative directories.
func Parse(data []byte, base string) (*Inventory, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse site inventory: %w", err)
	}
	return New(f, base)
}

// New validates f and wraps it.
func New(f File, base string) (*Inventory, error) {
	if strings.TrimSpace(f.HomeURL) == "" {
		return nil, ErrNoHomeURL
	}
	home, err := url.Parse(f.HomeURL)
	if err != nil || (home.Scheme != "http" && home.Scheme != "https") || home.Host == "" {
		return nil, ErrInvalidHomeURL
	}
	return &Inventory{file: f, home: home, base: base}, nil
}

// Host returns the host name of the home URL.
func (i *Inventory) Host() string {
	return i.home.Hostname()
}

// resolve turns a possibly relative URL into an absolute one on the site.
func (i *Inventory) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return i.home.ResolveReference(u).String()
}

func (i *Inventory) dir(p string) string {
	if p == "" || filepath.IsAbs(p) || i.base == "" {
		return p
	}
	return filepath.Join(i.base, p)
}

// URL implements static.Site.
func (i *Inventory) URL() string {
	return i.home.String()
}

// HomeURL implements selector.Source.
func (i *Inventory) HomeURL() string {
	return i.home.String()
}

// LoginURL implements selector.Source. It defaults to the platform's
// standard login path.
func (i *Inventory) LoginURL() string {
	if i.file.LoginURL != "" {
		return i.resolve(i.file.LoginURL)
	}
	return i.resolve("/wp-login.php")
}

// ArchiveURL implements selector.Source.
func (i *Inventory) ArchiveURL() string {
	return i.resolve(i.file.ArchiveURL)
}

// SearchURL implements selector.Source.
func (i *Inventory) SearchURL() string {
	return i.resolve(i.file.SearchURL)
}

// CommercePages implements selector.Source.
func (i *Inventory) CommercePages() map[string]string {
	c := i.file.Commerce
	if !c.Enabled {
		return nil
	}
	pages := map[string]string{}
	for kind, ref := range map[string]string{
		"shop":      c.Shop,
		"cart":      c.Cart,
		"checkout":  c.Checkout,
		"myaccount": c.Account,
	} {
		if u := i.resolve(ref); u != "" {
			pages[kind] = u
		}
	}
	return pages
}

// Items implements selector.Source.
func (i *Inventory) Items() []selector.Item {
	items := make([]selector.Item, 0, len(i.file.Content))
	for _, c := range i.file.Content {
		items = append(items, selector.Item{
			ID:           c.ID,
			Type:         c.Type,
			TypeLabel:    c.TypeLabel,
			Title:        c.Title,
			URL:          i.resolve(c.URL),
			Published:    c.Published,
			Template:     c.Template,
			HasShortcode: c.HasShortcode,
			Public:       !c.Private,
		})
	}
	return items
}

// ActiveComponents implements static.Site.
func (i *Inventory) ActiveComponents() []string {
	ids := make([]string, 0, len(i.file.Components))
	for _, c := range i.file.Components {
		if c.ID != "" && !slices.Contains(ids, c.ID) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// ComponentsDir implements static.Site.
func (i *Inventory) ComponentsDir() string {
	return i.dir(i.file.ComponentsDir)
}

// ComponentName implements static.Site.
func (i *Inventory) ComponentName(id string) string {
	for _, c := range i.file.Components {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

// Theme implements static.Site.
func (i *Inventory) Theme() *static.Theme {
	return i.theme(i.file.Theme)
}

func (i *Inventory) theme(t *ThemeEntry) *static.Theme {
	if t == nil {
		return nil
	}
	return &static.Theme{
		Name:   t.Name,
		Dir:    i.dir(t.Dir),
		Parent: i.theme(t.Parent),
	}
}

// EnqueuedScripts implements static.Site. Relative sources are resolved
// against the home URL.
func (i *Inventory) EnqueuedScripts() []static.Script {
	out := make([]static.Script, 0, len(i.file.EnqueuedScripts))
	for _, s := range i.file.EnqueuedScripts {
		if s.Src == "" {
			continue
		}
		out = append(out, static.Script{Handle: s.Handle, Src: i.resolve(s.Src)})
	}
	return out
}

// Options returns the stored options as raw text. Structured values are
// encoded as YAML.
func (i *Inventory) Options() (map[string]string, error) {
	out := make(map[string]string, len(i.file.Options))
	for name, v := range i.file.Options {
		switch val := v.(type) {
		case string:
			out[name] = val
		default:
			data, err := yaml.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("failed to encode option %q: %w", name, err)
			}
			out[name] = string(data)
		}
	}
	return out, nil
}
