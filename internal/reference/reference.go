package reference

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/cookieaudit/internal/model"
)

//go:embed data/known-services.yaml
var defaultData []byte

// ErrMalformed is returned when reference data cannot be decoded.
var ErrMalformed = errors.New("malformed reference data")

// Component is one entry of the known-component table.
type Component struct {
	Name         string                   `yaml:"name"`
	Tracking     bool                     `yaml:"tracking"`
	Category     string                   `yaml:"category"`
	Cookies      []model.CookieDefinition `yaml:"cookies"`
	LocalStorage []string                 `yaml:"localStorage"`
	Domains      []string                 `yaml:"domains"`
}

// OptionKey describes a stored option that proves a service is configured.
type OptionKey struct {
	Service  string `yaml:"service"`
	Category string `yaml:"category"`
}

// Heuristic is a cookie-name prefix hint.
type Heuristic struct {
	Category string `yaml:"category"`
	Service  string `yaml:"service"`
}

// Database is the versioned known-service lookup table. Every method is
// safe on a nil receiver and on a database with missing sections, so a
// corrupt file degrades to "nothing is known" instead of failing a run.
type Database struct {
	Version          string                   `yaml:"version"`
	Components       map[string]Component     `yaml:"plugins"`
	TrackingDomains  []string                 `yaml:"tracking_domains"`
	OptionKeys       map[string]OptionKey     `yaml:"option_keys"`
	CoreCookies      []model.CookieDefinition `yaml:"wordpress_core_cookies"`
	CookieHeuristics map[string]Heuristic     `yaml:"cookie_heuristics"`
	SkipComponents   []string                 `yaml:"skip_components"`

	componentOrder []string
	heuristicOrder []string
}

// Parse decodes reference data. JSON input is accepted as well, since
// YAML is a superset of it.
func Parse(data []byte) (*Database, error) {
	var db Database
	if err := yaml.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	db.index()
	return &db, nil
}

// Load reads and parses the reference file at path.
func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path) //nolint:gosec // reference path is user supplied
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Default returns the embedded reference database.
func Default() *Database {
	db, err := Parse(defaultData)
	if err != nil {
		return Empty()
	}
	return db
}

// Empty returns a database with no entries.
func Empty() *Database {
	db := &Database{}
	db.index()
	return db
}

// LoadOrDefault loads path, or the embedded default when path is empty.
// A missing or corrupt file degrades to an empty database and logs a warning.
func LoadOrDefault(path string, logger *slog.Logger) *Database {
	if path == "" {
		return Default()
	}
	db, err := Load(path)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("reference database unavailable, continuing with empty tables",
			"path", path,
			"error", err,
		)
		return Empty()
	}
	return db
}

// index fixes the iteration order of the map sections. Components are
// visited in sorted id order; heuristics longest prefix first so that a
// more specific hint wins over a shorter one.
func (db *Database) index() {
	db.componentOrder = make([]string, 0, len(db.Components))
	for id := range db.Components {
		db.componentOrder = append(db.componentOrder, id)
	}
	slices.Sort(db.componentOrder)

	db.heuristicOrder = make([]string, 0, len(db.CookieHeuristics))
	for hint := range db.CookieHeuristics {
		if hint != "" {
			db.heuristicOrder = append(db.heuristicOrder, hint)
		}
	}
	slices.SortFunc(db.heuristicOrder, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
}

// components returns the component ids in lookup order. A Database built
// as a struct literal has no index yet, so the order is computed on demand.
func (db *Database) components() []string {
	if len(db.componentOrder) == len(db.Components) {
		return db.componentOrder
	}
	ids := make([]string, 0, len(db.Components))
	for id := range db.Components {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// heuristics returns the heuristic hints in lookup order.
func (db *Database) heuristics() []string {
	if len(db.heuristicOrder) > 0 || len(db.CookieHeuristics) == 0 {
		return db.heuristicOrder
	}
	tmp := &Database{CookieHeuristics: db.CookieHeuristics}
	tmp.index()
	return tmp.heuristicOrder
}

// Component returns the entry for a component id.
func (db *Database) Component(id string) (Component, bool) {
	if db == nil || db.Components == nil {
		return Component{}, false
	}
	c, ok := db.Components[id]
	return c, ok
}

// ComponentIDs returns every component id in lookup order.
func (db *Database) ComponentIDs() []string {
	if db == nil {
		return nil
	}
	return slices.Clone(db.components())
}

// Domains returns the tracking-domain list.
func (db *Database) Domains() []string {
	if db == nil {
		return nil
	}
	return db.TrackingDomains
}

// OptionKeyNames returns the known option keys in sorted order.
func (db *Database) OptionKeyNames() []string {
	if db == nil {
		return nil
	}
	keys := make([]string, 0, len(db.OptionKeys))
	for k := range db.OptionKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// OptionKeyInfo returns the metadata of a known option key.
func (db *Database) OptionKeyInfo(key string) (OptionKey, bool) {
	if db == nil || db.OptionKeys == nil {
		return OptionKey{}, false
	}
	k, ok := db.OptionKeys[key]
	return k, ok
}

// PlatformCookies returns the platform-core cookie table.
func (db *Database) PlatformCookies() []model.CookieDefinition {
	if db == nil {
		return nil
	}
	return db.CoreCookies
}

// SkipList returns the component slugs that must not be source-scanned.
func (db *Database) SkipList() []string {
	if db == nil {
		return nil
	}
	return db.SkipComponents
}

// ServiceForDomain returns the name of the first component, in lookup
// order, that declares domain or a parent domain of it.
func (db *Database) ServiceForDomain(domain string) (string, bool) {
	if db == nil || domain == "" {
		return "", false
	}
	domain = strings.ToLower(domain)
	for _, id := range db.components() {
		comp := db.Components[id]
		for _, d := range comp.Domains {
			d = strings.ToLower(d)
			if domain == d || strings.HasSuffix(domain, "."+d) {
				return comp.Name, true
			}
		}
	}
	return "", false
}
