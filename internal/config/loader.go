package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the name looked up in the working and home
// directories.
const DefaultConfigFile = ".cookieaudit"

// xdgConfigFile is the name looked up in the XDG config directory.
const xdgConfigFile = "config.yaml"

// LoadConfigFile reads the per-site overrides at path.
//
// Unknown keys are rejected so that a misspelled "skipComponent" does not
// silently audit a page builder's whole source tree. Hosts and tracking
// domains are lower-cased, component entries are reduced to their slug and
// a leading dot is dropped from domains. An empty file yields an empty
// configuration.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config path is user supplied
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Parse decodes configuration data with the rules of LoadConfigFile. name
// appears in error messages.
func Parse(data []byte, name string) (*File, error) {
	var cf File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfigFile, name, err)
	}

	sites := make(map[string]SiteConfig, len(cf.Sites))
	for host, sc := range cf.Sites {
		key := strings.ToLower(strings.TrimSpace(host))
		if key == "" {
			return nil, fmt.Errorf("%w: %s: empty site host", ErrInvalidConfigFile, name)
		}
		if err := sc.normalize(); err != nil {
			return nil, fmt.Errorf("%w: %s: site %s: %w", ErrInvalidConfigFile, name, key, err)
		}
		sites[key] = sc
	}
	cf.Sites = sites

	if err := cf.Defaults.normalize(); err != nil {
		return nil, fmt.Errorf("%w: %s: defaults: %w", ErrInvalidConfigFile, name, err)
	}
	return &cf, nil
}

// normalize rewrites sc in canonical form and rejects negative page caps.
func (sc *SiteConfig) normalize() error {
	if sc.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	sc.SkipComponents = normalizeList(sc.SkipComponents, func(s string) string {
		// "slug/main.php" and "slug" name the same component; so do
		// "hello.php" and "hello" for single-file components.
		slug, _, nested := strings.Cut(s, "/")
		if !nested {
			slug = strings.TrimSuffix(slug, ".php")
		}
		return slug
	})
	sc.ExtraTrackingDomains = normalizeList(sc.ExtraTrackingDomains, func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "."))
	})
	return nil
}

func normalizeList(in []string, canon func(string) string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = canon(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// FindConfigFile returns the configuration file to load, or "" when there
// is none. An explicit configPath is returned only if it exists. Otherwise
// the working directory, the home directory and the XDG config directory
// are tried in that order.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if exists(configPath) {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), xdgConfigFile))

	for _, c := range candidates {
		if exists(c) {
			return c
		}
	}
	return ""
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
