package config

import (
	"slices"
	"strings"
)

// SiteConfig holds the overrides for one audited site.
type SiteConfig struct {
	// SkipComponents are component slugs that must not be source-scanned,
	// in addition to the reference skip list.
	SkipComponents []string `yaml:"skipComponents,omitempty"`

	// ExtraTrackingDomains extend the reference tracking-domain list.
	ExtraTrackingDomains []string `yaml:"extraTrackingDomains,omitempty"`

	// Headers are custom HTTP headers sent with every page load, for
	// example basic auth on a staging host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the global User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// MaxPages overrides the global page cap. Zero keeps the global value.
	MaxPages int `yaml:"maxPages,omitempty"`
}

// File represents the structure of the .cookieaudit configuration file.
type File struct {
	// Sites maps host names to their overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host merged with defaults.
// List fields are unioned; scalar fields and headers are overridden.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.SkipComponents = slices.Clone(cf.Defaults.SkipComponents)
	result.ExtraTrackingDomains = slices.Clone(cf.Defaults.ExtraTrackingDomains)
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}
	for _, s := range siteConfig.SkipComponents {
		if !slices.Contains(result.SkipComponents, s) {
			result.SkipComponents = append(result.SkipComponents, s)
		}
	}
	for _, d := range siteConfig.ExtraTrackingDomains {
		if !slices.Contains(result.ExtraTrackingDomains, d) {
			result.ExtraTrackingDomains = append(result.ExtraTrackingDomains, d)
		}
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	return result
}
