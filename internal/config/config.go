package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "cookieaudit"

	// DefaultConcurrency is the number of pages the live scan loads at once.
	// Three keeps the load on small shared hosts low.
	DefaultConcurrency = 3

	// DefaultStagger spaces out the first slot fill of the live scan.
	DefaultStagger = 200 * time.Millisecond

	// DefaultPageTimeout is how long one page may take in the first pass.
	DefaultPageTimeout = 20 * time.Second

	// DefaultRetryTimeout is the per-page timeout of the retry pass.
	DefaultRetryTimeout = 30 * time.Second

	// DefaultFetchTimeout bounds the server-side HTML fetch of each page.
	DefaultFetchTimeout = 15 * time.Second

	// DefaultMaxPages caps the page list.
	DefaultMaxPages = 20

	// DefaultMaxScanTime is the wall-clock budget of the static analysis.
	DefaultMaxScanTime = 60 * time.Second

	// DefaultMaxFiles is the per-component file budget of the source scan.
	DefaultMaxFiles = 200

	// DefaultCacheTTL is how long a finished audit is served from cache.
	DefaultCacheTTL = time.Hour

	// DefaultTokenTTL is the lifetime of a scan token.
	DefaultTokenTTL = time.Hour

	// DefaultUserAgent identifies scanner traffic in the site's access logs.
	DefaultUserAgent = "CookieAudit-Scanner/1.0 (+https://github.com/nao1215/cookieaudit)"

	// DefaultMaxBodySize limits how much of a page is read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultListenAddr is where `cookieaudit serve` accepts evidence.
	DefaultListenAddr = "127.0.0.1:8787"
)

// Config holds all configuration options for cookieaudit.
// It is populated from CLI flags and passed down explicitly.
type Config struct {
	// SiteFile is the site inventory to audit.
	SiteFile string

	// ReferenceFile is an alternative known-service database. When empty
	// the embedded database is used.
	ReferenceFile string

	// Concurrency is the number of live-scan slots.
	Concurrency int

	// Stagger is the delay between slot starts in the first fill.
	Stagger time.Duration

	// PageTimeout and RetryTimeout are the per-page timeouts of the first
	// pass and the retry pass.
	PageTimeout  time.Duration
	RetryTimeout time.Duration

	// FetchTimeout bounds each HTML fetch of the content classifier.
	FetchTimeout time.Duration

	// MaxPages caps the page list. 0 means DefaultMaxPages.
	MaxPages int

	// MaxScanTime and MaxFiles are the static analysis budgets.
	MaxScanTime time.Duration
	MaxFiles    int

	// CacheTTL is how long a stored audit is reused.
	// A changed component list invalidates the cache earlier.
	CacheTTL time.Duration

	// Fresh ignores any cached audit.
	Fresh bool

	// TokenTTL is the lifetime of the scan token.
	TokenTTL time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .cookieaudit is searched in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds the per-site overrides loaded from the config file.
	SiteConfigs *File

	// JSONReport and MarkdownReport select the report format.
	// They are mutually exclusive; plain text is the default.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// DBDir is the directory of the audit database.
	// Defaults to the XDG data directory (~/.local/share/cookieaudit on Linux).
	DBDir string

	// SaveToDB stores the audit and its evidence in the database.
	SaveToDB bool

	// HTTPSink routes evidence through the sink HTTP API on a loopback
	// listener instead of calling the evidence service directly.
	HTTPSink bool

	// ListenAddr is the address `cookieaudit serve` listens on.
	ListenAddr string

	// UserAgent is sent with every page load and HTML fetch.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Concurrency:  DefaultConcurrency,
		Stagger:      DefaultStagger,
		PageTimeout:  DefaultPageTimeout,
		RetryTimeout: DefaultRetryTimeout,
		FetchTimeout: DefaultFetchTimeout,
		MaxPages:     DefaultMaxPages,
		MaxScanTime:  DefaultMaxScanTime,
		MaxFiles:     DefaultMaxFiles,
		CacheTTL:     DefaultCacheTTL,
		TokenTTL:     DefaultTokenTTL,
		DBDir:        XDGDataDir(),
		SaveToDB:     true,
		ListenAddr:   DefaultListenAddr,
		UserAgent:    DefaultUserAgent,
		MaxBodySize:  DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for cookieaudit.
// On Linux: ~/.local/share/cookieaudit
// On macOS: ~/Library/Application Support/cookieaudit
// On Windows: %LOCALAPPDATA%\cookieaudit
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for cookieaudit.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for cookieaudit.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks a configuration used to run an audit.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.SiteFile == "" {
		return ErrNoSite
	}
	return c.ValidateRuntime()
}

// ValidateRuntime checks the tunables shared by every command, without
// requiring a site. `serve` uses it directly.
func (c *Config) ValidateRuntime() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.PageTimeout <= 0 || c.RetryTimeout <= 0 || c.FetchTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Stagger < 0 {
		return ErrInvalidStagger
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxScanTime <= 0 || c.MaxFiles <= 0 {
		return ErrInvalidBudget
	}
	if c.CacheTTL < 0 {
		return ErrInvalidCacheTTL
	}
	if c.TokenTTL <= 0 {
		return ErrInvalidTokenTTL
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}

// EffectiveMaxPages returns MaxPages, or the default when unset.
func (c *Config) EffectiveMaxPages() int {
	if c.MaxPages == 0 {
		return DefaultMaxPages
	}
	return c.MaxPages
}

// Site returns the overrides for host, merged over the file defaults.
// It is safe to call when no configuration file was loaded.
func (c *Config) Site(host string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(host)
}
