package config

import "errors"

// Configuration validation errors returned by Validate and ValidateRuntime.
var (
	// ErrNoSite is returned when no site inventory is given.
	ErrNoSite = errors.New("no site specified: provide a site inventory file")

	// ErrInvalidConcurrency is returned when the live-scan slot count is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when a page, retry or fetch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidStagger is returned when the stagger delay is negative.
	ErrInvalidStagger = errors.New("invalid stagger: must be non-negative")

	// ErrInvalidMaxPages is returned when the page cap is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidBudget is returned when a static scan budget is not positive.
	ErrInvalidBudget = errors.New("invalid static scan budget: must be positive")

	// ErrInvalidCacheTTL is returned when the cache TTL is negative.
	ErrInvalidCacheTTL = errors.New("invalid cache ttl: must be non-negative")

	// ErrInvalidTokenTTL is returned when the token lifetime is not positive.
	ErrInvalidTokenTTL = errors.New("invalid token ttl: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)

// Configuration file errors returned by LoadConfigFile.
var (
	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFile is returned when the configuration file has
	// unknown keys, a malformed value or a negative page cap.
	ErrInvalidConfigFile = errors.New("invalid configuration file")
)
