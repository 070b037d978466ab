// Package config provides configuration structures and utilities for
// cookieaudit. It defines the scan tunables, the evidence sink settings,
// report preferences and the per-site overrides read from .cookieaudit.
package config
