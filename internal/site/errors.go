package site

import "errors"

var (
	// ErrNoHomeURL is returned when the inventory has no home URL.
	ErrNoHomeURL = errors.New("site inventory: home_url is required")

	// ErrInvalidHomeURL is returned when the home URL is not absolute.
	ErrInvalidHomeURL = errors.New("site inventory: home_url must be an absolute http(s) URL")
)
