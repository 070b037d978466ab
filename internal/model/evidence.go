package model

import "time"

// CookieObservation is what a page collector reports about one cookie.
// Values are never collected; only the name and whether a value was present.
type CookieObservation struct {
	Name     string `json:"name"`
	HasValue bool   `json:"hasValue"`
}

// PageEvidence is the runtime evidence collected on one visited page.
type PageEvidence struct {
	// ScanID is the page id the collector was started with.
	ScanID string `json:"scanId"`

	Cookies            []CookieObservation `json:"cookies"`
	LocalStorageKeys   []string            `json:"localStorage"`
	SessionStorageKeys []string            `json:"sessionStorage"`
	Timestamp          time.Time           `json:"timestamp"`
}

// ScanToken authorizes page collectors to submit evidence for one run.
type ScanToken struct {
	Value     string    `json:"value"`
	RunID     string    `json:"runId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the token is past its expiry at now.
func (t ScanToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
