package audit

import (
	"time"

	"github.com/nao1215/cookieaudit/internal/model"
)

// CacheEntry is the cached outcome of one run.
type CacheEntry struct {
	Result *model.AuditResult

	// StoredAt is when the run completed.
	StoredAt time.Time

	// ComponentHash is the invalidation key.
	ComponentHash string
}

// Fresh reports whether the entry may still be served at now for a site
// whose active components hash to hash. A zero ttl disables caching.
func (e CacheEntry) Fresh(now time.Time, ttl time.Duration, hash string) bool {
	if e.Result == nil || ttl <= 0 {
		return false
	}
	if e.ComponentHash != hash {
		return false
	}
	return now.Sub(e.StoredAt) < ttl
}

func entryFor(result *model.AuditResult) CacheEntry {
	stored := result.CompletedAt
	if stored.IsZero() {
		stored = result.StartedAt
	}
	return CacheEntry{Result: result, StoredAt: stored, ComponentHash: result.ComponentHash}
}
