package static

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ComponentHash returns a content hash of the active component list. The
// order of the list does not matter, so the hash only changes when a
// component is activated or deactivated.
func ComponentHash(active []string) string {
	sorted := slices.Clone(active)
	slices.Sort(sorted)
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(sorted, "\n")))
}
