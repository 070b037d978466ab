package reference

import (
	"strings"

	"github.com/nao1215/cookieaudit/internal/model"
)

// PlatformService is the service name reported for platform-core cookies.
const PlatformService = "WordPress"

// Classify resolves a bare cookie or storage key name. Precedence:
//  1. exact name in the known-component cookie table
//  2. prefix entry in the known-component cookie table
//  3. exact or prefix entry in the platform-core table
//  4. heuristic prefix hint
//  5. unclassified
//
// Steps 1 and 2 scan the whole component table for an exact match before
// any prefix is considered, so an exact declaration always beats a
// wildcard declared by another component.
func (db *Database) Classify(name string) model.CookieClassification {
	if db == nil || name == "" {
		return model.Unclassified()
	}

	if c, ok := db.matchComponents(name, false); ok {
		return c
	}
	if c, ok := db.matchComponents(name, true); ok {
		return c
	}

	for _, def := range db.CoreCookies {
		mt, ok := matchDefinition(def, name)
		if !ok {
			continue
		}
		category := model.CategoryNecessary
		if def.Category != "" {
			category = model.ParseCategory(def.Category)
		}
		return model.CookieClassification{
			Category:  category,
			Service:   PlatformService,
			Purpose:   def.Purpose,
			Duration:  def.Duration,
			MatchType: mt,
		}
	}

	for _, hint := range db.heuristics() {
		if strings.HasPrefix(name, hint) {
			h := db.CookieHeuristics[hint]
			return model.CookieClassification{
				Category:  model.ParseCategory(h.Category),
				Service:   h.Service,
				MatchType: model.MatchHeuristic,
			}
		}
	}

	return model.Unclassified()
}

// ComponentForCookie returns the id of the component that declares name,
// using the same exact-then-prefix precedence as Classify.
func (db *Database) ComponentForCookie(name string) (string, bool) {
	if db == nil || name == "" {
		return "", false
	}
	if c, ok := db.matchComponents(name, false); ok {
		return c.Component, true
	}
	if c, ok := db.matchComponents(name, true); ok {
		return c.Component, true
	}
	return "", false
}

func (db *Database) matchComponents(name string, prefix bool) (model.CookieClassification, bool) {
	for _, id := range db.components() {
		comp := db.Components[id]
		for _, def := range comp.Cookies {
			if def.IsPrefix() != prefix {
				continue
			}
			mt, ok := matchDefinition(def, name)
			if !ok {
				continue
			}
			return model.CookieClassification{
				Category:  model.ParseCategory(def.Category),
				Service:   comp.Name,
				Purpose:   def.Purpose,
				Duration:  def.Duration,
				MatchType: mt,
				Component: id,
			}, true
		}
	}
	return model.CookieClassification{}, false
}

// matchDefinition applies one definition to name. Prefix definitions drop
// trailing '*' and '.' wildcard markers before comparing.
func matchDefinition(def model.CookieDefinition, name string) (model.MatchType, bool) {
	if def.IsPrefix() {
		p := strings.TrimRight(def.Name, "*.")
		if p != "" && strings.HasPrefix(name, p) {
			return model.MatchPrefix, true
		}
		return "", false
	}
	if def.Name != "" && def.Name == name {
		return model.MatchExact, true
	}
	return "", false
}
