package static

import (
	"path/filepath"
	"strings"

	"github.com/nao1215/cookieaudit/internal/model"
)

type themeDir struct {
	name string
	dir  string
	kind model.ThemeType
}

// scanTheme inspects the template files of the active theme and its parent.
func (a *Analyzer) scanTheme(r *run) {
	theme := a.site.Theme()
	if theme == nil || theme.Dir == "" {
		return
	}

	dirs := []themeDir{{name: theme.Name, dir: theme.Dir, kind: model.ThemeChild}}
	if p := theme.Parent; p != nil && p.Dir != "" && filepath.Clean(p.Dir) != filepath.Clean(theme.Dir) {
		dirs = append(dirs, themeDir{name: p.Name, dir: p.Dir, kind: model.ThemeParent})
	}

	for _, td := range dirs {
		for _, file := range ThemeFiles {
			if r.exceeded() {
				a.logger.Warn("static scan time budget exceeded during theme scan")
				return
			}
			data, ok := a.readLimited(filepath.Join(td.dir, file))
			if !ok {
				continue
			}
			r.result.ThemeMatches = append(r.result.ThemeMatches, a.scanThemeFile(r, td, file, data)...)
		}
	}
}

func (a *Analyzer) scanThemeFile(r *run, td themeDir, file string, data []byte) []model.ThemeFileMatch {
	var out []model.ThemeFileMatch
	lines := strings.Split(string(data), "\n")

	for _, domain := range r.domains.Find(data) {
		service, _ := a.db.ServiceForDomain(domain)
		out = append(out, model.ThemeFileMatch{
			Theme:     td.name,
			ThemeType: td.kind,
			File:      file,
			Line:      firstLine(lines, domain),
			Kind:      model.ThemeMatchTrackingDomain,
			Match:     domain,
			Service:   service,
		})
	}

	for i, line := range lines {
		for _, p := range findTrackingPrefixes(line) {
			out = append(out, model.ThemeFileMatch{
				Theme:     td.name,
				ThemeType: td.kind,
				File:      file,
				Line:      i + 1,
				Kind:      model.ThemeMatchTrackingID,
				Match:     Redact(p.Prefix),
				Service:   p.Service,
			})
		}
	}
	return out
}

func firstLine(lines []string, needle string) int {
	for i, line := range lines {
		if strings.Contains(line, needle) {
			return i + 1
		}
	}
	return 0
}
