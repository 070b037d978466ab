package static

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/nao1215/cookieaudit/internal/model"
)

// errFileBudget stops a directory walk once the file budget is reached.
var errFileBudget = errors.New("file budget exceeded")

type cookieCall struct {
	method string
	re     *regexp.Regexp
}

// cookieCalls are tried in order; the first match on a line wins.
var cookieCalls = []cookieCall{
	{method: "setcookie", re: regexp.MustCompile(`(?i)\bsetcookie\s*\(\s*['"]([^'"]+)['"]`)},
	{method: "setrawcookie", re: regexp.MustCompile(`(?i)\bsetrawcookie\s*\(\s*['"]([^'"]+)['"]`)},
	{method: "$_COOKIE", re: regexp.MustCompile(`\$_COOKIE\s*\[\s*['"]([^'"]+)['"]\s*\]\s*=(?:[^=]|$)`)},
	{method: "header", re: regexp.MustCompile(`(?i)\bheader\s*\(\s*['"]Set-Cookie:\s*([^='"]+)=`)},
}

// DetectCookieCall returns the cookie name and call style set on line.
// Comment lines starting with "//", "#" or "*" are ignored.
func DetectCookieCall(line string) (name, method string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "*") {
		return "", "", false
	}
	for _, c := range cookieCalls {
		if m := c.re.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1]), c.method, true
		}
	}
	return "", "", false
}

// scanSources inspects the source tree of every unknown component.
func (a *Analyzer) scanSources(r *run) {
	root := a.site.ComponentsDir()
	if root == "" {
		return
	}

	for _, comp := range r.result.UnknownComponents {
		if r.exceeded() {
			a.logger.Warn("static scan time budget exceeded, skipping remaining components",
				"component", comp.File,
			)
			return
		}

		dir := filepath.Join(root, filepath.FromSlash(ComponentSlug(comp.File)))
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}

		files, overBudget := a.listSourceFiles(dir)
		for _, file := range files {
			if r.exceeded() {
				return
			}
			a.scanSourceFile(r, root, comp, file)
		}

		if overBudget {
			a.logger.Warn("static scan file budget exceeded, skipping remaining components",
				"component", comp.File,
				"max_files", a.maxFiles,
			)
			r.stop()
			return
		}
	}
}

// listSourceFiles returns up to maxFiles source files under dir, and
// whether more files were left unlisted.
func (a *Analyzer) listSourceFiles(dir string) ([]string, bool) {
	var files []string
	overBudget := false

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != dir && slices.Contains(SkipDirs, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !a.hasSourceExt(d.Name()) {
			return nil
		}
		if len(files) >= a.maxFiles {
			overBudget = true
			return errFileBudget
		}
		files = append(files, p)
		return nil
	})
	if err != nil && !errors.Is(err, errFileBudget) {
		a.logger.Debug("walk failed", "dir", dir, "error", err)
	}
	return files, overBudget
}

func (a *Analyzer) hasSourceExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(a.extensions, ext)
}

// readLimited reads a file unless it is larger than the size budget.
func (a *Analyzer) readLimited(file string) ([]byte, bool) {
	info, err := os.Stat(file)
	if err != nil || info.Size() > a.maxFileSize {
		return nil, false
	}
	data, err := os.ReadFile(file) //nolint:gosec // paths come from the component directory walk
	if err != nil {
		return nil, false
	}
	return data, true
}

func (a *Analyzer) scanSourceFile(r *run, root string, comp model.ComponentRef, file string) {
	data, ok := a.readLimited(file)
	if !ok {
		return
	}

	rel, err := filepath.Rel(root, file)
	if err != nil {
		rel = file
	}
	rel = filepath.ToSlash(rel)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), int(a.maxFileSize)+1)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()

		if name, method, ok := DetectCookieCall(line); ok {
			r.result.SourceMatches = append(r.result.SourceMatches, model.SourcePatternMatch{
				Component:     comp.File,
				ComponentName: comp.Name,
				File:          rel,
				Line:          lineNo,
				Kind:          model.SourceMatchCookieCall,
				CookieName:    name,
				Method:        method,
			})
		}

		// Each domain is reported once per component, at its first line.
		for _, domain := range r.domains.FindString(line) {
			key := comp.File + "\x00" + domain
			if r.seenDomains[key] {
				continue
			}
			r.seenDomains[key] = true
			r.result.SourceMatches = append(r.result.SourceMatches, model.SourcePatternMatch{
				Component:     comp.File,
				ComponentName: comp.Name,
				File:          rel,
				Line:          lineNo,
				Kind:          model.SourceMatchTrackingDomain,
				Domain:        domain,
			})
		}
	}
}
