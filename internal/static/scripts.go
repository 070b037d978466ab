package static

import (
	"net/url"
	"strings"

	"github.com/nao1215/cookieaudit/internal/model"
)

// HostMatchesDomain reports whether host equals domain or is a subdomain of it.
func HostMatchesDomain(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// ScriptHost returns the lower-cased host of a script URL. Protocol-relative
// sources ("//cdn.example.com/x.js") are accepted.
func ScriptHost(src string) string {
	u, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// inspectScripts matches enqueued script hosts against the tracking domains.
// A script is reported at most once, for the first matching domain.
func (a *Analyzer) inspectScripts() []model.ScriptMatch {
	domains := a.trackingDomains()
	var out []model.ScriptMatch

	for _, s := range a.site.EnqueuedScripts() {
		host := ScriptHost(s.Src)
		if host == "" {
			continue
		}
		for _, domain := range domains {
			if HostMatchesDomain(host, domain) {
				out = append(out, model.ScriptMatch{Handle: s.Handle, Src: s.Src, Domain: domain})
				break
			}
		}
	}
	return out
}
