package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nao1215/cookieaudit/internal/model"
)

const samplePage = `<!DOCTYPE html>
<html><head>
<script async src="https://www.googletagmanager.com/gtm.js?id=GTM-ABC1234"></script>
<script src="/wp-includes/js/jquery.js"></script>
<script>
!function(f,b,e,v,n,t,s){}(window, document,'script','https://connect.facebook.net/en_US/fbevents.js');
fbq('init', '123456789012345');
</script>
</head><body>
<iframe src="https://www.youtube.com/embed/dQw4w9WgXcQ"></iframe>
</body></html>`

func TestParseHTML(t *testing.T) {
	t.Parallel()

	c := New()
	f := c.ParseHTML(samplePage)

	if want := []string{"facebook"}; !reflect.DeepEqual(f.Social, want) {
		t.Errorf("Social = %v, want %v", f.Social, want)
	}
	if want := []string{"youtube"}; !reflect.DeepEqual(f.ThirdParty, want) {
		t.Errorf("ThirdParty = %v, want %v", f.ThirdParty, want)
	}
	if want := []string{"google-tag-manager"}; !reflect.DeepEqual(f.Statistics, want) {
		t.Errorf("Statistics = %v, want %v", f.Statistics, want)
	}
	if len(f.DoubleStats) != 0 {
		t.Errorf("DoubleStats = %v, want none", f.DoubleStats)
	}

	gotTypes := make([]string, 0, len(f.TrackingIDs))
	for _, id := range f.TrackingIDs {
		gotTypes = append(gotTypes, id.Type)
	}
	if want := []string{"gtm", "facebook-pixel"}; !reflect.DeepEqual(gotTypes, want) {
		t.Errorf("tracking id types = %v, want %v", gotTypes, want)
	}

	if want := []string{"https://www.googletagmanager.com/gtm.js?id=GTM-ABC1234"}; !reflect.DeepEqual(f.Scripts, want) {
		t.Errorf("Scripts = %v, want %v (relative sources need a base)", f.Scripts, want)
	}
	if want := []string{"https://www.youtube.com/embed/dQw4w9WgXcQ"}; !reflect.DeepEqual(f.Iframes, want) {
		t.Errorf("Iframes = %v, want %v", f.Iframes, want)
	}
}

func TestParseHTML_NeverExposesRawIDs(t *testing.T) {
	t.Parallel()

	f := New().ParseHTML(samplePage)
	for _, id := range f.TrackingIDs {
		if !strings.HasSuffix(id.Value, "***") {
			t.Errorf("tracking id %+v is not redacted", id)
		}
	}

	ids, err := json.Marshal(f.TrackingIDs)
	if err != nil {
		t.Fatal(err)
	}
	for _, raw := range []string{"ABC1234", "123456789012345"} {
		if strings.Contains(string(ids), raw) {
			t.Errorf("raw identifier %q in tracking ids: %s", raw, ids)
		}
	}
}

func TestParseHTML_Idempotent(t *testing.T) {
	t.Parallel()

	c := New()
	first := c.ParseHTML(samplePage)
	second := c.ParseHTML(samplePage)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("ParseHTML is not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestParseHTML_CaseInsensitiveMarkers(t *testing.T) {
	t.Parallel()

	f := New().ParseHTML(`<SCRIPT SRC="HTTPS://CONNECT.FACEBOOK.NET/SDK.JS"></SCRIPT><link href="https://Fonts.GoogleApis.com/css">`)
	if !slices.Contains(f.Social, "facebook") {
		t.Errorf("Social = %v, want facebook", f.Social)
	}
	if !slices.Contains(f.ThirdParty, "google-fonts") {
		t.Errorf("ThirdParty = %v, want google-fonts", f.ThirdParty)
	}
}

func TestParseHTML_TableOrder(t *testing.T) {
	t.Parallel()

	// Markers appear in reverse table order in the page.
	f := New().ParseHTML(`js.stripe.com player.vimeo.com youtube-nocookie.com`)
	if want := []string{"youtube", "vimeo", "stripe"}; !reflect.DeepEqual(f.ThirdParty, want) {
		t.Errorf("ThirdParty = %v, want %v", f.ThirdParty, want)
	}
}

func TestParseHTML_DoubleStats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "ga.js twice and analytics.js once",
			html: `<script src="https://ssl.google-analytics.com/ga.js"></script>
<script src="https://ssl.google-analytics.com/ga.js"></script>
<script src="https://www.google-analytics.com/analytics.js"></script>`,
			want: []string{"Google Analytics"},
		},
		{
			name: "gtag and analytics.js once each",
			html: `<script src="https://www.googletagmanager.com/gtag/js?id=G-ABCDEF12"></script>
<script src="https://www.google-analytics.com/analytics.js"></script>`,
			want: []string{"Google Analytics"},
		},
		{
			name: "single loader is not flagged",
			html: `<script src="https://www.googletagmanager.com/gtag/js?id=G-ABCDEF12"></script>`,
			want: nil,
		},
		{
			name: "piwik and matomo together",
			html: `<script src="/piwik.js"></script><script src="/matomo.js"></script>`,
			want: []string{"Matomo"},
		},
		{
			// A loader named twice inside one tag is counted twice as well.
			name: "raw counting includes repeats inside one tag",
			html: `<script src="https://www.googletagmanager.com/gtm.js" data-fallback="https://www.googletagmanager.com/gtm.js"></script>`,
			want: []string{"Google Tag Manager"},
		},
		{
			name: "clicky and gtm both flagged in family order",
			html: `static.getclicky.com/js static.getclicky.com/js gtm.js gtm.js`,
			want: []string{"Google Tag Manager", "Clicky"},
		},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := c.ParseHTML(tt.html).DoubleStats
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DoubleStats = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseHTML_TrackingIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		html  string
		typ   string
		value string
	}{
		{"ga4", `gtag('config', 'G-ABCDEF1234');`, "ga4", "G-***"},
		{"universal analytics", `ga('create', 'UA-12345678-1', 'auto');`, "ua", "UA-***"},
		{"google ads", `gtag('config', 'AW-123456789');`, "google-ads", "AW-***"},
		{"hotjar", "(function(h){h._hjSettings={\n hjid:1234567,hjsv:6};})(window);", "hotjar", "hotjar:***"},
		{"clarity", `https://www.clarity.ms/tag/abc123xyz`, "clarity", "clarity:***"},
		{"matomo", `_paq.push(['setSiteId', '42']);`, "matomo", "matomo:***"},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ids := c.ParseHTML(tt.html).TrackingIDs
			for _, id := range ids {
				if id.Type == tt.typ {
					if id.Value != tt.value {
						t.Errorf("Value = %q, want %q", id.Value, tt.value)
					}
					return
				}
			}
			t.Errorf("no %s id in %+v", tt.typ, ids)
		})
	}
}

func TestParseHTML_DeduplicatesTrackingIDs(t *testing.T) {
	t.Parallel()

	f := New().ParseHTML(`GTM-AAAA111 GTM-BBBB222 GTM-AAAA111`)
	if len(f.TrackingIDs) != 2 {
		t.Fatalf("TrackingIDs = %+v, want two gtm entries", f.TrackingIDs)
	}
	for _, id := range f.TrackingIDs {
		if id.Type != "gtm" || id.Value != "GTM-***" {
			t.Errorf("id = %+v, want redacted gtm id", id)
		}
	}
}

func TestParseHTML_TrackingIDsAcrossPages(t *testing.T) {
	t.Parallel()

	c := New()
	merged := model.NewContentFinding("")
	merged.Merge(c.ParseHTML(`<script>gtag('config', 'G-AAAA1111');</script>`))
	merged.Merge(c.ParseHTML(`<script>gtag('config', 'G-AAAA1111');</script>`))
	merged.Merge(c.ParseHTML(`<script>gtag('config', 'G-BBBB2222');</script>`))

	n := 0
	for _, id := range merged.TrackingIDs {
		if id.Type == "ga4" {
			n++
		}
	}
	if n != 2 {
		t.Errorf("ga4 ids = %d, want 2 in %+v", n, merged.TrackingIDs)
	}
}

func TestParsePage(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`<script src="/js/app.js"></script><script src="https://js.stripe.com/v3"></script>`))
	})
	mux.HandleFunc("/error", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("js.stripe.com"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// The TLS test server uses a self-signed certificate.
	server := httptest.NewTLSServer(mux)
	defer server.Close()

	c := New()
	ctx := context.Background()

	t.Run("self-signed page is classified", func(t *testing.T) {
		f := c.ParsePage(ctx, server.URL+"/ok")
		if f.Error != "" {
			t.Fatalf("Error = %q", f.Error)
		}
		if !slices.Contains(f.ThirdParty, "stripe") {
			t.Errorf("ThirdParty = %v, want stripe", f.ThirdParty)
		}
		if !slices.Contains(f.Scripts, server.URL+"/js/app.js") {
			t.Errorf("Scripts = %v, want resolved relative source", f.Scripts)
		}
		if f.URL != server.URL+"/ok" {
			t.Errorf("URL = %q", f.URL)
		}
		if ua, _ := gotUA.Load().(string); ua != DefaultUserAgent {
			t.Errorf("User-Agent = %q, want %q", ua, DefaultUserAgent)
		}
	})

	t.Run("server error", func(t *testing.T) {
		f := c.ParsePage(ctx, server.URL+"/error")
		if f.Error != "HTTP error: 500" {
			t.Errorf("Error = %q, want HTTP error: 500", f.Error)
		}
		if len(f.ThirdParty) != 0 {
			t.Errorf("error page was classified: %v", f.ThirdParty)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		f := c.ParsePage(ctx, server.URL+"/empty")
		if f.Error != "Empty response body" {
			t.Errorf("Error = %q, want Empty response body", f.Error)
		}
	})
}

func TestParsePage_TransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	f := New().ParsePage(context.Background(), addr)
	if f.Error == "" {
		t.Fatal("expected an error for a closed server")
	}
	if f.Social == nil || f.ThirdParty == nil || f.Statistics == nil || f.TrackingIDs == nil {
		t.Error("failed finding should carry empty, non-nil lists")
	}
}
