package export

import "github.com/nao1215/cookieaudit/internal/model"

// Detection methods reported per entry.
const (
	MethodLiveScan       = "live_scan"
	MethodKnownDatabase  = "known_database"
	MethodPlatformCore   = "platform_core"
	MethodEnqueuedScript = "enqueued_script"
	MethodHTMLParse      = "html_parse"
	MethodHTMLSource     = "html_source"
	MethodOptionsTable   = "options_table"
	MethodThemeScan      = "theme_scan"
)

// CanonicalAuditDocument is the exported audit.
type CanonicalAuditDocument struct {
	URL               string              `json:"url"`
	FinalURL          string              `json:"finalUrl"`
	ScanDuration      int64               `json:"scanDuration"`
	StartedAt         string              `json:"startedAt"`
	CompletedAt       string              `json:"completedAt"`
	Stats             Stats               `json:"stats"`
	Cookies           []Cookie            `json:"cookies"`
	Storage           []Storage           `json:"storage"`
	TrackingPixels    []TrackingPixel     `json:"trackingPixels"`
	ThirdPartyScripts []Script            `json:"thirdPartyScripts"`
	TagManagers       []TagManager        `json:"tagManagers"`
	Fonts             []Resource          `json:"fonts"`
	Iframes           []Iframe            `json:"iframes"`
	ScriptCookieMap   map[string][]string `json:"scriptCookieMap"`
	Trackers          []Tracker           `json:"trackers"`
	Others            Others              `json:"others"`
	RedirectChain     []string            `json:"redirectChain"`
	TotalRequests     int                 `json:"totalRequests"`
	BlockedRequests   int                 `json:"blockedRequests"`
	Errors            []string            `json:"errors"`
	Meta              Meta                `json:"meta"`
}

// Stats counts the entries of each section.
type Stats struct {
	Total             int `json:"total"`
	Cookies           int `json:"cookies"`
	LocalStorage      int `json:"localStorage"`
	SessionStorage    int `json:"sessionStorage"`
	TrackingPixels    int `json:"trackingPixels"`
	ThirdPartyScripts int `json:"thirdPartyScripts"`
	TagManagers       int `json:"tagManagers"`
	Fonts             int `json:"fonts"`
	Iframes           int `json:"iframes"`
	Trackers          int `json:"trackers"`
}

// SuggestedBlock tells a consent tool what to block for an entry.
type SuggestedBlock struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Cookie is one exported cookie. Attributes a passive scan cannot read
// are null.
type Cookie struct {
	Name                  string          `json:"name"`
	Value                 string          `json:"value"`
	Domain                string          `json:"domain"`
	Path                  string          `json:"path"`
	Expires               string          `json:"expires"`
	HTTPOnly              *bool           `json:"httpOnly"`
	Secure                *bool           `json:"secure"`
	SameSite              *string         `json:"sameSite"`
	Source                string          `json:"source"`
	SourceScript          string          `json:"sourceScript"`
	IsThirdParty          bool            `json:"isThirdParty"`
	Category              model.Category  `json:"category"`
	Vendor                *string         `json:"vendor"`
	Description           *string         `json:"description"`
	SuggestedBlock        *SuggestedBlock `json:"suggestedBlock"`
	FrameContext          string          `json:"frameContext"`
	Attribution           *string         `json:"attribution"`
	TagManagerAttribution *string         `json:"tagManagerAttribution"`
	ScriptAttribution     *string         `json:"scriptAttribution"`
	DetectionMethod       string          `json:"detectionMethod"`
	PagesFound            []string        `json:"pagesFound"`
	ComponentSource       *string         `json:"componentSource"`
	ComponentSlug         *string         `json:"componentSlug"`
	Duration              *string         `json:"duration"`
	AdminOnly             bool            `json:"adminOnly,omitempty"`
}

// Storage is one exported web storage key.
type Storage struct {
	Type            model.StorageType `json:"type"`
	Key             string            `json:"key"`
	Value           string            `json:"value"`
	Origin          string            `json:"origin"`
	SourceScript    string            `json:"sourceScript"`
	Category        model.Category    `json:"category"`
	Vendor          *string           `json:"vendor"`
	SuggestedBlock  *SuggestedBlock   `json:"suggestedBlock"`
	PagesFound      []string          `json:"pagesFound"`
	ComponentSource *string           `json:"componentSource"`
	ComponentSlug   *string           `json:"componentSlug"`
}

// TrackingPixel is a pixel inferred from a detected service.
type TrackingPixel struct {
	URL             string         `json:"url"`
	Domain          string         `json:"domain"`
	Type            string         `json:"type"`
	SourceScript    *string        `json:"sourceScript"`
	Vendor          string         `json:"vendor"`
	Category        model.Category `json:"category"`
	DetectionMethod string         `json:"detectionMethod"`
}

// Script is a third-party script.
type Script struct {
	URL             string  `json:"url"`
	Domain          string  `json:"domain"`
	Initiator       string  `json:"initiator"`
	Handle          *string `json:"handle"`
	DetectionMethod string  `json:"detectionMethod"`
}

// TagManager is a detected tag manager container.
type TagManager struct {
	URL             string `json:"url"`
	Domain          string `json:"domain"`
	Name            string `json:"name"`
	DetectionMethod string `json:"detectionMethod"`
}

// Resource is a URL and its domain.
type Resource struct {
	URL             string `json:"url"`
	Domain          string `json:"domain"`
	DetectionMethod string `json:"detectionMethod"`
}

// Iframe is an embedded third-party frame.
type Iframe struct {
	Src             string         `json:"src"`
	Origin          string         `json:"origin"`
	Vendor          string         `json:"vendor"`
	Category        model.Category `json:"category"`
	DetectionMethod string         `json:"detectionMethod"`
}

// Tracker is one deduplicated tracking service.
type Tracker struct {
	URL             string         `json:"url"`
	Domain          string         `json:"domain"`
	Vendor          *string        `json:"vendor"`
	Category        model.Category `json:"category"`
	DetectionMethod string         `json:"detectionMethod"`
	ComponentSlug   *string        `json:"componentSlug"`
}

// Others holds first-party resources.
type Others struct {
	Scripts     []string `json:"scripts"`
	Iframes     []string `json:"iframes"`
	GoogleFonts []string `json:"googleFonts"`
}

// OptionTracking summarizes a configuration hit.
type OptionTracking struct {
	Service  string           `json:"service"`
	Category model.Category   `json:"category"`
	Source   model.Provenance `json:"source"`
}

// ThemeTracking summarizes a theme file hit.
type ThemeTracking struct {
	Theme     string               `json:"theme"`
	File      string               `json:"file"`
	Match     string               `json:"match"`
	MatchType model.ThemeMatchKind `json:"match_type"`
}

// Meta describes the scan itself.
type Meta struct {
	ScannerVersion   string                      `json:"scannerVersion"`
	ScanSource       string                      `json:"scanSource"`
	SiteURL          string                      `json:"siteUrl"`
	ActiveComponents int                         `json:"activeComponents"`
	ActiveTheme      string                      `json:"activeTheme"`
	PagesScanned     int                         `json:"pagesScanned"`
	StaticScanTime   float64                     `json:"staticScanTime"`
	Partial          bool                        `json:"partial"`
	CleanComponents  []string                    `json:"cleanComponents"`
	NotInDatabase    []string                    `json:"notInDatabase"`
	DoubleStats      []string                    `json:"doubleStats"`
	TrackingIDs      []model.TrackingID          `json:"trackingIds"`
	OptionsTracking  []OptionTracking            `json:"optionsTracking"`
	ThemeTracking    []ThemeTracking             `json:"themeTracking"`
	PageStatus       map[string]model.PageStatus `json:"pageStatus"`
}
