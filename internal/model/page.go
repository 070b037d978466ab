package model

// Well-known page identifiers. The selector always emits both.
const (
	// HomePageID identifies the site's front page.
	HomePageID = "home"

	// LoginPageID identifies the login page. Its HTML is never parsed by
	// the content classifier because it is not representative of the site.
	LoginPageID = "login"
)

// PageDescriptor is one page the live scan visits.
// ID is opaque and only stable for the duration of one audit run.
type PageDescriptor struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Label string `json:"label"`
}

// IsLogin reports whether the page is the login page.
func (p PageDescriptor) IsLogin() bool {
	return p.ID == LoginPageID
}

// PageStatus is the terminal state of one page visit.
type PageStatus string

const (
	// PageStatusOK means the page collector signalled completion in time.
	PageStatusOK PageStatus = "ok"

	// PageStatusTimeout means the per-page timer fired first.
	PageStatusTimeout PageStatus = "timeout"
)
