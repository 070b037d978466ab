package report

import (
	"time"

	"github.com/nao1215/cookieaudit/internal/model"
)

// categoryOrder is the presentation order of categories.
var categoryOrder = []model.Category{
	model.CategoryMarketing,
	model.CategoryAnalytics,
	model.CategoryOther,
	model.CategoryFunctional,
	model.CategoryNecessary,
	model.CategoryUnclassified,
}

// CategoryCount is the number of services in one category.
type CategoryCount struct {
	Category model.Category `json:"category"`
	Count    int            `json:"count"`
}

// Summary is the presentation view of an audit result.
type Summary struct {
	RunID        string        `json:"runId"`
	SiteURL      string        `json:"siteUrl"`
	DateScanned  time.Time     `json:"dateScanned"`
	Elapsed      time.Duration `json:"elapsed"`
	PagesScanned int           `json:"pagesScanned"`
	Partial      bool          `json:"partial"`
	Errors       []string      `json:"errors,omitempty"`

	Confirmed       int             `json:"confirmed"`
	Potential       int             `json:"potential"`
	ConsentRequired int             `json:"consentRequired"`
	Categories      []CategoryCount `json:"categories"`

	Services          []model.ServiceRecord `json:"services"`
	CoreCookies       []model.LiveCookie    `json:"coreCookies"`
	AdditionalContent []string              `json:"additionalContent"`
	DoubleStats       []string              `json:"doubleStats"`
	TrackingIDs       []model.TrackingID    `json:"trackingIds"`
	TimedOutPages     []string              `json:"timedOutPages"`
}

// NewSummary builds the summary of result.
func NewSummary(result *model.AuditResult) *Summary {
	s := &Summary{
		RunID:             result.RunID,
		DateScanned:       result.CompletedAt,
		Elapsed:           result.Elapsed,
		PagesScanned:      result.PagesScanned,
		Partial:           result.Partial,
		Errors:            result.Errors,
		Categories:        []CategoryCount{},
		Services:          result.Services,
		CoreCookies:       result.CoreCookies,
		AdditionalContent: result.AdditionalContent,
		DoubleStats:       []string{},
		TrackingIDs:       []model.TrackingID{},
		TimedOutPages:     []string{},
	}
	if s.DateScanned.IsZero() {
		s.DateScanned = result.StartedAt
	}
	if result.Static != nil {
		s.SiteURL = result.Static.SiteURL
	}
	if result.Live != nil {
		s.DoubleStats = append(s.DoubleStats, result.Live.Content.DoubleStats...)
		s.TrackingIDs = append(s.TrackingIDs, result.Live.Content.TrackingIDs...)
		for _, p := range result.Pages {
			if result.Live.PageStatus[p.ID] == model.PageStatusTimeout {
				s.TimedOutPages = append(s.TimedOutPages, p.ID)
			}
		}
	}

	counts := map[model.Category]int{}
	for _, svc := range result.Services {
		counts[svc.Category]++
		if svc.IsConfirmed() {
			s.Confirmed++
		} else {
			s.Potential++
		}
		if svc.Category.RequiresConsent() {
			s.ConsentRequired++
		}
	}
	for _, c := range categoryOrder {
		if counts[c] > 0 {
			s.Categories = append(s.Categories, CategoryCount{Category: c, Count: counts[c]})
		}
	}
	return s
}

// TotalServices returns the number of service records.
func (s *Summary) TotalServices() int {
	return len(s.Services)
}

// HasServices reports whether any service was found.
func (s *Summary) HasServices() bool {
	return len(s.Services) > 0
}

// StatusText describes how the run ended.
func (s *Summary) StatusText() string {
	switch {
	case len(s.Errors) > 0:
		return "Completed with errors"
	case s.Partial:
		return "Partial (scan budget exceeded)"
	default:
		return "Complete"
	}
}
