package model

import "time"

// AuditResult is the full output of one audit run.
// It is stored in the run cache and rendered by the report writers.
type AuditResult struct {
	RunID string `json:"runId"`

	Static *StaticResult `json:"static,omitempty"`
	Live   *LiveResult   `json:"live,omitempty"`

	// Pages is the page list the live scan was given.
	Pages []PageDescriptor `json:"pages,omitempty"`

	// Services is the merged, ordered service view.
	Services []ServiceRecord `json:"services"`

	// CoreCookies are necessary cookies kept out of the consent view.
	CoreCookies []LiveCookie `json:"coreCookies"`

	// AdditionalContent lists content-classifier services that matched no
	// service record.
	AdditionalContent []string `json:"additionalContent"`

	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Elapsed     time.Duration `json:"elapsed"`

	Partial       bool   `json:"partial"`
	PagesScanned  int    `json:"pagesScanned"`
	ComponentHash string `json:"componentHash"`

	// Errors holds non-fatal failures, such as a finalize transport error.
	Errors []string `json:"errors,omitempty"`

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performedSteps,omitempty"`
}

// NewAuditResult creates an empty result for runID.
func NewAuditResult(runID string, startedAt time.Time) *AuditResult {
	return &AuditResult{
		RunID:             runID,
		StartedAt:         startedAt,
		Services:          []ServiceRecord{},
		CoreCookies:       []LiveCookie{},
		AdditionalContent: []string{},
	}
}

// AddError records a non-fatal failure.
func (r *AuditResult) AddError(err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// CompletedWithErrors reports whether the run hit a non-fatal failure.
func (r *AuditResult) CompletedWithErrors() bool {
	return len(r.Errors) > 0
}

// ConsentServices returns the services whose category requires consent.
func (r *AuditResult) ConsentServices() []ServiceRecord {
	out := make([]ServiceRecord, 0, len(r.Services))
	for _, s := range r.Services {
		if s.Category.RequiresConsent() {
			out = append(out, s)
		}
	}
	return out
}

// ConfirmedCount returns how many services live evidence confirmed.
func (r *AuditResult) ConfirmedCount() int {
	n := 0
	for _, s := range r.Services {
		if s.Status == StatusConfirmed {
			n++
		}
	}
	return n
}
