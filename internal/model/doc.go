// Package model defines the data structures shared by every audit stage.
//
// This package contains the following main types:
//   - PageDescriptor: one page the live scan visits
//   - PageEvidence: cookie names and storage keys reported by a page collector
//   - StaticFinding: the sealed union of static analysis detections
//   - ContentFinding: third-party markers and tracking identifiers found in HTML
//   - ServiceRecord: the canonical per-service view built by the merge engine
//   - AuditResult: everything one audit run produced
//
// Models live in their own package so that the analyzer, orchestrator, merge
// engine and report writers can share them without import cycles. All types
// serialize to JSON for the run cache and report output.
package model
