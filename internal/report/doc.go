// Package report renders an audit result.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: GitHub Flavored Markdown for sharing
//
// Every writer works from a Summary, the presentation view of a
// model.AuditResult, so the formats agree on what is counted.
package report
