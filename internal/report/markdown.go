package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/cookieaudit/internal/model"
)

// MarkdownWriter outputs reports in GitHub Flavored Markdown.
// Consent-relevant findings are raised as alerts so they stand out when
// the report is pasted into an issue or pull request.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report of result in Markdown format.
func (w *MarkdownWriter) Write(result *model.AuditResult) (int, error) {
	return w.WriteSummary(NewSummary(result))
}

// WriteSummary outputs the summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(s *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, s)
	w.writeCategories(md, s)
	w.writeServices(md, s)
	w.writeCoreCookies(md, s)
	w.writeAdditional(md, s)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *Summary) {
	md.H1("Cookie Audit Report")
	md.PlainText("")

	site := s.SiteURL
	if site == "" {
		site = "-"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + site + "`"},
			{"Run", "`" + s.RunID + "`"},
			{"Scan Date", s.DateScanned.Format("2006-01-02 15:04:05 MST")},
			{"Duration", s.Elapsed.Round(1e6).String()},
			{"Pages Scanned", strconv.Itoa(s.PagesScanned)},
			{"Status", s.StatusText()},
		},
	})
	md.PlainText("")
}

// writeCategories writes the per-category table, the chart and the alert.
func (w *MarkdownWriter) writeCategories(md *markdown.Markdown, s *Summary) {
	md.H2("Summary")
	md.PlainText("")

	rows := make([][]string, 0, len(s.Categories)+3)
	for _, c := range s.Categories {
		rows = append(rows, []string{string(c.Category), strconv.Itoa(c.Count)})
	}
	rows = append(rows,
		[]string{"Confirmed", strconv.Itoa(s.Confirmed)},
		[]string{"Potential", strconv.Itoa(s.Potential)},
		[]string{"**Total**", "**" + strconv.Itoa(s.TotalServices()) + "**"},
	)
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Services"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.HasServices() {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Services by Category"),
			piechart.WithShowData(true),
		)
		for _, c := range s.Categories {
			chart.LabelAndIntValue(string(c.Category), uint64(c.Count)) //nolint:gosec // counts are never negative
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	w.writeAlert(md, s)
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *Summary) {
	confirmedConsent := 0
	for _, svc := range s.Services {
		if svc.Status == model.StatusConfirmed && svc.Category.RequiresConsent() {
			confirmedConsent++
		}
	}

	switch {
	case len(s.Errors) > 0:
		md.Importantf("The run completed with errors: %s", strings.Join(s.Errors, "; "))
	case s.Partial:
		md.Importantf("Static analysis hit its budget after %d page(s). Results may be incomplete.", s.PagesScanned)
	}

	switch {
	case len(s.DoubleStats) > 0:
		md.Cautionf("Analytics loaded more than once: %s.", strings.Join(s.DoubleStats, ", "))
	case confirmedConsent > 0:
		md.Warningf("%d service(s) requiring consent were confirmed on live pages.", confirmedConsent)
	case s.ConsentRequired > 0:
		md.Note(fmt.Sprintf("%d service(s) requiring consent were found in the source only.", s.ConsentRequired))
	default:
		md.Tip("No services requiring consent detected.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeServices(md *markdown.Markdown, s *Summary) {
	md.H2("Services")
	md.PlainText("")

	if !s.HasServices() {
		md.PlainText("No services detected.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(s.Services))
	for i, svc := range s.Services {
		cookies := svc.Cookies.Confirmed
		if len(cookies) == 0 {
			cookies = svc.Cookies.Potential
		}
		rows[i] = []string{
			svc.Name,
			string(svc.Category),
			string(svc.Status),
			truncateString(orDash(strings.Join(cookies, ", ")), 50),
			truncateString(orDash(strings.Join(svc.Domains, ", ")), 40),
			orDash(strings.Join(svc.Pages, ", ")),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Service", "Category", "Status", "Cookies", "Domains", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, svc := range s.Services {
		if detail := serviceDetail(svc); detail != "" {
			md.Details(svc.Name, detail)
		}
	}
	md.PlainText("")
}

// serviceDetail lists the evidence that does not fit the table.
func serviceDetail(svc model.ServiceRecord) string {
	var b strings.Builder
	for _, part := range []struct {
		label  string
		values []string
	}{
		{"Scripts", svc.Scripts},
		{"Tracking IDs", svc.TrackingIDs},
		{"Theme files", svc.ThemeFiles},
	} {
		if len(part.values) > 0 {
			fmt.Fprintf(&b, "%s: %s\n", part.label, strings.Join(part.values, ", "))
		}
	}
	return strings.TrimSpace(b.String())
}

func (w *MarkdownWriter) writeCoreCookies(md *markdown.Markdown, s *Summary) {
	if len(s.CoreCookies) == 0 {
		return
	}
	md.H2("Necessary Cookies")
	md.PlainText("")

	rows := make([][]string, len(s.CoreCookies))
	for i, c := range s.CoreCookies {
		rows[i] = []string{c.Name, orDash(c.Service), strings.Join(c.Pages, ", ")}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Cookie", "Service", "Pages"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAdditional(md *markdown.Markdown, s *Summary) {
	if len(s.AdditionalContent) > 0 {
		md.H2("Additional Content")
		md.PlainText("")
		md.BulletList(s.AdditionalContent...)
		md.PlainText("")
	}

	if len(s.TrackingIDs) > 0 {
		md.H2("Tracking IDs")
		md.PlainText("")
		rows := make([][]string, len(s.TrackingIDs))
		for i, id := range s.TrackingIDs {
			rows[i] = []string{id.Service, id.Type, "`" + id.Value + "`"}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Service", "Type", "Value"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if len(s.TimedOutPages) > 0 {
		md.Warningf("Pages timed out: %s", strings.Join(s.TimedOutPages, ", "))
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [cookieaudit](https://github.com/nao1215/cookieaudit)*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
