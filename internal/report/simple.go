package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/cookieaudit/internal/model"
)

// SimpleWriter outputs human-readable text reports for the terminal.
// Services are grouped by status, confirmed first, the order the merge
// engine already sorted them in.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to list are shown.
	showEmpty bool

	// verbose adds scripts, tracking ids and theme files per service.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report of result in human-readable format.
func (w *SimpleWriter) Write(result *model.AuditResult) (int, error) {
	return w.WriteSummary(NewSummary(result))
}

// WriteSummary outputs the summary in human-readable format.
func (w *SimpleWriter) WriteSummary(s *Summary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, s)
	w.writeSummary(&sb, s)
	w.writeServices(&sb, s, model.StatusConfirmed, "CONFIRMED SERVICES")
	w.writeServices(&sb, s, model.StatusPotential, "POTENTIAL SERVICES")
	w.writeCoreCookies(&sb, s)
	w.writeAdditional(&sb, s)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        COOKIE AUDIT REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Site:           %s\n", s.SiteURL)
	fmt.Fprintf(sb, "Run:            %s\n", s.RunID)
	fmt.Fprintf(sb, "Scan Date:      %s\n", s.DateScanned.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Pages Scanned:  %d\n", s.PagesScanned)
	fmt.Fprintf(sb, "Status:         %s\n", s.StatusText())
	for _, e := range s.Errors {
		fmt.Fprintf(sb, "Error:          %s\n", e)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, s *Summary) {
	section(sb, "SUMMARY")

	for _, c := range s.Categories {
		fmt.Fprintf(sb, "  %-13s %d\n", strings.ToUpper(string(c.Category))+":", c.Count)
	}
	if len(s.Categories) > 0 {
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "  CONFIRMED:    %d\n", s.Confirmed)
	fmt.Fprintf(sb, "  POTENTIAL:    %d\n", s.Potential)
	fmt.Fprintf(sb, "  CONSENT:      %d\n", s.ConsentRequired)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  TOTAL:        %d services\n", s.TotalServices())
	if len(s.DoubleStats) > 0 {
		fmt.Fprintf(sb, "\n  [!!] Analytics loaded more than once: %s\n", strings.Join(s.DoubleStats, ", "))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeServices(sb *strings.Builder, s *Summary, status model.Status, title string) {
	services := make([]model.ServiceRecord, 0, len(s.Services))
	for _, svc := range s.Services {
		if svc.Status == status {
			services = append(services, svc)
		}
	}
	if len(services) == 0 && !w.showEmpty {
		return
	}

	section(sb, title)
	if len(services) == 0 {
		sb.WriteString("  No services\n\n")
		return
	}

	for _, svc := range services {
		fmt.Fprintf(sb, "  [%s] %s\n", indicator(svc.Category), svc.Name)
		fmt.Fprintf(sb, "    Category: %s\n", svc.Category)
		if len(svc.Cookies.Confirmed) > 0 {
			fmt.Fprintf(sb, "    Cookies: %s\n", strings.Join(svc.Cookies.Confirmed, ", "))
		} else if len(svc.Cookies.Potential) > 0 {
			fmt.Fprintf(sb, "    Possible cookies: %s\n", strings.Join(svc.Cookies.Potential, ", "))
		}
		if len(svc.Domains) > 0 {
			fmt.Fprintf(sb, "    Domains: %s\n", strings.Join(svc.Domains, ", "))
		}
		if len(svc.Pages) > 0 {
			fmt.Fprintf(sb, "    Pages: %s\n", strings.Join(svc.Pages, ", "))
		}
		if w.verbose {
			for _, src := range svc.Scripts {
				fmt.Fprintf(sb, "    Script: %s\n", src)
			}
			for _, id := range svc.TrackingIDs {
				fmt.Fprintf(sb, "    Tracking ID: %s\n", id)
			}
			for _, f := range svc.ThemeFiles {
				fmt.Fprintf(sb, "    Theme file: %s\n", f)
			}
		}
	}
	sb.WriteString("\n")
}

// indicator returns a visual marker for a category.
func indicator(c model.Category) string {
	switch c {
	case model.CategoryMarketing:
		return "!!"
	case model.CategoryAnalytics:
		return "!"
	case model.CategoryNecessary, model.CategoryFunctional:
		return "-"
	default:
		return "?"
	}
}

func (w *SimpleWriter) writeCoreCookies(sb *strings.Builder, s *Summary) {
	if len(s.CoreCookies) == 0 && !w.showEmpty {
		return
	}
	section(sb, "NECESSARY COOKIES")
	if len(s.CoreCookies) == 0 {
		sb.WriteString("  None observed\n\n")
		return
	}
	for _, c := range s.CoreCookies {
		fmt.Fprintf(sb, "  * %s (%s)\n", c.Name, strings.Join(c.Pages, ", "))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeAdditional(sb *strings.Builder, s *Summary) {
	if len(s.AdditionalContent) > 0 || w.showEmpty {
		section(sb, "ADDITIONAL CONTENT")
		if len(s.AdditionalContent) == 0 {
			sb.WriteString("  None\n")
		}
		for _, slug := range s.AdditionalContent {
			fmt.Fprintf(sb, "  [+] %s\n", slug)
		}
		sb.WriteString("\n")
	}

	if len(s.TimedOutPages) > 0 {
		fmt.Fprintf(sb, "Timed out pages: %s\n\n", strings.Join(s.TimedOutPages, ", "))
	}
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by cookieaudit\n")
	sb.WriteString("https://github.com/nao1215/cookieaudit\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
