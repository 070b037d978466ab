package report

import (
	"io"

	"github.com/nao1215/cookieaudit/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report of result.
	Write(result *model.AuditResult) (int, error)

	// WriteSummary outputs a prepared summary.
	WriteSummary(summary *Summary) (int, error)
}

// MultiWriter writes to multiple Writers, for example the terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(result *model.AuditResult) (int, error) {
	return m.WriteSummary(NewSummary(result))
}

// WriteSummary outputs the summary to all configured Writers.
func (m *MultiWriter) WriteSummary(summary *Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
