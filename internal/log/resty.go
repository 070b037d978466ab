package log

import (
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"
)

// RestyLogger adapts an slog.Logger to resty's logger interface so that
// HTTP client messages go through the same secure handler as the rest of
// the application.
type RestyLogger struct {
	logger *slog.Logger
}

var _ resty.Logger = (*RestyLogger)(nil)

// NewRestyLogger wraps logger. A nil logger falls back to slog.Default().
func NewRestyLogger(logger *slog.Logger) *RestyLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RestyLogger{logger: logger.With("component", "http")}
}

// Errorf implements resty.Logger.
func (l *RestyLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

// Warnf implements resty.Logger.
func (l *RestyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

// Debugf implements resty.Logger.
func (l *RestyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
