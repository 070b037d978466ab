package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/cookieaudit/internal/merge"
	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/orchestrator"
)

// Step names, in pipeline order.
const (
	StepSelectPages = "select_pages"
	StepStatic      = "static_analysis"
	StepLiveScan    = "live_scan"
	StepMerge       = "merge"
)

// ErrNoPages is returned by the live scan step when page selection left
// nothing to visit.
var ErrNoPages = errors.New("no pages selected for the live scan")

// PageLister builds the page list of a run. selector.Selector implements it.
type PageLister interface {
	BuildPageList() []model.PageDescriptor
}

// StaticRunner runs the static analysis. static.Analyzer implements it.
type StaticRunner interface {
	RunStatic(ctx context.Context) *model.StaticResult
}

// LiveRunner drives the live scan. orchestrator.Orchestrator implements it.
type LiveRunner interface {
	Run(ctx context.Context, pages []model.PageDescriptor, token string) (*orchestrator.Result, error)
}

// TokenIssuer issues the scan token of a run. evidence.TokenManager
// implements it.
type TokenIssuer interface {
	Issue(runID string) (model.ScanToken, error)
}

// SelectPagesStep fills result.Pages.
type SelectPagesStep struct {
	lister PageLister
	logger *slog.Logger
}

// NewSelectPagesStep creates the page selection step.
func NewSelectPagesStep(lister PageLister, logger *slog.Logger) *SelectPagesStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SelectPagesStep{lister: lister, logger: logger}
}

// Name returns the step name.
func (s *SelectPagesStep) Name() string { return StepSelectPages }

// Do executes the step.
func (s *SelectPagesStep) Do(_ context.Context, result *model.AuditResult) error {
	result.Pages = s.lister.BuildPageList()
	s.logger.Debug("pages selected", "run", result.RunID, "pages", len(result.Pages))
	return nil
}

// StaticStep runs the static analysis and copies its run metadata into
// the audit result.
type StaticStep struct {
	runner StaticRunner
	logger *slog.Logger
}

// NewStaticStep creates the static analysis step.
func NewStaticStep(runner StaticRunner, logger *slog.Logger) *StaticStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaticStep{runner: runner, logger: logger}
}

// Name returns the step name.
func (s *StaticStep) Name() string { return StepStatic }

// Do executes the step. A budget overrun is not an error; it marks the
// result partial and keeps what was found.
func (s *StaticStep) Do(ctx context.Context, result *model.AuditResult) error {
	static := s.runner.RunStatic(ctx)
	if static == nil {
		static = &model.StaticResult{}
	}
	result.Static = static
	result.ComponentHash = static.ComponentHash
	if static.Partial {
		result.Partial = true
		s.logger.Warn("static analysis budget exceeded, results are partial",
			"run", result.RunID,
			"scan_time", static.ScanTime,
		)
	}
	return nil
}

// LiveScanStep issues the run's scan token, visits the selected pages and
// stores the finalized live result.
type LiveScanStep struct {
	runner LiveRunner
	tokens TokenIssuer
	logger *slog.Logger
}

// NewLiveScanStep creates the live scan step.
func NewLiveScanStep(runner LiveRunner, tokens TokenIssuer, logger *slog.Logger) *LiveScanStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveScanStep{runner: runner, tokens: tokens, logger: logger}
}

// Name returns the step name.
func (s *LiveScanStep) Name() string { return StepLiveScan }

// Do executes the step. A finalize failure is returned so that the run
// completes with errors, while the page statuses are still recorded.
func (s *LiveScanStep) Do(ctx context.Context, result *model.AuditResult) error {
	if len(result.Pages) == 0 {
		return ErrNoPages
	}

	token, err := s.tokens.Issue(result.RunID)
	if err != nil {
		return fmt.Errorf("failed to issue scan token: %w", err)
	}

	res, err := s.runner.Run(ctx, result.Pages, token.Value)
	if res != nil {
		if res.Live != nil {
			result.Live = res.Live
			result.PagesScanned = res.Live.PagesScanned
		} else {
			// Without a finalize response the page statuses are all that
			// is known about the visit.
			result.Live = &model.LiveResult{
				Cookies:    []model.LiveCookie{},
				Storage:    []model.LiveStorage{},
				Content:    model.NewContentFinding(""),
				PageStatus: res.Statuses,
			}
		}
		s.logger.Info("live scan finished",
			"run", result.RunID,
			"pages", len(result.Pages),
			"first_pass_timeouts", len(res.FirstPassTimeouts),
			"retried", res.Retried,
		)
	}
	return err
}

// MergeStep fuses static and live findings into the service view.
type MergeStep struct{}

// NewMergeStep creates the merge step.
func NewMergeStep() *MergeStep { return &MergeStep{} }

// Name returns the step name.
func (s *MergeStep) Name() string { return StepMerge }

// Do executes the step. It runs even when the live scan failed, so the
// static findings are always reported.
func (s *MergeStep) Do(_ context.Context, result *model.AuditResult) error {
	merge.Apply(result)
	return nil
}

// Stages are the collaborators of the default audit pipeline.
type Stages struct {
	Pages  PageLister
	Static StaticRunner
	Live   LiveRunner
	Tokens TokenIssuer

	// Logger is handed to every step. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultPipeline creates the standard audit pipeline:
// page selection, static analysis, live scan, merge.
//
// The pipeline always continues on error. A failed live scan must not
// hide the static findings, and the merge has to run in every case.
// A nil Live or Tokens skips the live scan step.
func DefaultPipeline(stages Stages, opts ...Option) *Pipeline {
	opts = append(opts, WithContinueOnError(true))
	if stages.Logger != nil {
		opts = append([]Option{WithLogger(stages.Logger)}, opts...)
	}
	p := New(opts...)

	p.AddSteps(
		NewSelectPagesStep(stages.Pages, stages.Logger),
		NewStaticStep(stages.Static, stages.Logger),
	)
	if stages.Live != nil && stages.Tokens != nil {
		p.AddStep(NewLiveScanStep(stages.Live, stages.Tokens, stages.Logger))
	}
	p.AddStep(NewMergeStep())
	return p
}
