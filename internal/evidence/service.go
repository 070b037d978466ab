package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/pipeline"
	"github.com/nao1215/cookieaudit/internal/reference"
)

// DefaultParseConcurrency bounds the page fetches of one finalize call.
const DefaultParseConcurrency = 4

const (
	// bannerCookiePrefix marks the consent banner's own cookies.
	bannerCookiePrefix = "cc_cookie"

	// platformCookiePrefix marks platform session cookies, which are only
	// of interest on the login page.
	platformCookiePrefix = "wordpress_"
)

// PageParser fetches a page and classifies its HTML.
type PageParser interface {
	ParsePage(ctx context.Context, url string) model.ContentFinding
}

// Status is the progress of a run as seen by the sink.
type Status struct {
	PagesScanned int        `json:"pages_scanned"`
	HasResults   bool       `json:"has_results"`
	Timestamp    *time.Time `json:"timestamp"`
}

// Service stores page evidence and finalizes runs.
// It implements collector.Submitter and orchestrator.Finalizer, so an
// in-process scan can use it directly.
type Service struct {
	tokens      *TokenManager
	parser      PageParser
	ref         *reference.Database
	buffer      Buffer
	concurrency int
	now         func() time.Time
	logger      *slog.Logger

	mu      sync.Mutex
	results map[string]*model.LiveResult
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBuffer sets the evidence buffer. The default is a MemoryBuffer.
func WithBuffer(b Buffer) ServiceOption {
	return func(s *Service) {
		if b != nil {
			s.buffer = b
		}
	}
}

// WithParseConcurrency sets how many pages finalize fetches at once.
func WithParseConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithServiceClock sets the time source used for timestamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service. ref may be nil, in which case every name
// is unclassified.
func NewService(tokens *TokenManager, parser PageParser, ref *reference.Database, opts ...ServiceOption) *Service {
	s := &Service{
		tokens:      tokens,
		parser:      parser,
		ref:         ref,
		buffer:      NewMemoryBuffer(),
		concurrency: DefaultParseConcurrency,
		now:         time.Now,
		logger:      slog.Default(),
		results:     make(map[string]*model.LiveResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens returns the token manager of the service.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// authorize validates token and logs rejections as security events.
func (s *Service) authorize(token, action string) (model.ScanToken, error) {
	tok, err := s.tokens.Validate(token)
	if err != nil {
		s.logger.Warn("scan token rejected",
			"event", "security",
			"action", action,
			"error", err,
		)
		return model.ScanToken{}, err
	}
	return tok, nil
}

// Submit stores the evidence of one page. Empty cookie names, the consent
// banner's cookies and platform session cookies (except on the login page)
// are dropped; storage keys are trimmed and empty keys dropped.
func (s *Service) Submit(ctx context.Context, token string, ev model.PageEvidence) error {
	if token == "" || ev.ScanID == "" {
		return ErrMissingParams
	}
	tok, err := s.authorize(token, "submit")
	if err != nil {
		return err
	}

	clean := FilterEvidence(ev)
	if clean.Timestamp.IsZero() {
		clean.Timestamp = s.now()
	}
	if err := s.buffer.Append(ctx, tok.RunID, clean); err != nil {
		return fmt.Errorf("failed to buffer evidence: %w", err)
	}

	s.logger.Debug("evidence stored",
		"run", tok.RunID,
		"page", clean.ScanID,
		"cookies", len(clean.Cookies),
		"storage", len(clean.LocalStorageKeys)+len(clean.SessionStorageKeys),
	)
	return nil
}

// FilterEvidence applies the submission filters to ev.
func FilterEvidence(ev model.PageEvidence) model.PageEvidence {
	out := model.PageEvidence{
		ScanID:             ev.ScanID,
		Cookies:            []model.CookieObservation{},
		LocalStorageKeys:   cleanKeys(ev.LocalStorageKeys),
		SessionStorageKeys: cleanKeys(ev.SessionStorageKeys),
		Timestamp:          ev.Timestamp,
	}
	login := ev.ScanID == model.LoginPageID
	for _, c := range ev.Cookies {
		name := strings.TrimSpace(c.Name)
		switch {
		case name == "":
			continue
		case strings.HasPrefix(name, bannerCookiePrefix):
			continue
		case strings.HasPrefix(name, platformCookiePrefix) && !login:
			continue
		}
		out.Cookies = append(out.Cookies, model.CookieObservation{Name: name, HasValue: c.HasValue})
	}
	return out
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Finalize parses the visited pages, aggregates and classifies the buffered
// evidence of the token's run, stores the result and clears the buffer.
//
// Pages without a URL are skipped. The login page counts as scanned but
// its HTML is not parsed.
func (s *Service) Finalize(ctx context.Context, pages []model.PageDescriptor, token string) (*model.LiveResult, error) {
	if token == "" || len(pages) == 0 {
		return nil, ErrMissingParams
	}
	tok, err := s.authorize(token, "finalize")
	if err != nil {
		return nil, err
	}

	scanned := 0
	var urls []string
	for _, p := range pages {
		if p.URL == "" {
			continue
		}
		scanned++
		if p.IsLogin() {
			continue
		}
		urls = append(urls, p.URL)
	}

	content := model.NewContentFinding("")
	if s.parser != nil && len(urls) > 0 {
		bp := pipeline.NewBatchProcessor(s.parser.ParsePage,
			pipeline.WithConcurrency(s.concurrency),
			pipeline.WithBatchLogger(s.logger),
		)
		findings, err := bp.Process(ctx, urls)
		if err != nil {
			return nil, err
		}
		for _, f := range findings {
			if f.Error != "" {
				s.logger.Warn("page could not be parsed", "url", f.URL, "error", f.Error)
			}
			content.Merge(f)
		}
	}

	evidence, err := s.buffer.List(ctx, tok.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence: %w", err)
	}

	live := &model.LiveResult{
		Cookies:      []model.LiveCookie{},
		Storage:      []model.LiveStorage{},
		Content:      content,
		PageStatus:   map[string]model.PageStatus{},
		PagesScanned: scanned,
		Timestamp:    s.now(),
	}
	live.Cookies, live.Storage = Aggregate(evidence, s.ref)

	s.mu.Lock()
	s.results[tok.RunID] = live
	s.mu.Unlock()

	if err := s.buffer.Clear(ctx, tok.RunID); err != nil {
		s.logger.Warn("failed to clear evidence buffer", "run", tok.RunID, "error", err)
	}

	s.logger.Info("live scan finalized",
		"run", tok.RunID,
		"pages", scanned,
		"cookies", len(live.Cookies),
		"storage", len(live.Storage),
	)
	return live, nil
}

// Aggregate folds page evidence into one entry per cookie name and per
// storage key, listing the page ids each was seen on, and classifies each
// name against ref. Entries keep first-seen order.
func Aggregate(evidence []model.PageEvidence, ref *reference.Database) ([]model.LiveCookie, []model.LiveStorage) {
	cookies := []model.LiveCookie{}
	storage := []model.LiveStorage{}
	cookieIdx := make(map[string]int)
	storageIdx := make(map[string]int)

	addStorage := func(key string, typ model.StorageType, page string) {
		id := string(typ) + ":" + key
		i, ok := storageIdx[id]
		if !ok {
			i = len(storage)
			storageIdx[id] = i
			storage = append(storage, model.LiveStorage{
				Name:                 key,
				Type:                 typ,
				Pages:                []string{},
				CookieClassification: ref.Classify(key),
			})
		}
		storage[i].Pages = addPage(storage[i].Pages, page)
	}

	for _, ev := range evidence {
		for _, c := range ev.Cookies {
			i, ok := cookieIdx[c.Name]
			if !ok {
				i = len(cookies)
				cookieIdx[c.Name] = i
				cookies = append(cookies, model.LiveCookie{
					Name:                 c.Name,
					Pages:                []string{},
					CookieClassification: ref.Classify(c.Name),
				})
			}
			cookies[i].Pages = addPage(cookies[i].Pages, ev.ScanID)
		}
		for _, k := range ev.LocalStorageKeys {
			addStorage(k, model.LocalStorage, ev.ScanID)
		}
		for _, k := range ev.SessionStorageKeys {
			addStorage(k, model.SessionStorage, ev.ScanID)
		}
	}
	return cookies, storage
}

func addPage(pages []string, page string) []string {
	for _, p := range pages {
		if p == page {
			return pages
		}
	}
	return append(pages, page)
}

// Status reports how many pages of the token's run have submitted evidence
// and whether the run has been finalized. Once finalized, the page count
// of the result is reported.
func (s *Service) Status(ctx context.Context, token string) (Status, error) {
	if token == "" {
		return Status{}, ErrMissingParams
	}
	tok, err := s.authorize(token, "status")
	if err != nil {
		return Status{}, err
	}

	n, err := s.buffer.Count(ctx, tok.RunID)
	if err != nil {
		return Status{}, fmt.Errorf("failed to count evidence: %w", err)
	}
	st := Status{PagesScanned: n}
	if live, ok := s.Result(tok.RunID); ok {
		st.HasResults = true
		st.PagesScanned = max(st.PagesScanned, live.PagesScanned)
		ts := live.Timestamp
		st.Timestamp = &ts
	}
	return st, nil
}

// Result returns the finalized live result of runID.
func (s *Service) Result(runID string) (*model.LiveResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, ok := s.results[runID]
	return live, ok
}

// Clear drops the buffered evidence and the stored result of runID and
// revokes its token.
func (s *Service) Clear(ctx context.Context, runID string) error {
	s.mu.Lock()
	delete(s.results, runID)
	s.mu.Unlock()

	s.tokens.Revoke(runID)
	if err := s.buffer.Clear(ctx, runID); err != nil {
		return fmt.Errorf("failed to clear evidence: %w", err)
	}
	return nil
}
