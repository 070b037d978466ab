package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/nao1215/cookieaudit/internal/audit"
	"github.com/nao1215/cookieaudit/internal/classifier"
	"github.com/nao1215/cookieaudit/internal/collector"
	"github.com/nao1215/cookieaudit/internal/config"
	"github.com/nao1215/cookieaudit/internal/database"
	"github.com/nao1215/cookieaudit/internal/evidence"
	"github.com/nao1215/cookieaudit/internal/orchestrator"
	"github.com/nao1215/cookieaudit/internal/pipeline"
	"github.com/nao1215/cookieaudit/internal/reference"
	"github.com/nao1215/cookieaudit/internal/selector"
	"github.com/nao1215/cookieaudit/internal/site"
	"github.com/nao1215/cookieaudit/internal/static"
)

// auditStack is every component of one audit, wired together.
type auditStack struct {
	inventory  *site.Inventory
	db         *database.AuditDB
	service    *evidence.Service
	controller *audit.Controller

	// hash is the component hash of the site as it is now.
	hash string

	closers []func() error
}

// Close releases the sink listener and the database.
func (s *auditStack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// newAuditStack loads the site and builds the audit pipeline for it.
// progress may be nil.
func newAuditStack(ctx context.Context, cfg *config.Config, logger *slog.Logger, progress orchestrator.ProgressFunc) (_ *auditStack, err error) {
	inv, err := site.Load(cfg.SiteFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load site inventory: %w", err)
	}
	siteCfg := cfg.Site(inv.Host())
	ref := reference.LoadOrDefault(cfg.ReferenceFile, logger)

	stack := &auditStack{
		inventory: inv,
		hash:      static.ComponentHash(inv.ActiveComponents()),
	}
	defer func() {
		if err != nil {
			_ = stack.Close() //nolint:errcheck // Best effort cleanup
		}
	}()

	analyzerOpts := []static.AnalyzerOption{
		static.WithLogger(logger),
		static.WithMaxScanTime(cfg.MaxScanTime),
		static.WithMaxFiles(cfg.MaxFiles),
		static.WithSkipComponents(siteCfg.SkipComponents...),
		static.WithExtraTrackingDomains(siteCfg.ExtraTrackingDomains...),
	}
	serviceOpts := []evidence.ServiceOption{
		evidence.WithLogger(logger),
		evidence.WithParseConcurrency(cfg.Concurrency),
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		stack.db = db
		stack.closers = append(stack.closers, db.Close)
		logger.Debug("database opened", "path", db.Path())

		options, err := inv.Options()
		if err != nil {
			return nil, err
		}
		if err := db.SeedOptions(ctx, options); err != nil {
			return nil, fmt.Errorf("failed to seed site options: %w", err)
		}
		analyzerOpts = append(analyzerOpts, static.WithOptionStore(db))
		serviceOpts = append(serviceOpts, evidence.WithBuffer(db))
	}

	maxPages := cfg.EffectiveMaxPages()
	if siteCfg.MaxPages > 0 {
		maxPages = siteCfg.MaxPages
	}
	userAgent := cfg.UserAgent
	if siteCfg.UserAgent != "" {
		userAgent = siteCfg.UserAgent
	}

	tokens, err := evidence.NewTokenManager(evidence.WithTTL(cfg.TokenTTL))
	if err != nil {
		return nil, err
	}
	parser := classifier.New(
		classifier.WithTimeout(cfg.FetchTimeout),
		classifier.WithUserAgent(userAgent),
		classifier.WithLogger(logger),
	)
	stack.service = evidence.NewService(tokens, parser, ref, serviceOpts...)

	var (
		submitter collector.Submitter    = stack.service
		finalizer orchestrator.Finalizer = stack.service
	)
	if cfg.HTTPSink {
		client, closeSink, err := startLoopbackSink(stack.service, logger)
		if err != nil {
			return nil, err
		}
		stack.closers = append(stack.closers, closeSink)
		submitter, finalizer = client, client
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithConcurrency(cfg.Concurrency),
		orchestrator.WithStagger(cfg.Stagger),
		orchestrator.WithPageTimeout(cfg.PageTimeout),
		orchestrator.WithRetryTimeout(cfg.RetryTimeout),
		orchestrator.WithLogger(logger),
	}
	if progress != nil {
		orchOpts = append(orchOpts, orchestrator.WithProgress(progress))
	}
	live := orchestrator.New(
		collector.New(submitter,
			collector.WithUserAgent(userAgent),
			collector.WithHeaders(siteCfg.Headers),
			collector.WithMaxBodySize(cfg.MaxBodySize),
			collector.WithLogger(logger),
		),
		finalizer,
		orchOpts...,
	)

	p := pipeline.DefaultPipeline(pipeline.Stages{
		Pages:  selector.New(inv, selector.WithMaxPages(maxPages), selector.WithLogger(logger)),
		Static: static.NewAnalyzer(ref, inv, analyzerOpts...),
		Live:   live,
		Tokens: tokens,
		Logger: logger,
	})

	controllerOpts := []audit.Option{
		audit.WithCacheTTL(cfg.CacheTTL),
		audit.WithClearer(stack.service),
		audit.WithLogger(logger),
	}
	if stack.db != nil {
		controllerOpts = append(controllerOpts, audit.WithStore(stack.db))
	}
	stack.controller = audit.NewController(p, controllerOpts...)

	return stack, nil
}

// startLoopbackSink serves the evidence API of svc on a loopback port and
// returns a client for it.
func startLoopbackSink(svc *evidence.Service, logger *slog.Logger) (*evidence.Client, func() error, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start evidence sink: %w", err)
	}
	srv := &http.Server{
		Handler:           evidence.NewHandler(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("evidence sink stopped", "error", err)
		}
	}()

	baseURL := "http://" + ln.Addr().String()
	logger.Debug("evidence sink listening", "url", baseURL)
	return evidence.NewClient(baseURL, evidence.WithClientLogger(logger)), srv.Close, nil
}

// newProgress returns a ProgressFunc that renders a progress bar on w.
// The bar is created on the first event, when the page count is known.
func newProgress(w io.Writer, visible bool) (orchestrator.ProgressFunc, func()) {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	update := func(completed, total int, label string) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription("Scanning pages"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetVisibility(visible),
				progressbar.OptionFullWidth(),
			)
		}
		if bar.GetMax() != total {
			bar.ChangeMax(total)
		}
		bar.Describe(label)
		_ = bar.Set(completed) //nolint:errcheck // rendering errors are not actionable
	}
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		if bar != nil {
			_ = bar.Finish() //nolint:errcheck // rendering errors are not actionable
		}
	}
	return update, finish
}
