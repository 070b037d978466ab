package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/cookieaudit/internal/classifier"
	"github.com/nao1215/cookieaudit/internal/config"
	"github.com/nao1215/cookieaudit/internal/evidence"
	applog "github.com/nao1215/cookieaudit/internal/log"
	"github.com/nao1215/cookieaudit/internal/reference"
)

// shutdownTimeout bounds how long serve waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the evidence sink for external collectors",
		Long: `Serve runs the evidence sink HTTP API so that collectors running elsewhere,
for example in a real browser, can submit page evidence and finalize a run.

Endpoints:
  POST /v1/evidence   submit the cookies and storage keys of one page
  POST /v1/finalize   classify the evidence of a run and return the live result
  GET  /v1/status     pages scanned so far and whether results exist

On startup a scan token is issued for one run and printed. Every request
must carry it.

Examples:
  cookieaudit serve
  cookieaudit serve --listen 127.0.0.1:9000 --token-ttl 2h`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().String("listen", config.DefaultListenAddr, "Address to listen on")
	cmd.Flags().String("run-id", "", "Run id of the issued token (default: random)")
	cmd.Flags().Duration("token-ttl", config.DefaultTokenTTL, "Lifetime of the scan token")
	cmd.Flags().Duration("fetch-timeout", config.DefaultFetchTimeout, "Timeout of each HTML fetch during finalize")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency, "Pages fetched at once during finalize")
	cmd.Flags().StringP("reference", "r", "", "Known-service database file (default: embedded)")
	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")
	cmd.Flags().Bool("memory", false, "Buffer evidence in memory instead of the database")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	flags := cmd.Flags()
	var err error
	if cfg.ListenAddr, err = flags.GetString("listen"); err != nil {
		return err
	}
	if cfg.TokenTTL, err = flags.GetDuration("token-ttl"); err != nil {
		return err
	}
	if cfg.FetchTimeout, err = flags.GetDuration("fetch-timeout"); err != nil {
		return err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return err
	}
	if cfg.ReferenceFile, err = flags.GetString("reference"); err != nil {
		return err
	}
	memory, err := flags.GetBool("memory")
	if err != nil {
		return err
	}
	cfg.SaveToDB = !memory
	runID, err := flags.GetString("run-id")
	if err != nil {
		return err
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	if err := cfg.ValidateRuntime(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := applog.NewSecureJSONLogger(os.Stderr, cfg.Verbose)

	opts := []evidence.ServiceOption{
		evidence.WithLogger(logger),
		evidence.WithParseConcurrency(cfg.Concurrency),
	}
	if cfg.SaveToDB {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, evidence.WithBuffer(db))
	}

	tokens, err := evidence.NewTokenManager(evidence.WithTTL(cfg.TokenTTL))
	if err != nil {
		return err
	}
	svc := evidence.NewService(tokens,
		classifier.New(classifier.WithTimeout(cfg.FetchTimeout), classifier.WithLogger(logger)),
		reference.LoadOrDefault(cfg.ReferenceFile, logger),
		opts...,
	)

	tok, err := tokens.Issue(runID)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Evidence sink listening on http://%s\n", ln.Addr())
	fmt.Fprintf(out, "Run:     %s\n", tok.RunID)
	fmt.Fprintf(out, "Token:   %s\n", tok.Value)
	fmt.Fprintf(out, "Expires: %s\n", tok.ExpiresAt.Format(time.RFC3339))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serveSink(ctx, ln, evidence.NewHandler(svc, logger), func(ctx context.Context) error {
		return svc.Clear(ctx, runID)
	})
}

// serveSink serves h on ln until ctx is done, then shuts down and calls
// cleanup with a fresh context.
func serveSink(ctx context.Context, ln net.Listener, h http.Handler, cleanup func(context.Context) error) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if cleanup != nil {
		err = errors.Join(err, cleanup(shutdownCtx))
	}
	return err
}
