package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/cookieaudit/internal/config"
	"github.com/nao1215/cookieaudit/internal/database"
	"github.com/nao1215/cookieaudit/internal/export"
	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/report"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored audit as a canonical audit document",
		Long: `Export converts a stored audit into the canonical audit document: a JSON
format shared with other scanners, with cookies, storage, tracking pixels,
third-party scripts, tag managers, fonts, iframes and trackers.

Examples:
  # Export the latest audit
  cookieaudit export

  # Export a specific run to a file
  cookieaudit export --run 1b4e28ba-2fa1-11d2-883f-0016d3cca427 -o audit.json`,
		Args: cobra.NoArgs,
		RunE: runExportCmd,
	}

	cmd.Flags().String("run", "", "Run id to export (default: latest)")
	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")
	cmd.Flags().StringP("output", "o", "", "Write the document to the specified file")
	cmd.Flags().Bool("compact", false, "Write compact JSON")

	return cmd
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	setupLogger(getVerboseFlag(cmd))

	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	compact, err := cmd.Flags().GetBool("compact")
	if err != nil {
		return err
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := loadRun(cmd.Context(), db, runID)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(outputPath, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut()

	var opts []report.JSONWriterOption
	if !compact {
		opts = append(opts, report.WithPrettyPrint())
	}
	doc := export.Export(result.Static, result.Live, export.WithScannerVersion(getVersion()))
	_, err = report.NewJSONWriter(out, opts...).WriteValue(doc)
	return err
}

// openDB opens the audit database named by the --db-dir flag.
func openDB(cmd *cobra.Command) (*database.AuditDB, error) {
	dir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = config.XDGDataDir()
	}
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// loadRun returns the stored run runID, or the latest run when runID is empty.
func loadRun(ctx context.Context, db *database.AuditDB, runID string) (*model.AuditResult, error) {
	var (
		result *model.AuditResult
		err    error
	)
	if runID == "" {
		result, err = db.LatestRun(ctx)
	} else {
		result, err = db.GetRun(ctx, runID)
	}
	if errors.Is(err, database.ErrRunNotFound) {
		if runID != "" {
			return nil, fmt.Errorf("audit run %s not found", runID)
		}
		return nil, errNoRuns
	}
	return result, err
}
