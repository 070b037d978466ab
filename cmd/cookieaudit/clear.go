package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/cookieaudit/internal/audit"
)

// NewClearCmd creates the clear command.
func NewClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached audits and buffered evidence",
		Long: `Clear deletes every stored audit and the buffered page evidence of the
latest run. The next scan starts from scratch.`,
		Args: cobra.NoArgs,
		RunE: runClearCmd,
	}
	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")
	return cmd
}

func runClearCmd(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(getVerboseFlag(cmd))

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctrl := audit.NewController(nil,
		audit.WithStore(db),
		audit.WithClearer(db),
		audit.WithLogger(logger),
	)
	if err := ctrl.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear audit cache: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Audit cache cleared.")
	return nil
}
