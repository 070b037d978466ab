package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/report"
)

// ServiceChange is a service whose status or cookies differ between runs.
type ServiceChange struct {
	Name           string         `json:"name"`
	Category       model.Category `json:"category"`
	PreviousStatus model.Status   `json:"previousStatus"`
	CurrentStatus  model.Status   `json:"currentStatus"`
	NewCookies     []string       `json:"newCookies,omitempty"`
	GoneCookies    []string       `json:"goneCookies,omitempty"`
}

// RunSummary identifies one side of a comparison.
type RunSummary struct {
	RunID         string    `json:"runId"`
	CompletedAt   time.Time `json:"completedAt"`
	Services      int       `json:"services"`
	Confirmed     int       `json:"confirmed"`
	ComponentHash string    `json:"componentHash"`
}

// Comparison is the difference between two audit runs.
type Comparison struct {
	Previous RunSummary `json:"previous"`
	Current  RunSummary `json:"current"`

	// ComponentsChanged reports whether the active component list differs.
	ComponentsChanged bool `json:"componentsChanged"`

	Added     []model.ServiceRecord `json:"added"`
	Removed   []model.ServiceRecord `json:"removed"`
	Changed   []ServiceChange       `json:"changed"`
	Unchanged int                   `json:"unchanged"`
}

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [previous-run] [current-run]",
		Short: "Compare two stored audits",
		Long: `Compare shows how the services of a site changed between two audits:
services that appeared, services that disappeared, and services whose status
or cookies changed.

Without arguments the latest two audits are compared.

Examples:
  # Compare the latest two audits
  cookieaudit compare

  # List stored audits
  cookieaudit compare --list

  # Compare two specific runs
  cookieaudit compare <previous-run-id> <current-run-id>`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected zero or two run ids, got %d", len(args))
			}
			return nil
		},
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false, "List stored audits")
	cmd.Flags().BoolP("json", "j", false, "Output comparison result in JSON format")
	cmd.Flags().String("db-dir", "", "Database directory (default: XDG data directory)")

	return cmd
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	setupLogger(getVerboseFlag(cmd))

	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	runs, err := db.ListRuns(ctx)
	if err != nil {
		return err
	}

	if list {
		if len(runs) == 0 {
			fmt.Fprintln(out, "No stored audits found.")
			return nil
		}
		fmt.Fprintf(out, "Stored audits (%d):\n\n", len(runs))
		fmt.Fprintf(out, "  %-36s  %-20s  %s\n", "Run", "Completed", "Partial")
		fmt.Fprintln(out, "  "+strings.Repeat("-", 66))
		for _, r := range runs {
			fmt.Fprintf(out, "  %-36s  %-20s  %t\n", r.RunID, r.CompletedAt.Format("2006-01-02 15:04:05"), r.Partial)
		}
		return nil
	}

	previousID, currentID := "", ""
	if len(args) == 2 {
		previousID, currentID = args[0], args[1]
	} else {
		if len(runs) < 2 {
			return fmt.Errorf("at least two stored audits are needed to compare, found %d", len(runs))
		}
		previousID, currentID = runs[1].RunID, runs[0].RunID
	}

	previous, err := loadRun(ctx, db, previousID)
	if err != nil {
		return err
	}
	current, err := loadRun(ctx, db, currentID)
	if err != nil {
		return err
	}

	result := compareRuns(previous, current)
	if jsonOutput {
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(result)
		return err
	}
	writeComparisonText(out, result)
	return nil
}

// compareRuns diffs the service lists of two runs by service key.
func compareRuns(previous, current *model.AuditResult) *Comparison {
	c := &Comparison{
		Previous:          summarizeRun(previous),
		Current:           summarizeRun(current),
		ComponentsChanged: previous.ComponentHash != current.ComponentHash,
		Added:             []model.ServiceRecord{},
		Removed:           []model.ServiceRecord{},
		Changed:           []ServiceChange{},
	}

	before := make(map[string]model.ServiceRecord, len(previous.Services))
	for _, s := range previous.Services {
		before[s.Key] = s
	}
	seen := make(map[string]bool, len(current.Services))

	for _, cur := range current.Services {
		seen[cur.Key] = true
		prev, ok := before[cur.Key]
		if !ok {
			c.Added = append(c.Added, cur)
			continue
		}
		change := ServiceChange{
			Name:           cur.Name,
			Category:       cur.Category,
			PreviousStatus: prev.Status,
			CurrentStatus:  cur.Status,
			NewCookies:     difference(cur.Cookies.Confirmed, prev.Cookies.Confirmed),
			GoneCookies:    difference(prev.Cookies.Confirmed, cur.Cookies.Confirmed),
		}
		if change.PreviousStatus == change.CurrentStatus && len(change.NewCookies) == 0 && len(change.GoneCookies) == 0 {
			c.Unchanged++
			continue
		}
		c.Changed = append(c.Changed, change)
	}
	for _, prev := range previous.Services {
		if !seen[prev.Key] {
			c.Removed = append(c.Removed, prev)
		}
	}
	return c
}

func summarizeRun(r *model.AuditResult) RunSummary {
	return RunSummary{
		RunID:         r.RunID,
		CompletedAt:   r.CompletedAt,
		Services:      len(r.Services),
		Confirmed:     r.ConfirmedCount(),
		ComponentHash: r.ComponentHash,
	}
}

// difference returns the elements of a missing from b, in a's order.
func difference(a, b []string) []string {
	var out []string
	for _, v := range a {
		if !slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func writeComparisonText(w io.Writer, c *Comparison) {
	fmt.Fprintln(w, "Audit Comparison")
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "\nPrevious run: %s (%s)\n", c.Previous.RunID, c.Previous.CompletedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Current run:  %s (%s)\n", c.Current.RunID, c.Current.CompletedAt.Format("2006-01-02 15:04:05"))
	if c.ComponentsChanged {
		fmt.Fprintln(w, "\nThe active component list changed between the runs.")
	}

	fmt.Fprintf(w, "\n  %-10s  %-10s  %-10s  %-10s\n", "", "Previous", "Current", "Change")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 45))
	fmt.Fprintf(w, "  %-10s  %-10d  %-10d  %-10s\n", "Services",
		c.Previous.Services, c.Current.Services, formatDelta(c.Current.Services-c.Previous.Services))
	fmt.Fprintf(w, "  %-10s  %-10d  %-10d  %-10s\n", "Confirmed",
		c.Previous.Confirmed, c.Current.Confirmed, formatDelta(c.Current.Confirmed-c.Previous.Confirmed))

	if len(c.Added) > 0 {
		fmt.Fprintf(w, "\nNew Services (%d):\n", len(c.Added))
		for _, s := range c.Added {
			fmt.Fprintf(w, "  [+] [%s] %s (%s)\n", s.Category, s.Name, s.Status)
		}
	}
	if len(c.Removed) > 0 {
		fmt.Fprintf(w, "\nRemoved Services (%d):\n", len(c.Removed))
		for _, s := range c.Removed {
			fmt.Fprintf(w, "  [-] [%s] %s\n", s.Category, s.Name)
		}
	}
	if len(c.Changed) > 0 {
		fmt.Fprintf(w, "\nChanged Services (%d):\n", len(c.Changed))
		for _, s := range c.Changed {
			fmt.Fprintf(w, "  [~] [%s] %s: %s -> %s\n", s.Category, s.Name, s.PreviousStatus, s.CurrentStatus)
			if len(s.NewCookies) > 0 {
				fmt.Fprintf(w, "      New cookies: %s\n", strings.Join(s.NewCookies, ", "))
			}
			if len(s.GoneCookies) > 0 {
				fmt.Fprintf(w, "      Gone cookies: %s\n", strings.Join(s.GoneCookies, ", "))
			}
		}
	}
	if c.Unchanged > 0 {
		fmt.Fprintf(w, "\nUnchanged: %d services\n", c.Unchanged)
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return fmt.Sprintf("+%d", delta)
	}
	return fmt.Sprintf("%d", delta)
}
