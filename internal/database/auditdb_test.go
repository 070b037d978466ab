package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/cookieaudit/internal/evidence"
	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/static"
)

var (
	_ static.OptionStore = (*AuditDB)(nil)
	_ evidence.Buffer    = (*AuditDB)(nil)
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *AuditDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrDatabaseNotFound) {
			t.Errorf("Open() error = %v, want ErrDatabaseNotFound", err)
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		_ = db.Close()
	})
}

func TestAuditRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.LatestRun(ctx); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LatestRun() on empty db error = %v, want ErrRunNotFound", err)
	}

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	older := model.NewAuditResult("run-old", base)
	older.CompletedAt = base.Add(time.Minute)
	older.ComponentHash = "aaa"

	newer := model.NewAuditResult("run-new", base.Add(time.Hour))
	newer.CompletedAt = base.Add(time.Hour + 500*time.Millisecond)
	newer.ComponentHash = "bbb"
	newer.Partial = true
	newer.Services = []model.ServiceRecord{*model.NewServiceRecord("Google Analytics", model.CategoryAnalytics)}

	for _, r := range []*model.AuditResult{newer, older} {
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", r.RunID, err)
		}
	}

	got, err := db.GetRun(ctx, "run-new")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.ComponentHash != "bbb" || !got.Partial || len(got.Services) != 1 {
		t.Errorf("GetRun() = %+v", got)
	}

	latest, err := db.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if latest.RunID != "run-new" {
		t.Errorf("LatestRun() = %s, want run-new", latest.RunID)
	}

	if _, err := db.GetRun(ctx, "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(nope) error = %v, want ErrRunNotFound", err)
	}

	// Saving again replaces the row.
	older.ComponentHash = "ccc"
	if err := db.SaveRun(ctx, older); err != nil {
		t.Fatal(err)
	}

	runs, err := db.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns() returned %d runs, want 2", len(runs))
	}
	if runs[0].RunID != "run-new" || !runs[0].Partial {
		t.Errorf("runs[0] = %+v", runs[0])
	}
	if runs[1].ComponentHash != "ccc" || !runs[1].CompletedAt.Equal(older.CompletedAt) {
		t.Errorf("runs[1] = %+v", runs[1])
	}

	n, err := db.DeleteRuns(ctx)
	if err != nil || n != 2 {
		t.Errorf("DeleteRuns() = %d, %v, want 2", n, err)
	}
	if _, err := db.LatestRun(ctx); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LatestRun() after delete error = %v", err)
	}
}

func TestEvidenceBuffer(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	pages := []string{"home", "login", "about"}
	for _, p := range pages {
		ev := model.PageEvidence{
			ScanID:           p,
			Cookies:          []model.CookieObservation{{Name: "_ga", HasValue: true}},
			LocalStorageKeys: []string{"k-" + p},
		}
		if err := db.Append(ctx, "run-1", ev); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := db.Append(ctx, "run-2", model.PageEvidence{ScanID: "home"}); err != nil {
		t.Fatal(err)
	}

	if n, err := db.Count(ctx, "run-1"); err != nil || n != 3 {
		t.Errorf("Count(run-1) = %d, %v, want 3", n, err)
	}

	list, err := db.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var ids []string
	for _, ev := range list {
		ids = append(ids, ev.ScanID)
	}
	if !slices.Equal(ids, pages) {
		t.Errorf("List() order = %v, want %v", ids, pages)
	}
	if !list[1].Cookies[0].HasValue || list[2].LocalStorageKeys[0] != "k-about" {
		t.Errorf("List() lost fields: %+v", list)
	}

	if err := db.Clear(ctx, "run-1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.Count(ctx, "run-1"); n != 0 {
		t.Errorf("Count(run-1) after Clear = %d", n)
	}
	if n, _ := db.Count(ctx, "run-2"); n != 1 {
		t.Errorf("Clear removed another run's evidence")
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	err := db.SeedOptions(ctx, map[string]string{
		"gtm_settings":       "GTM-ABC123",
		"gtm_other":          "x",
		"matomo_site_id":     "3",
		"plain100%_value":    "literal",
		"plainXX_underscore": "y",
	})
	if err != nil {
		t.Fatalf("SeedOptions() error = %v", err)
	}

	found, err := db.LookupOptions(ctx, []string{"matomo_site_id", "missing", "gtm_settings"})
	if err != nil {
		t.Fatalf("LookupOptions() error = %v", err)
	}
	if !slices.Equal(found, []string{"gtm_settings", "matomo_site_id"}) {
		t.Errorf("LookupOptions() = %v", found)
	}

	opts, err := db.SearchOptions(ctx, "gtm", 50)
	if err != nil {
		t.Fatalf("SearchOptions() error = %v", err)
	}
	if len(opts) != 2 || opts[0].Name != "gtm_other" || opts[1].Value != "GTM-ABC123" {
		t.Errorf("SearchOptions(gtm) = %+v", opts)
	}

	if opts, _ := db.SearchOptions(ctx, "gtm", 1); len(opts) != 1 {
		t.Errorf("SearchOptions limit ignored: %+v", opts)
	}

	// Wildcards in the fragment are literal.
	opts, err = db.SearchOptions(ctx, "100%", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 1 || opts[0].Name != "plain100%_value" {
		t.Errorf("SearchOptions(100%%) = %+v", opts)
	}

	// Seeding replaces the table.
	if err := db.SeedOptions(ctx, map[string]string{"only": "1"}); err != nil {
		t.Fatal(err)
	}
	if found, _ := db.LookupOptions(ctx, []string{"gtm_settings", "only"}); !slices.Equal(found, []string{"only"}) {
		t.Errorf("LookupOptions() after reseed = %v", found)
	}
}
