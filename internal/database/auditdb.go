package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/static"
)

// FileName is the name of the database file inside the data directory.
const FileName = "cookieaudit.db"

// AuditDB is the SQLite store of audit runs, live-scan evidence and the
// option table. It implements static.OptionStore and evidence.Buffer.
type AuditDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures AuditDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the AuditDB in dbDir.
func Open(dbDir string, opts Options) (*AuditDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &AuditDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return adb, nil
}

// Close closes the database connection.
func (adb *AuditDB) Close() error {
	return adb.db.Close()
}

// Path returns the database file path.
func (adb *AuditDB) Path() string {
	return adb.dbPath
}

func (adb *AuditDB) createTables() error {
	schema := `
	-- Audit runs store complete results as JSON
	CREATE TABLE IF NOT EXISTS audit_runs (
		run_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		component_hash TEXT,
		partial INTEGER DEFAULT 0,
		result_json TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_completed ON audit_runs(completed_at);

	-- Evidence is the append-only buffer of live-scan page submissions
	CREATE TABLE IF NOT EXISTS evidence (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		scan_id TEXT NOT NULL,
		evidence_json TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_evidence_run ON evidence(run_id);

	-- Options mirror the site's persisted configuration
	CREATE TABLE IF NOT EXISTS options (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := adb.db.ExecContext(context.Background(), schema)
	return err
}

// RunMetadata summarizes a stored audit run.
type RunMetadata struct {
	RunID         string
	StartedAt     time.Time
	CompletedAt   time.Time
	ComponentHash string
	Partial       bool
}

// SaveRun stores result, replacing an earlier run with the same id.
func (adb *AuditDB) SaveRun(ctx context.Context, result *model.AuditResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize audit result: %w", err)
	}

	query := `
	INSERT INTO audit_runs (run_id, started_at, completed_at, component_hash, partial, result_json)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		started_at = excluded.started_at,
		completed_at = excluded.completed_at,
		component_hash = excluded.component_hash,
		partial = excluded.partial,
		result_json = excluded.result_json,
		timestamp = CURRENT_TIMESTAMP
	`

	_, err = adb.db.ExecContext(ctx, query,
		result.RunID,
		formatTimestamp(result.StartedAt),
		formatTimestamp(result.CompletedAt),
		result.ComponentHash,
		result.Partial,
		string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit run: %w", err)
	}
	return nil
}

// GetRun retrieves a stored audit run by id.
func (adb *AuditDB) GetRun(ctx context.Context, runID string) (*model.AuditResult, error) {
	query := `SELECT result_json FROM audit_runs WHERE run_id = ?`
	return adb.queryRun(ctx, query, runID)
}

// LatestRun retrieves the most recently completed audit run.
func (adb *AuditDB) LatestRun(ctx context.Context) (*model.AuditResult, error) {
	query := `
	SELECT result_json FROM audit_runs
	ORDER BY completed_at DESC, timestamp DESC
	LIMIT 1
	`
	return adb.queryRun(ctx, query)
}

func (adb *AuditDB) queryRun(ctx context.Context, query string, args ...any) (*model.AuditResult, error) {
	var resultJSON string
	err := adb.db.QueryRowContext(ctx, query, args...).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit run: %w", err)
	}

	var result model.AuditResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse audit run: %w", err)
	}
	return &result, nil
}

// ListRuns returns the metadata of every stored run, newest first.
func (adb *AuditDB) ListRuns(ctx context.Context) ([]RunMetadata, error) {
	query := `
	SELECT run_id, started_at, completed_at, component_hash, partial
	FROM audit_runs
	ORDER BY completed_at DESC, timestamp DESC
	`

	rows, err := adb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var started string
		var completed, hash sql.NullString

		if err := rows.Scan(&meta.RunID, &started, &completed, &hash, &meta.Partial); err != nil {
			return nil, fmt.Errorf("failed to scan audit run: %w", err)
		}
		meta.StartedAt = parseTimestamp(started)
		meta.CompletedAt = parseTimestamp(completed.String)
		meta.ComponentHash = hash.String
		results = append(results, meta)
	}
	return results, rows.Err()
}

// DeleteRuns removes every stored run and returns how many were removed.
func (adb *AuditDB) DeleteRuns(ctx context.Context) (int64, error) {
	res, err := adb.db.ExecContext(ctx, `DELETE FROM audit_runs`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit runs: %w", err)
	}
	return res.RowsAffected()
}

// Append implements evidence.Buffer.
func (adb *AuditDB) Append(ctx context.Context, runID string, ev model.PageEvidence) error {
	evJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize evidence: %w", err)
	}
	_, err = adb.db.ExecContext(ctx,
		`INSERT INTO evidence (run_id, scan_id, evidence_json) VALUES (?, ?, ?)`,
		runID, ev.ScanID, string(evJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert evidence: %w", err)
	}
	return nil
}

// List implements evidence.Buffer. Entries are returned in insertion order.
func (adb *AuditDB) List(ctx context.Context, runID string) ([]model.PageEvidence, error) {
	rows, err := adb.db.QueryContext(ctx,
		`SELECT evidence_json FROM evidence WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var out []model.PageEvidence
	for rows.Next() {
		var evJSON string
		if err := rows.Scan(&evJSON); err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		var ev model.PageEvidence
		if err := json.Unmarshal([]byte(evJSON), &ev); err != nil {
			continue // Skip malformed rows
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Count implements evidence.Buffer.
func (adb *AuditDB) Count(ctx context.Context, runID string) (int, error) {
	var n int
	if err := adb.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM evidence WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count evidence: %w", err)
	}
	return n, nil
}

// Clear implements evidence.Buffer.
func (adb *AuditDB) Clear(ctx context.Context, runID string) error {
	if _, err := adb.db.ExecContext(ctx, `DELETE FROM evidence WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear evidence: %w", err)
	}
	return nil
}

// SeedOptions replaces the option table with options.
func (adb *AuditDB) SeedOptions(ctx context.Context, options map[string]string) error {
	tx, err := adb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM options`); err != nil {
		return fmt.Errorf("failed to reset options: %w", err)
	}
	for name, value := range options {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO options (name, value) VALUES (?, ?)`, name, value); err != nil {
			return fmt.Errorf("failed to insert option %q: %w", name, err)
		}
	}
	return tx.Commit()
}

// LookupOptions implements static.OptionStore.
func (adb *AuditDB) LookupOptions(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := adb.db.QueryContext(ctx,
		`SELECT name FROM options WHERE name IN (`+placeholders+`) ORDER BY name`, args...) //nolint:gosec // only placeholders are interpolated
	if err != nil {
		return nil, fmt.Errorf("failed to look up options: %w", err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		found = append(found, name)
	}
	return found, rows.Err()
}

// SearchOptions implements static.OptionStore.
func (adb *AuditDB) SearchOptions(ctx context.Context, fragment string, limit int) ([]static.Option, error) {
	if fragment == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := adb.db.QueryContext(ctx,
		`SELECT name, value FROM options WHERE name LIKE ? ESCAPE '\' ORDER BY name LIMIT ?`,
		"%"+escapeLike(fragment)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search options: %w", err)
	}
	defer rows.Close()

	var out []static.Option
	for rows.Next() {
		var opt static.Option
		if err := rows.Scan(&opt.Name, &opt.Value); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		out = append(out, opt)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// storedTimeLayout is fixed-width so stored timestamps sort as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats contains the timestamp formats that SQLite may return.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(storedTimeLayout)
}

// parseTimestamp tries every known format and returns the zero time when
// none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
