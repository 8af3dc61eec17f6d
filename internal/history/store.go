// Package history keeps a SQLite log of corruption runs, one row per
// terminal outcome.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vdcrpt/internal/config"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// DefaultLimit is the number of rows List returns when limit <= 0.
	DefaultLimit = 20
)

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: %w", err)
	}
	return store, nil
}

// OpenFromConfig opens the database named by cfg.
func OpenFromConfig(ctx context.Context, cfg *config.Config) (*Store, error) {
	return Open(ctx, cfg.HistoryPath())
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts entry and returns its row id.
func (s *Store) Record(ctx context.Context, entry Entry) (int64, error) {
	var seed any
	if entry.SeedKnown {
		seed = strconv.FormatUint(entry.Seed, 10)
	}
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO runs (
                job_id, input_path, output_path, effects, iterations, seed, cache_hit,
                status, failure_kind, failure_stage, message, started_at, duration_ms
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.JobID,
			entry.InputPath,
			entry.OutputPath,
			entry.Effects,
			entry.Iterations,
			seed,
			boolToInt(entry.CacheHit),
			string(entry.Status),
			nullableString(entry.FailureKind),
			nullableString(entry.FailureStage),
			nullableString(entry.Message),
			entry.StartedAt.UTC().Format(time.RFC3339Nano),
			entry.Duration.Milliseconds(),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("history: insert run: %w", err)
	}
	return id, nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, input_path, output_path, effects, iterations, seed, cache_hit,
                status, failure_kind, failure_stage, message, started_at, duration_ms
         FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate runs: %w", err)
	}
	return entries, nil
}

// Count returns the number of recorded runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count runs: %w", err)
	}
	return n, nil
}

// Clear deletes every recorded run and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM runs")
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("history: clear runs: %w", err)
	}
	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		entry                Entry
		seed                 sql.NullString
		cacheHit             int
		status               string
		kind, stage, message sql.NullString
		startedAt            string
		durationMillis       int64
	)
	if err := row.Scan(
		&entry.ID, &entry.JobID, &entry.InputPath, &entry.OutputPath, &entry.Effects, &entry.Iterations,
		&seed, &cacheHit, &status, &kind, &stage, &message, &startedAt, &durationMillis,
	); err != nil {
		return Entry{}, fmt.Errorf("history: scan run: %w", err)
	}
	if seed.Valid {
		value, err := strconv.ParseUint(seed.String, 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("history: parse seed %q: %w", seed.String, err)
		}
		entry.Seed, entry.SeedKnown = value, true
	}
	started, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("history: parse started_at %q: %w", startedAt, err)
	}
	entry.CacheHit = cacheHit != 0
	entry.Status = Status(status)
	entry.FailureKind = kind.String
	entry.FailureStage = stage.String
	entry.Message = message.String
	entry.StartedAt = started
	entry.Duration = time.Duration(durationMillis) * time.Millisecond
	return entry, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
