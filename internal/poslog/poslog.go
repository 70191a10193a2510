// Package poslog records per-position workflow progress in a SQLite database
// stored next to the experiment's analyses.
//
// Each position has one row holding its latest stage and status, and every
// stage transition is appended to stage_events so `blockflow status` can show
// history after a crash.
package poslog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"blockflow/internal/services"
)

// FileName is the database file inside the experiment state directory.
const FileName = "positions.db"

// Status is the latest state of a position.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Log persists position progress.
type Log struct {
	db   *sql.DB
	path string
}

// Entry is the latest recorded state of one position.
type Entry struct {
	Experiment   string
	Position     string
	RawDir       string
	AnalysesDir  string
	Stage        string
	Status       Status
	ErrorKind    string
	ErrorMessage string
	RunID        string
	UpdatedAt    time.Time
}

// Event is one recorded stage transition.
type Event struct {
	Stage        string
	Status       Status
	RunID        string
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
}

// Open initializes or connects to the position log at path.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure position log directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	log := &Log{db: db, path: path}
	if err := log.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return log, nil
}

// Path returns the database file path.
func (l *Log) Path() string { return l.path }

// Close closes the underlying database connection.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Initialize registers positions of the experiment whose analyses live in
// analysesDir. Write mode 0 discards earlier rows and events of those
// positions; write mode 1 keeps existing rows and only adds missing ones.
func (l *Log) Initialize(ctx context.Context, rawDir, analysesDir string, positions []string, writeMode int) error {
	ctx = ensureContext(ctx)
	expt := filepath.Base(analysesDir)
	now := timestamp()
	return retryOnBusy(ctx, func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin initialize tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, p := range positions {
			if writeMode == 0 {
				if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE experiment = ? AND position = ?`, expt, p); err != nil {
					return fmt.Errorf("reset position %s: %w", p, err)
				}
				if _, err := tx.ExecContext(ctx, `DELETE FROM stage_events WHERE experiment = ? AND position = ?`, expt, p); err != nil {
					return fmt.Errorf("reset events %s: %w", p, err)
				}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO positions (experiment, position, raw_dir, analyses_dir, status, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?)
                 ON CONFLICT (experiment, position) DO UPDATE SET raw_dir = excluded.raw_dir, analyses_dir = excluded.analyses_dir`,
				expt, p, filepath.Join(rawDir, p), filepath.Join(analysesDir, p), StatusPending, now, now,
			); err != nil {
				return fmt.Errorf("register position %s: %w", p, err)
			}
		}
		return tx.Commit()
	})
}

// Update records that position started stage.
func (l *Log) Update(ctx context.Context, expt, position, stage string) error {
	return l.transition(ctx, expt, position, stage, StatusRunning, nil)
}

// Complete records that position finished stage.
func (l *Log) Complete(ctx context.Context, expt, position, stage string) error {
	return l.transition(ctx, expt, position, stage, StatusCompleted, nil)
}

// Fail records that stage failed for position.
func (l *Log) Fail(ctx context.Context, expt, position, stage string, cause error) error {
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	return l.transition(ctx, expt, position, stage, StatusFailed, cause)
}

func (l *Log) transition(ctx context.Context, expt, position, stage string, status Status, cause error) error {
	ctx = ensureContext(ctx)
	runID, _ := services.RunIDFromContext(ctx)
	now := timestamp()
	var kind, message any
	if cause != nil {
		kind = services.Classify(cause)
		message = strings.TrimSpace(cause.Error())
	}
	return retryOnBusy(ctx, func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transition tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`UPDATE positions SET stage = ?, status = ?, error_kind = ?, error_message = ?, run_id = ?, updated_at = ?
             WHERE experiment = ? AND position = ?`,
			stage, status, kind, message, nullableString(runID), now, expt, position,
		)
		if err != nil {
			return fmt.Errorf("update position %s: %w", position, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return services.Wrap(services.ErrNotFound, stage, "position log",
				fmt.Sprintf("Position %s/%s is not registered", expt, position), nil)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stage_events (experiment, position, stage, status, run_id, error_kind, error_message, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			expt, position, stage, status, nullableString(runID), kind, message, now,
		); err != nil {
			return fmt.Errorf("record stage event: %w", err)
		}
		return tx.Commit()
	})
}

// List returns every position of an experiment ordered by name.
func (l *Log) List(ctx context.Context, expt string) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := l.db.QueryContext(ctx,
		`SELECT experiment, position, raw_dir, analyses_dir, stage, status, error_kind, error_message, run_id, updated_at
         FROM positions WHERE experiment = ? ORDER BY position`, expt)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                    Entry
			status               string
			kind, message, runID sql.NullString
			updatedRaw           string
		)
		if err := rows.Scan(&e.Experiment, &e.Position, &e.RawDir, &e.AnalysesDir, &e.Stage, &status, &kind, &message, &runID, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		e.Status = Status(status)
		e.ErrorKind = kind.String
		e.ErrorMessage = message.String
		e.RunID = runID.String
		e.UpdatedAt = parseTime(updatedRaw)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Events returns the stage history of one position, oldest first.
func (l *Log) Events(ctx context.Context, expt, position string) ([]Event, error) {
	ctx = ensureContext(ctx)
	rows, err := l.db.QueryContext(ctx,
		`SELECT stage, status, run_id, error_kind, error_message, created_at
         FROM stage_events WHERE experiment = ? AND position = ? ORDER BY id`, expt, position)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev                   Event
			status, createdRaw   string
			runID, kind, message sql.NullString
		)
		if err := rows.Scan(&ev.Stage, &status, &runID, &kind, &message, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Status = Status(status)
		ev.RunID = runID.String
		ev.ErrorKind = kind.String
		ev.ErrorMessage = message.String
		ev.CreatedAt = parseTime(createdRaw)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
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

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
