// Package staging finds and removes the temporary workspaces positions leave
// behind when a run stops between preprocessing and merging.
package staging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"blockflow/internal/fileutil"
	"blockflow/internal/layout"
	"blockflow/internal/logging"
)

// CleanResult contains the outcome of a cleanup operation.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Workspace describes one position's leftover state.
type Workspace struct {
	Position string
	TempDir  string
	ModTime  time.Time
	Size     int64
	Blocks   int
	// Partial is set when temp and block directories coexist, which blocks
	// resuming the position.
	Partial bool
}

// ListWorkspaces returns every position under analysesDir that still has a
// temp workspace. A missing directory yields nothing.
func ListWorkspaces(analysesDir string) ([]Workspace, error) {
	analysesDir = strings.TrimSpace(analysesDir)
	if analysesDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(analysesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var workspaces []Workspace
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		p := layout.ForPosition("", analysesDir, entry.Name())
		info, err := os.Stat(p.TempDir())
		if err != nil || !info.IsDir() {
			continue
		}
		state, err := layout.Inspect(p)
		if err != nil {
			continue
		}
		size, _ := fileutil.DirSize(p.TempDir())
		workspaces = append(workspaces, Workspace{
			Position: entry.Name(),
			TempDir:  p.TempDir(),
			ModTime:  info.ModTime(),
			Size:     size,
			Blocks:   len(state.Blocks),
			Partial:  state.HasBlocks(),
		})
	}
	return workspaces, nil
}

// CleanStale removes temp workspaces older than maxAge. Positions whose
// reorganization stopped half way are left alone; ResetPartial handles them.
func CleanStale(ctx context.Context, analysesDir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	workspaces, err := ListWorkspaces(analysesDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: analysesDir, Error: err})
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, ws := range workspaces {
		if ctx.Err() != nil {
			break
		}
		if ws.Partial || !ws.ModTime.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(ws.TempDir); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: ws.TempDir, Error: err})
			warnCleanupFailed(logger, ws.TempDir, err)
			continue
		}
		result.Removed = append(result.Removed, ws.TempDir)
		if logger != nil {
			logger.Info("removed stale temp workspace",
				logging.String(logging.FieldPosition, ws.Position),
				logging.String("path", ws.TempDir),
				logging.Duration("age", time.Since(ws.ModTime).Round(time.Second)),
				logging.String(logging.FieldEventType, "temp_cleanup"),
			)
		}
	}
	return result
}

// ResetPartial clears every position that holds both a temp workspace and
// block directories, so the next run preprocesses it from scratch.
func ResetPartial(ctx context.Context, analysesDir string, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	workspaces, err := ListWorkspaces(analysesDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: analysesDir, Error: err})
		return result
	}

	for _, ws := range workspaces {
		if ctx.Err() != nil {
			break
		}
		if !ws.Partial {
			continue
		}
		p := layout.ForPosition("", analysesDir, ws.Position)
		if err := layout.Reset(p); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: p.AnalysesDir, Error: err})
			warnCleanupFailed(logger, p.AnalysesDir, err)
			continue
		}
		result.Removed = append(result.Removed, p.AnalysesDir)
		if logger != nil {
			logger.Info("reset partially reorganized position",
				logging.String(logging.FieldPosition, ws.Position),
				logging.Int("blocks_removed", ws.Blocks),
				logging.String(logging.FieldEventType, "partial_reset"),
			)
		}
	}
	return result
}

func warnCleanupFailed(logger *slog.Logger, path string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("failed to remove workspace",
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldEventType, "temp_cleanup_failed"),
		logging.String(logging.FieldErrorHint, "check analyses directory permissions"),
		logging.String(logging.FieldImpact, "disk space not reclaimed"),
	)
}
