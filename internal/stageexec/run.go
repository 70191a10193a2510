// Package stageexec runs one workflow stage for one position with the
// logging and position-log bookkeeping every stage shares.
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"blockflow/internal/logging"
	"blockflow/internal/poslog"
	"blockflow/internal/services"
)

// Options controls a single stage execution.
type Options struct {
	Logger     *slog.Logger
	Log        *poslog.Log
	Experiment string
	Position   string
	Stage      string
	// Execute performs the stage. It receives a logger tagged with the
	// position and stage.
	Execute func(ctx context.Context, logger *slog.Logger) error
}

// Run executes a stage, recording its start, completion, or failure in the
// position log and emitting "stage started/completed/failed" events.
func Run(ctx context.Context, opts Options) error {
	if opts.Execute == nil {
		return fmt.Errorf("stage %s: no execute function", opts.Stage)
	}

	stageCtx := services.WithStage(services.WithPosition(ctx, opts.Position), opts.Stage)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
	)
	if opts.Log != nil {
		if err := opts.Log.Update(stageCtx, opts.Experiment, opts.Position, opts.Stage); err != nil {
			return fmt.Errorf("persist stage start: %w", err)
		}
	}

	start := time.Now()
	if err := opts.Execute(stageCtx, stageLogger); err != nil {
		return handleFailure(stageCtx, stageLogger, opts, err)
	}

	if opts.Log != nil {
		if err := opts.Log.Complete(stageCtx, opts.Experiment, opts.Position, opts.Stage); err != nil {
			return fmt.Errorf("persist stage result: %w", err)
		}
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
	)
	return nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, stageErr error) error {
	kind := services.Classify(stageErr)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_kind", kind),
		logging.String("error_message", strings.TrimSpace(stageErr.Error())),
	}
	switch {
	case services.IsDefect(stageErr):
		attrs = append(attrs, logging.Alert("consistency"))
	case errors.Is(stageErr, services.ErrPartialRun):
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "run 'blockflow clean' for this position, then resume"))
	case errors.Is(stageErr, context.Canceled):
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "run interrupted; re-run with write_mode = 1 to resume"))
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)

	if opts.Log != nil {
		// The failure is still recorded when the run was cancelled.
		if err := opts.Log.Fail(context.WithoutCancel(ctx), opts.Experiment, opts.Position, opts.Stage, stageErr); err != nil {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	return stageErr
}
