package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"blockflow/internal/logging"
	"blockflow/internal/services"
	"blockflow/internal/stageexec"
)

// Stage names recorded in logs and the position log.
const (
	StageDiscover   = "discover"
	StagePreprocess = "preprocess"
	StageReorganize = "reorganize"
	StageArchive    = "archive"
	StageMerge      = "merge"
	StageTrack      = "track"
	StageStitch     = "stitch"
	StageCollate    = "collate"
	StageEdit       = "edit"
	StagePostedit   = "postedit"
)

// Sequencer runs the workflow stages for a list of positions.
type Sequencer struct {
	rc     *RunContext
	logger *slog.Logger
}

// New returns a sequencer bound to rc.
func New(rc *RunContext) *Sequencer {
	logger := rc.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sequencer{rc: rc, logger: logging.NewComponentLogger(logger, "workflow")}
}

// Preedit takes every position from raw frames to collated edits.
func (s *Sequencer) Preedit(ctx context.Context, positions []string) error {
	ctx = services.WithRunID(ctx, s.rc.RunID)
	if err := s.initializeLog(ctx, positions, s.rc.WriteMode); err != nil {
		return err
	}
	return s.eachPosition(ctx, "preedit", positions, s.preeditPosition)
}

// Edit hands the terminal to the primary mode's interactive editor for all
// positions at once.
func (s *Sequencer) Edit(ctx context.Context, positions []string) error {
	ctx = services.WithRunID(ctx, s.rc.RunID)
	if err := s.initializeLog(ctx, positions, 1); err != nil {
		return err
	}
	logger := logging.WithContext(services.WithStage(ctx, StageEdit), s.logger)
	if s.rc.Log != nil {
		for _, pos := range positions {
			if err := s.rc.Log.Update(ctx, s.rc.Experiment, pos, StageEdit); err != nil {
				return fmt.Errorf("persist edit start: %w", err)
			}
		}
	}

	logger.Info("interactive edit started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("positions", len(positions)),
	)
	err := s.rc.Primary.Analyzer.InteractiveEdit(ctx, s.rc.RawDir, s.rc.AnalysesDir, positions)
	if err != nil {
		logging.ErrorWithContext(logger, "interactive edit failed", "stage_failure",
			logging.String("error_kind", services.Classify(err)),
			logging.Error(err),
		)
	} else {
		logger.Info("interactive edit completed", logging.String(logging.FieldEventType, "stage_complete"))
	}

	if s.rc.Log != nil {
		persistCtx := context.WithoutCancel(ctx)
		for _, pos := range positions {
			var perr error
			if err != nil {
				perr = s.rc.Log.Fail(persistCtx, s.rc.Experiment, pos, StageEdit, err)
			} else {
				perr = s.rc.Log.Complete(persistCtx, s.rc.Experiment, pos, StageEdit)
			}
			if perr != nil {
				logger.Error("failed to persist edit result", logging.String(logging.FieldPosition, pos), logging.Error(perr))
			}
		}
	}
	return err
}

// Postedit runs the primary mode's post-edit step over every block of every
// position.
func (s *Sequencer) Postedit(ctx context.Context, positions []string) error {
	ctx = services.WithRunID(ctx, s.rc.RunID)
	if err := s.initializeLog(ctx, positions, 1); err != nil {
		return err
	}
	return s.eachPosition(ctx, "postedit", positions, s.posteditPosition)
}

func (s *Sequencer) initializeLog(ctx context.Context, positions []string, writeMode int) error {
	if s.rc.Log == nil {
		return nil
	}
	if err := s.rc.Log.Initialize(ctx, s.rc.RawDir, s.rc.AnalysesDir, positions, writeMode); err != nil {
		return fmt.Errorf("initialize position log: %w", err)
	}
	return nil
}

// eachPosition runs fn for every position in order. A failing position is
// logged and collected; the next position still runs unless ctx is done.
func (s *Sequencer) eachPosition(ctx context.Context, phase string, positions []string, fn func(context.Context, string) error) error {
	var errs []error
	failed := 0
	for i, pos := range positions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s stopped before position %s: %w", phase, pos, err))
			break
		}
		posCtx := services.WithPosition(ctx, pos)
		logger := logging.WithContext(posCtx, s.logger)
		logger.Info("position started",
			logging.String(logging.FieldEventType, "position_start"),
			logging.String("phase", phase),
			logging.Int("index", i+1),
			logging.Int("total", len(positions)),
		)
		if err := fn(posCtx, pos); err != nil {
			failed++
			errs = append(errs, fmt.Errorf("position %s: %w", pos, err))
			logging.WarnWithContext(logger, "position failed; continuing with next position", "position_failed",
				logging.String("error_kind", services.Classify(err)),
				logging.Error(err),
			)
			continue
		}
		logger.Info("position completed",
			logging.String(logging.FieldEventType, "position_complete"),
			logging.String("phase", phase),
		)
	}
	s.logger.Info(phase+" finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("positions", len(positions)),
		logging.Int("failed", failed),
	)
	return errors.Join(errs...)
}

// stage runs one named stage for a position through stageexec.
func (s *Sequencer) stage(ctx context.Context, pos, name string, fn func(context.Context, *slog.Logger) error) error {
	return stageexec.Run(ctx, stageexec.Options{
		Logger:     s.logger,
		Log:        s.rc.Log,
		Experiment: s.rc.Experiment,
		Position:   pos,
		Stage:      name,
		Execute:    fn,
	})
}

func removeAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
