package workflow

import (
	"context"
	"log/slog"
	"path/filepath"

	"blockflow/internal/layout"
	"blockflow/internal/logging"
	"blockflow/internal/services"
	"blockflow/internal/workerpool"
)

func (s *Sequencer) posteditPosition(ctx context.Context, pos string) error {
	p := layout.ForPosition(s.rc.RawDir, s.rc.AnalysesDir, pos)
	primary := s.rc.Primary
	return s.stage(ctx, pos, StagePostedit, func(ctx context.Context, logger *slog.Logger) error {
		state, err := layout.Inspect(p)
		if err != nil {
			return services.Wrap(services.ErrStageFatal, StagePostedit, "inspect", "Unable to inspect position directory", err)
		}
		if !layout.ReadyForPostedit(state) {
			return services.Wrap(services.ErrNotFound, StagePostedit, "find blocks",
				"Position has no collated blocks; run preedit first", nil)
		}
		ctx = services.WithMode(ctx, primary.Name)
		general := s.rc.General
		err = workerpool.Run(ctx, s.rc.Workers, state.Blocks, func(ctx context.Context, ref layout.BlockRef) error {
			logger.Debug("post-editing block", logging.String(logging.FieldBlock, filepath.Base(ref.Dir)))
			return primary.Analyzer.PosteditBlock(ctx, ref.Dir, general)
		})
		if err != nil {
			return err
		}
		logger.Info("post-edit finished", logging.Int("blocks", len(state.Blocks)))
		return nil
	})
}
