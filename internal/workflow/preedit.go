package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"blockflow/internal/analysis"
	"blockflow/internal/archive"
	"blockflow/internal/fileutil"
	"blockflow/internal/frames"
	"blockflow/internal/layout"
	"blockflow/internal/logging"
	"blockflow/internal/partition"
	"blockflow/internal/records"
	"blockflow/internal/reorg"
	"blockflow/internal/services"
	"blockflow/internal/workerpool"
)

// discovery is what the discover stage found for one position.
type discovery struct {
	resume  layout.ResumePoint
	pending map[string][]string
	found   int
	start   int
	stop    int
	blocks  []layout.BlockRef
}

// bundle is one worker's share of the preprocessing work.
type bundle struct {
	index int
	slice partition.Slice
}

func (s *Sequencer) preeditPosition(ctx context.Context, pos string) error {
	p := layout.ForPosition(s.rc.RawDir, s.rc.AnalysesDir, pos)

	var d discovery
	err := s.stage(ctx, pos, StageDiscover, func(ctx context.Context, logger *slog.Logger) error {
		var err error
		d, err = s.discover(p, logger)
		return err
	})
	if err != nil {
		return err
	}
	if d.resume == layout.ResumeDone {
		logging.WithContext(ctx, s.logger).Info("position already collated; skipping",
			logging.String(logging.FieldEventType, "position_skipped"),
			logging.String(logging.FieldErrorHint, "set write_mode = 0 to reprocess"),
		)
		return nil
	}

	if d.resume == layout.ResumePreprocess {
		blocks, err := s.preprocessAndReorganize(ctx, p, d)
		if err != nil {
			return err
		}
		d.blocks = blocks
	}
	dirs := layout.BlockDirs(d.blocks)

	primary := s.rc.Primary
	if err := s.stage(ctx, pos, StageTrack, func(ctx context.Context, logger *slog.Logger) error {
		ctx = services.WithMode(ctx, primary.Name)
		for _, dir := range dirs {
			if err := os.Remove(layout.TraceFile(dir)); err != nil && !os.IsNotExist(err) {
				return services.Wrap(services.ErrStageFatal, StageTrack, "remove trace", "Unable to remove previous trace file", err)
			}
		}
		return workerpool.Run(ctx, s.rc.Workers, d.blocks, func(ctx context.Context, ref layout.BlockRef) error {
			logger.Debug("tracking block", logging.String(logging.FieldBlock, filepath.Base(ref.Dir)))
			return primary.Analyzer.TrackBlock(ctx, ref.Dir, layout.TraceFile(ref.Dir), primary.Params.Track)
		})
	}); err != nil {
		return err
	}

	if err := s.stage(ctx, pos, StageStitch, func(ctx context.Context, _ *slog.Logger) error {
		return primary.Analyzer.StitchBlocks(services.WithMode(ctx, primary.Name), dirs, primary.Params.Track)
	}); err != nil {
		return err
	}

	return s.stage(ctx, pos, StageCollate, func(ctx context.Context, logger *slog.Logger) error {
		if err := primary.Analyzer.CollateBlocks(services.WithMode(ctx, primary.Name), dirs, p.EditsFile(), primary.Params.Collate); err != nil {
			return err
		}
		logger.Info("collated position", logging.String("edits_file", p.EditsFile()), logging.Int("blocks", len(dirs)))
		return nil
	})
}

// discover decides where the position restarts and, when preprocessing is
// needed, lists the raw frames of every mode inside the frame window.
func (s *Sequencer) discover(p layout.Position, logger *slog.Logger) (discovery, error) {
	if s.rc.WriteMode == 0 {
		if err := layout.Reset(p); err != nil {
			return discovery{}, services.Wrap(services.ErrStageFatal, StageDiscover, "reset", "Unable to clear earlier outputs", err)
		}
	}
	state, err := layout.Inspect(p)
	if err != nil {
		return discovery{}, services.Wrap(services.ErrStageFatal, StageDiscover, "inspect", "Unable to inspect position directory", err)
	}
	resume, err := layout.Resume(state, s.rc.WriteMode)
	if err != nil {
		return discovery{}, err
	}
	d := discovery{resume: resume, blocks: state.Blocks}
	logger.Info("resume point decided",
		logging.String("resume", resume.String()),
		logging.Bool("temp_exists", state.TempExists),
		logging.Int("blocks", len(state.Blocks)),
		logging.Int("traced", state.Traced),
	)
	if resume != layout.ResumePreprocess {
		return d, nil
	}

	// Outputs of an interrupted run are kept in write mode 1; their frames
	// are not preprocessed again.
	var done map[string]bool
	if state.TempExists {
		names, err := frames.ListFiles(p.TempDir())
		if err != nil {
			return discovery{}, services.Wrap(services.ErrStageFatal, StageDiscover, "list temp", "Unable to read temp workspace", err)
		}
		done = make(map[string]bool, len(names))
		for _, name := range names {
			done[name] = true
		}
	}

	d.pending = make(map[string][]string, len(s.rc.Modes))
	first := true
	for _, m := range s.rc.Modes {
		result, err := frames.Scan(p.RawDir, s.rc.patterns[m.Name].image, s.rc.Window)
		if err != nil {
			return discovery{}, services.Wrap(services.ErrNotFound, StageDiscover, "scan raw frames",
				fmt.Sprintf("Unable to list raw frames for mode %s", m.Name), err)
		}
		for _, name := range result.Skipped {
			logger.Warn("skipping raw file with unparseable frame index",
				logging.String(logging.FieldMode, m.Name),
				logging.String("file", name),
				logging.String(logging.FieldEventType, "frame_index_unparseable"),
				logging.String(logging.FieldImpact, "file is not processed"),
			)
		}
		if lo, ok := result.Min(); ok {
			hi, _ := result.Max()
			if first {
				d.start, d.stop, first = lo, hi+1, false
			} else {
				d.start, d.stop = min(d.start, lo), max(d.stop, hi+1)
			}
		}
		list := make([]string, 0, result.Len())
		for _, f := range result.Frames {
			if done[frames.RecordName(m.Params.Segment.Pattern, f.Name)] {
				continue
			}
			list = append(list, filepath.Join(p.RawDir, f.Name))
		}
		d.pending[m.Name] = list
		d.found += result.Len()
		logger.Debug("raw frames discovered",
			logging.String(logging.FieldMode, m.Name),
			logging.Int("frames", result.Len()),
			logging.Int("pending", len(list)),
		)
	}
	if d.found == 0 {
		return discovery{}, services.Wrap(services.ErrNotFound, StageDiscover, "scan raw frames",
			fmt.Sprintf("No frames inside [%d, %d) in %s", s.rc.Window.Start, s.rc.Window.Stop, p.RawDir), nil)
	}
	logger.Info("frames discovered",
		logging.Int("frames", d.found),
		logging.Int("frame_start", d.start),
		logging.Int("frame_stop", d.stop),
	)
	return d, nil
}

// preprocessAndReorganize runs the parallel preprocessing stage and turns the
// temp workspace into archived, merged block directories.
func (s *Sequencer) preprocessAndReorganize(ctx context.Context, p layout.Position, d discovery) ([]layout.BlockRef, error) {
	pos := p.Name
	if err := s.stage(ctx, pos, StagePreprocess, func(ctx context.Context, logger *slog.Logger) error {
		return s.preprocess(ctx, p, d, logger)
	}); err != nil {
		return nil, err
	}

	var targets []reorg.Target
	if err := s.stage(ctx, pos, StageReorganize, func(ctx context.Context, logger *slog.Logger) error {
		blocks, err := partition.Blocks(d.start, d.stop, s.rc.BlockSize)
		if err != nil {
			return err
		}
		digits := partition.Digits(d.start, d.stop)
		targets = make([]reorg.Target, len(blocks))
		for i, b := range blocks {
			targets[i] = reorg.Target{Block: b, Dir: p.BlockDir(b, digits)}
		}
		report, err := reorg.Run(p.TempDir(), targets, s.reorgSpecs(), logger)
		if err != nil {
			return err
		}
		logger.Info("frames assigned to blocks",
			logging.Int("blocks", len(targets)),
			logging.Int("moved", report.Total()),
			logging.Int("skipped", len(report.Skipped)),
		)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.stage(ctx, pos, StageArchive, func(ctx context.Context, logger *slog.Logger) error {
		for _, t := range targets {
			for _, m := range s.rc.Modes {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, err := archive.Dir(t.Dir, layout.SegmentDirName(m.Name), logger); err != nil {
					return err
				}
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.stage(ctx, pos, StageMerge, func(ctx context.Context, logger *slog.Logger) error {
		for _, t := range targets {
			for _, m := range s.rc.Modes {
				report, err := records.MergeDir(t.Dir, layout.DataDirName(m.Name), logger)
				if err != nil {
					return err
				}
				if len(report.Skipped) > 0 || len(report.Duplicates) > 0 {
					logging.WarnWithContext(logger, "block merged with problems", "merge_incomplete",
						logging.String(logging.FieldMode, m.Name),
						logging.String(logging.FieldBlock, filepath.Base(t.Dir)),
						logging.Int("skipped_files", len(report.Skipped)),
						logging.Int("duplicate_frames", len(report.Duplicates)),
					)
				}
			}
		}
		return s.removeTemp(p, logger)
	}); err != nil {
		return nil, err
	}

	refs := make([]layout.BlockRef, len(targets))
	for i, t := range targets {
		refs[i] = layout.BlockRef{Block: t.Block, Dir: t.Dir}
	}
	return refs, nil
}

func (s *Sequencer) preprocess(ctx context.Context, p layout.Position, d discovery, logger *slog.Logger) error {
	if err := os.MkdirAll(p.TempDir(), 0o755); err != nil {
		return services.Wrap(services.ErrStageFatal, StagePreprocess, "create temp", "Unable to create temp workspace", err)
	}
	slices, err := partition.RoundRobin(d.pending, s.rc.Workers)
	if err != nil {
		return err
	}
	bundles := make([]bundle, 0, len(slices))
	for i, sl := range slices {
		if sl.Len() > 0 {
			bundles = append(bundles, bundle{index: i, slice: sl})
		}
	}
	logger.Info("preprocessing frames",
		logging.Int("workers", s.rc.Workers),
		logging.Int("bundles", len(bundles)),
	)

	tempDir := p.TempDir()
	return workerpool.Run(ctx, s.rc.Workers, bundles, func(ctx context.Context, b bundle) error {
		for _, m := range s.rc.Modes {
			files := b.slice[m.Name]
			if len(files) == 0 {
				continue
			}
			params := m.Params.Clone()
			params.Segment.FileList = files
			modeCtx := services.WithMode(ctx, m.Name)
			for _, file := range files {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := preprocessOne(modeCtx, m, file, tempDir, params); err != nil {
					return err
				}
			}
		}
		logger.Debug("bundle preprocessed", logging.Int("bundle", b.index), logging.Int("files", b.slice.Len()))
		return nil
	})
}

func preprocessOne(ctx context.Context, m analysis.Mode, file, tempDir string, params analysis.Params) error {
	if err := m.Analyzer.PreprocessOne(ctx, file, tempDir, params); err != nil {
		return fmt.Errorf("preprocess %s (%s): %w", filepath.Base(file), m.Name, err)
	}
	return nil
}

// reorgSpecs lists record specs before image specs so that a broad image
// pattern never claims a record file.
func (s *Sequencer) reorgSpecs() []reorg.Spec {
	specs := make([]reorg.Spec, 0, 2*len(s.rc.Modes))
	for _, m := range s.rc.Modes {
		specs = append(specs, reorg.Spec{Pattern: s.rc.patterns[m.Name].record, Subdir: layout.DataDirName(m.Name)})
	}
	for _, m := range s.rc.Modes {
		specs = append(specs, reorg.Spec{Pattern: s.rc.patterns[m.Name].image, Subdir: layout.SegmentDirName(m.Name)})
	}
	return specs
}

// removeTemp deletes the temp workspace, warning about files no block took.
func (s *Sequencer) removeTemp(p layout.Position, logger *slog.Logger) error {
	leftover, err := frames.ListFiles(p.TempDir())
	if err == nil && len(leftover) > 0 {
		size, _ := fileutil.DirSize(p.TempDir())
		logging.WarnWithContext(logger, "discarding unassigned temp files", "temp_leftover",
			logging.Int("files", len(leftover)),
			logging.Int64("bytes", size),
			logging.String("first", leftover[0]),
			logging.String(logging.FieldImpact, "files are deleted with the temp workspace"),
		)
	}
	if err := removeAll(p.TempDir()); err != nil {
		return services.Wrap(services.ErrStageFatal, StageMerge, "remove temp", "Unable to remove temp workspace", err)
	}
	return nil
}
