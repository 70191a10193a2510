package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"blockflow/internal/analysis"
	"blockflow/internal/config"
	"blockflow/internal/experiment"
	"blockflow/internal/logging"
	"blockflow/internal/preflight"
	"blockflow/internal/runlock"
	"blockflow/internal/textutil"
	"blockflow/internal/workflow"
)

type phaseOptions struct {
	workers       int
	writeMode     int
	positions     []string
	skipPreflight bool
}

func newPhaseCommands(ctx *commandContext) []*cobra.Command {
	descriptions := []struct {
		phase preflight.Phase
		short string
	}{
		{preflight.PhasePreedit, "Segment, reorganize, track, stitch and collate every position"},
		{preflight.PhaseEdit, "Open the interactive editor on collated positions"},
		{preflight.PhasePostedit, "Run per-block post-editing on every position"},
	}
	cmds := make([]*cobra.Command, 0, len(descriptions)+1)
	for _, d := range descriptions {
		phase := d.phase
		opts := &phaseOptions{}
		cmd := &cobra.Command{
			Use:   string(phase) + " <experiment-dir>",
			Short: d.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPhase(cmd, ctx, args[0], phase, opts)
			},
		}
		bindPhaseFlags(cmd, opts)
		cmds = append(cmds, cmd)
	}
	return append(cmds, newRunCommand(ctx))
}

// newRunCommand accepts the numeric modes 0, 1 and 2 alongside phase names.
func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &phaseOptions{}
	var mode string
	cmd := &cobra.Command{
		Use:   "run <experiment-dir>",
		Short: "Run a workflow phase selected by --mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := parsePhase(mode)
			if err != nil {
				return err
			}
			return runPhase(cmd, ctx, args[0], phase, opts)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "0", "Phase: 0|preedit, 1|edit, 2|postedit")
	bindPhaseFlags(cmd, opts)
	return cmd
}

func bindPhaseFlags(cmd *cobra.Command, opts *phaseOptions) {
	cmd.Flags().IntVarP(&opts.workers, "workers", "j", 0, "Override general.num_procs")
	cmd.Flags().IntVarP(&opts.writeMode, "write-mode", "w", 0, "Override general.write_mode (0 overwrite, 1 resume)")
	cmd.Flags().StringSliceVarP(&opts.positions, "position", "p", nil, "Only process these positions")
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "Skip directory and program checks")
}

func parsePhase(raw string) (preflight.Phase, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", string(preflight.PhasePreedit):
		return preflight.PhasePreedit, nil
	case "1", string(preflight.PhaseEdit):
		return preflight.PhaseEdit, nil
	case "2", string(preflight.PhasePostedit):
		return preflight.PhasePostedit, nil
	default:
		return "", fmt.Errorf("unknown mode %q (use 0|preedit, 1|edit, 2|postedit)", raw)
	}
}

func runPhase(cmd *cobra.Command, ctx *commandContext, inputDir string, phase preflight.Phase, opts *phaseOptions) error {
	cfg, err := ctx.ensureConfig(cmd, inputDir)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.General.NumProcs = opts.workers
	}
	if cmd.Flags().Changed("write-mode") {
		cfg.General.WriteMode = opts.writeMode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	if !opts.skipPreflight {
		if err := preflight.Failed(preflight.RunAll(cfg, phase)); err != nil {
			return err
		}
	}

	label := fmt.Sprintf("%s-%s-%s", textutil.SanitizeToken(cfg.ExperimentName()), phase, time.Now().UTC().Format("20060102T150405Z"))
	logger, logPath, err := ctx.logger(cfg, label)
	if err != nil {
		return err
	}

	lock, err := runlock.Acquire(cfg.StateDir())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	positions, err := selectPositions(cfg, phase, opts.positions)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		logging.WarnWithContext(logger, "no positions matched", "no_positions",
			logging.Any("patterns", cfg.Positions),
			logging.String(logging.FieldErrorHint, "check the positions patterns in the parameter file"),
			logging.String(logging.FieldImpact, "nothing to do"),
		)
		return nil
	}

	log, err := openPositionLog(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	rc, err := workflow.NewRunContext(cfg, analysis.NewRegistry(), log, logger)
	if err != nil {
		return err
	}
	seq := workflow.New(rc)

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("phase", string(phase)),
		logging.String("experiment", rc.Experiment),
		logging.Int("positions", len(positions)),
		logging.Int("workers", rc.Workers),
		logging.Int("write_mode", rc.WriteMode),
		logging.String("log_file", logPath),
	)

	runCtx := cmd.Context()
	switch phase {
	case preflight.PhasePreedit:
		err = seq.Preedit(runCtx, positions)
	case preflight.PhaseEdit:
		err = seq.Edit(runCtx, positions)
	case preflight.PhasePostedit:
		err = seq.Postedit(runCtx, positions)
	}
	if err != nil {
		return fmt.Errorf("%s finished with failures: %w", phase, err)
	}
	return nil
}

// selectPositions discovers positions in the raw tree for pre-editing and in
// the analyses tree afterwards. An explicit list narrows the result.
func selectPositions(cfg *config.Config, phase preflight.Phase, only []string) ([]string, error) {
	dir := cfg.AnalysesExperimentDir()
	if phase == preflight.PhasePreedit {
		dir = cfg.RawExperimentDir()
	}
	found, err := experiment.Positions(dir, cfg.Positions)
	if err != nil {
		return nil, err
	}
	if len(only) == 0 {
		return found, nil
	}
	known := make(map[string]bool, len(found))
	for _, p := range found {
		known[p] = true
	}
	var selected []string
	var missing []string
	for _, p := range only {
		if known[p] {
			selected = append(selected, p)
		} else {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return nil, errors.New("unknown position(s): " + strings.Join(missing, ", "))
	}
	return selected, nil
}
