package workflow

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"blockflow/internal/analysis"
	"blockflow/internal/config"
	"blockflow/internal/frames"
	"blockflow/internal/logging"
	"blockflow/internal/poslog"
	"blockflow/internal/services"
)

// RunContext is the per-invocation state shared by every stage.
type RunContext struct {
	RunID       string
	Experiment  string
	RawDir      string
	AnalysesDir string
	Modes       []analysis.Mode
	Primary     analysis.Mode
	Workers     int
	WriteMode   int
	Window      frames.Window
	BlockSize   int
	General     config.General
	Log         *poslog.Log
	Logger      *slog.Logger

	patterns map[string]modePatterns
}

type modePatterns struct {
	image  frames.Pattern
	record frames.Pattern
}

// NewRunContext resolves the configured modes through registry and compiles
// their naming patterns. Every configuration problem surfaces here, before
// any position is touched.
func NewRunContext(cfg *config.Config, registry *analysis.Registry, log *poslog.Log, logger *slog.Logger) (*RunContext, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "run context", "Configuration is required", nil)
	}
	if registry == nil {
		registry = analysis.NewRegistry()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.General.NumProcs < 1 {
		return nil, services.Wrap(services.ErrConfiguration, "", "run context",
			fmt.Sprintf("num_procs must be at least 1, got %d", cfg.General.NumProcs), nil)
	}
	if cfg.General.BlockSize < 1 {
		return nil, services.Wrap(services.ErrConfiguration, "", "run context",
			fmt.Sprintf("block_size must be positive, got %d", cfg.General.BlockSize), nil)
	}

	modes, err := registry.Resolve(cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(modes) == 0 || modes[0].Name != cfg.General.PrimaryMode {
		return nil, services.Wrap(services.ErrConfiguration, "", "run context",
			fmt.Sprintf("Primary mode %q is not an enabled mode", cfg.General.PrimaryMode), nil)
	}

	patterns := make(map[string]modePatterns, len(modes))
	for _, m := range modes {
		image, err := frames.Compile(m.Params.Segment.Pattern)
		if err != nil {
			return nil, fmt.Errorf("mode %s: %w", m.Name, err)
		}
		record, err := frames.Compile(frames.RecordPattern(m.Params.Segment.Pattern))
		if err != nil {
			return nil, fmt.Errorf("mode %s: %w", m.Name, err)
		}
		patterns[m.Name] = modePatterns{image: image, record: record}
	}

	runID := uuid.NewString()
	return &RunContext{
		RunID:       runID,
		Experiment:  cfg.ExperimentName(),
		RawDir:      cfg.RawExperimentDir(),
		AnalysesDir: cfg.AnalysesExperimentDir(),
		Modes:       modes,
		Primary:     modes[0],
		Workers:     cfg.General.NumProcs,
		WriteMode:   cfg.General.WriteMode,
		Window:      frames.Window{Start: cfg.General.FrameStart(), Stop: cfg.General.FrameStop()},
		BlockSize:   cfg.General.BlockSize,
		General:     cfg.General,
		Log:         log,
		Logger:      logger.With(logging.String(logging.FieldRunID, runID)),
		patterns:    patterns,
	}, nil
}
