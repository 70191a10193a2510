// Package analysis defines the contract between the orchestrator and the
// per-mode analysis modules that segment, track, stitch, collate and post-edit
// frames, and resolves configured modes to implementations.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"

	"blockflow/internal/config"
	"blockflow/internal/services"
)

// GeneralParams are the run-wide settings handed to post-editing.
type GeneralParams = config.General

// SegmentParams configure preprocessing for one mode.
type SegmentParams struct {
	Pattern  string         `json:"pattern"`
	FileList []string       `json:"file_list"`
	Options  map[string]any `json:"options"`
}

// Params are one mode's parameters.
type Params struct {
	Segment SegmentParams  `json:"segment"`
	Track   map[string]any `json:"track"`
	Collate map[string]any `json:"collate"`
}

// Clone returns a copy whose file list and option maps can be changed
// without affecting p.
func (p Params) Clone() Params {
	out := Params{
		Segment: SegmentParams{
			Pattern:  p.Segment.Pattern,
			FileList: append([]string(nil), p.Segment.FileList...),
			Options:  maps.Clone(p.Segment.Options),
		},
		Track:   maps.Clone(p.Track),
		Collate: maps.Clone(p.Collate),
	}
	return out
}

// ParamsFromConfig builds a mode's parameters from its configuration.
func ParamsFromConfig(mode config.Mode) Params {
	return Params{
		Segment: SegmentParams{Pattern: mode.Pattern, Options: maps.Clone(mode.Segment)},
		Track:   maps.Clone(mode.Track),
		Collate: maps.Clone(mode.Collate),
	}
}

// Analyzer is a per-mode analysis module.
type Analyzer interface {
	// FillDefaults pads mode parameters with the module's defaults.
	FillDefaults(p Params) (Params, error)
	// PreprocessOne segments one raw frame, writing the segmented image and
	// its record file into outputDir.
	PreprocessOne(ctx context.Context, inputFile, outputDir string, p Params) error
	TrackBlock(ctx context.Context, blockDir, outputFile string, track map[string]any) error
	StitchBlocks(ctx context.Context, blockDirs []string, track map[string]any) error
	CollateBlocks(ctx context.Context, blockDirs []string, outputFile string, collate map[string]any) error
	PosteditBlock(ctx context.Context, blockDir string, general GeneralParams) error
	// InteractiveEdit hands the terminal to the operator.
	InteractiveEdit(ctx context.Context, rawDir, analysesDir string, positions []string) error
}

// Mode is a configured analysis mode bound to its analyzer.
type Mode struct {
	Name     string
	Params   Params
	Analyzer Analyzer
}

// Factory builds the analyzer for a configured mode.
type Factory func(name string, mode config.Mode, logger *slog.Logger) (Analyzer, error)

// Registry maps analyzer kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// KindExec is the built-in analyzer that runs configured commands.
const KindExec = "exec"

// NewRegistry returns a registry holding the built-in kinds.
func NewRegistry(opts ...ExecOption) *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(KindExec, func(name string, mode config.Mode, logger *slog.Logger) (Analyzer, error) {
		return NewExec(name, mode.Commands, logger, opts...), nil
	})
	return r
}

// Register adds or replaces the factory of kind.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(strings.TrimSpace(kind))] = factory
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Resolve binds every active mode of cfg to its analyzer and fills its
// default parameters. Modes come back primary first. An unknown kind is a
// configuration error.
func (r *Registry) Resolve(cfg *config.Config, logger *slog.Logger) ([]Mode, error) {
	names := cfg.ActiveModes()
	modes := make([]Mode, 0, len(names))
	for _, name := range names {
		mc := cfg.Modes[name]
		r.mu.RLock()
		factory, ok := r.factories[mc.Kind]
		r.mu.RUnlock()
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "discover", "resolve analyzer",
				fmt.Sprintf("Mode %s uses unknown analyzer kind %q (known: %s)", name, mc.Kind, strings.Join(r.Kinds(), ", ")), nil)
		}
		analyzer, err := factory(name, mc, logger)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "discover", "resolve analyzer",
				fmt.Sprintf("Unable to build analyzer for mode %s", name), err)
		}
		params, err := analyzer.FillDefaults(ParamsFromConfig(mc))
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "discover", "fill defaults",
				fmt.Sprintf("Invalid parameters for mode %s", name), err)
		}
		modes = append(modes, Mode{Name: name, Params: params, Analyzer: analyzer})
	}
	return modes, nil
}
