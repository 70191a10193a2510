package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"blockflow/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// ParamsFileName is the experiment parameter file looked up in an input directory.
const ParamsFileName = "params.toml"

// LegacyParamsFileName is the YAML parameter file older experiments carry.
const LegacyParamsFileName = "params.yaml"

// Name holds the experiment directory name under each root.
type Name struct {
	RawData  string `toml:"raw_data" yaml:"raw_data"`
	Analyses string `toml:"analyses" yaml:"analyses"`
}

// Paths contains the root directories of the experiment tree.
// The last element of RawData and Analyses may be a regular expression that
// is matched against existing directories.
type Paths struct {
	RawData  string `toml:"raw_data" yaml:"raw_data"`
	Analyses string `toml:"analyses" yaml:"analyses"`
	LogDir   string `toml:"log_dir" yaml:"log_dir"`
}

// General holds the orchestration settings shared by every mode.
type General struct {
	WriteMode   int    `toml:"write_mode" yaml:"write_mode" json:"write_mode"`
	NumProcs    int    `toml:"num_procs" yaml:"num_procs" json:"num_procs"`
	FrameRange  []int  `toml:"frame_range" yaml:"frame_range" json:"frame_range"`
	BlockSize   int    `toml:"block_size" yaml:"block_size" json:"block_size"`
	PrimaryMode string `toml:"primary_mode" yaml:"primary_mode" json:"primary_mode"`
}

// FrameStart returns the inclusive lower bound of the frame window.
func (g General) FrameStart() int {
	if len(g.FrameRange) == 0 {
		return 0
	}
	return g.FrameRange[0]
}

// FrameStop returns the exclusive upper bound of the frame window.
func (g General) FrameStop() int {
	if len(g.FrameRange) < 2 {
		return defaultFrameStop
	}
	return g.FrameRange[1]
}

// Commands lists argv templates for the exec analyzer. An empty entry makes
// the capability a no-op.
type Commands struct {
	Preprocess []string `toml:"preprocess" yaml:"preprocess"`
	Track      []string `toml:"track" yaml:"track"`
	Stitch     []string `toml:"stitch" yaml:"stitch"`
	Collate    []string `toml:"collate" yaml:"collate"`
	Postedit   []string `toml:"postedit" yaml:"postedit"`
	Edit       []string `toml:"edit" yaml:"edit"`
}

// Mode configures one analysis mode (for example "phase" or "fluor").
type Mode struct {
	Enabled  *bool          `toml:"enabled,omitempty" yaml:"enabled,omitempty"`
	Kind     string         `toml:"kind" yaml:"kind"`
	Pattern  string         `toml:"pattern" yaml:"pattern"`
	Segment  map[string]any `toml:"segment,omitempty" yaml:"segment,omitempty"`
	Track    map[string]any `toml:"track,omitempty" yaml:"track,omitempty"`
	Collate  map[string]any `toml:"collate,omitempty" yaml:"collate,omitempty"`
	Commands Commands       `toml:"commands" yaml:"commands"`
}

// IsEnabled reports whether the mode participates in runs. Modes are enabled
// unless explicitly switched off.
func (m Mode) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" yaml:"format"`
	Level         string `toml:"level" yaml:"level"`
	RetentionDays int    `toml:"retention_days" yaml:"retention_days"`
}

// Config encapsulates the parameters of one experiment.
//
// Sections:
//   - Name: experiment directory names under the raw and analyses roots
//   - Paths: raw data, analyses and log roots
//   - Positions: regular expressions selecting position directories
//   - General: write mode, worker count, frame window, block size
//   - Modes: per-mode pattern, analyzer kind, options and commands
//   - Logging: log format, level, and retention
type Config struct {
	Name      Name            `toml:"name" yaml:"name"`
	Paths     Paths           `toml:"paths" yaml:"paths"`
	Positions []string        `toml:"positions" yaml:"positions"`
	General   General         `toml:"general" yaml:"general"`
	Modes     map[string]Mode `toml:"modes" yaml:"modes"`
	Logging   Logging         `toml:"logging" yaml:"logging"`
}

// Load reads the parameter file of an experiment input directory. params.toml
// wins over a legacy params.yaml. When neither exists the defaults are written
// to params.toml with the experiment names set to the directory basename.
// The returned bool reports whether a parameter file already existed.
func Load(inputDir string) (*Config, string, bool, error) {
	dir, err := expandPath(inputDir)
	if err != nil {
		return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "resolve input dir", "Invalid input directory", err)
	}

	tomlPath := filepath.Join(dir, ParamsFileName)
	yamlPath := filepath.Join(dir, LegacyParamsFileName)
	for _, candidate := range []string{tomlPath, yamlPath} {
		exists, err := fileExists(candidate)
		if err != nil {
			return nil, "", false, err
		}
		if exists {
			cfg, err := LoadFile(candidate)
			if err != nil {
				return nil, "", false, err
			}
			return cfg, candidate, true, nil
		}
	}

	cfg := Default()
	base := filepath.Base(dir)
	cfg.Name.RawData = base
	cfg.Name.Analyses = base
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", false, fmt.Errorf("create input directory: %w", err)
	}
	if err := cfg.Save(tomlPath); err != nil {
		return nil, "", false, err
	}
	if err := cfg.finish(); err != nil {
		return nil, "", false, err
	}
	return &cfg, tomlPath, false, nil
}

// LoadFile parses, normalizes, and validates a single parameter file. The
// format follows the file extension (.yaml/.yml or TOML otherwise).
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		// Modes come entirely from the file when it declares any.
		var probe struct {
			Modes map[string]Mode `yaml:"modes"`
		}
		if err := yaml.Unmarshal(data, &probe); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "config", "parse yaml", "Invalid parameter file", err)
		}
		if len(probe.Modes) > 0 {
			cfg.Modes = nil
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "config", "parse yaml", "Invalid parameter file", err)
		}
	default:
		var probe struct {
			Modes map[string]Mode `toml:"modes"`
		}
		if err := toml.Unmarshal(data, &probe); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "config", "parse toml", "Invalid parameter file", err)
		}
		if len(probe.Modes) > 0 {
			cfg.Modes = nil
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "config", "parse toml", "Invalid parameter file", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finish() error {
	if err := c.normalize(); err != nil {
		return services.Wrap(services.ErrConfiguration, "config", "normalize", "Invalid parameter value", err)
	}
	if err := c.Validate(); err != nil {
		return services.Wrap(services.ErrConfiguration, "config", "validate", "Invalid parameters", err)
	}
	return nil
}

// Save writes the configuration as TOML.
func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat config: %w", err)
	}
	return !info.IsDir(), nil
}

// RawExperimentDir returns <paths.raw_data>/<name.raw_data>.
func (c *Config) RawExperimentDir() string {
	return filepath.Join(c.Paths.RawData, c.Name.RawData)
}

// AnalysesExperimentDir returns <paths.analyses>/<name.analyses>.
func (c *Config) AnalysesExperimentDir() string {
	return filepath.Join(c.Paths.Analyses, c.Name.Analyses)
}

// StateDir holds the position log and run lock of the experiment.
func (c *Config) StateDir() string {
	return filepath.Join(c.AnalysesExperimentDir(), ".blockflow")
}

// ExperimentName keys the experiment in the position log: the last element
// of the analyses experiment directory, matching what poslog.Initialize
// registers. A nested name such as runs/expt is keyed as expt.
func (c *Config) ExperimentName() string {
	return filepath.Base(c.AnalysesExperimentDir())
}

// ActiveModes returns the enabled mode names with the primary mode first and
// the rest in name order.
func (c *Config) ActiveModes() []string {
	names := make([]string, 0, len(c.Modes))
	for name, mode := range c.Modes {
		if !mode.IsEnabled() || name == c.General.PrimaryMode {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if mode, ok := c.Modes[c.General.PrimaryMode]; ok && mode.IsEnabled() {
		names = append([]string{c.General.PrimaryMode}, names...)
	}
	return names
}

// EnsureDirectories creates the analyses experiment tree and log directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.AnalysesExperimentDir(), c.StateDir(), c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
