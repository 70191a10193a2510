package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"blockflow/internal/config"
	"blockflow/internal/services"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadMissingParamsWritesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	inputDir := filepath.Join(t.TempDir(), "2013-01-12")

	cfg, path, existed, err := config.Load(inputDir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if existed {
		t.Fatal("expected params file to be reported as newly created")
	}
	if path != filepath.Join(inputDir, config.ParamsFileName) {
		t.Fatalf("unexpected params path %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults written: %v", err)
	}
	if cfg.Name.RawData != "2013-01-12" || cfg.Name.Analyses != "2013-01-12" {
		t.Fatalf("expected names from directory basename, got %+v", cfg.Name)
	}
	if cfg.General.BlockSize != config.Default().General.BlockSize {
		t.Fatalf("unexpected block size %d", cfg.General.BlockSize)
	}

	again, _, existed, err := config.Load(inputDir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !existed {
		t.Fatal("expected params file to exist on reload")
	}
	if again.Name != cfg.Name {
		t.Fatalf("reload names differ: %+v vs %+v", again.Name, cfg.Name)
	}
}

func TestLoadTOMLModes(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "input")
	writeFile(t, filepath.Join(inputDir, config.ParamsFileName), `
positions = ["xy0", "xy1"]

[name]
raw_data = "expt-raw"
analyses = "expt"

[paths]
raw_data = "`+filepath.Join(root, "raw")+`"
analyses = "`+filepath.Join(root, "analyses")+`"

[general]
write_mode = 1
num_procs = 3
frame_range = [5, 50]
block_size = 10
primary_mode = "Phase"

[modes.phase]
pattern = "img_t{frame}_c1.tif"

[modes.phase.track]
max_displacement = 12

[modes.fluor]
kind = "EXEC"
pattern = "img_t{frame}_c2.tif"

[modes.dark]
enabled = false
pattern = "dark{frame}.tif"
`)

	cfg, _, existed, err := config.Load(inputDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !existed {
		t.Fatal("expected existing params file")
	}
	if cfg.General.PrimaryMode != "phase" {
		t.Fatalf("expected lowercased primary mode, got %q", cfg.General.PrimaryMode)
	}
	if got := cfg.ActiveModes(); !reflect.DeepEqual(got, []string{"phase", "fluor"}) {
		t.Fatalf("unexpected active modes %v", got)
	}
	if cfg.Modes["fluor"].Kind != "exec" {
		t.Fatalf("expected normalized kind, got %q", cfg.Modes["fluor"].Kind)
	}
	if cfg.Modes["phase"].Kind != "exec" {
		t.Fatalf("expected default kind, got %q", cfg.Modes["phase"].Kind)
	}
	if cfg.General.FrameStart() != 5 || cfg.General.FrameStop() != 50 {
		t.Fatalf("unexpected frame window %v", cfg.General.FrameRange)
	}
	if cfg.Modes["phase"].Track["max_displacement"] == nil {
		t.Fatalf("expected track options to be decoded")
	}
	wantLog := filepath.Join(root, "analyses", "expt", ".blockflow", "logs")
	if cfg.Paths.LogDir != wantLog {
		t.Fatalf("log dir = %q, want %q", cfg.Paths.LogDir, wantLog)
	}
	if cfg.RawExperimentDir() != filepath.Join(root, "raw", "expt-raw") {
		t.Fatalf("unexpected raw dir %q", cfg.RawExperimentDir())
	}
}

func TestLoadLegacyYAML(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "input")
	writeFile(t, filepath.Join(inputDir, config.LegacyParamsFileName), `---
name:
  raw_data: expt
  analyses: expt
paths:
  raw_data: `+filepath.Join(root, "raw")+`
  analyses: `+filepath.Join(root, "analyses")+`
positions:
  - xy
general:
  write_mode: 0
  num_procs: 2
  frame_range: [0, 20]
  block_size: 4
  primary_mode: phase
modes:
  phase:
    pattern: "frame{frame}.tif"
    segment:
      threshold: 0.5
`)

	cfg, path, _, err := config.Load(inputDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if filepath.Base(path) != config.LegacyParamsFileName {
		t.Fatalf("expected yaml path, got %q", path)
	}
	if cfg.General.BlockSize != 4 || cfg.General.NumProcs != 2 {
		t.Fatalf("unexpected general section %+v", cfg.General)
	}
	if got := cfg.Modes["phase"].Segment["threshold"]; got != 0.5 {
		t.Fatalf("unexpected segment option %v", got)
	}
}

func TestPathPatternResolvesExistingDirectory(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"Raw-2014", "Raw-2013", "Other"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	cfg := config.Default()
	cfg.Name = config.Name{RawData: "expt", Analyses: "expt"}
	cfg.Paths.RawData = filepath.Join(root, `Raw-\d+`)
	cfg.Paths.Analyses = filepath.Join(root, "Missing")

	path := filepath.Join(t.TempDir(), config.ParamsFileName)
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Paths.RawData != filepath.Join(root, "Raw-2013") {
		t.Fatalf("expected first sorted match, got %q", loaded.Paths.RawData)
	}
	if loaded.Paths.Analyses != filepath.Join(root, "Missing") {
		t.Fatalf("expected literal fallback, got %q", loaded.Paths.Analyses)
	}
}

func TestCreateSample(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "params.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "{frame}") {
		t.Fatalf("sample config missing frame placeholder: %s", contents)
	}

	var raw config.Config
	if err := toml.Unmarshal(contents, &raw); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("sample should validate: %v", err)
	}
	if got := cfg.ActiveModes(); !reflect.DeepEqual(got, []string{"phase"}) {
		t.Fatalf("unexpected active modes %v", got)
	}
	if len(cfg.Modes["phase"].Commands.Preprocess) == 0 {
		t.Fatal("expected preprocess command in sample")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Name = config.Name{RawData: "expt", Analyses: "expt"}
		return cfg
	}
	base := valid()
	if err := base.Validate(); err != nil {
		t.Fatalf("expected defaults with names to validate: %v", err)
	}

	disabled := false
	cases := map[string]func(*config.Config){
		"missing name":        func(c *config.Config) { c.Name.Analyses = "" },
		"zero block size":     func(c *config.Config) { c.General.BlockSize = 0 },
		"negative block size": func(c *config.Config) { c.General.BlockSize = -4 },
		"zero workers":        func(c *config.Config) { c.General.NumProcs = 0 },
		"bad write mode":      func(c *config.Config) { c.General.WriteMode = 2 },
		"inverted window":     func(c *config.Config) { c.General.FrameRange = []int{10, 10} },
		"short window":        func(c *config.Config) { c.General.FrameRange = []int{10} },
		"no positions":        func(c *config.Config) { c.Positions = nil },
		"bad position regex":  func(c *config.Config) { c.Positions = []string{"xy("} },
		"missing placeholder": func(c *config.Config) {
			c.Modes["phase"] = config.Mode{Kind: "exec", Pattern: "img.tif"}
		},
		"two placeholders": func(c *config.Config) {
			c.Modes["phase"] = config.Mode{Kind: "exec", Pattern: "{frame}_{frame}.tif"}
		},
		"primary disabled": func(c *config.Config) {
			c.Modes["phase"] = config.Mode{Enabled: &disabled, Kind: "exec", Pattern: "{frame}.tif"}
		},
		"unknown primary": func(c *config.Config) { c.General.PrimaryMode = "brightfield" },
		"bad log format":  func(c *config.Config) { c.Logging.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			cfg.Modes = map[string]config.Mode{"phase": cfg.Modes["phase"]}
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadWrapsConfigurationErrors(t *testing.T) {
	inputDir := t.TempDir()
	writeFile(t, filepath.Join(inputDir, config.ParamsFileName), "[general]\nblock_size = 0\n[name]\nraw_data = \"a\"\nanalyses = \"a\"\n")
	_, _, _, err := config.Load(inputDir)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration marker, got %v", err)
	}
}

func TestExperimentNameFollowsAnalysesDir(t *testing.T) {
	tests := map[string]string{
		"expt":          "expt",
		"expt/":         "expt",
		"runs/expt":     "runs/expt",
		" runs//expt/ ": "runs/expt",
	}
	for name, cleaned := range tests {
		dir := t.TempDir()
		cfg := config.Default()
		cfg.Name.RawData = name
		cfg.Name.Analyses = name
		cfg.Paths.RawData = filepath.Join(dir, "raw")
		cfg.Paths.Analyses = filepath.Join(dir, "analyses")
		path := filepath.Join(dir, "params.toml")
		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save: %v", err)
		}
		loaded, err := config.LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%q): %v", name, err)
		}
		if loaded.Name.Analyses != cleaned {
			t.Fatalf("name.analyses %q normalized to %q, want %q", name, loaded.Name.Analyses, cleaned)
		}
		if got := loaded.ExperimentName(); got != "expt" {
			t.Fatalf("ExperimentName for %q = %q, want expt", name, got)
		}
		if got := filepath.Base(loaded.AnalysesExperimentDir()); got != loaded.ExperimentName() {
			t.Fatalf("experiment key %q does not match analyses dir %q", loaded.ExperimentName(), got)
		}
	}
}
