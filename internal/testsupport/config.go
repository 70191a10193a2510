package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"blockflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The experiment is named "expt" on both the raw and analyses side, and the
// raw experiment directory exists. A single "phase" mode matches
// img_t{frame}_c1.tif.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Name = config.Name{RawData: "expt", Analyses: "expt"}
	cfgVal.Paths = config.Paths{
		RawData:  filepath.Join(base, "raw"),
		Analyses: filepath.Join(base, "analyses"),
		LogDir:   filepath.Join(base, "logs"),
	}
	cfgVal.Positions = []string{"xy"}
	cfgVal.General.NumProcs = 2
	cfgVal.General.BlockSize = 4
	cfgVal.General.WriteMode = 0
	cfgVal.Modes = map[string]config.Mode{
		"phase": {Kind: "exec", Pattern: "img_t{frame}_c1.tif"},
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := os.MkdirAll(builder.cfg.RawExperimentDir(), 0o755); err != nil {
		t.Fatalf("mkdir raw experiment dir: %v", err)
	}
	return builder.cfg
}

// WithMode adds or replaces a mode.
func WithMode(name string, mode config.Mode) ConfigOption {
	return func(b *configBuilder) {
		if mode.Kind == "" {
			mode.Kind = "exec"
		}
		b.cfg.Modes[name] = mode
	}
}

// WithGeneral lets a test adjust the run-wide settings.
func WithGeneral(fn func(*config.General)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.General)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}
