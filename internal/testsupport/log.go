package testsupport

import (
	"path/filepath"
	"testing"

	"blockflow/internal/config"
	"blockflow/internal/poslog"
)

// MustOpenLog opens the experiment's position log and registers cleanup.
func MustOpenLog(t testing.TB, cfg *config.Config) *poslog.Log {
	t.Helper()

	log, err := poslog.Open(filepath.Join(cfg.StateDir(), poslog.FileName))
	if err != nil {
		t.Fatalf("poslog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = log.Close()
	})
	return log
}
