package experiment_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"blockflow/internal/experiment"
	"blockflow/internal/services"
)

func TestPositions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"xy10", "xy02", "xy01", "pos3", "calib", ".blockflow"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "xy99"), []byte("file"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := experiment.Positions(dir, []string{`xy0\d`, "pos", "xy"})
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"pos3", "xy01", "xy02", "xy10"}) {
		t.Fatalf("unexpected positions %v", got)
	}

	got, err = experiment.Positions(dir, []string{"1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("patterns must match from the start of the name, got %v", got)
	}
}

func TestPositionsErrors(t *testing.T) {
	if _, err := experiment.Positions(filepath.Join(t.TempDir(), "missing"), []string{"xy"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := experiment.Positions(t.TempDir(), []string{"xy("}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
