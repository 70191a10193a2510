package reorg_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"blockflow/internal/frames"
	"blockflow/internal/logging"
	"blockflow/internal/partition"
	"blockflow/internal/reorg"
	"blockflow/internal/services"
)

func setup(t *testing.T, names ...string) (string, []reorg.Target) {
	t.Helper()
	root := t.TempDir()
	temp := filepath.Join(root, "temp")
	if err := os.MkdirAll(temp, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(temp, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	blocks, err := partition.Blocks(0, 10, 4)
	if err != nil {
		t.Fatal(err)
	}
	digits := partition.Digits(0, 10)
	targets := make([]reorg.Target, len(blocks))
	for i, b := range blocks {
		targets[i] = reorg.Target{Block: b, Dir: filepath.Join(root, "blocks", b.Name(digits))}
	}
	return temp, targets
}

func specs() []reorg.Spec {
	return []reorg.Spec{
		{Pattern: frames.MustCompile("img_t{frame}.tif"), Subdir: "PhaseSegment"},
		{Pattern: frames.MustCompile("img_t{frame}.record.json"), Subdir: "PhaseData"},
	}
}

func TestRunPlacesFilesByIndex(t *testing.T) {
	var names []string
	for i := 0; i < 10; i++ {
		names = append(names, fmt.Sprintf("img_t%02d.tif", i), fmt.Sprintf("img_t%02d.record.json", i))
	}
	names = append(names, "img_tXY.tif", "unrelated.txt")
	temp, targets := setup(t, names...)

	report, err := reorg.Run(temp, targets, specs(), logging.NewNop())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Moved["PhaseSegment"] != 10 || report.Moved["PhaseData"] != 10 {
		t.Fatalf("unexpected move counts %v", report.Moved)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "img_tXY.tif" {
		t.Fatalf("unexpected skipped %v", report.Skipped)
	}

	for i := 0; i < 10; i++ {
		idx, _ := partition.Find([]partition.Block{targets[0].Block, targets[1].Block, targets[2].Block}, i)
		want := filepath.Join(targets[idx].Dir, "PhaseSegment", fmt.Sprintf("img_t%02d.tif", i))
		if _, err := os.Stat(want); err != nil {
			t.Fatalf("frame %d not in expected block: %v", i, err)
		}
	}
	for _, leftover := range []string{"img_tXY.tif", "unrelated.txt"} {
		if _, err := os.Stat(filepath.Join(temp, leftover)); err != nil {
			t.Fatalf("expected %s to remain in temp: %v", leftover, err)
		}
	}
}

func TestRunCreatesEmptySubdirs(t *testing.T) {
	temp, targets := setup(t, "img_t00.tif")
	if _, err := reorg.Run(temp, targets, specs(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, target := range targets {
		for _, sub := range []string{"PhaseSegment", "PhaseData"} {
			info, err := os.Stat(filepath.Join(target.Dir, sub))
			if err != nil || !info.IsDir() {
				t.Fatalf("expected %s/%s to exist: %v", target.Dir, sub, err)
			}
		}
	}
}

func TestRunOutOfRangeIsConsistencyError(t *testing.T) {
	temp, targets := setup(t, "img_t03.tif", "img_t12.tif")
	_, err := reorg.Run(temp, targets, specs(), logging.NewNop())
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	for _, name := range []string{"img_t03.tif", "img_t12.tif"} {
		if _, err := os.Stat(filepath.Join(temp, name)); err != nil {
			t.Fatalf("expected %s untouched after failed plan: %v", name, err)
		}
	}
	if _, err := os.Stat(targets[0].Dir); !os.IsNotExist(err) {
		t.Fatalf("expected no block directories created, stat err=%v", err)
	}
}

func TestRunSkippedExcludesNamesClaimedLater(t *testing.T) {
	temp, targets := setup(t, "img_t_03.tif")
	specs := []reorg.Spec{
		{Pattern: frames.MustCompile("img_t{frame}.tif"), Subdir: "PhaseSegment"},
		{Pattern: frames.MustCompile("img_t_{frame}.tif"), Subdir: "FluorSegment"},
	}

	report, err := reorg.Run(temp, targets, specs, logging.NewNop())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Moved["FluorSegment"] != 1 {
		t.Fatalf("unexpected move counts %v", report.Moved)
	}
	if len(report.Skipped) != 0 {
		t.Fatalf("claimed file reported as skipped: %v", report.Skipped)
	}
	if _, err := os.Stat(filepath.Join(targets[0].Dir, "FluorSegment", "img_t_03.tif")); err != nil {
		t.Fatalf("expected file moved: %v", err)
	}
}

func TestRunWildcardExtensionSeparatesRecords(t *testing.T) {
	const image = "img_t{frame}_c1.*"
	var names []string
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("img_t%02d_c1.tif", i)
		names = append(names, name, frames.RecordName(image, name))
	}
	temp, targets := setup(t, names...)
	specs := []reorg.Spec{
		{Pattern: frames.MustCompile(frames.RecordPattern(image)), Subdir: "PhaseData"},
		{Pattern: frames.MustCompile(image), Subdir: "PhaseSegment"},
	}

	report, err := reorg.Run(temp, targets, specs, logging.NewNop())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Moved["PhaseData"] != 10 || report.Moved["PhaseSegment"] != 10 {
		t.Fatalf("unexpected move counts %v", report.Moved)
	}
	want := filepath.Join(targets[0].Dir, "PhaseData", "img_t00_c1.tif"+frames.RecordMarker)
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected record in data dir: %v", err)
	}
}
