package records_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"blockflow/internal/logging"
	"blockflow/internal/records"
	"blockflow/internal/services"
)

func mustRow(t *testing.T, frame int, values map[string]any) records.Row {
	t.Helper()
	row, err := records.NewRow(frame, values)
	if err != nil {
		t.Fatal(err)
	}
	return row
}

func writeRecords(t *testing.T, path string, rows ...records.Row) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := records.WriteFile(path, rows); err != nil {
		t.Fatal(err)
	}
}

func frameList(points []records.Point) []int {
	out := make([]int, len(points))
	for i, p := range points {
		out[i] = p.Frame
	}
	return out
}

func TestMergeDirSortsAndResolvesDuplicates(t *testing.T) {
	blockDir := t.TempDir()
	data := filepath.Join(blockDir, "PhaseData")
	writeRecords(t, filepath.Join(data, "a.record.json"),
		mustRow(t, 3, map[string]any{"area": 30.0, "label": 1}),
		mustRow(t, 1, map[string]any{"area": 10.0, "label": 1}),
	)
	writeRecords(t, filepath.Join(data, "b.record.json"),
		mustRow(t, 2, map[string]any{"area": 20.0}),
		mustRow(t, 3, map[string]any{"area": 33.0, "label": 2}),
	)
	writeRecords(t, filepath.Join(data, "c.record.json"),
		mustRow(t, 0, map[string]any{"area": 5.0, "label": 0}),
	)
	if err := os.WriteFile(filepath.Join(data, "d.record.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := records.MergeDir(blockDir, "PhaseData", logging.NewNop())
	if err != nil {
		t.Fatalf("MergeDir: %v", err)
	}
	if report.Files != 3 || report.Rows != 4 {
		t.Fatalf("unexpected counts %+v", report)
	}
	if !reflect.DeepEqual(report.Skipped, []string{"d.record.json"}) {
		t.Fatalf("unexpected skipped %v", report.Skipped)
	}
	if !reflect.DeepEqual(report.Duplicates, []int{3}) {
		t.Fatalf("unexpected duplicates %v", report.Duplicates)
	}
	if !reflect.DeepEqual(report.Parameters, []string{"area", "label"}) {
		t.Fatalf("unexpected parameters %v", report.Parameters)
	}

	area, err := records.ReadSeries(filepath.Join(blockDir, "area.json"))
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if got := frameList(area); !reflect.DeepEqual(got, []int{0, 1, 2, 3}) {
		t.Fatalf("area frames = %v, want strictly ascending", got)
	}
	if got := records.Floats(area); !reflect.DeepEqual(got, []float64{5, 10, 20, 33}) {
		t.Fatalf("area values = %v", got)
	}

	label, err := records.ReadSeries(filepath.Join(blockDir, "label.json"))
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if got := frameList(label); !reflect.DeepEqual(got, []int{0, 1, 3}) {
		t.Fatalf("label frames = %v", got)
	}
	if got := records.Floats(label); !reflect.DeepEqual(got, []float64{0, 1, 2}) {
		t.Fatalf("label values = %v", got)
	}

	if _, err := os.Stat(data); !os.IsNotExist(err) {
		t.Fatalf("expected data dir removed, stat err=%v", err)
	}
}

func TestMergeDirNonOverlappingFiles(t *testing.T) {
	blockDir := t.TempDir()
	data := filepath.Join(blockDir, "FluorData")
	for i, frame := range []int{7, 4, 6, 5} {
		writeRecords(t, filepath.Join(data, string(rune('a'+i))+".record.json"),
			mustRow(t, frame, map[string]any{"intensity": float64(frame)}))
	}
	report, err := records.MergeDir(blockDir, "FluorData", nil)
	if err != nil {
		t.Fatalf("MergeDir: %v", err)
	}
	if len(report.Duplicates) != 0 {
		t.Fatalf("unexpected duplicates %v", report.Duplicates)
	}
	series, err := records.ReadSeries(filepath.Join(blockDir, "intensity.json"))
	if err != nil {
		t.Fatal(err)
	}
	if got := frameList(series); !reflect.DeepEqual(got, []int{4, 5, 6, 7}) {
		t.Fatalf("frames = %v", got)
	}
}

func TestMergeDirParameterCollision(t *testing.T) {
	blockDir := t.TempDir()
	writeRecords(t, filepath.Join(blockDir, "PhaseData", "a.record.json"), mustRow(t, 0, map[string]any{"area": 1}))
	writeRecords(t, filepath.Join(blockDir, "FluorData", "a.record.json"), mustRow(t, 0, map[string]any{"area": 2}))

	if _, err := records.MergeDir(blockDir, "PhaseData", nil); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	_, err := records.MergeDir(blockDir, "FluorData", logging.NewNop())
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(blockDir, "FluorData")); statErr != nil {
		t.Fatalf("expected data dir kept after collision: %v", statErr)
	}
}

func TestMergeDirRejectsReservedNames(t *testing.T) {
	blockDir := t.TempDir()
	writeRecords(t, filepath.Join(blockDir, "PhaseData", "a.record.json"), mustRow(t, 0, map[string]any{"Trace": 1}))
	if _, err := records.MergeDir(blockDir, "PhaseData", nil); !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}

func TestMergeDirMissingDataDir(t *testing.T) {
	report, err := records.MergeDir(t.TempDir(), "PhaseData", nil)
	if err != nil || report.Rows != 0 {
		t.Fatalf("expected empty merge, got %+v, %v", report, err)
	}
}

func TestReadFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.record.json")
	if err := os.WriteFile(path, []byte(`[{"frame": "x"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := records.ReadFile(path); !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}
