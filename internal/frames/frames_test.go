package frames_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"blockflow/internal/frames"
	"blockflow/internal/services"
)

func TestCompileRequiresSinglePlaceholder(t *testing.T) {
	for _, pattern := range []string{"img.tif", "{frame}_{frame}.tif", ""} {
		if _, err := frames.Compile(pattern); !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("Compile(%q) error = %v, want configuration error", pattern, err)
		}
	}
}

func TestPatternIndex(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    int
		ok      bool
		parse   bool
	}{
		{"img_t{frame}.tif", "img_t0042.tif", 42, true, false},
		{"*t{frame}*c1.tif", "xy01_t0007_c1.tif", 7, true, false},
		{"*{frame}*.tif", "img_t0123_c1.tif", 123, true, false},
		{"img_t{frame}.tif", "img_t0042.png", 0, false, false},
		{"img_t{frame}.tif", "other.tif", 0, false, false},
		{"img_t{frame}.tif", "img_tabc.tif", 0, true, true},
		{"frame?_{frame}.tif", "frameA_9.tif", 9, true, false},
		{"a.b{frame}.tif", "aXb1.tif", 0, false, false},
	}
	for _, tc := range tests {
		p := frames.MustCompile(tc.pattern)
		got, ok, err := p.Index(tc.name)
		if ok != tc.ok {
			t.Fatalf("%s/%s: ok = %v, want %v", tc.pattern, tc.name, ok, tc.ok)
		}
		if tc.parse {
			if !errors.Is(err, services.ErrParse) {
				t.Fatalf("%s/%s: expected parse error, got %v", tc.pattern, tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s/%s: unexpected error %v", tc.pattern, tc.name, err)
		}
		if ok && got != tc.want {
			t.Fatalf("%s/%s: index = %d, want %d", tc.pattern, tc.name, got, tc.want)
		}
	}
}

func TestScanFiltersWindowAndSkipsUnparseable(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"img_t0001.tif", "img_t0005.tif", "img_t0009.tif", "img_t0010.tif",
		"img_tXX.tif", "notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "img_t0003.tif"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	result, err := frames.Scan(dir, frames.MustCompile("img_t{frame}.tif"), frames.Window{Start: 2, Stop: 10})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := result.Names(); !reflect.DeepEqual(got, []string{"img_t0005.tif", "img_t0009.tif"}) {
		t.Fatalf("unexpected frames %v", got)
	}
	if !reflect.DeepEqual(result.Skipped, []string{"img_tXX.tif"}) {
		t.Fatalf("unexpected skipped %v", result.Skipped)
	}
	if lo, ok := result.Min(); !ok || lo != 5 {
		t.Fatalf("Min = %d,%v", lo, ok)
	}
	if hi, ok := result.Max(); !ok || hi != 9 {
		t.Fatalf("Max = %d,%v", hi, ok)
	}
}

func TestEmptyResultHasNoBounds(t *testing.T) {
	var result frames.ScanResult
	if _, ok := result.Min(); ok {
		t.Fatal("expected no minimum")
	}
	if _, ok := result.Max(); ok {
		t.Fatal("expected no maximum")
	}
}

func TestRecordPattern(t *testing.T) {
	tests := map[string]string{
		"img_t{frame}.tif":  "img_t{frame}.record.json",
		"*t{frame}*c1.tiff": "*t{frame}*c1.record.json",
		"frame{frame}":      "frame{frame}.record.json",
		"img.t{frame}":      "img.t{frame}.record.json",
		"img_t{frame}_c1.*": "img_t{frame}_c1.*.record.json",
		"img.{frame}":       "img.{frame}.record.json",
		"img_{frame}.ti?":   "img_{frame}.ti?.record.json",
	}
	for in, want := range tests {
		if got := frames.RecordPattern(in); got != want {
			t.Fatalf("RecordPattern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordNameCorrelatesWithRecordPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    string
	}{
		{"img_t{frame}.tif", "img_t0012.tif", "img_t0012.record.json"},
		{"*t{frame}*c1.tiff", "exp_t0003_c1.tiff", "exp_t0003_c1.record.json"},
		{"img_t{frame}_c1.*", "img_t001_c1.tif", "img_t001_c1.tif.record.json"},
		{"img.{frame}", "img.001", "img.001.record.json"},
		{"img_{frame}.ti?", "img_7.tif", "img_7.tif.record.json"},
	}
	for _, tc := range tests {
		image := frames.MustCompile(tc.pattern)
		record := frames.MustCompile(frames.RecordPattern(tc.pattern))
		got := frames.RecordName(tc.pattern, tc.name)
		if got != tc.want {
			t.Fatalf("RecordName(%q, %q) = %q, want %q", tc.pattern, tc.name, got, tc.want)
		}
		i, ok, err := image.Index(tc.name)
		if !ok || err != nil {
			t.Fatalf("image pattern %q rejects %q (%v)", tc.pattern, tc.name, err)
		}
		j, ok, err := record.Index(got)
		if !ok || err != nil || i != j {
			t.Fatalf("record %q does not correlate with %q: %d vs %d (%v, %v)", got, tc.name, i, j, ok, err)
		}
	}

	if a, b := frames.RecordName("img.{frame}", "img.001"), frames.RecordName("img.{frame}", "img.002"); a == b {
		t.Fatalf("distinct frames share record name %q", a)
	}
}
