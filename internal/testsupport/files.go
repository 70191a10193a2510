package testsupport

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"blockflow/internal/records"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// WriteRecord writes a record file holding one row per frame. values maps a
// frame index to its parameter values.
func WriteRecord(t testing.TB, path string, values map[int]map[string]any) {
	t.Helper()

	frames := make([]int, 0, len(values))
	for frame := range values {
		frames = append(frames, frame)
	}
	sort.Ints(frames)
	rows := make([]records.Row, 0, len(frames))
	for _, frame := range frames {
		row, err := records.NewRow(frame, values[frame])
		if err != nil {
			t.Fatalf("record row %d: %v", frame, err)
		}
		rows = append(rows, row)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := records.WriteFile(path, rows); err != nil {
		t.Fatalf("write record %s: %v", path, err)
	}
}
