package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blockflow/internal/logging"
	"blockflow/internal/services"
	"blockflow/internal/testsupport"
)

func newFileLogger(t *testing.T, level, format string) (string, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{
		Level:   level,
		Format:  format,
		Outputs: []string{path},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello", logging.String(logging.FieldComponent, "workflow"), logging.Int("blocks", 3))
	logger.Debug("quiet detail")
	return path, func() string {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		return string(data)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	_, read := newFileLogger(t, "info", "console")
	out := read()
	if !strings.Contains(out, "INFO workflow: hello") {
		t.Fatalf("expected component prefix, got %q", out)
	}
	if !strings.Contains(out, "blocks=3") {
		t.Fatalf("expected attribute, got %q", out)
	}
	if strings.Contains(out, "logger_test.go") {
		t.Fatalf("info logger should not include caller, got %q", out)
	}
	if strings.Contains(out, "quiet detail") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	_, read := newFileLogger(t, "debug", "console")
	out := read()
	if !strings.Contains(out, "logger_test.go:") {
		t.Fatalf("expected caller in debug output, got %q", out)
	}
	if !strings.Contains(out, "quiet detail") {
		t.Fatalf("expected debug line, got %q", out)
	}
}

func TestNewJSONLogger(t *testing.T) {
	_, read := newFileLogger(t, "info", "json")
	line := strings.TrimSpace(read())
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("decode json line %q: %v", line, err)
	}
	if payload["msg"] != "hello" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["level"] != "info" {
		t.Fatalf("unexpected level: %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key in %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	_, read := newFileLogger(t, "chatty", "console")
	out := read()
	if !strings.Contains(out, "hello") || strings.Contains(out, "quiet detail") {
		t.Fatalf("expected info level behaviour, got %q", out)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "json", Outputs: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithPosition(ctx, "xy01")
	ctx = services.WithStage(ctx, "track")
	ctx = services.WithMode(ctx, "phase")
	logging.WithContext(ctx, logger).Info("stage started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{
		logging.FieldRunID:    "run-1",
		logging.FieldPosition: "xy01",
		logging.FieldStage:    "track",
		logging.FieldMode:     "phase",
	}
	for key, value := range want {
		if payload[key] != value {
			t.Fatalf("field %s = %v, want %s", key, payload[key], value)
		}
	}
}

func TestNewFromConfigWritesRunLog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Format = "json"
	logger, path, err := logging.NewFromConfig(cfg, "abc")
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if filepath.Base(path) != "blockflow-abc.log" {
		t.Fatalf("unexpected log path %q", path)
	}
	logger.Info("persisted")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(data), "persisted") {
		t.Fatalf("run log missing message: %q", data)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "blockflow-old.log")
	freshPath := filepath.Join(dir, "blockflow-new.log")
	otherPath := filepath.Join(dir, "notes.txt")
	for _, p := range []string{oldPath, freshPath, otherPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, p := range []string{oldPath, otherPath} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 3, logging.RetentionTarget{Dir: dir, Pattern: logging.RunLogPattern})
	if removed != 1 {
		t.Fatalf("expected one file removed, got %d", removed)
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, p := range []string{freshPath, otherPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}

func TestCleanupOldLogsKeepsExcludedAndDisabled(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "blockflow-current.log")
	if err := os.WriteFile(current, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(current, past, past); err != nil {
		t.Fatal(err)
	}

	if n := logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: dir, Pattern: logging.RunLogPattern}); n != 0 {
		t.Fatalf("retention disabled, removed %d", n)
	}
	target := logging.RetentionTarget{Dir: dir, Pattern: logging.RunLogPattern, Exclude: []string{current}}
	if n := logging.CleanupOldLogs(nil, 1, target); n != 0 {
		t.Fatalf("excluded log removed (%d)", n)
	}
	if _, err := os.Stat(current); err != nil {
		t.Fatalf("expected current log kept: %v", err)
	}
}

func TestConsoleLoggerLiftsPositionStageAndBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Outputs: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("block tracked",
		logging.String(logging.FieldPosition, "xy01"),
		logging.String(logging.FieldStage, "track"),
		logging.String(logging.FieldBlock, "frame0-4"),
		logging.String("note", "two words"),
	)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "INFO [xy01/track frame0-4] block tracked") {
		t.Fatalf("expected lifted subject, got %q", out)
	}
	if !strings.Contains(out, `note="two words"`) {
		t.Fatalf("expected quoted value, got %q", out)
	}
}
