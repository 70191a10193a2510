// Package logging assembles the slog loggers used by blockflow commands and
// workflow stages.
//
// It owns the console and JSON handlers, the per-run log file under
// paths.log_dir, and context helpers that tag log lines with run ID, position,
// stage and mode. NewNop provides a silent logger for tests.
package logging
