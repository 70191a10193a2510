// Package logs reads the per-run log files written by the orchestrator.
//
// Latest locates the most recent run log in a log directory and Tail returns
// its last lines, optionally polling for new output so `blockflow logs
// --follow` can stream a phase that is still running in another terminal.
// Memory use is bounded by the requested line count.
package logs
