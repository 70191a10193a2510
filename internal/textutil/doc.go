// Package textutil holds small string helpers for log file labels and
// terminal output.
package textutil
