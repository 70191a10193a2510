// Package preflight provides readiness checks for the directories and
// external programs a run depends on.
//
// The CLI runs them before taking the run lock so that a missing raw
// directory or an uninstalled segmentation program is reported up front
// instead of failing every position in turn.
package preflight
