// Package config loads, normalizes, and validates experiment parameter files.
//
// An experiment input directory carries params.toml (or a legacy params.yaml).
// Load bootstraps missing files from Default, expands user paths and
// directory patterns, and rejects unusable settings with ErrConfiguration
// before any stage starts.
package config
