// Package services defines shared utilities consumed by the pipeline stages
// and the analyzer integrations.
//
// Key responsibilities:
//   - Context helpers that stamp positions, stage names, analysis modes, and
//     run identifiers for logging.
//   - Structured error markers plus the Wrap helper that sort failures into
//     the configuration / parse / stage-fatal / consistency taxonomy.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
