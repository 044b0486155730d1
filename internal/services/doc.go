// Package services defines shared utilities consumed by the job handlers,
// the editorial workflow, and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, queue names, asset IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. Markers decide whether a
//     failure is surfaced to the caller or drives job retry and backoff.
//
// Use these helpers when wiring new job logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
