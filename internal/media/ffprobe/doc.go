// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect executes ffprobe directly; Parse decodes output captured by another
// runner. Helper methods on Result expose stream counts, the primary video and
// audio streams, duration, bitrate and frame rate.
package ffprobe
