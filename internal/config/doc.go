// Package config loads, normalizes, and validates mediaflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MEDIAFLOW_LOG_LEVEL and HF_TOKEN. The Config type centralizes every knob the
// daemon and CLI need: storage directories, media binaries, the transcode
// ladder, per-queue worker settings, and the ops endpoint.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical queue settings, and clear validation errors.
package config
