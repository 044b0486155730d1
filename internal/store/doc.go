// Package store persists mediaflow state in a single SQLite database.
//
// It owns the job records that drive the four processing queues, the media
// assets with their renditions and subtitle sets, the course and lesson rows,
// and the editorial workflows with their append-only history. Reads of a
// single row return nil without error when the row is absent; callers decide
// whether that is a not-found condition.
//
// Job writes from a worker are fenced by the attempt number handed out at
// claim time, so an execution that lost its claim cannot overwrite the state
// of a newer one.
package store
