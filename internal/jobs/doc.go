// Package jobs runs the four media queues (metadata, thumbnail, transcode
// and subtitle) on top of the SQLite store.
//
// Each queue has its own bounded worker pool. Dispatch picks the lowest
// priority value first and falls back to submission order. A claim bumps the
// job's attempt counter, and every later write for that execution is fenced
// on it, so a reclaimed execution cannot overwrite a newer one. Failed
// attempts go back to pending with exponential backoff until the queue's
// attempt budget is spent. Errors classified as caller or configuration
// mistakes fail at once.
//
// Every terminal transition is published once to subscribers as a typed
// Outcome.
package jobs
