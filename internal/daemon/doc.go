// Package daemon runs the long-lived mediaflow process.
//
// It takes an flock on the data directory so only one instance processes the
// queues, runs the preflight checks, then starts the job manager, the cron
// driven housekeeping tasks and the ops HTTP endpoint (/healthz, /status,
// /metrics). Stop tears these down in reverse order; jobs interrupted by a
// stop are picked up again on the next Start.
package daemon
