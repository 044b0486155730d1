// Package preflight provides readiness checks for the filesystem paths,
// external binaries and database that mediaflow depends on.
//
// The daemon runs RunAll before starting the job queues and refuses to start
// when a required check fails. The CLI "status" command prints the same
// results.
package preflight
