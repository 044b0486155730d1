// Command mediaflow is the operator CLI and daemon entry point.
//
// `mediaflow daemon` runs the job queues in the foreground. Every other
// command opens the same SQLite database directly: uploads and retries are
// persisted and picked up by the running daemon on its next poll, while the
// query commands read current state. Pass --json to any query for machine
// readable output.
package main
