// Package daemon hosts the capture worker in the long-running mia process.
//
// It enforces a single instance with a flock-held lock file, records the pid,
// and owns the worker's lifecycle: Start runs the event loop, Stop drains any
// active recording to the sink before cancelling it. Transport lives in
// internal/ipc; process startup lives in internal/daemonrun.
package daemon
