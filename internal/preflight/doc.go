// Package preflight provides readiness checks for the directories, binaries
// and services mia depends on.
//
// The daemon runs RunAll at startup and logs failures without refusing to
// start; "mia status" shows the same results.
package preflight
