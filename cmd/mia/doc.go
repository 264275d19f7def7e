// Command mia records meeting audio from a browser tab mixed with the local
// microphone.
//
// The daemon subcommand hosts the capture worker. Every other subcommand is
// a short-lived controller: it loads configuration, acts on one user intent
// (start, stop, sync, status) and exits. Controller processes keep no state
// of their own; the recording flag lives in the state store.
package main
