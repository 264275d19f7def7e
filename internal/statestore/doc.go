// Package statestore persists the small state tokens shared between the
// capture daemon and controller invocations.
//
// The store is a SQLite key/value table. The capture worker is the only
// writer of the capture token; controller processes write the UI flag and
// badge, and the consent gate writes the microphone grant record. Readers
// never need a round-trip to the daemon, which is what lets a freshly
// started controller answer "are we recording?" immediately.
package statestore
