// Package permission implements the microphone consent gate.
//
// The gate is a short-lived surface, separate from the capture worker, that
// asks the operator for microphone consent, records the outcome in the state
// store, and reports completion as message.GateEvent values. Grants persist
// across runs; the capture worker's microphone acquirer consults them through
// Grants.MicrophoneGranted.
package permission
