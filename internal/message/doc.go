// Package message defines the closed set of messages exchanged between the
// controller, the capture worker, and the consent gate.
//
// Each channel has its own sealed interface (WorkerMessage, ControllerMessage,
// GateEvent) so handlers can switch exhaustively on concrete types. Every
// message states whether it is one-way or request/response; nothing relies on
// an implicit "keep the channel open" convention. Envelope is the JSON wire
// shape, and decoding an unrecognized tag yields ErrUnknownMessage rather than
// a panic.
package message
