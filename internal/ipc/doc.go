// Package ipc exposes the capture worker over JSON-RPC on a Unix socket and
// ships the matching client used by the CLI and the controller.
//
// Directives travel as message.Envelope values. Deliver is one-way: the client
// writes the request and returns without reading the reply. TestMicrophone and
// Status are request/response and honor the caller's context deadline.
package ipc
