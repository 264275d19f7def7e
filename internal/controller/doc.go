// Package controller turns user intents into capture worker directives.
//
// A Controller is built fresh for each invocation and keeps no state of its
// own. Everything it needs to answer "are we recording?" lives in the state
// store, written by the capture worker. Directives are fire-and-forget: the
// controller never waits on the outcome of start or stop and reflects an
// optimistic indicator instead.
package controller
