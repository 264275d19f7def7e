// Package capture implements the capture worker: the single owner of the
// recording session and its media pipeline.
//
// A Worker runs one event-loop goroutine. Directives from controllers,
// acquisition results, encoder fragments, and upload completions all arrive
// as events on that loop, so the Session is never touched concurrently.
// Slow work (acquiring sources, draining the encoder, releasing processes,
// uploading) runs on helper goroutines that post their result back as an
// event tagged with the session ID; results for a session that is no
// longer current are discarded.
//
// Every transition into or out of Recording is mirrored into the state
// store's capture token and announced to the controller, which is how a
// freshly started controller knows whether a recording is in progress.
package capture
