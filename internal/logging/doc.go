// Package logging assembles structured slog loggers and formatting helpers used
// across mia components.
//
// It owns the console and JSON handlers, centralizes level and output plumbing
// (including size-based rotation of the daemon log file), and exposes
// context-aware helpers so the capture loop can tag log lines with the active
// session and message kind. The package also provides a no-op logger for
// tests and wiring code that cannot fail.
package logging
