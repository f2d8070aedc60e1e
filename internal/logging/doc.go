// Package logging assembles structured slog loggers for loopdeck.
//
// It owns the console and JSON handlers, rotates log files, and exposes
// context-aware helpers so stage code tags log lines with the source id,
// stage and worker pool it is running under. Compliance violations and other
// operator-facing events carry event_type, alert and error_hint fields so they
// can be filtered without parsing messages.
package logging
