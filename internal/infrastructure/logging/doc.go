// Package logging provides structured logging for SmartChill services.
//
// It wraps the standard library's log/slog with configuration-driven
// format and level selection, plus default attributes identifying the
// emitting process.
package logging
