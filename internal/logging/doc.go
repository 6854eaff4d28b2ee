// Package logging builds slog loggers with syndicate's console and JSON
// handlers and standardized structured field keys.
package logging
