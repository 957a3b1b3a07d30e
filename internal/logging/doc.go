// Package logging wraps log/slog with the attribute helpers and handler
// selection used across tonearm. Components obtain scoped loggers through
// NewComponentLogger and attach per-directory context with WithDirectory.
package logging
