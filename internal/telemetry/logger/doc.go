// Package logger configures log/slog for the engine and its tools.
//
//   - logger.go: handler selection, level variable, process default
//   - context.go: carrying a logger and the current slot in a context
//   - redact.go: masking of key material and bulky byte values
package logger
