// Package logger provides structured logging functionality for the application.
//
// It builds a log/slog handler from configuration and carries request and
// worker scoped loggers through context.Context, so downstream code logs
// with the correlation attributes attached upstream.
package logger
