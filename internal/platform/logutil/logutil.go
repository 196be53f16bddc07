// Package logutil provides nil-safe logger helpers and redaction for
// credential material in network logs.
package logutil

import (
	"io"
	"log/slog"
)

// noop is a package-level discard logger, created once.
var noop = slog.New(slog.NewTextHandler(io.Discard, nil))

// Noop returns a logger that discards all output.
func Noop() *slog.Logger { return noop }

// NoopIfNil returns l when non-nil, otherwise a discard logger.
// Intended as the first line in constructors that accept *slog.Logger.
func NoopIfNil(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return noop
}

// Redact shortens a secret for logging. Tokens and client secrets never
// appear whole in logs unless allow_sensitive is set, in which case the
// caller passes the value through without Redact.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****"
}

// Secret picks the loggable form of a sensitive value.
func Secret(value string, allowSensitive bool) string {
	if allowSensitive {
		return value
	}
	return Redact(value)
}
