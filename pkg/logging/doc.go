// Package logging provides a thin, subsystem-aware facade over log/slog.
//
// All authcore components log through this package so that output format
// and level filtering are controlled in one place. Secrets must never be
// logged verbatim; use TruncateSecret for tokens, verifiers and subject
// identifiers.
package logging
