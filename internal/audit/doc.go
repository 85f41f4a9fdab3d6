// Package audit implements the buffered, append-only audit event sink.
// Logging never blocks on I/O: events accumulate in memory and are flushed
// to one newline-delimited JSON file per UTC day on a high-water mark, a
// periodic timer, and shutdown.
package audit
