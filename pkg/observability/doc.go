// Package observability carries the ambient runtime concerns of gatehouse:
// structured logging on log/slog, Prometheus metrics, OpenTelemetry tracing,
// health probes, panic recovery and graceful shutdown.
//
// Every constructor that accepts a *Logger tolerates nil and falls back to a
// discarding logger, and every Metrics recorder is safe on a nil receiver, so
// packages can be used in tests without wiring the full stack.
package observability
