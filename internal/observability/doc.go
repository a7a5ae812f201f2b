// Package observability holds the Prometheus metrics, OpenTelemetry
// tracing setup and gin middlewares shared by the schemata service.
//
// Metrics are package-level collectors registered once on the default
// registry. Record* helpers register lazily, so packages can record
// without an explicit setup call; `serve` exposes them on /metrics.
//
// Tracing is opt-in. Setup returns a no-op shutdown when no OTLP endpoint
// is configured, and the global no-op tracer provider stays in place.
package observability
