// Package otel binds goSession engine metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and one
// Int64ObservableGauge per latency bucket. A single callback reads
// [goSession.Engine.MetricsSnapshot] on each collection cycle. Callers own the
// MeterProvider.
package otel
