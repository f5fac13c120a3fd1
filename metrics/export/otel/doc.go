// Package otel binds multiauth counters to OpenTelemetry observable instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter and, per
// histogram, a bucket gauge carrying an "le" attribute plus a count gauge.
// One callback reads [multiauth.Engine.MetricsSnapshot] on each collection.
//
// Callers own the MeterProvider.
package otel
