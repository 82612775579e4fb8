// Package otel publishes srpflow engine metrics through an OpenTelemetry
// meter.
//
// [New] registers one observable counter per engine counter, cumulative
// gauges for the sign-in latency buckets, the audit drop counter and a
// gauge naming the engine's current state. Every collection reads a fresh
// [srpflow.Engine.MetricsSnapshot].
package otel
