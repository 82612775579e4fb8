// Package prometheus renders srpflow engine metrics in the Prometheus text
// exposition format.
//
// [New] wraps an [srpflow.Engine]; [Exporter.Handler] serves the output
// over HTTP. Sign-in latency is the srpflow_sign_in_latency_seconds
// histogram; srpflow_engine_state labels the current root state.
package prometheus
