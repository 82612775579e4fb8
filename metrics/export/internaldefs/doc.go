// Package internaldefs is the single table of exported metric names, help
// strings and latency bucket bounds. The Prometheus and OpenTelemetry
// exporters both read it, so a metric is renamed in one place.
package internaldefs
