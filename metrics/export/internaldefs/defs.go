package internaldefs

import (
	"github.com/MrEthical07/srpflow"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   srpflow.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   srpflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: srpflow.MetricSignInStarted, Name: "srpflow_sign_in_started_total", Help: "Sign-in attempts started."},
	{ID: srpflow.MetricSignInSuccess, Name: "srpflow_sign_in_success_total", Help: "Sign-in attempts that reached SignedIn."},
	{ID: srpflow.MetricSignInCancelled, Name: "srpflow_sign_in_cancelled_total", Help: "Sign-in attempts cancelled by the host or by a failure."},
	{ID: srpflow.MetricChallengeIssued, Name: "srpflow_challenge_issued_total", Help: "Challenges handed to the host."},
	{ID: srpflow.MetricSignedOut, Name: "srpflow_signed_out_total", Help: "Sign-out operations."},
	{ID: srpflow.MetricEventsProcessed, Name: "srpflow_events_processed_total", Help: "Events resolved by the state machine."},
	{ID: srpflow.MetricIdentityResolutions, Name: "srpflow_identity_resolutions_total", Help: "Events that left the state unchanged."},
	{ID: srpflow.MetricErrorEvents, Name: "srpflow_error_events_total", Help: "Resolved events carrying an error."},
	{ID: srpflow.MetricStaleEventsDropped, Name: "srpflow_stale_events_dropped_total", Help: "Events addressed to a finished attempt."},
	{ID: srpflow.MetricSignInThrottled, Name: "srpflow_sign_in_throttled_total", Help: "Sign-ins refused by the failed-attempt throttle."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: srpflow.MetricSignInLatency, Name: "srpflow_sign_in_latency_seconds", Help: "Time from SignIn to the first outcome."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// engine's 50ms to 5s buckets.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix are HistogramBounds in a form usable in metric names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array; missing buckets are zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
