package srpflow

import (
	"io"

	internalaudit "github.com/MrEthical07/srpflow/internal/audit"
)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
// Emit runs on the dispatcher goroutine, never on the state machine loop.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// Audit event types.
const (
	AuditSignInStarted   = internalaudit.TypeSignInStarted
	AuditSignInChallenge = internalaudit.TypeSignInChallenge
	AuditSignInSucceeded = internalaudit.TypeSignInSucceeded
	AuditSignInCancelled = internalaudit.TypeSignInCancelled
	AuditSignedOut       = internalaudit.TypeSignedOut
	AuditSignInThrottled = internalaudit.TypeSignInThrottled
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
