// Package audit relays sign-in audit records to a host sink.
//
// # Components
//
//   - [Sink] is implemented by consumers (channel, JSON lines, no-op).
//   - [Dispatcher] is a buffered async relay that either drops or blocks
//     when the buffer is full.
//   - [Event] is one structured record: attempt, user, challenge, outcome.
//
// The package does not decide which records are emitted; the root Engine
// derives them from state transitions.
package audit
