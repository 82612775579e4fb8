// Package statemachine is a small, generic engine for hierarchical,
// event-driven state machines.
//
// A machine is described by a [Resolver], a pure function from the current
// state and an incoming [Event] to a [Resolution]: the next state plus the
// [Action] values that should run because of the transition. The
// [StateMachine] dispatcher owns the current state, serializes event
// delivery through an unbounded FIFO queue, notifies subscribers after every
// committed resolution and then launches the returned actions, each in its
// own goroutine. Actions report back exclusively by sending new events.
//
// # Architecture boundaries
//
// Resolvers never perform I/O and never suspend; all side effects live in
// actions, which receive the environment value the machine was built with.
// Composite layers embed their child state as a field and use [Delegate] to
// forward events they do not consume themselves.
//
// # Invariants
//
//   - At most one Resolve call runs at a time per machine.
//   - An action is started only after its spawning transition has been
//     committed and every listener has observed it.
//   - Every dequeued event yields exactly one committed resolution,
//     possibly the identity. Panics in resolvers and actions are recovered
//     and, when configured with [WithErrorEvent], fed back as error events.
package statemachine
