package statemachine

import (
	"context"

	"github.com/google/uuid"
)

// Event is an immutable message delivered to a machine.
type Event interface {
	Type() string
}

// ErrorEvent is an Event that reports a failure.
type ErrorEvent interface {
	Event
	Err() error
}

// State is an immutable, named condition of one layer.
type State interface {
	Type() string
}

// EventDispatcher accepts events for asynchronous processing.
type EventDispatcher interface {
	Send(Event)
}

// Action is a unit of asynchronous work returned by a resolver. It must
// terminate by sending its follow-up events through the dispatcher and must
// not touch machine state directly.
type Action[Env any] interface {
	ID() string
	Execute(ctx context.Context, dispatcher EventDispatcher, env Env)
}

// ActionFunc is the body of an action built with NewAction.
type ActionFunc[Env any] func(ctx context.Context, id string, dispatcher EventDispatcher, env Env)

type basicAction[Env any] struct {
	id string
	fn ActionFunc[Env]
}

// NewAction wraps fn into an Action whose ID is name followed by a random suffix.
func NewAction[Env any](name string, fn ActionFunc[Env]) Action[Env] {
	return basicAction[Env]{
		id: name + "-" + uuid.NewString()[:8],
		fn: fn,
	}
}

func (a basicAction[Env]) ID() string { return a.id }

func (a basicAction[Env]) Execute(ctx context.Context, dispatcher EventDispatcher, env Env) {
	if a.fn == nil {
		return
	}
	a.fn(ctx, a.id, dispatcher, env)
}

// Resolution is the outcome of resolving one event.
type Resolution[S State, Env any] struct {
	NewState S
	Actions  []Action[Env]
}

// Stay is the identity resolution: same state, no actions.
func Stay[S State, Env any](s S) Resolution[S, Env] {
	return Resolution[S, Env]{NewState: s}
}

// Move returns a resolution to next running the given actions.
func Move[S State, Env any](next S, actions ...Action[Env]) Resolution[S, Env] {
	return Resolution[S, Env]{NewState: next, Actions: actions}
}

// Resolver decides transitions for one layer. Resolve must be total and
// side-effect free; unknown (state, event) pairs return Stay(old).
type Resolver[S State, Env any] interface {
	DefaultState() S
	Resolve(old S, event Event) Resolution[S, Env]
}

// Delegate resolves event against a child layer and wraps the resulting
// child state into the parent through wrap. Child actions are lifted
// unchanged.
func Delegate[P State, C State, Env any](
	child Resolver[C, Env],
	old C,
	event Event,
	wrap func(C) P,
) Resolution[P, Env] {
	res := child.Resolve(old, event)
	return Resolution[P, Env]{
		NewState: wrap(res.NewState),
		Actions:  res.Actions,
	}
}
