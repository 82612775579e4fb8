// Package authn is the root of the sign-in state tree. It tracks whether
// the engine is configured, signed out, signing in or signed in, and drops
// results that belong to an attempt other than the current one.
package authn

import (
	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/statemachine"
	"github.com/MrEthical07/srpflow/states/signin"
)

// State is one of NotConfigured, SignedOut, SigningIn, SignedIn,
// SignInCancelled or Error.
type State interface {
	statemachine.State
	authnState()
}

type NotConfigured struct{}

type SignedOut struct{}

type SigningIn struct {
	AttemptID string
	Username  string
	SignIn    signin.State
}

type SignedIn struct {
	Data authenv.SignedInData
}

// SignInCancelled ends an attempt. Err is nil for a host cancellation
// with no recorded cause.
type SignInCancelled struct {
	AttemptID string
	Err       error
}

type Error struct {
	Err error
}

func (NotConfigured) Type() string   { return "authn.NotConfigured" }
func (SignedOut) Type() string       { return "authn.SignedOut" }
func (SigningIn) Type() string       { return "authn.SigningIn" }
func (SignedIn) Type() string        { return "authn.SignedIn" }
func (SignInCancelled) Type() string { return "authn.SignInCancelled" }
func (Error) Type() string           { return "authn.Error" }

func (NotConfigured) authnState()   {}
func (SignedOut) authnState()       {}
func (SigningIn) authnState()       {}
func (SignedIn) authnState()        {}
func (SignInCancelled) authnState() {}
func (Error) authnState()           {}

// Configure marks the engine configured.
type Configure struct{}

// SignInRequested starts attempt AttemptID.
type SignInRequested struct {
	AttemptID string
	Username  string
	Password  string
	Metadata  map[string]string
}

// SignInCompleted carries the signed-in user.
type SignInCompleted struct {
	AttemptID string
	Data      authenv.SignedInData
}

// CancelSignIn ends the current attempt. It is not an error event; the
// failure that caused it, if any, has already been reported.
type CancelSignIn struct {
	AttemptID string
	Cause     error
}

// ThrowAuthError reports a failure at the root level.
type ThrowAuthError struct {
	AttemptID string
	Cause     error
}

type SignOut struct{}

func (Configure) Type() string       { return "authn.Configure" }
func (SignInRequested) Type() string { return "authn.SignInRequested" }
func (SignInCompleted) Type() string { return "authn.SignInCompleted" }
func (CancelSignIn) Type() string    { return "authn.CancelSignIn" }
func (ThrowAuthError) Type() string  { return "authn.ThrowAuthError" }
func (SignOut) Type() string         { return "authn.SignOut" }

func (e SignInRequested) Attempt() string { return e.AttemptID }
func (e SignInCompleted) Attempt() string { return e.AttemptID }
func (e CancelSignIn) Attempt() string    { return e.AttemptID }
func (e ThrowAuthError) Attempt() string  { return e.AttemptID }

func (e ThrowAuthError) Err() error { return e.Cause }

func (e SignInRequested) String() string {
	return "authn.SignInRequested{AttemptID:" + e.AttemptID + " Username:" + e.Username + "}"
}

// Actions builds the side effects of this layer.
type Actions interface {
	InitiateSignIn(ev SignInRequested) authenv.Action
}

// Resolver resolves the root layer.
type Resolver struct {
	Actions Actions
	SignIn  signin.Resolver
}

type resolution = statemachine.Resolution[State, *authenv.Environment]

func (Resolver) DefaultState() State { return NotConfigured{} }

func (r Resolver) Resolve(old State, event statemachine.Event) resolution {
	switch s := old.(type) {
	case NotConfigured:
		switch event.(type) {
		case Configure:
			return next(SignedOut{})
		case SignInRequested:
			return next(Error{Err: authenv.ErrNotConfigured})
		}

	case Error:
		if _, ok := event.(Configure); ok {
			return next(SignedOut{})
		}

	case SignedOut:
		if ev, ok := event.(SignInRequested); ok {
			return r.startSignIn(ev)
		}

	case SignInCancelled:
		if ev, ok := event.(SignInRequested); ok {
			return r.startSignIn(ev)
		}

	case SigningIn:
		if Stale(s.AttemptID, event) {
			return statemachine.Stay[State, *authenv.Environment](old)
		}
		switch ev := event.(type) {
		case CancelSignIn:
			return next(SignInCancelled{AttemptID: s.AttemptID, Err: ev.Cause})
		case ThrowAuthError:
			return next(SignInCancelled{AttemptID: s.AttemptID, Err: ev.Cause})
		case SignInCompleted:
			return next(SignedIn{Data: ev.Data})
		}
		return statemachine.Delegate[State, signin.State, *authenv.Environment](r.SignIn, s.SignIn, event, func(c signin.State) State {
			s.SignIn = c
			return s
		})

	case SignedIn:
		if _, ok := event.(SignOut); ok {
			return next(SignedOut{})
		}
	}
	return statemachine.Stay[State, *authenv.Environment](old)
}

func (r Resolver) startSignIn(ev SignInRequested) resolution {
	st := SigningIn{AttemptID: ev.AttemptID, Username: ev.Username, SignIn: r.SignIn.DefaultState()}
	return statemachine.Move(State(st), r.Actions.InitiateSignIn(ev))
}

func next(s State) resolution {
	return statemachine.Move[State, *authenv.Environment](s)
}

// Stale reports whether event belongs to an attempt other than current.
// Events without an attempt id are never stale.
func Stale(current string, event statemachine.Event) bool {
	scoped, ok := event.(authenv.AttemptScoped)
	if !ok {
		return false
	}
	id := scoped.Attempt()
	return id != "" && id != current
}
