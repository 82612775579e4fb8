// Package signin sequences one sign-in attempt: the SRP exchange first,
// then any follow-up challenges the provider issues.
package signin

import (
	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/statemachine"
	"github.com/MrEthical07/srpflow/states/challenge"
	"github.com/MrEthical07/srpflow/states/srpauth"
)

// State is one of NotStarted, SigningInWithSRP, ResolvingChallenge or Error.
type State interface {
	statemachine.State
	signInState()
}

type NotStarted struct{}

type SigningInWithSRP struct {
	AttemptID string
	SRP       srpauth.State
}

type ResolvingChallenge struct {
	AttemptID string
	Challenge challenge.State
}

type Error struct {
	Err error
}

func (NotStarted) Type() string         { return "signin.NotStarted" }
func (SigningInWithSRP) Type() string   { return "signin.SigningInWithSRP" }
func (ResolvingChallenge) Type() string { return "signin.ResolvingChallenge" }
func (Error) Type() string              { return "signin.Error" }

func (NotStarted) signInState()         {}
func (SigningInWithSRP) signInState()   {}
func (ResolvingChallenge) signInState() {}
func (Error) signInState()              {}

// InitiateSignInWithSRP starts the SRP exchange.
type InitiateSignInWithSRP struct {
	AttemptID string
	Username  string
	Password  string
	Metadata  map[string]string
}

// ReceivedChallenge hands a follow-up challenge to the challenge layer.
type ReceivedChallenge struct {
	AttemptID string
	Challenge authenv.AuthChallenge
}

// ThrowError reports a failure outside the SRP exchange.
type ThrowError struct {
	AttemptID string
	Cause     error
}

func (InitiateSignInWithSRP) Type() string { return "signin.InitiateSignInWithSRP" }
func (ReceivedChallenge) Type() string     { return "signin.ReceivedChallenge" }
func (ThrowError) Type() string            { return "signin.ThrowError" }

func (e InitiateSignInWithSRP) Attempt() string { return e.AttemptID }
func (e ReceivedChallenge) Attempt() string     { return e.AttemptID }
func (e ThrowError) Attempt() string            { return e.AttemptID }

func (e ThrowError) Err() error { return e.Cause }

func (e InitiateSignInWithSRP) String() string {
	return "signin.InitiateSignInWithSRP{AttemptID:" + e.AttemptID + " Username:" + e.Username + "}"
}

// Actions builds the side effects of this layer.
type Actions interface {
	StartSRPAuth(ev InitiateSignInWithSRP) authenv.Action
	InitResolveChallenge(ev ReceivedChallenge) authenv.Action
	VerifyChallengeAuth(attemptID string, answer challenge.VerifyChallengeAnswer, stored authenv.AuthChallenge) authenv.Action
}

// Resolver resolves the sign-in layer. SRP resolves the embedded SRP layer.
type Resolver struct {
	Actions Actions
	SRP     srpauth.Resolver
}

type resolution = statemachine.Resolution[State, *authenv.Environment]

func (Resolver) DefaultState() State { return NotStarted{} }

func (r Resolver) Resolve(old State, event statemachine.Event) resolution {
	if ev, ok := event.(ThrowError); ok {
		switch old.(type) {
		case NotStarted, SigningInWithSRP, ResolvingChallenge:
			return statemachine.Move[State, *authenv.Environment](Error{Err: ev.Cause})
		}
		return statemachine.Stay[State, *authenv.Environment](old)
	}

	switch s := old.(type) {
	case NotStarted:
		if ev, ok := event.(InitiateSignInWithSRP); ok {
			next := SigningInWithSRP{AttemptID: ev.AttemptID, SRP: r.SRP.DefaultState()}
			return statemachine.Move(State(next), r.Actions.StartSRPAuth(ev))
		}

	case SigningInWithSRP:
		if ev, ok := event.(ReceivedChallenge); ok {
			return r.receiveChallenge(s.AttemptID, ev)
		}
		return statemachine.Delegate[State, srpauth.State, *authenv.Environment](r.SRP, s.SRP, event, func(c srpauth.State) State {
			s.SRP = c
			return s
		})

	case ResolvingChallenge:
		if ev, ok := event.(ReceivedChallenge); ok {
			return r.receiveChallenge(s.AttemptID, ev)
		}
		return statemachine.Delegate[State, challenge.State, *authenv.Environment](r.challengeResolver(), s.Challenge, event, func(c challenge.State) State {
			s.Challenge = c
			return s
		})
	}
	return statemachine.Stay[State, *authenv.Environment](old)
}

func (r Resolver) receiveChallenge(attemptID string, ev ReceivedChallenge) resolution {
	next := ResolvingChallenge{AttemptID: attemptID, Challenge: challenge.NotStarted{}}
	return statemachine.Move(State(next), r.Actions.InitResolveChallenge(ev))
}

func (r Resolver) challengeResolver() challenge.Resolver {
	return challenge.Resolver{Verify: r.Actions.VerifyChallengeAuth}
}
