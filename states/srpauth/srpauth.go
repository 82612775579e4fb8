// Package srpauth is the SRP layer of the sign-in flow. It starts the
// USER_SRP_AUTH exchange and hands the PASSWORD_VERIFIER challenge to an
// embedded challenge layer, which waits for the verify signal before the
// password claim is computed and sent.
package srpauth

import (
	"maps"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/idp"
	"github.com/MrEthical07/srpflow/srp"
	"github.com/MrEthical07/srpflow/statemachine"
	"github.com/MrEthical07/srpflow/states/challenge"
)

// State is one of NotStarted, InitiatingSRPA, ResolvingPasswordVerifier or Error.
type State interface {
	statemachine.State
	srpState()
}

type NotStarted struct{}

// InitiatingSRPA waits for the provider's answer to SRP_A.
type InitiatingSRPA struct {
	AttemptID string
	Username  string
}

// ResolvingPasswordVerifier owns the attempt's SRP helper and the
// password-verifier challenge.
type ResolvingPasswordVerifier struct {
	AttemptID string
	Helper    *srp.Helper
	Metadata  map[string]string
	Challenge challenge.State
}

type Error struct {
	Err error
}

func (NotStarted) Type() string                { return "srp.NotStarted" }
func (InitiatingSRPA) Type() string            { return "srp.InitiatingSRPA" }
func (ResolvingPasswordVerifier) Type() string { return "srp.ResolvingPasswordVerifier" }
func (Error) Type() string                     { return "srp.Error" }

func (NotStarted) srpState()                {}
func (InitiatingSRPA) srpState()            {}
func (ResolvingPasswordVerifier) srpState() {}
func (Error) srpState()                     {}

// InitiateSRP starts the exchange for Username.
type InitiateSRP struct {
	AttemptID string
	Username  string
	Password  string
	Metadata  map[string]string
}

// RespondPasswordVerifier carries the PASSWORD_VERIFIER challenge and the
// helper that produced SRP_A.
type RespondPasswordVerifier struct {
	AttemptID string
	Params    map[string]string
	Metadata  map[string]string
	Session   string
	Helper    *srp.Helper
}

// ThrowAuthError reports a failed InitiateAuth.
type ThrowAuthError struct {
	AttemptID string
	Cause     error
}

// ThrowPasswordVerifierError reports a failed password claim.
type ThrowPasswordVerifierError struct {
	AttemptID string
	Cause     error
}

func (InitiateSRP) Type() string                { return "srp.InitiateSRP" }
func (RespondPasswordVerifier) Type() string    { return "srp.RespondPasswordVerifier" }
func (ThrowAuthError) Type() string             { return "srp.ThrowAuthError" }
func (ThrowPasswordVerifierError) Type() string { return "srp.ThrowPasswordVerifierError" }

func (e InitiateSRP) Attempt() string                { return e.AttemptID }
func (e RespondPasswordVerifier) Attempt() string    { return e.AttemptID }
func (e ThrowAuthError) Attempt() string             { return e.AttemptID }
func (e ThrowPasswordVerifierError) Attempt() string { return e.AttemptID }

func (e ThrowAuthError) Err() error             { return e.Cause }
func (e ThrowPasswordVerifierError) Err() error { return e.Cause }

// String keeps the password out of formatted output.
func (e InitiateSRP) String() string {
	return "srp.InitiateSRP{AttemptID:" + e.AttemptID + " Username:" + e.Username + "}"
}

// Actions builds the side effects of this layer.
type Actions interface {
	InitiateSRPAuth(ev InitiateSRP) authenv.Action
	VerifyPasswordSRP(attemptID string, helper *srp.Helper, answer challenge.VerifyChallengeAnswer, stored authenv.AuthChallenge) authenv.Action
}

// Resolver resolves the SRP layer.
type Resolver struct {
	Actions Actions
}

type resolution = statemachine.Resolution[State, *authenv.Environment]

func (Resolver) DefaultState() State { return NotStarted{} }

func (r Resolver) Resolve(old State, event statemachine.Event) resolution {
	switch s := old.(type) {
	case NotStarted:
		if ev, ok := event.(InitiateSRP); ok {
			next := InitiatingSRPA{AttemptID: ev.AttemptID, Username: ev.Username}
			return statemachine.Move(State(next), r.Actions.InitiateSRPAuth(ev))
		}

	case InitiatingSRPA:
		switch ev := event.(type) {
		case RespondPasswordVerifier:
			return r.resolvePasswordVerifier(s, ev)
		case ThrowAuthError:
			return statemachine.Move[State, *authenv.Environment](Error{Err: ev.Cause})
		}

	case ResolvingPasswordVerifier:
		if ev, ok := event.(ThrowPasswordVerifierError); ok {
			return statemachine.Move[State, *authenv.Environment](Error{Err: ev.Cause})
		}
		return statemachine.Delegate[State, challenge.State, *authenv.Environment](r.challengeResolver(s), s.Challenge, event, func(c challenge.State) State {
			s.Challenge = c
			return s
		})
	}
	return statemachine.Stay[State, *authenv.Environment](old)
}

// resolvePasswordVerifier seeds the challenge child so it is already
// waiting for the verify signal; nothing is sent to the provider yet.
func (r Resolver) resolvePasswordVerifier(s InitiatingSRPA, ev RespondPasswordVerifier) resolution {
	pv := authenv.AuthChallenge{
		ChallengeName: idp.ChallengePasswordVerifier,
		Parameters:    maps.Clone(ev.Params),
		Username:      s.Username,
		Session:       ev.Session,
	}
	next := ResolvingPasswordVerifier{
		AttemptID: s.AttemptID,
		Helper:    ev.Helper,
		Metadata:  maps.Clone(ev.Metadata),
	}
	child := r.challengeResolver(next)
	return statemachine.Delegate[State, challenge.State, *authenv.Environment](
		child,
		child.DefaultState(),
		challenge.WaitForAnswer{AttemptID: s.AttemptID, Challenge: pv},
		func(c challenge.State) State {
			next.Challenge = c
			return next
		},
	)
}

func (r Resolver) challengeResolver(s ResolvingPasswordVerifier) challenge.Resolver {
	return challenge.Resolver{
		Verify: func(attemptID string, answer challenge.VerifyChallengeAnswer, stored authenv.AuthChallenge) authenv.Action {
			if len(answer.Metadata) == 0 {
				answer.Metadata = s.Metadata
			}
			return r.Actions.VerifyPasswordSRP(attemptID, s.Helper, answer, stored)
		},
	}
}
