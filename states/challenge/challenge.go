// Package challenge is the innermost sign-in layer: it holds one provider
// challenge until the host supplies an answer, then verifies it.
package challenge

import (
	"maps"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/statemachine"
)

// State is one of NotStarted, WaitingForAnswer, Verifying or Verified.
type State interface {
	statemachine.State
	challengeState()
}

type NotStarted struct{}

// WaitingForAnswer holds a challenge until VerifyChallengeAnswer arrives.
type WaitingForAnswer struct {
	AttemptID string
	Challenge authenv.AuthChallenge
}

// Verifying means the answer has been sent to the provider.
type Verifying struct {
	AttemptID     string
	ChallengeName string
}

// Verified is terminal.
type Verified struct {
	AttemptID     string
	ChallengeName string
}

func (NotStarted) Type() string       { return "challenge.NotStarted" }
func (WaitingForAnswer) Type() string { return "challenge.WaitingForAnswer" }
func (Verifying) Type() string        { return "challenge.Verifying" }
func (Verified) Type() string         { return "challenge.Verified" }

func (NotStarted) challengeState()       {}
func (WaitingForAnswer) challengeState() {}
func (Verifying) challengeState()        {}
func (Verified) challengeState()         {}

// WaitForAnswer starts waiting on Challenge.
type WaitForAnswer struct {
	AttemptID string
	Challenge authenv.AuthChallenge
}

// VerifyChallengeAnswer carries the host's answer. Metadata is passed to
// the provider as client metadata.
type VerifyChallengeAnswer struct {
	AttemptID string
	Answer    string
	Metadata  map[string]string
}

// AnswerVerified is sent by the verify action once the provider accepted the answer.
type AnswerVerified struct {
	AttemptID string
}

func (WaitForAnswer) Type() string         { return "challenge.WaitForAnswer" }
func (VerifyChallengeAnswer) Type() string { return "challenge.VerifyChallengeAnswer" }
func (AnswerVerified) Type() string        { return "challenge.AnswerVerified" }

func (e WaitForAnswer) Attempt() string         { return e.AttemptID }
func (e VerifyChallengeAnswer) Attempt() string { return e.AttemptID }
func (e AnswerVerified) Attempt() string        { return e.AttemptID }

// VerifyFunc builds the action that submits answer for the stored challenge.
type VerifyFunc func(attemptID string, answer VerifyChallengeAnswer, stored authenv.AuthChallenge) authenv.Action

// Resolver resolves the challenge layer. Verify is supplied by the
// enclosing layer and decides how an answer is submitted.
type Resolver struct {
	Verify VerifyFunc
}

type resolution = statemachine.Resolution[State, *authenv.Environment]

func (Resolver) DefaultState() State { return NotStarted{} }

func (r Resolver) Resolve(old State, event statemachine.Event) resolution {
	switch s := old.(type) {
	case NotStarted:
		if ev, ok := event.(WaitForAnswer); ok {
			ch := ev.Challenge.Clone()
			return statemachine.Move[State, *authenv.Environment](WaitingForAnswer{AttemptID: ev.AttemptID, Challenge: ch})
		}
	case WaitingForAnswer:
		if ev, ok := event.(VerifyChallengeAnswer); ok {
			next := Verifying{AttemptID: s.AttemptID, ChallengeName: s.Challenge.ChallengeName}
			if r.Verify == nil {
				return statemachine.Move[State, *authenv.Environment](next)
			}
			ev.Metadata = maps.Clone(ev.Metadata)
			return statemachine.Move(State(next), r.Verify(s.AttemptID, ev, s.Challenge))
		}
	case Verifying:
		if _, ok := event.(AnswerVerified); ok {
			return statemachine.Move[State, *authenv.Environment](Verified{AttemptID: s.AttemptID, ChallengeName: s.ChallengeName})
		}
	}
	return statemachine.Stay[State, *authenv.Environment](old)
}
