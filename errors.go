package srpflow

import (
	"errors"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/internal/rate"
)

// Errors shared with the state layers and actions. Match them with errors.Is.
var (
	ErrMissingParameter         = authenv.ErrMissingParameter
	ErrEmptyChallengeParameters = authenv.ErrEmptyChallengeParameters
	ErrUnsupportedChallenge     = authenv.ErrUnsupportedChallenge
	ErrService                  = authenv.ErrService
	ErrNotConfigured            = authenv.ErrNotConfigured
	ErrMissingPoolID            = authenv.ErrMissingPoolID
	ErrMissingClientID          = authenv.ErrMissingClientID
	ErrCancelled                = authenv.ErrCancelled
)

var (
	// ErrSignInInProgress is returned when a sign-in is started while
	// another attempt is still running.
	ErrSignInInProgress = errors.New("sign-in already in progress")
	// ErrAlreadySignedIn is returned by SignIn when a user is signed in.
	ErrAlreadySignedIn = errors.New("already signed in")
	// ErrNoChallenge is returned by ConfirmSignIn when no challenge is waiting.
	ErrNoChallenge = errors.New("no challenge waiting for an answer")
	// ErrEngineClosed is returned after Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrSignInCancelled wraps the cause of an attempt that ended in
	// SignInCancelled.
	ErrSignInCancelled = errors.New("sign-in cancelled")
	// ErrBuilderUsed is returned by a second Build on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrClientRequired is returned by Build without an identity provider client.
	ErrClientRequired = errors.New("identity provider client required")
	// ErrSignInThrottled is returned by SignIn when the username has no
	// failed attempts left in the current throttle window.
	ErrSignInThrottled = errors.New("too many failed sign-in attempts")
	// ErrThrottleRequiresRedis is returned by Build when the throttle is
	// enabled without WithRedis.
	ErrThrottleRequiresRedis = errors.New("sign-in throttle requires a redis client")
)

// ErrorKind groups errors by who is at fault.
type ErrorKind = authenv.ErrorKind

const (
	KindUnknown       = authenv.KindUnknown
	KindProtocol      = authenv.KindProtocol
	KindCollaborator  = authenv.KindCollaborator
	KindConfiguration = authenv.KindConfiguration
	KindCancelled     = authenv.KindCancelled
	KindThrottled     = authenv.KindThrottled
)

// Kind classifies err.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrSignInThrottled):
		return KindThrottled
	case errors.Is(err, ErrThrottleRequiresRedis), errors.Is(err, ErrClientRequired):
		return KindConfiguration
	case errors.Is(err, rate.ErrRedisUnavailable):
		return KindCollaborator
	}
	return authenv.Kind(err)
}
