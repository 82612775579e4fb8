package authenv

import (
	"context"
	"errors"

	"github.com/MrEthical07/srpflow/srp"
)

var (
	// ErrMissingParameter is returned when a required challenge parameter is absent.
	ErrMissingParameter = errors.New("missing challenge parameter")
	// ErrEmptyChallengeParameters is returned when the password verifier challenge has no parameters.
	ErrEmptyChallengeParameters = errors.New("challenge parameters are empty")
	// ErrUnsupportedChallenge is returned for challenges the flow cannot answer.
	ErrUnsupportedChallenge = errors.New("unsupported challenge")
	// ErrService wraps failures reported by the identity provider.
	ErrService = errors.New("identity provider request failed")
	// ErrNotConfigured is returned when sign-in is requested before configuration.
	ErrNotConfigured = errors.New("authentication not configured")
	// ErrMissingPoolID is returned when the user pool id is empty.
	ErrMissingPoolID = errors.New("user pool id is empty")
	// ErrMissingClientID is returned when the app client id is empty.
	ErrMissingClientID = errors.New("app client id is empty")
	// ErrCancelled is the cause recorded when the host cancels a sign-in.
	ErrCancelled = errors.New("sign-in cancelled")
)

// ErrorKind groups errors by who is at fault.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindProtocol is a malformed or unexpected provider response.
	KindProtocol
	// KindCollaborator is a failure reported by a collaborator call.
	KindCollaborator
	// KindConfiguration is a missing or invalid local configuration.
	KindConfiguration
	// KindCancelled is a host or context cancellation.
	KindCancelled
	// KindThrottled is a sign-in refused locally after repeated failures.
	KindThrottled
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindCollaborator:
		return "collaborator"
	case KindConfiguration:
		return "configuration"
	case KindCancelled:
		return "cancelled"
	case KindThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// Kind classifies err. Cancellation wins over the other kinds because a
// cancelled request usually surfaces as a collaborator error too.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrMissingPoolID), errors.Is(err, ErrMissingClientID),
		errors.Is(err, srp.ErrInvalidPoolID):
		return KindConfiguration
	case errors.Is(err, ErrService):
		return KindCollaborator
	case errors.Is(err, ErrMissingParameter), errors.Is(err, ErrEmptyChallengeParameters), errors.Is(err, ErrUnsupportedChallenge),
		errors.Is(err, srp.ErrInvalidServerPublic), errors.Is(err, srp.ErrInvalidScrambler),
		errors.Is(err, srp.ErrMalformedParameter), errors.Is(err, srp.ErrPoolParamsNotSet), errors.Is(err, srp.ErrHelperConsumed):
		return KindProtocol
	default:
		return KindUnknown
	}
}
