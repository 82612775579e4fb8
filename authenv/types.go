package authenv

import (
	"maps"
	"time"
)

// AttemptScoped is implemented by events that belong to one sign-in
// attempt. An empty AttemptID means the event is not scoped.
type AttemptScoped interface {
	Attempt() string
}

// AuthChallenge is one challenge issued by the identity provider. Treat it
// as immutable; use Clone before changing Parameters.
type AuthChallenge struct {
	ChallengeName string
	Parameters    map[string]string
	Username      string
	Session       string
}

// Clone returns a copy with its own parameter map.
func (c AuthChallenge) Clone() AuthChallenge {
	c.Parameters = maps.Clone(c.Parameters)
	return c
}

// Param returns the named parameter.
func (c AuthChallenge) Param(key string) (string, bool) {
	v, ok := c.Parameters[key]
	return v, ok
}

// Tokens are the credentials issued on a completed sign-in.
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
	TokenType    string
}

// SignedInData describes the signed-in user.
type SignedInData struct {
	UserID       string
	Username     string
	SignedInAt   time.Time
	SignInMethod string
	Tokens       Tokens
}

// SignInMethod values.
const (
	MethodSRP = "USER_SRP_AUTH"
)
