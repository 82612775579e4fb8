// Package authenv holds what sign-in actions need at run time: the user
// pool configuration, the identity-provider client, the device store and
// optional analytics hooks. It also defines the data types and errors the
// state layers share.
package authenv

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/srpflow/device"
	"github.com/MrEthical07/srpflow/idp"
	"github.com/MrEthical07/srpflow/srp"
	"github.com/MrEthical07/srpflow/statemachine"
)

// Action is an action executed against an Environment.
type Action = statemachine.Action[*Environment]

// UserPoolConfig identifies the user pool and app client.
type UserPoolConfig struct {
	PoolID          string
	AppClientID     string
	AppClientSecret string
	Region          string
}

// Environment is shared by every action of one engine. Fields are set at
// construction and not changed afterwards.
type Environment struct {
	UserPool UserPoolConfig
	Client   idp.Client
	Devices  device.Store

	// ContextData returns the encoded advanced-security payload for a user.
	ContextData func(username string) string
	// AnalyticsEndpoint returns the analytics endpoint id.
	AnalyticsEndpoint func() string

	Logger    *slog.Logger
	NewHelper func(password string) (*srp.Helper, error)
	Now       func() time.Time
}

// Validate reports missing configuration.
func (e *Environment) Validate() error {
	if e == nil {
		return ErrNotConfigured
	}
	if strings.TrimSpace(e.UserPool.PoolID) == "" {
		return ErrMissingPoolID
	}
	if strings.TrimSpace(e.UserPool.AppClientID) == "" {
		return ErrMissingClientID
	}
	if e.Client == nil {
		return ErrNotConfigured
	}
	return nil
}

// Log returns the environment logger or a discarding one.
func (e *Environment) Log() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// Time returns the current time from the environment clock.
func (e *Environment) Time() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Helper creates the SRP helper for one attempt.
func (e *Environment) Helper(password string) (*srp.Helper, error) {
	if e.NewHelper != nil {
		return e.NewHelper(password)
	}
	return srp.NewHelper(password)
}

// SecretHash computes SECRET_HASH for username when the app client has a secret.
func (e *Environment) SecretHash(username string) (string, bool) {
	return SecretHash(username, e.UserPool.AppClientID, e.UserPool.AppClientSecret)
}

// DeviceKey returns the remembered device key for username, or "" when none
// is known. Store failures are logged and treated as no device.
func (e *Environment) DeviceKey(ctx context.Context, username string) string {
	if e.Devices == nil {
		return ""
	}
	md, err := e.Devices.Get(ctx, username)
	if err != nil {
		e.Log().Warn("device lookup failed", "username", username, "error", err)
		return ""
	}
	if md == nil {
		return ""
	}
	return md.DeviceKey
}

// AnalyticsMetadata returns the analytics block or nil.
func (e *Environment) AnalyticsMetadata() *idp.AnalyticsMetadata {
	if e.AnalyticsEndpoint == nil {
		return nil
	}
	id := e.AnalyticsEndpoint()
	if id == "" {
		return nil
	}
	return &idp.AnalyticsMetadata{AnalyticsEndpointID: id}
}

// UserContextData returns the context-data block for username or nil.
func (e *Environment) UserContextData(username string) *idp.UserContextData {
	if e.ContextData == nil {
		return nil
	}
	data := e.ContextData(username)
	if data == "" {
		return nil
	}
	return &idp.UserContextData{EncodedData: data}
}
