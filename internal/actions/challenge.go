package actions

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/device"
	"github.com/MrEthical07/srpflow/idp"
	"github.com/MrEthical07/srpflow/jwt"
	"github.com/MrEthical07/srpflow/statemachine"
	"github.com/MrEthical07/srpflow/states/authn"
	"github.com/MrEthical07/srpflow/states/challenge"
	"github.com/MrEthical07/srpflow/states/signin"
)

// responseKeys maps follow-up challenges to the response key of their answer.
var responseKeys = map[string]string{
	idp.ChallengeSMSMFA:              idp.ParamSMSMFACode,
	idp.ChallengeSoftwareTokenMFA:    idp.ParamSoftwareTokenMFACode,
	idp.ChallengeEmailOTP:            idp.ParamEmailOTPCode,
	idp.ChallengeNewPasswordRequired: idp.ParamNewPassword,
	idp.ChallengeSelectMFAType:       idp.ParamAnswer,
	idp.ChallengeCustom:              idp.ParamAnswer,
}

// SupportedChallenge reports whether name can be answered through the
// challenge layer.
func SupportedChallenge(name string) bool {
	_, ok := responseKeys[name]
	return ok
}

// InitResolveChallenge puts the challenge layer into WaitingForAnswer.
func (Actions) InitResolveChallenge(ev signin.ReceivedChallenge) authenv.Action {
	return newAction("InitResolveChallenge", func(ctx context.Context, id string, d statemachine.EventDispatcher, env *authenv.Environment) {
		send(env, id, d, challenge.WaitForAnswer{AttemptID: ev.AttemptID, Challenge: ev.Challenge})
	})
}

// VerifyChallengeAuth answers a follow-up challenge.
func (Actions) VerifyChallengeAuth(attemptID string, answer challenge.VerifyChallengeAnswer, stored authenv.AuthChallenge) authenv.Action {
	return newAction("VerifyChallengeAuth", func(ctx context.Context, id string, d statemachine.EventDispatcher, env *authenv.Environment) {
		fail := func(err error) {
			env.Log().Warn("challenge verification failed", "action", id, "challenge", stored.ChallengeName, "kind", authenv.Kind(err), "error", err)
			send(env, id, d, signin.ThrowError{AttemptID: attemptID, Cause: err})
			send(env, id, d, authn.CancelSignIn{AttemptID: attemptID, Cause: err})
		}

		key, ok := responseKeys[stored.ChallengeName]
		if !ok {
			fail(fmt.Errorf("%w: %q", authenv.ErrUnsupportedChallenge, stored.ChallengeName))
			return
		}

		username := stored.Username
		responses := map[string]string{
			idp.ParamUsername: username,
			key:               answer.Answer,
		}
		if hash, ok := env.SecretHash(username); ok {
			responses[idp.ParamSecretHash] = hash
		}
		if deviceKey := env.DeviceKey(ctx, username); deviceKey != "" {
			responses[idp.ParamDeviceKey] = deviceKey
		}

		out, err := env.Client.RespondToAuthChallenge(ctx, &idp.RespondToAuthChallengeInput{
			ChallengeName:      stored.ChallengeName,
			ClientID:           env.UserPool.AppClientID,
			ChallengeResponses: responses,
			ClientMetadata:     answer.Metadata,
			Session:            stored.Session,
			AnalyticsMetadata:  env.AnalyticsMetadata(),
			UserContextData:    env.UserContextData(username),
		})
		if err != nil {
			fail(fmt.Errorf("%w: respond to auth challenge: %w", authenv.ErrService, err))
			return
		}
		if out == nil {
			fail(fmt.Errorf("%w: respond to auth challenge: %w", authenv.ErrService, errEmptyResponse))
			return
		}

		next, err := EvaluateNextStep(ctx, env, attemptID, username, NextStep{
			ChallengeName:        out.ChallengeName,
			ChallengeParameters:  out.ChallengeParameters,
			Session:              out.Session,
			AuthenticationResult: out.AuthenticationResult,
		})
		if err != nil {
			fail(err)
			return
		}
		send(env, id, d, challenge.AnswerVerified{AttemptID: attemptID})
		send(env, id, d, next)
	})
}

// NextStep is the part of a provider response that decides what happens next.
type NextStep struct {
	ChallengeName        string
	ChallengeParameters  map[string]string
	Session              string
	AuthenticationResult *idp.AuthenticationResult
}

// EvaluateNextStep turns a provider response into the event that advances
// the attempt: SignInCompleted when tokens were issued, ReceivedChallenge
// for a supported follow-up challenge.
func EvaluateNextStep(ctx context.Context, env *authenv.Environment, attemptID, username string, step NextStep) (statemachine.Event, error) {
	if res := step.AuthenticationResult; res != nil {
		data := signedInData(env, username, res)
		rememberDevice(ctx, env, data.Username, res.NewDevice)
		return authn.SignInCompleted{AttemptID: attemptID, Data: data}, nil
	}

	if step.ChallengeName == "" {
		return nil, fmt.Errorf("%w: response has neither tokens nor challenge", authenv.ErrUnsupportedChallenge)
	}
	if !SupportedChallenge(step.ChallengeName) {
		return nil, fmt.Errorf("%w: %q", authenv.ErrUnsupportedChallenge, step.ChallengeName)
	}
	return signin.ReceivedChallenge{
		AttemptID: attemptID,
		Challenge: authenv.AuthChallenge{
			ChallengeName: step.ChallengeName,
			Parameters:    maps.Clone(step.ChallengeParameters),
			Username:      username,
			Session:       step.Session,
		},
	}, nil
}

func signedInData(env *authenv.Environment, username string, res *idp.AuthenticationResult) authenv.SignedInData {
	data := authenv.SignedInData{
		Username:     username,
		SignedInAt:   env.Time(),
		SignInMethod: authenv.MethodSRP,
		Tokens: authenv.Tokens{
			AccessToken:  res.AccessToken,
			IDToken:      res.IDToken,
			RefreshToken: res.RefreshToken,
			ExpiresIn:    time.Duration(res.ExpiresIn) * time.Second,
			TokenType:    res.TokenType,
		},
	}

	claims, err := jwt.Decode(res.AccessToken)
	if err != nil {
		env.Log().Warn("access token claims unreadable", "username", username, "error", err)
		return data
	}
	data.UserID = claims.Subject
	if name := claims.PreferredUsername(); name != "" {
		data.Username = name
	}
	return data
}

func rememberDevice(ctx context.Context, env *authenv.Environment, username string, md *idp.NewDeviceMetadata) {
	if md == nil || env.Devices == nil || md.DeviceKey == "" {
		return
	}
	err := env.Devices.Put(ctx, username, &device.Metadata{
		DeviceKey:      md.DeviceKey,
		DeviceGroupKey: md.DeviceGroupKey,
		CreatedAt:      env.Time(),
	})
	if err != nil {
		env.Log().Warn("device metadata not stored", "username", username, "error", err)
	}
}
