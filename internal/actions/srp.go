package actions

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/idp"
	"github.com/MrEthical07/srpflow/srp"
	"github.com/MrEthical07/srpflow/statemachine"
	"github.com/MrEthical07/srpflow/states/authn"
	"github.com/MrEthical07/srpflow/states/challenge"
	"github.com/MrEthical07/srpflow/states/srpauth"
)

var errEmptyResponse = errors.New("empty response")

// InitiateSRPAuth sends SRP_A and forwards the PASSWORD_VERIFIER challenge.
func (Actions) InitiateSRPAuth(ev srpauth.InitiateSRP) authenv.Action {
	return newAction("InitiateSRPAuth", func(ctx context.Context, id string, d statemachine.EventDispatcher, env *authenv.Environment) {
		fail := func(helper *srp.Helper, err error) {
			if helper != nil {
				helper.Close()
			}
			env.Log().Warn("srp initiate failed", "action", id, "kind", authenv.Kind(err), "error", err)
			send(env, id, d, srpauth.ThrowAuthError{AttemptID: ev.AttemptID, Cause: err})
			send(env, id, d, authn.CancelSignIn{AttemptID: ev.AttemptID, Cause: err})
		}

		helper, err := env.Helper(ev.Password)
		if err != nil {
			fail(nil, err)
			return
		}

		params := map[string]string{
			idp.ParamUsername: ev.Username,
			idp.ParamSRPA:     helper.PublicA(),
		}
		if hash, ok := env.SecretHash(ev.Username); ok {
			params[idp.ParamSecretHash] = hash
		}
		deviceKey := env.DeviceKey(ctx, ev.Username)
		if deviceKey != "" {
			params[idp.ParamDeviceKey] = deviceKey
		}

		out, err := env.Client.InitiateAuth(ctx, &idp.InitiateAuthInput{
			AuthFlow:          idp.FlowUserSRPAuth,
			ClientID:          env.UserPool.AppClientID,
			AuthParameters:    params,
			ClientMetadata:    ev.Metadata,
			AnalyticsMetadata: env.AnalyticsMetadata(),
			UserContextData:   env.UserContextData(ev.Username),
		})
		if err != nil {
			fail(helper, fmt.Errorf("%w: initiate auth: %w", authenv.ErrService, err))
			return
		}
		if out == nil {
			fail(helper, fmt.Errorf("%w: initiate auth: %w", authenv.ErrService, errEmptyResponse))
			return
		}

		if out.ChallengeName != idp.ChallengePasswordVerifier {
			fail(helper, fmt.Errorf("%w: %q after USER_SRP_AUTH", authenv.ErrUnsupportedChallenge, out.ChallengeName))
			return
		}
		if len(out.ChallengeParameters) == 0 {
			fail(helper, authenv.ErrEmptyChallengeParameters)
			return
		}

		challengeParams := maps.Clone(out.ChallengeParameters)
		if deviceKey != "" {
			challengeParams[idp.ParamDeviceKey] = deviceKey
		}
		send(env, id, d, srpauth.RespondPasswordVerifier{
			AttemptID: ev.AttemptID,
			Params:    challengeParams,
			Metadata:  ev.Metadata,
			Session:   out.Session,
			Helper:    helper,
		})
	})
}

var passwordVerifierRequired = []string{
	idp.ParamSalt,
	idp.ParamSecretBlock,
	idp.ParamSRPB,
	idp.ParamUsername,
	idp.ParamUserIDForSRP,
}

// VerifyPasswordSRP computes the password claim with helper and answers the
// PASSWORD_VERIFIER challenge.
func (Actions) VerifyPasswordSRP(attemptID string, helper *srp.Helper, answer challenge.VerifyChallengeAnswer, stored authenv.AuthChallenge) authenv.Action {
	return newAction("VerifyPasswordSRP", func(ctx context.Context, id string, d statemachine.EventDispatcher, env *authenv.Environment) {
		fail := func(err error) {
			if helper != nil {
				helper.Close()
			}
			env.Log().Warn("password verifier failed", "action", id, "kind", authenv.Kind(err), "error", err)
			send(env, id, d, srpauth.ThrowPasswordVerifierError{AttemptID: attemptID, Cause: err})
			send(env, id, d, authn.CancelSignIn{AttemptID: attemptID, Cause: err})
		}

		p := stored.Parameters
		for _, key := range passwordVerifierRequired {
			if _, ok := p[key]; !ok {
				fail(fmt.Errorf("%w: %s", authenv.ErrMissingParameter, key))
				return
			}
		}
		if helper == nil {
			fail(fmt.Errorf("%w: no helper for attempt", srp.ErrHelperConsumed))
			return
		}

		username := p[idp.ParamUsername]
		secretBlock := p[idp.ParamSecretBlock]
		if err := helper.SetUserPoolParams(p[idp.ParamUserIDForSRP], env.UserPool.PoolID); err != nil {
			fail(err)
			return
		}
		signature, err := helper.Signature(p[idp.ParamSalt], p[idp.ParamSRPB], secretBlock)
		if err != nil {
			fail(err)
			return
		}

		responses := map[string]string{
			idp.ParamUsername:                 username,
			idp.ParamPasswordClaimSecretBlock: secretBlock,
			idp.ParamPasswordClaimSignature:   signature,
			idp.ParamTimestamp:                helper.DateString(),
		}
		if hash, ok := env.SecretHash(username); ok {
			responses[idp.ParamSecretHash] = hash
		}
		if deviceKey := p[idp.ParamDeviceKey]; deviceKey != "" {
			responses[idp.ParamDeviceKey] = deviceKey
		}

		out, err := env.Client.RespondToAuthChallenge(ctx, &idp.RespondToAuthChallengeInput{
			ChallengeName:      idp.ChallengePasswordVerifier,
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
