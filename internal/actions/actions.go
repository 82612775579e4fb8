package actions

import (
	"context"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/statemachine"
	"github.com/MrEthical07/srpflow/states/authn"
	"github.com/MrEthical07/srpflow/states/signin"
	"github.com/MrEthical07/srpflow/states/srpauth"
)

// Actions implements authn.Actions, signin.Actions and srpauth.Actions.
type Actions struct{}

var (
	_ authn.Actions   = Actions{}
	_ signin.Actions  = Actions{}
	_ srpauth.Actions = Actions{}
)

// NewResolver returns the full resolver tree wired to Actions.
func NewResolver() authn.Resolver {
	a := Actions{}
	return authn.Resolver{
		Actions: a,
		SignIn: signin.Resolver{
			Actions: a,
			SRP:     srpauth.Resolver{Actions: a},
		},
	}
}

type body func(ctx context.Context, id string, d statemachine.EventDispatcher, env *authenv.Environment)

func newAction(name string, fn body) authenv.Action {
	return statemachine.NewAction[*authenv.Environment](name, statemachine.ActionFunc[*authenv.Environment](fn))
}

func send(env *authenv.Environment, id string, d statemachine.EventDispatcher, ev statemachine.Event) {
	env.Log().Debug("sending event", "action", id, "event", ev.Type())
	d.Send(ev)
}

// InitiateSignIn checks configuration and starts the SRP flow.
func (Actions) InitiateSignIn(ev authn.SignInRequested) authenv.Action {
	return newAction("InitiateSignIn", func(ctx context.Context, id string, d statemachine.EventDispatcher, env *authenv.Environment) {
		if err := env.Validate(); err != nil {
			env.Log().Warn("sign-in rejected", "action", id, "error", err)
			send(env, id, d, signin.ThrowError{AttemptID: ev.AttemptID, Cause: err})
			send(env, id, d, authn.CancelSignIn{AttemptID: ev.AttemptID, Cause: err})
			return
		}
		send(env, id, d, signin.InitiateSignInWithSRP{
			AttemptID: ev.AttemptID,
			Username:  ev.Username,
			Password:  ev.Password,
			Metadata:  ev.Metadata,
		})
	})
}

// StartSRPAuth hands the attempt to the SRP layer.
func (Actions) StartSRPAuth(ev signin.InitiateSignInWithSRP) authenv.Action {
	return newAction("StartSRPAuth", func(ctx context.Context, id string, d statemachine.EventDispatcher, env *authenv.Environment) {
		send(env, id, d, srpauth.InitiateSRP{
			AttemptID: ev.AttemptID,
			Username:  ev.Username,
			Password:  ev.Password,
			Metadata:  ev.Metadata,
		})
	})
}
