package authn

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/srp"
	"github.com/MrEthical07/srpflow/statemachine"
	"github.com/MrEthical07/srpflow/states/challenge"
	"github.com/MrEthical07/srpflow/states/signin"
	"github.com/MrEthical07/srpflow/states/srpauth"
)

type fakeActions struct {
	requested []SignInRequested
	others    int
}

func noop(name string) authenv.Action {
	return statemachine.NewAction[*authenv.Environment](name, nil)
}

func (f *fakeActions) InitiateSignIn(ev SignInRequested) authenv.Action {
	f.requested = append(f.requested, ev)
	return noop("initiate-sign-in")
}

func (f *fakeActions) StartSRPAuth(signin.InitiateSignInWithSRP) authenv.Action {
	f.others++
	return noop("start-srp")
}

func (f *fakeActions) InitResolveChallenge(signin.ReceivedChallenge) authenv.Action {
	f.others++
	return noop("init-challenge")
}

func (f *fakeActions) VerifyChallengeAuth(string, challenge.VerifyChallengeAnswer, authenv.AuthChallenge) authenv.Action {
	f.others++
	return noop("verify-challenge")
}

func (f *fakeActions) InitiateSRPAuth(srpauth.InitiateSRP) authenv.Action {
	f.others++
	return noop("initiate-srp")
}

func (f *fakeActions) VerifyPasswordSRP(string, *srp.Helper, challenge.VerifyChallengeAnswer, authenv.AuthChallenge) authenv.Action {
	f.others++
	return noop("verify-srp")
}

func newResolver() (Resolver, *fakeActions) {
	f := &fakeActions{}
	return Resolver{
		Actions: f,
		SignIn:  signin.Resolver{Actions: f, SRP: srpauth.Resolver{Actions: f}},
	}, f
}

func signingIn(attemptID string) SigningIn {
	return SigningIn{AttemptID: attemptID, Username: "alice", SignIn: signin.NotStarted{}}
}

func TestConfigureAndSignInLifecycle(t *testing.T) {
	r, f := newResolver()

	res := r.Resolve(r.DefaultState(), Configure{})
	if res.NewState != State(SignedOut{}) {
		t.Fatalf("expected SignedOut, got %+v", res.NewState)
	}

	res = r.Resolve(res.NewState, SignInRequested{AttemptID: "a1", Username: "alice", Password: "pw"})
	if !reflect.DeepEqual(res.NewState, State(signingIn("a1"))) {
		t.Fatalf("expected SigningIn, got %+v", res.NewState)
	}
	if len(res.Actions) != 1 || !strings.HasPrefix(res.Actions[0].ID(), "initiate-sign-in-") {
		t.Fatalf("unexpected actions %v", res.Actions)
	}
	if len(f.requested) != 1 || f.requested[0].Password != "pw" {
		t.Fatalf("unexpected requests %+v", f.requested)
	}

	data := authenv.SignedInData{UserID: "user-123", Username: "alice", SignedInAt: time.Unix(1700000000, 0), SignInMethod: authenv.MethodSRP}
	res = r.Resolve(res.NewState, SignInCompleted{AttemptID: "a1", Data: data})
	if !reflect.DeepEqual(res.NewState, State(SignedIn{Data: data})) {
		t.Fatalf("expected SignedIn, got %+v", res.NewState)
	}

	res = r.Resolve(res.NewState, SignOut{})
	if res.NewState != State(SignedOut{}) {
		t.Fatalf("expected SignedOut, got %+v", res.NewState)
	}
}

func TestSignInBeforeConfigureIsError(t *testing.T) {
	r, f := newResolver()
	res := r.Resolve(NotConfigured{}, SignInRequested{AttemptID: "a1"})
	st, ok := res.NewState.(Error)
	if !ok || !errors.Is(st.Err, authenv.ErrNotConfigured) {
		t.Fatalf("expected not-configured error, got %+v", res.NewState)
	}
	if len(f.requested) != 0 {
		t.Fatal("no sign-in may start before configuration")
	}

	res = r.Resolve(st, Configure{})
	if res.NewState != State(SignedOut{}) {
		t.Fatalf("expected Configure to recover, got %+v", res.NewState)
	}
}

func TestCancelAndErrorEndAttempt(t *testing.T) {
	r, _ := newResolver()
	cause := errors.New("bad credentials")

	res := r.Resolve(signingIn("a1"), CancelSignIn{AttemptID: "a1"})
	if want := (SignInCancelled{AttemptID: "a1"}); res.NewState != State(want) {
		t.Fatalf("expected %+v, got %+v", want, res.NewState)
	}

	res = r.Resolve(signingIn("a1"), ThrowAuthError{AttemptID: "a1", Cause: cause})
	st, ok := res.NewState.(SignInCancelled)
	if !ok || !errors.Is(st.Err, cause) {
		t.Fatalf("expected cancellation with cause, got %+v", res.NewState)
	}

	res = r.Resolve(st, SignInRequested{AttemptID: "a2", Username: "alice"})
	if !reflect.DeepEqual(res.NewState, State(signingIn("a2"))) {
		t.Fatalf("expected retry to start a2, got %+v", res.NewState)
	}
}

func TestStaleEventsAreDropped(t *testing.T) {
	r, f := newResolver()
	old := signingIn("a2")
	for _, ev := range []statemachine.Event{
		CancelSignIn{AttemptID: "a1"},
		ThrowAuthError{AttemptID: "a1", Cause: errors.New("late")},
		SignInCompleted{AttemptID: "a1"},
		signin.InitiateSignInWithSRP{AttemptID: "a1"},
	} {
		res := r.Resolve(old, ev)
		if !reflect.DeepEqual(res.NewState, State(old)) || len(res.Actions) != 0 {
			t.Fatalf("%s: stale event changed state to %+v", ev.Type(), res.NewState)
		}
	}
	if f.others != 0 {
		t.Fatalf("stale events spawned %d actions", f.others)
	}
}

func TestChildEventsAreDelegated(t *testing.T) {
	r, f := newResolver()
	res := r.Resolve(signingIn("a1"), signin.InitiateSignInWithSRP{AttemptID: "a1", Username: "alice", Password: "pw"})
	st, ok := res.NewState.(SigningIn)
	if !ok {
		t.Fatalf("expected SigningIn, got %T", res.NewState)
	}
	if _, ok := st.SignIn.(signin.SigningInWithSRP); !ok {
		t.Fatalf("expected child SigningInWithSRP, got %T", st.SignIn)
	}
	if len(res.Actions) != 1 || f.others != 1 {
		t.Fatalf("expected the child action to be lifted, got %d", len(res.Actions))
	}
}

func TestUnhandledEventsAreIdentity(t *testing.T) {
	r, _ := newResolver()
	cases := []struct {
		name  string
		state State
		event statemachine.Event
	}{
		{name: "sign out while signed out", state: SignedOut{}, event: SignOut{}},
		{name: "sign in while signed in", state: SignedIn{}, event: SignInRequested{AttemptID: "a3"}},
		{name: "second sign in", state: signingIn("a1"), event: SignInRequested{AttemptID: "a1"}},
		{name: "reconfigure", state: SignedOut{}, event: Configure{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Resolve(tc.state, tc.event)
			if !reflect.DeepEqual(res.NewState, tc.state) || len(res.Actions) != 0 {
				t.Fatalf("expected identity, got %+v with %d actions", res.NewState, len(res.Actions))
			}
		})
	}
}

func TestStale(t *testing.T) {
	if Stale("a1", SignOut{}) {
		t.Fatal("unscoped events are never stale")
	}
	if Stale("a1", CancelSignIn{}) {
		t.Fatal("empty attempt id is never stale")
	}
	if !Stale("a1", CancelSignIn{AttemptID: "a0"}) {
		t.Fatal("expected other attempt to be stale")
	}
	if Stale("a1", CancelSignIn{AttemptID: "a1"}) {
		t.Fatal("current attempt is not stale")
	}
}
