package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/idp"
	"github.com/MrEthical07/srpflow/jwt"
	"github.com/MrEthical07/srpflow/srp"
)

const (
	testPool   = "us-east-1_abc123"
	testClient = "client-1"
)

func newTestProvider(t *testing.T, secret string, users ...User) *Provider {
	t.Helper()
	p, err := New(Config{PoolID: testPool, ClientID: testClient, ClientSecret: secret})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, u := range users {
		if err := p.AddUser(u); err != nil {
			t.Fatalf("AddUser failed: %v", err)
		}
	}
	return p
}

// passwordClaim runs InitiateAuth and builds the PASSWORD_VERIFIER response.
func passwordClaim(t *testing.T, p *Provider, username, password, secret string) *idp.RespondToAuthChallengeInput {
	t.Helper()
	ctx := context.Background()
	h, err := srp.NewHelper(password)
	if err != nil {
		t.Fatalf("NewHelper failed: %v", err)
	}
	params := map[string]string{idp.ParamUsername: username, idp.ParamSRPA: h.PublicA()}
	if hash, ok := authenv.SecretHash(username, testClient, secret); ok {
		params[idp.ParamSecretHash] = hash
	}
	out, err := p.InitiateAuth(ctx, &idp.InitiateAuthInput{AuthFlow: idp.FlowUserSRPAuth, ClientID: testClient, AuthParameters: params})
	if err != nil {
		t.Fatalf("InitiateAuth failed: %v", err)
	}
	if out.ChallengeName != idp.ChallengePasswordVerifier {
		t.Fatalf("unexpected challenge %q", out.ChallengeName)
	}

	cp := out.ChallengeParameters
	if err := h.SetUserPoolParams(cp[idp.ParamUserIDForSRP], testPool); err != nil {
		t.Fatalf("SetUserPoolParams failed: %v", err)
	}
	sig, err := h.Signature(cp[idp.ParamSalt], cp[idp.ParamSRPB], cp[idp.ParamSecretBlock])
	if err != nil {
		t.Fatalf("Signature failed: %v", err)
	}
	responses := map[string]string{
		idp.ParamUsername:                 username,
		idp.ParamPasswordClaimSecretBlock: cp[idp.ParamSecretBlock],
		idp.ParamPasswordClaimSignature:   sig,
		idp.ParamTimestamp:                h.DateString(),
	}
	if hash, ok := authenv.SecretHash(username, testClient, secret); ok {
		responses[idp.ParamSecretHash] = hash
	}
	return &idp.RespondToAuthChallengeInput{
		ChallengeName:      idp.ChallengePasswordVerifier,
		ClientID:           testClient,
		ChallengeResponses: responses,
		Session:            out.Session,
	}
}

func TestSRPExchangeIssuesTokens(t *testing.T) {
	p := newTestProvider(t, "s3cret", User{Username: "alice", Password: "pw", IssueDevice: true})

	out, err := p.RespondToAuthChallenge(context.Background(), passwordClaim(t, p, "alice", "pw", "s3cret"))
	if err != nil {
		t.Fatalf("RespondToAuthChallenge failed: %v", err)
	}
	res := out.AuthenticationResult
	if res == nil || res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("expected tokens, got %+v", out)
	}
	if res.NewDevice == nil || res.NewDevice.DeviceKey == "" {
		t.Fatal("expected new device metadata")
	}

	claims, err := p.Tokens().Parse(res.AccessToken, jwt.UseAccess)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	id, _ := p.UserID("alice")
	if claims.Subject != id || claims.PreferredUsername() != "alice" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestWrongPasswordIsRejected(t *testing.T) {
	p := newTestProvider(t, "", User{Username: "alice", Password: "pw"})
	_, err := p.RespondToAuthChallenge(context.Background(), passwordClaim(t, p, "alice", "nope", ""))
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestSessionIsSingleUse(t *testing.T) {
	p := newTestProvider(t, "", User{Username: "alice", Password: "pw"})
	in := passwordClaim(t, p, "alice", "pw", "")
	if _, err := p.RespondToAuthChallenge(context.Background(), in); err != nil {
		t.Fatalf("first respond failed: %v", err)
	}
	if _, err := p.RespondToAuthChallenge(context.Background(), in); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestMFAChallengeFollowsPasswordVerifier(t *testing.T) {
	p := newTestProvider(t, "", User{Username: "bob", Password: "pw", MFA: idp.ChallengeSoftwareTokenMFA, MFACode: "123456"})
	ctx := context.Background()

	out, err := p.RespondToAuthChallenge(ctx, passwordClaim(t, p, "bob", "pw", ""))
	if err != nil {
		t.Fatalf("password verifier failed: %v", err)
	}
	if out.ChallengeName != idp.ChallengeSoftwareTokenMFA || out.Session == "" {
		t.Fatalf("expected TOTP challenge, got %+v", out)
	}

	answer := func(code string) (*idp.RespondToAuthChallengeOutput, error) {
		return p.RespondToAuthChallenge(ctx, &idp.RespondToAuthChallengeInput{
			ChallengeName:      idp.ChallengeSoftwareTokenMFA,
			ClientID:           testClient,
			ChallengeResponses: map[string]string{idp.ParamUsername: "bob", idp.ParamSoftwareTokenMFACode: code},
			Session:            out.Session,
		})
	}
	if _, err := answer("000000"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
}

func TestSecretHashIsEnforced(t *testing.T) {
	p := newTestProvider(t, "s3cret", User{Username: "alice", Password: "pw"})
	_, err := p.InitiateAuth(context.Background(), &idp.InitiateAuthInput{
		AuthFlow:       idp.FlowUserSRPAuth,
		ClientID:       testClient,
		AuthParameters: map[string]string{idp.ParamUsername: "alice", idp.ParamSRPA: "abcd"},
	})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestFailNextInjectsOneFailure(t *testing.T) {
	p := newTestProvider(t, "", User{Username: "alice", Password: "pw"})
	boom := errors.New("network down")
	p.FailNext(OpInitiateAuth, boom)

	in := &idp.InitiateAuthInput{
		AuthFlow:       idp.FlowUserSRPAuth,
		ClientID:       testClient,
		AuthParameters: map[string]string{idp.ParamUsername: "alice", idp.ParamSRPA: "abcd"},
	}
	if _, err := p.InitiateAuth(context.Background(), in); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if _, err := p.InitiateAuth(context.Background(), in); err != nil {
		t.Fatalf("expected second call to succeed, got %v", err)
	}
	if got := p.Calls(OpInitiateAuth); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestUnknownUserAndDuplicateRegistration(t *testing.T) {
	p := newTestProvider(t, "", User{Username: "alice", Password: "pw"})
	if err := p.AddUser(User{Username: "alice", Password: "x"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	_, err := p.InitiateAuth(context.Background(), &idp.InitiateAuthInput{
		AuthFlow:       idp.FlowUserSRPAuth,
		ClientID:       testClient,
		AuthParameters: map[string]string{idp.ParamUsername: "mallory", idp.ParamSRPA: "abcd"},
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
