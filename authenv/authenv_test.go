package authenv

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrEthical07/srpflow/device"
	"github.com/MrEthical07/srpflow/idp"
	"github.com/MrEthical07/srpflow/srp"
)

type nopClient struct{}

func (nopClient) InitiateAuth(context.Context, *idp.InitiateAuthInput) (*idp.InitiateAuthOutput, error) {
	return nil, nil
}

func (nopClient) RespondToAuthChallenge(context.Context, *idp.RespondToAuthChallengeInput) (*idp.RespondToAuthChallengeOutput, error) {
	return nil, nil
}

func TestSecretHash(t *testing.T) {
	if _, ok := SecretHash("alice", "client", ""); ok {
		t.Fatal("expected no hash without secret")
	}
	// base64(HMAC-SHA256("secret", "aliceclient"))
	got, ok := SecretHash("alice", "client", "secret")
	if !ok {
		t.Fatal("expected hash with secret")
	}
	const want = "RTsve+FQ659UKyESgvLg9GYmZEL+QjzQsW/OjL77/b0="
	if got != want {
		t.Fatalf("unexpected secret hash %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		env  *Environment
		want error
	}{
		{name: "nil", env: nil, want: ErrNotConfigured},
		{name: "no pool", env: &Environment{UserPool: UserPoolConfig{AppClientID: "c"}, Client: nopClient{}}, want: ErrMissingPoolID},
		{name: "no client id", env: &Environment{UserPool: UserPoolConfig{PoolID: "r_p"}, Client: nopClient{}}, want: ErrMissingClientID},
		{name: "no client", env: &Environment{UserPool: UserPoolConfig{PoolID: "r_p", AppClientID: "c"}}, want: ErrNotConfigured},
		{name: "ok", env: &Environment{UserPool: UserPoolConfig{PoolID: "r_p", AppClientID: "c"}, Client: nopClient{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{fmt.Errorf("%w: SALT", ErrMissingParameter), KindProtocol},
		{srp.ErrInvalidServerPublic, KindProtocol},
		{fmt.Errorf("%w: boom", ErrService), KindCollaborator},
		{ErrMissingPoolID, KindConfiguration},
		{fmt.Errorf("%w: %w", ErrService, context.Canceled), KindCancelled},
		{ErrCancelled, KindCancelled},
		{errors.New("other"), KindUnknown},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestDeviceKeyLookup(t *testing.T) {
	store := device.NewMemoryStore()
	env := &Environment{Devices: store}
	ctx := context.Background()

	if got := env.DeviceKey(ctx, "alice"); got != "" {
		t.Fatalf("expected no device key, got %q", got)
	}
	if err := store.Put(ctx, "alice", &device.Metadata{DeviceKey: "dk"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if got := env.DeviceKey(ctx, "alice"); got != "dk" {
		t.Fatalf("expected device key dk, got %q", got)
	}
	if got := (&Environment{}).DeviceKey(ctx, "alice"); got != "" {
		t.Fatalf("expected empty key without store, got %q", got)
	}
}

func TestOptionalMetadata(t *testing.T) {
	env := &Environment{}
	if env.AnalyticsMetadata() != nil || env.UserContextData("a") != nil {
		t.Fatal("expected nil metadata without providers")
	}
	env.AnalyticsEndpoint = func() string { return "ep-1" }
	env.ContextData = func(u string) string { return "ctx-" + u }
	if md := env.AnalyticsMetadata(); md == nil || md.AnalyticsEndpointID != "ep-1" {
		t.Fatalf("unexpected analytics metadata %+v", md)
	}
	if cd := env.UserContextData("a"); cd == nil || cd.EncodedData != "ctx-a" {
		t.Fatalf("unexpected context data %+v", cd)
	}
}

func TestChallengeCloneIsIndependent(t *testing.T) {
	c := AuthChallenge{ChallengeName: "X", Parameters: map[string]string{"a": "1"}}
	d := c.Clone()
	d.Parameters["a"] = "2"
	if v, _ := c.Param("a"); v != "1" {
		t.Fatalf("clone mutated original: %q", v)
	}
}
