// Package memory is an in-process identity provider that speaks the real
// SRP exchange. It backs tests, the example program and the simulator CLI.
package memory

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/srpflow/authenv"
	"github.com/MrEthical07/srpflow/idp"
	"github.com/MrEthical07/srpflow/jwt"
	"github.com/MrEthical07/srpflow/srp"
	"github.com/google/uuid"
)

var (
	ErrNotAuthorized    = errors.New("memory: not authorized")
	ErrUserNotFound     = errors.New("memory: user not found")
	ErrInvalidSession   = errors.New("memory: invalid session")
	ErrInvalidParameter = errors.New("memory: invalid parameter")
	ErrCodeMismatch     = errors.New("memory: code mismatch")
	ErrUserExists       = errors.New("memory: user already exists")
)

// Operation names a Client method for failure injection and call counts.
type Operation string

const (
	OpInitiateAuth           Operation = "InitiateAuth"
	OpRespondToAuthChallenge Operation = "RespondToAuthChallenge"
)

// Config configures a Provider.
type Config struct {
	PoolID       string
	ClientID     string
	ClientSecret string
	// TokenKey signs issued tokens with HS256. A random key is used when empty.
	TokenKey []byte
	TokenTTL time.Duration
	// Latency delays every call; the call returns early when ctx is done.
	Latency time.Duration
}

// User is a registered account. MFA is empty or one of the MFA
// challenge names; MFACode is the code that answers it.
type User struct {
	Username           string
	Password           string
	MFA                string
	MFACode            string
	RequireNewPassword bool
	IssueDevice        bool
}

type account struct {
	User
	id       string
	verifier *srp.Verifier
}

type pending struct {
	account   *account
	step      string
	srpA      string
	server    *srp.ServerSession
	expiresAt time.Time
}

// Provider implements idp.Client.
type Provider struct {
	cfg    Config
	tokens *jwt.Manager
	now    func() time.Time

	mu       sync.Mutex
	users    map[string]*account
	sessions map[string]*pending
	failures map[Operation][]error
	calls    map[Operation]int
	requests []any
}

var _ idp.Client = (*Provider)(nil)

const sessionTTL = 3 * time.Minute

// New creates a Provider.
func New(cfg Config) (*Provider, error) {
	if _, _, ok := strings.Cut(cfg.PoolID, "_"); !ok {
		return nil, fmt.Errorf("%w: %q", srp.ErrInvalidPoolID, cfg.PoolID)
	}
	if cfg.ClientID == "" {
		return nil, errors.New("memory: client id is empty")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if len(cfg.TokenKey) == 0 {
		cfg.TokenKey = make([]byte, 32)
		if _, err := rand.Read(cfg.TokenKey); err != nil {
			return nil, fmt.Errorf("memory: token key: %w", err)
		}
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.TokenKey,
		Issuer:        "https://idp.local/" + cfg.PoolID,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{
		cfg:      cfg,
		tokens:   tokens,
		now:      time.Now,
		users:    make(map[string]*account),
		sessions: make(map[string]*pending),
		failures: make(map[Operation][]error),
		calls:    make(map[Operation]int),
	}, nil
}

// Tokens returns the manager that signs issued tokens, for verification.
func (p *Provider) Tokens() *jwt.Manager { return p.tokens }

// AddUser registers u and derives its SRP verifier.
func (p *Provider) AddUser(u User) error {
	if u.Username == "" || u.Password == "" {
		return fmt.Errorf("%w: username and password are required", ErrInvalidParameter)
	}
	if u.MFA != "" && !isMFA(u.MFA) {
		return fmt.Errorf("%w: mfa %q", ErrInvalidParameter, u.MFA)
	}

	id := uuid.NewString()
	verifier, err := srp.NewVerifier(p.cfg.PoolID, id, u.Password)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[u.Username]; ok {
		return fmt.Errorf("%w: %q", ErrUserExists, u.Username)
	}
	p.users[u.Username] = &account{User: u, id: id, verifier: verifier}
	return nil
}

// UserID returns the internal id of username, the USER_ID_FOR_SRP value.
func (p *Provider) UserID(username string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.users[username]
	if !ok {
		return "", false
	}
	return a.id, true
}

// FailNext makes the next call of op return err. Calls queue up.
func (p *Provider) FailNext(op Operation, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = append(p.failures[op], err)
}

// Calls returns how many times op was called.
func (p *Provider) Calls(op Operation) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// Requests returns every input received, in call order.
func (p *Provider) Requests() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.requests...)
}

func (p *Provider) enter(ctx context.Context, op Operation, in any) error {
	p.mu.Lock()
	p.calls[op]++
	p.requests = append(p.requests, in)
	var injected error
	if queue := p.failures[op]; len(queue) > 0 {
		injected = queue[0]
		p.failures[op] = queue[1:]
	}
	p.mu.Unlock()

	if p.cfg.Latency > 0 {
		timer := time.NewTimer(p.cfg.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return injected
}

// InitiateAuth implements idp.Client for the USER_SRP_AUTH flow.
func (p *Provider) InitiateAuth(ctx context.Context, in *idp.InitiateAuthInput) (*idp.InitiateAuthOutput, error) {
	if err := p.enter(ctx, OpInitiateAuth, in); err != nil {
		return nil, err
	}
	if in == nil || in.AuthFlow != idp.FlowUserSRPAuth {
		return nil, fmt.Errorf("%w: unsupported auth flow", ErrInvalidParameter)
	}
	if in.ClientID != p.cfg.ClientID {
		return nil, fmt.Errorf("%w: unknown client", ErrNotAuthorized)
	}

	username := in.AuthParameters[idp.ParamUsername]
	srpA := in.AuthParameters[idp.ParamSRPA]
	if username == "" || srpA == "" {
		return nil, fmt.Errorf("%w: USERNAME and SRP_A are required", ErrInvalidParameter)
	}
	if err := p.checkSecretHash(username, in.AuthParameters); err != nil {
		return nil, err
	}

	p.mu.Lock()
	acct, ok := p.users[username]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, username)
	}

	server, err := acct.verifier.NewSession()
	if err != nil {
		return nil, err
	}
	session := p.open(&pending{account: acct, step: idp.ChallengePasswordVerifier, srpA: srpA, server: server})

	return &idp.InitiateAuthOutput{
		ChallengeName: idp.ChallengePasswordVerifier,
		Session:       session,
		ChallengeParameters: map[string]string{
			idp.ParamSalt:         server.Salt(),
			idp.ParamSecretBlock:  server.SecretBlock(),
			idp.ParamSRPB:         server.PublicB(),
			idp.ParamUsername:     username,
			idp.ParamUserIDForSRP: acct.id,
		},
	}, nil
}

// RespondToAuthChallenge implements idp.Client.
func (p *Provider) RespondToAuthChallenge(ctx context.Context, in *idp.RespondToAuthChallengeInput) (*idp.RespondToAuthChallengeOutput, error) {
	if err := p.enter(ctx, OpRespondToAuthChallenge, in); err != nil {
		return nil, err
	}
	if in == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidParameter)
	}
	if in.ClientID != p.cfg.ClientID {
		return nil, fmt.Errorf("%w: unknown client", ErrNotAuthorized)
	}

	pend, err := p.take(in.Session)
	if err != nil {
		return nil, err
	}
	if in.ChallengeName != pend.step {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidParameter, pend.step, in.ChallengeName)
	}
	responses := in.ChallengeResponses
	if responses[idp.ParamUsername] != pend.account.Username {
		return nil, fmt.Errorf("%w: username mismatch", ErrNotAuthorized)
	}
	if err := p.checkSecretHash(pend.account.Username, responses); err != nil {
		return nil, err
	}

	acct := pend.account
	switch pend.step {
	case idp.ChallengePasswordVerifier:
		if responses[idp.ParamPasswordClaimSecretBlock] != pend.server.SecretBlock() {
			return nil, fmt.Errorf("%w: secret block mismatch", ErrNotAuthorized)
		}
		err := pend.server.Verify(pend.srpA, responses[idp.ParamTimestamp], responses[idp.ParamPasswordClaimSignature])
		if err != nil {
			return nil, fmt.Errorf("%w: incorrect username or password", ErrNotAuthorized)
		}
		if acct.RequireNewPassword {
			return p.challenge(acct, idp.ChallengeNewPasswordRequired), nil
		}
		if acct.MFA != "" {
			return p.challenge(acct, acct.MFA), nil
		}

	case idp.ChallengeNewPasswordRequired:
		newPassword := responses[idp.ParamNewPassword]
		if newPassword == "" {
			return nil, fmt.Errorf("%w: NEW_PASSWORD is required", ErrInvalidParameter)
		}
		if err := p.changePassword(acct, newPassword); err != nil {
			return nil, err
		}
		if acct.MFA != "" {
			return p.challenge(acct, acct.MFA), nil
		}

	default:
		key := mfaResponseKey(pend.step)
		if responses[key] != acct.MFACode {
			return nil, fmt.Errorf("%w: %s", ErrCodeMismatch, key)
		}
	}

	result, err := p.issue(acct)
	if err != nil {
		return nil, err
	}
	return &idp.RespondToAuthChallengeOutput{AuthenticationResult: result}, nil
}

func (p *Provider) challenge(acct *account, name string) *idp.RespondToAuthChallengeOutput {
	session := p.open(&pending{account: acct, step: name})
	params := map[string]string{idp.ParamUserIDForSRP: acct.id}
	if name == idp.ChallengeSMSMFA {
		params["CODE_DELIVERY_DELIVERY_MEDIUM"] = "SMS"
		params["CODE_DELIVERY_DESTINATION"] = "+*******0000"
	}
	return &idp.RespondToAuthChallengeOutput{
		ChallengeName:       name,
		ChallengeParameters: params,
		Session:             session,
	}
}

func (p *Provider) changePassword(acct *account, password string) error {
	verifier, err := srp.NewVerifier(p.cfg.PoolID, acct.id, password)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct.Password = password
	acct.RequireNewPassword = false
	acct.verifier = verifier
	return nil
}

func (p *Provider) issue(acct *account) (*idp.AuthenticationResult, error) {
	access, err := p.tokens.Issue(jwt.UseAccess, acct.id, acct.Username, p.cfg.ClientID)
	if err != nil {
		return nil, err
	}
	id, err := p.tokens.Issue(jwt.UseID, acct.id, acct.Username, p.cfg.ClientID)
	if err != nil {
		return nil, err
	}
	result := &idp.AuthenticationResult{
		AccessToken:  access,
		IDToken:      id,
		RefreshToken: uuid.NewString(),
		ExpiresIn:    int32(p.cfg.TokenTTL / time.Second),
		TokenType:    "Bearer",
	}
	if acct.IssueDevice {
		region, _, _ := strings.Cut(p.cfg.PoolID, "_")
		result.NewDevice = &idp.NewDeviceMetadata{
			DeviceKey:      region + "_" + uuid.NewString(),
			DeviceGroupKey: "-" + uuid.NewString()[:8],
		}
	}
	return result, nil
}

func (p *Provider) checkSecretHash(username string, params map[string]string) error {
	want, ok := authenv.SecretHash(username, p.cfg.ClientID, p.cfg.ClientSecret)
	if !ok {
		return nil
	}
	if params[idp.ParamSecretHash] != want {
		return fmt.Errorf("%w: secret hash mismatch", ErrNotAuthorized)
	}
	return nil
}

func (p *Provider) open(pend *pending) string {
	id := uuid.NewString()
	pend.expiresAt = p.now().Add(sessionTTL)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[id] = pend
	return id
}

// take removes the session so each one is answered at most once.
func (p *Provider) take(id string) (*pending, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pend, ok := p.sessions[id]
	if !ok {
		return nil, ErrInvalidSession
	}
	delete(p.sessions, id)
	if p.now().After(pend.expiresAt) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidSession)
	}
	return pend, nil
}

func isMFA(name string) bool {
	switch name {
	case idp.ChallengeSMSMFA, idp.ChallengeSoftwareTokenMFA, idp.ChallengeEmailOTP:
		return true
	}
	return false
}

func mfaResponseKey(name string) string {
	switch name {
	case idp.ChallengeSMSMFA:
		return idp.ParamSMSMFACode
	case idp.ChallengeSoftwareTokenMFA:
		return idp.ParamSoftwareTokenMFACode
	case idp.ChallengeEmailOTP:
		return idp.ParamEmailOTPCode
	}
	return idp.ParamAnswer
}
