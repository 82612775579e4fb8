package srp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidServerPublic = errors.New("srp: server public value is zero modulo N")
	ErrInvalidScrambler    = errors.New("srp: scrambling parameter is zero")
	ErrPoolParamsNotSet    = errors.New("srp: user pool parameters not set")
	ErrMalformedParameter  = errors.New("srp: malformed parameter")
	ErrInvalidPoolID       = errors.New("srp: invalid user pool id")
	ErrHelperConsumed      = errors.New("srp: helper already used")
)

// DateLayout is the timestamp format the identity provider expects in the
// password claim.
const DateLayout = "Mon Jan 2 15:04:05 UTC 2006"

// Helper holds the client side of one SRP exchange. It is created for a
// single sign-in attempt and produces at most one signature; the private
// exponent and password are zeroed once Signature has run.
type Helper struct {
	mu sync.Mutex

	password []byte
	a        *big.Int
	pubA     *big.Int

	poolName string
	userID   string
	date     string
	consumed bool

	now func() time.Time
}

// NewHelper draws a fresh ephemeral key pair for password.
func NewHelper(password string) (*Helper, error) {
	return newHelper(password, rand.Reader, time.Now)
}

func newHelper(password string, rnd io.Reader, now func() time.Time) (*Helper, error) {
	h := &Helper{
		password: []byte(password),
		now:      now,
	}
	for {
		a, err := rand.Int(rnd, ephemeralMax)
		if err != nil {
			return nil, fmt.Errorf("srp: generate private value: %w", err)
		}
		a.Mod(a, groupN)
		pubA := new(big.Int).Exp(groupG, a, groupN)
		if pubA.Sign() != 0 {
			h.a = a
			h.pubA = pubA
			return h, nil
		}
	}
}

// PublicA returns A as lowercase hex, the SRP_A auth parameter.
func (h *Helper) PublicA() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pubA.Text(16)
}

// SetUserPoolParams records the user identity used in the proof. The pool
// name is the part of poolID after the first underscore.
func (h *Helper) SetUserPoolParams(userID, poolID string) error {
	_, poolName, ok := strings.Cut(poolID, "_")
	if !ok || poolName == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPoolID, poolID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.userID = userID
	h.poolName = poolName
	return nil
}

// Signature computes the PASSWORD_CLAIM_SIGNATURE for the server challenge.
// salt and srpB are hex, secretBlock is base64. The timestamp used is
// captured here and returned by DateString.
func (h *Helper) Signature(salt, srpB, secretBlock string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.consumed {
		return "", ErrHelperConsumed
	}
	if h.poolName == "" || h.userID == "" {
		return "", ErrPoolParamsNotSet
	}

	saltInt, ok := new(big.Int).SetString(salt, 16)
	if !ok {
		return "", fmt.Errorf("%w: salt", ErrMalformedParameter)
	}
	pubB, ok := new(big.Int).SetString(srpB, 16)
	if !ok || pubB.Sign() < 0 {
		return "", fmt.Errorf("%w: server public value", ErrMalformedParameter)
	}
	block, err := base64.StdEncoding.DecodeString(secretBlock)
	if err != nil {
		return "", fmt.Errorf("%w: secret block", ErrMalformedParameter)
	}
	if new(big.Int).Mod(pubB, groupN).Sign() == 0 {
		return "", ErrInvalidServerPublic
	}

	u := scrambler(h.pubA, pubB)
	if u.Sign() == 0 {
		return "", ErrInvalidScrambler
	}

	x := privateKey(saltInt, h.poolName, h.userID, h.password)

	// S = (B - k*g^x) ^ (a + u*x) mod N
	base := new(big.Int).Exp(groupG, x, groupN)
	base.Mul(base, groupK)
	base.Sub(pubB, base)
	base.Mod(base, groupN)
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, h.a)
	secret := new(big.Int).Exp(base, exp, groupN)

	key, err := deriveKey(secret, u)
	if err != nil {
		return "", err
	}

	h.date = h.now().UTC().Format(DateLayout)
	sig := sign(key, h.poolName, h.userID, block, h.date)

	h.consumed = true
	h.wipe()
	return sig, nil
}

// DateString returns the timestamp used by the last Signature call, or the
// current time when Signature has not run.
func (h *Helper) DateString() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.date != "" {
		return h.date
	}
	return h.now().UTC().Format(DateLayout)
}

// Close zeroes secret material without producing a signature. It is safe to
// call more than once.
func (h *Helper) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consumed = true
	h.wipe()
}

func (h *Helper) wipe() {
	for i := range h.password {
		h.password[i] = 0
	}
	h.password = nil
	if h.a != nil {
		h.a.SetInt64(0)
	}
}

// String keeps secret material out of formatted output.
func (h *Helper) String() string { return "srp.Helper{redacted}" }

// GoString implements fmt.GoStringer.
func (h *Helper) GoString() string { return h.String() }

// LogValue implements slog.LogValuer.
func (h *Helper) LogValue() slog.Value { return slog.StringValue(h.String()) }

func deriveKey(secret, u *big.Int) ([]byte, error) {
	r := hkdf.New(sha256.New, signedBytes(secret), signedBytes(u), []byte(derivedKeyInfo))
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("srp: derive key: %w", err)
	}
	return key, nil
}

func sign(key []byte, poolName, userID string, secretBlock []byte, date string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(poolName))
	mac.Write([]byte(userID))
	mac.Write(secretBlock)
	mac.Write([]byte(date))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
