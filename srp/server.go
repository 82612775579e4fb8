package srp

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// ErrSignatureMismatch is returned by ServerSession.Verify when the client
// proof does not match.
var ErrSignatureMismatch = errors.New("srp: password claim signature mismatch")

const (
	saltSize        = 16
	secretBlockSize = 64
)

// Verifier is the server-side record for one user: the salt and v = g^x.
// It never contains the password.
type Verifier struct {
	PoolName string
	UserID   string
	Salt     string
	Value    *big.Int
}

// NewVerifier derives a verifier for userID in poolID with a random salt.
func NewVerifier(poolID, userID, password string) (*Verifier, error) {
	return newVerifier(poolID, userID, password, rand.Reader)
}

func newVerifier(poolID, userID, password string, rnd io.Reader) (*Verifier, error) {
	_, poolName, ok := strings.Cut(poolID, "_")
	if !ok || poolName == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPoolID, poolID)
	}

	raw := make([]byte, saltSize)
	if _, err := io.ReadFull(rnd, raw); err != nil {
		return nil, fmt.Errorf("srp: generate salt: %w", err)
	}
	salt := new(big.Int).SetBytes(raw)

	x := privateKey(salt, poolName, userID, []byte(password))
	return &Verifier{
		PoolName: poolName,
		UserID:   userID,
		Salt:     salt.Text(16),
		Value:    new(big.Int).Exp(groupG, x, groupN),
	}, nil
}

// ServerSession is the server half of one exchange.
type ServerSession struct {
	verifier    *Verifier
	b           *big.Int
	pubB        *big.Int
	secretBlock []byte
}

// NewSession draws a fresh server key pair and secret block.
func (v *Verifier) NewSession() (*ServerSession, error) {
	return v.newSession(rand.Reader)
}

func (v *Verifier) newSession(rnd io.Reader) (*ServerSession, error) {
	block := make([]byte, secretBlockSize)
	if _, err := io.ReadFull(rnd, block); err != nil {
		return nil, fmt.Errorf("srp: generate secret block: %w", err)
	}

	kv := new(big.Int).Mul(groupK, v.Value)
	for {
		b, err := rand.Int(rnd, ephemeralMax)
		if err != nil {
			return nil, fmt.Errorf("srp: generate private value: %w", err)
		}
		// B = k*v + g^b mod N
		pubB := new(big.Int).Exp(groupG, b, groupN)
		pubB.Add(pubB, kv)
		pubB.Mod(pubB, groupN)
		if pubB.Sign() != 0 {
			return &ServerSession{verifier: v, b: b, pubB: pubB, secretBlock: block}, nil
		}
	}
}

// PublicB returns B as lowercase hex, the SRP_B challenge parameter.
func (s *ServerSession) PublicB() string { return s.pubB.Text(16) }

// SecretBlock returns the base64 SECRET_BLOCK challenge parameter.
func (s *ServerSession) SecretBlock() string {
	return base64.StdEncoding.EncodeToString(s.secretBlock)
}

// Salt returns the hex SALT challenge parameter.
func (s *ServerSession) Salt() string { return s.verifier.Salt }

// Verify checks the client proof for srpA at the given timestamp.
func (s *ServerSession) Verify(srpA, timestamp, signature string) error {
	pubA, ok := new(big.Int).SetString(srpA, 16)
	if !ok || pubA.Sign() < 0 {
		return fmt.Errorf("%w: client public value", ErrMalformedParameter)
	}
	if new(big.Int).Mod(pubA, groupN).Sign() == 0 {
		return fmt.Errorf("%w: client public value is zero modulo N", ErrMalformedParameter)
	}

	u := scrambler(pubA, s.pubB)
	if u.Sign() == 0 {
		return ErrInvalidScrambler
	}

	// S = (A * v^u) ^ b mod N
	base := new(big.Int).Exp(s.verifier.Value, u, groupN)
	base.Mul(base, pubA)
	base.Mod(base, groupN)
	secret := new(big.Int).Exp(base, s.b, groupN)

	key, err := deriveKey(secret, u)
	if err != nil {
		return err
	}
	want := sign(key, s.verifier.PoolName, s.verifier.UserID, s.secretBlock, timestamp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
