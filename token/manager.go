// Package token signs and verifies the compact HS256 tokens the engine
// issues: ID tokens proving an authenticated end user and custom tokens
// minted by privileged backends to assert a uid.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names carried by every engine-issued token.
const (
	// ClaimType distinguishes ID tokens from custom tokens.
	ClaimType = "tty"
	// TypeID is the ClaimType value of an ID token.
	TypeID = "ID"
	// TypeCustom is the ClaimType value of a custom token.
	TypeCustom = "CUSTOM"
)

// ErrInvalid is the single failure value for Decode. Malformed structure,
// bad signature, expired or future tokens, wrong issuer/audience, and
// mismatched required claims all collapse to it; the specific reason is
// never surfaced to callers.
var ErrInvalid = errors.New("invalid token")

// Config holds the signing secret and the fixed claim values stamped into
// every token.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration

	// Now substitutes the clock; nil means time.Now.
	Now func() time.Time
}

// Manager is a stateless signer/verifier. It is a pure function of its
// config, the clock, and its inputs.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a secret")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{config: cfg}, nil
}

// Sign merges the caller claims with the mandatory iss/aud/iat/exp fields
// and returns the signed three-part token. Mandatory fields win over caller
// values of the same name.
func (m *Manager) Sign(claims map[string]any) (string, error) {
	now := m.config.Now()

	payload := jwt.MapClaims{}
	for k, v := range claims {
		payload[k] = v
	}
	payload["iss"] = m.config.Issuer
	payload["aud"] = m.config.Audience
	payload["iat"] = jwt.NewNumericDate(now)
	payload["exp"] = jwt.NewNumericDate(now.Add(m.config.TTL))

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	return tok.SignedString(m.config.Secret)
}

// SignTyped signs claims with the given ClaimType value.
func (m *Manager) SignTyped(tokenType string, claims map[string]any) (string, error) {
	merged := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		merged[k] = v
	}
	merged[ClaimType] = tokenType
	return m.Sign(merged)
}

// Decode verifies the signature, issuer, audience, and validity window, then
// checks that every key in mustMatch is present and equal in the payload.
// Any failure returns (nil, ErrInvalid).
func (m *Manager) Decode(tokenStr string, mustMatch map[string]any) (map[string]any, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithTimeFunc(m.config.Now),
	)

	claims := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return m.config.Secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}

	for key, want := range mustMatch {
		got, ok := claims[key]
		if !ok || got != want {
			return nil, ErrInvalid
		}
	}

	return map[string]any(claims), nil
}

// Verify reports whether the token would decode successfully.
func (m *Manager) Verify(tokenStr string) bool {
	_, err := m.Decode(tokenStr, nil)
	return err == nil
}

// DecodeIDToken decodes a token and requires it to be an ID token.
func (m *Manager) DecodeIDToken(tokenStr string) (map[string]any, error) {
	return m.Decode(tokenStr, map[string]any{ClaimType: TypeID})
}

// DecodeCustomToken decodes a token and requires it to be a custom token.
func (m *Manager) DecodeCustomToken(tokenStr string) (map[string]any, error) {
	return m.Decode(tokenStr, map[string]any{ClaimType: TypeCustom})
}
