package token

import (
	"strings"
	"testing"
	"time"
)

func testConfig(now func() time.Time) Config {
	return Config{
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Issuer:   "https://issuer.test",
		Audience: "https://issuer.test",
		TTL:      time.Hour,
		Now:      now,
	}
}

func newTestManager(t *testing.T, now func() time.Time) *Manager {
	t.Helper()
	m, err := NewManager(testConfig(now))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty secret", func(c *Config) { c.Secret = nil }},
		{"empty issuer", func(c *Config) { c.Issuer = "" }},
		{"empty audience", func(c *Config) { c.Audience = "" }},
		{"zero ttl", func(c *Config) { c.TTL = 0 }},
		{"negative leeway", func(c *Config) { c.Leeway = -time.Second }},
		{"huge leeway", func(c *Config) { c.Leeway = 5 * time.Minute }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(nil)
			tc.mutate(&cfg)
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestSignAndDecodeRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	signed, err := m.Sign(map[string]any{"uid": "1abc", "role": "admin"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if strings.Count(signed, ".") != 2 {
		t.Fatalf("expected three-part token, got %q", signed)
	}

	claims, err := m.Decode(signed, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims["uid"] != "1abc" || claims["role"] != "admin" {
		t.Fatalf("claims not preserved: %v", claims)
	}
	if claims["iss"] != "https://issuer.test" {
		t.Fatalf("issuer not stamped: %v", claims["iss"])
	}
}

func TestSignMandatoryClaimsWin(t *testing.T) {
	m := newTestManager(t, nil)

	signed, err := m.Sign(map[string]any{"iss": "https://attacker.test"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	claims, err := m.Decode(signed, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims["iss"] != "https://issuer.test" {
		t.Fatalf("caller overrode issuer: %v", claims["iss"])
	}
}

func TestDecodeRejectsTamperedToken(t *testing.T) {
	m := newTestManager(t, nil)

	signed, err := m.Sign(map[string]any{"uid": "1abc"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tampered := signed[:len(signed)-2] + "xx"
	if _, err := m.Decode(tampered, nil); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	m := newTestManager(t, nil)

	for _, tok := range []string{"", "x", "a.b", "a.b.c.d", "not a token"} {
		if _, err := m.Decode(tok, nil); err != ErrInvalid {
			t.Fatalf("token %q: expected ErrInvalid, got %v", tok, err)
		}
	}
}

func TestDecodeRejectsExpiredToken(t *testing.T) {
	current := time.Now()
	m := newTestManager(t, func() time.Time { return current })

	signed, err := m.Sign(map[string]any{"uid": "1abc"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := m.Decode(signed, nil); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, err := m.Decode(signed, nil); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid after expiry, got %v", err)
	}
}

func TestDecodeHonorsLeeway(t *testing.T) {
	current := time.Now()
	cfg := testConfig(func() time.Time { return current })
	cfg.Leeway = time.Minute
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	signed, err := m.Sign(nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	current = current.Add(time.Hour + 30*time.Second)
	if _, err := m.Decode(signed, nil); err != nil {
		t.Fatalf("token inside leeway rejected: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := m.Decode(signed, nil); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid outside leeway, got %v", err)
	}
}

func TestDecodeRejectsWrongAudience(t *testing.T) {
	other, err := NewManager(Config{
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Issuer:   "https://issuer.test",
		Audience: "https://someone-else.test",
		TTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	signed, err := other.Sign(map[string]any{"uid": "1abc"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	m := newTestManager(t, nil)
	if _, err := m.Decode(signed, nil); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid for foreign audience, got %v", err)
	}
}

func TestDecodeMustMatch(t *testing.T) {
	m := newTestManager(t, nil)

	signed, err := m.Sign(map[string]any{"uid": "1abc", ClaimType: TypeID})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := m.Decode(signed, map[string]any{"uid": "1abc"}); err != nil {
		t.Fatalf("matching claim rejected: %v", err)
	}
	if _, err := m.Decode(signed, map[string]any{"uid": "other"}); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid on value mismatch, got %v", err)
	}
	if _, err := m.Decode(signed, map[string]any{"missing": "x"}); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid on missing claim, got %v", err)
	}
}

func TestTypedTokens(t *testing.T) {
	m := newTestManager(t, nil)

	idToken, err := m.SignTyped(TypeID, map[string]any{"uid": "1abc"})
	if err != nil {
		t.Fatalf("SignTyped: %v", err)
	}
	customToken, err := m.SignTyped(TypeCustom, map[string]any{"uid": "1abc"})
	if err != nil {
		t.Fatalf("SignTyped: %v", err)
	}

	if _, err := m.DecodeIDToken(idToken); err != nil {
		t.Fatalf("DecodeIDToken: %v", err)
	}
	if _, err := m.DecodeIDToken(customToken); err != ErrInvalid {
		t.Fatalf("custom token accepted as ID token: %v", err)
	}
	if _, err := m.DecodeCustomToken(customToken); err != nil {
		t.Fatalf("DecodeCustomToken: %v", err)
	}
	if _, err := m.DecodeCustomToken(idToken); err != ErrInvalid {
		t.Fatalf("ID token accepted as custom token: %v", err)
	}
}

func TestVerify(t *testing.T) {
	m := newTestManager(t, nil)

	signed, err := m.Sign(nil)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !m.Verify(signed) {
		t.Fatal("valid token failed verification")
	}
	if m.Verify("broken") {
		t.Fatal("garbage passed verification")
	}
}
