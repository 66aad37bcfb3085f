package rowAuth

import (
	"errors"
	"time"
)

// DefaultIssuer is the issuer/audience value stamped into every signed token
// when the config does not override it.
const DefaultIssuer = "https://rowauth.app"

// Config is the engine configuration. It is cloned at Build time and never
// mutated afterwards.
type Config struct {
	Token    TokenConfig
	Password PasswordConfig
	Oob      OobConfig
	Account  AccountConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls HS256 token signing and verification.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id parameters. Pepper is an optional server
// secret mixed into every hash; rotating it invalidates all stored hashes.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	Pepper      []byte
}

/*
====================================
OOB CONFIG
====================================
*/

// AuthURLBuilder produces the full action URL embedded in OOB emails. When
// set it takes precedence over OobConfig.AuthURL.
type AuthURLBuilder func(mode OobMode, oobCode string) string

// EmailSubjectBuilder overrides the default OOB email subject line.
type EmailSubjectBuilder func(mode OobMode) string

// EmailBodyBuilder overrides the default OOB email HTML body. The plain-text
// body is derived by stripping tags.
type EmailBodyBuilder func(mode OobMode, url string, info UserInfo) string

// OobConfig controls out-of-band action codes and the emails carrying them.
type OobConfig struct {
	// TTL is the validity window of an issued code. A code is also
	// invalidated earlier when superseded or consumed.
	TTL time.Duration

	// AuthURL is the base URL of the host application's action page. When
	// empty and no AuthURLBuilder is set, a same-host fallback path is used.
	AuthURL        string
	AuthURLBuilder AuthURLBuilder

	SiteName     string
	EmailSubject EmailSubjectBuilder
	EmailBody    EmailBodyBuilder
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig controls account provisioning behavior.
type AccountConfig struct {
	// AllowCustomTokenProvisioning lets a validly signed custom token with
	// an unknown uid create the account it asserts. Minting custom tokens
	// requires the server secret, so provisioning is itself privileged.
	AllowCustomTokenProvisioning bool
	// AllowAnonymous enables GetUserAnonymously.
	AllowAnonymous bool
	// AllowSignUp lets GetUserByEmailAndPassword create an account when the
	// email is unknown. When false the call fails with ErrInvalidCredentials.
	AllowSignUp bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls the optional Redis-backed throttles. Enabling any
// throttle requires a Redis client at build time.
type SecurityConfig struct {
	EnableLoginThrottle bool
	MaxLoginAttempts    int
	LoginCooldown       time.Duration

	EnableOobThrottle bool
	MaxOobRequests    int
	OobCooldown       time.Duration

	EnableIPThrottle bool
}

// AuditConfig controls the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process atomic counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Hosts typically start
// from it, set Token.Secret, and adjust what they need.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:   DefaultIssuer,
			Audience: DefaultIssuer,
			TTL:      time.Hour,
			Leeway:   0,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Oob: OobConfig{
			TTL: time.Hour,
		},
		Account: AccountConfig{
			AllowCustomTokenProvisioning: true,
			AllowAnonymous:               true,
			AllowSignUp:                  true,
		},
		Security: SecurityConfig{
			EnableLoginThrottle: false,
			MaxLoginAttempts:    5,
			LoginCooldown:       15 * time.Minute,
			EnableOobThrottle:   false,
			MaxOobRequests:      3,
			OobCooldown:         time.Hour,
			EnableIPThrottle:    false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Password.Pepper = cloneBytes(cfg.Password.Pepper)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for internally inconsistent or unsafe
// values. Build calls it; it is exported so hosts can fail fast on boot.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.Secret) < 16 {
		return errors.New("Token Secret must be at least 16 bytes")
	}
	if c.Token.Issuer == "" {
		return errors.New("Token Issuer is required")
	}
	if c.Token.Audience == "" {
		return errors.New("Token Audience is required")
	}
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Oob
	if c.Oob.TTL <= 0 {
		return errors.New("Oob TTL must be > 0")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("MaxLoginAttempts must be > 0 when login throttle is enabled")
		}
		if c.Security.LoginCooldown <= 0 {
			return errors.New("LoginCooldown must be > 0 when login throttle is enabled")
		}
	}
	if c.Security.EnableOobThrottle {
		if c.Security.MaxOobRequests <= 0 {
			return errors.New("MaxOobRequests must be > 0 when oob throttle is enabled")
		}
		if c.Security.OobCooldown <= 0 {
			return errors.New("OobCooldown must be > 0 when oob throttle is enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
