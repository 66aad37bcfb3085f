package rowAuth

import (
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/rowAuth/internal/ids"
	"github.com/MrEthical07/rowAuth/internal/rate"
	"github.com/MrEthical07/rowAuth/password"
	"github.com/MrEthical07/rowAuth/token"
)

// Builder assembles an Engine. Collaborators are injected here and fixed for
// the engine's lifetime.
type Builder struct {
	config     Config
	store      UserStore
	mailer     Mailer
	redis      redis.UniversalClient
	auditSink  AuditSink
	clock      func() time.Time
	httpClient *http.Client
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the entire configuration. Zero values for issuer,
// audience, and TTLs are filled from defaults at build time; everything else
// is taken as-is.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the persistence collaborator. Required.
func (b *Builder) WithStore(store UserStore) *Builder {
	b.store = store
	return b
}

// WithMailer sets the outbound mail collaborator. Without it, OOB request
// operations fail with [ErrMailerRequired].
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithRedis sets the Redis client backing the optional throttles. Required
// when any throttle is enabled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for audit events. Ignored unless
// Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock substitutes the engine clock. Tests use it to pin time.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithHTTPClient sets the client used for identity provider userinfo calls.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// Build validates the configuration, wires the collaborators, and returns a
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	cfg := cloneConfig(b.config)
	normalizeConfig(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("a user store is required")
	}
	if (cfg.Security.EnableLoginThrottle || cfg.Security.EnableOobThrottle) && b.redis == nil {
		return nil, errors.New("security throttles require a redis client")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	tokens, err := token.NewManager(token.Config{
		Secret:   cfg.Token.Secret,
		Issuer:   cfg.Token.Issuer,
		Audience: cfg.Token.Audience,
		TTL:      cfg.Token.TTL,
		Leeway:   cfg.Token.Leeway,
		Now:      clock,
	})
	if err != nil {
		return nil, err
	}

	passwords, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		Pepper:      cfg.Password.Pepper,
	})
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if b.redis != nil {
		limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
			LoginCooldown:    cfg.Security.LoginCooldown,
			MaxOobRequests:   cfg.Security.MaxOobRequests,
			OobCooldown:      cfg.Security.OobCooldown,
		})
	}

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Engine{
		config:     cfg,
		store:      b.store,
		mailer:     b.mailer,
		tokens:     tokens,
		passwords:  passwords,
		ids:        ids.New(clock),
		limiter:    limiter,
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:    NewMetrics(cfg.Metrics),
		now:        clock,
		httpClient: httpClient,
	}, nil
}

// normalizeConfig fills the zero values a host is allowed to leave unset.
func normalizeConfig(cfg *Config) {
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = DefaultIssuer
	}
	if cfg.Token.Audience == "" {
		cfg.Token.Audience = cfg.Token.Issuer
	}
	if cfg.Token.TTL == 0 {
		cfg.Token.TTL = time.Hour
	}
	if cfg.Oob.TTL == 0 {
		cfg.Oob.TTL = time.Hour
	}
}
