// Package rate enforces the engine's optional per-identifier and per-IP
// throttles for login and OOB request operations using Redis counters.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited means the attempt budget for the window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable means the Redis backend could not be reached.
	ErrUnavailable = errors.New("rate limiter backend unavailable")
)

// Config holds throttle tuning parameters.
type Config struct {
	EnableIPThrottle bool

	MaxLoginAttempts int
	LoginCooldown    time.Duration

	MaxOobRequests int
	OobCooldown    time.Duration
}

// Limiter counts failed logins and OOB requests in fixed windows.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin reports whether the identifier+IP pair is still within the
// login attempt budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if err := l.checkCounter(ctx, loginKey(identifier), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed login attempt for the identifier+IP pair.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	count, err := l.incrementWithTTL(ctx, loginKey(identifier), l.config.LoginCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, loginIPKey(ip), l.config.LoginCooldown)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetLogin clears the failed-login counters after a successful login or
// password change.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	keys := []string{loginKey(identifier)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return ErrUnavailable
	}
	return nil
}

// CheckOobRequest reports whether the identifier+IP pair may request another
// OOB code in the current window.
func (l *Limiter) CheckOobRequest(ctx context.Context, identifier, ip string) error {
	if err := l.checkCounter(ctx, oobKey(identifier), l.config.MaxOobRequests); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, oobIPKey(ip), l.config.MaxOobRequests); err != nil {
			return err
		}
	}

	return nil
}

// IncrementOobRequest records an OOB code request for the identifier+IP pair.
func (l *Limiter) IncrementOobRequest(ctx context.Context, identifier, ip string) error {
	count, err := l.incrementWithTTL(ctx, oobKey(identifier), l.config.OobCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxOobRequests) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, oobIPKey(ip), l.config.OobCooldown)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxOobRequests) {
			return ErrRateLimited
		}
	}

	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, max int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return ErrUnavailable
	}
	if count >= int64(max) {
		return ErrRateLimited
	}
	return nil
}

// incrementWithTTL bumps the counter and sets the window TTL only on first
// increment, so the window is fixed rather than sliding.
func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, ErrUnavailable
	}
	return incr.Val(), nil
}

func loginKey(identifier string) string {
	return fmt.Sprintf("ra:rl:login:u:%s", identifier)
}

func loginIPKey(ip string) string {
	return fmt.Sprintf("ra:rl:login:ip:%s", ip)
}

func oobKey(identifier string) string {
	return fmt.Sprintf("ra:rl:oob:u:%s", identifier)
}

func oobIPKey(ip string) string {
	return fmt.Sprintf("ra:rl:oob:ip:%s", ip)
}
