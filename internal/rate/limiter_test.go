package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := New(client, Config{
		EnableIPThrottle: true,
		MaxLoginAttempts: 3,
		LoginCooldown:    time.Minute,
		MaxOobRequests:   2,
		OobCooldown:      time.Minute,
	})

	return limiter, mr
}

func TestLoginThrottleTripsAtBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	if err := limiter.CheckLogin(ctx, "user@example.test", ""); err != nil {
		t.Fatalf("fresh identifier throttled: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := limiter.IncrementLogin(ctx, "user@example.test", ""); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	if err := limiter.CheckLogin(ctx, "user@example.test", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := limiter.IncrementLogin(ctx, "user@example.test", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on overflow increment, got %v", err)
	}

	// other identifiers are unaffected
	if err := limiter.CheckLogin(ctx, "other@example.test", ""); err != nil {
		t.Fatalf("unrelated identifier throttled: %v", err)
	}
}

func TestLoginThrottlePerIP(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.IncrementLogin(ctx, "a@example.test", "10.0.0.9"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	// same IP, different identifier
	if err := limiter.CheckLogin(ctx, "b@example.test", "10.0.0.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for shared IP, got %v", err)
	}
}

func TestResetLoginClearsBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.IncrementLogin(ctx, "user@example.test", "10.0.0.9"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if err := limiter.ResetLogin(ctx, "user@example.test", "10.0.0.9"); err != nil {
		t.Fatalf("ResetLogin: %v", err)
	}
	if err := limiter.CheckLogin(ctx, "user@example.test", "10.0.0.9"); err != nil {
		t.Fatalf("still throttled after reset: %v", err)
	}
}

func TestLoginWindowExpires(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.IncrementLogin(ctx, "user@example.test", ""); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	mr.FastForward(2 * time.Minute)

	if err := limiter.CheckLogin(ctx, "user@example.test", ""); err != nil {
		t.Fatalf("still throttled after window expiry: %v", err)
	}
}

func TestOobThrottle(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.IncrementOobRequest(ctx, "user@example.test", ""); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	if err := limiter.CheckOobRequest(ctx, "user@example.test", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestBackendDownIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := New(client, Config{
		MaxLoginAttempts: 3,
		LoginCooldown:    time.Minute,
	})

	mr.Close()

	if err := limiter.IncrementLogin(context.Background(), "user@example.test", ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
