package rowAuth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRequestPasswordReset(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Oob.AuthURL = "https://app.example.test/auth/action"
		cfg.Oob.SiteName = "Example"
	})
	f.signUp(t, "alice@example.test", "secret-pass")

	if err := f.engine.RequestPasswordReset(context.Background(), "alice@example.test"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}

	stored := f.store.raw(ByField(FieldEmail, "alice@example.test"))
	if stored.OobMode != OobResetPassword {
		t.Fatalf("oob mode = %q, want %q", stored.OobMode, OobResetPassword)
	}
	if len(stored.OobCode) != 64 {
		t.Fatalf("oob code length = %d, want 64 hex chars", len(stored.OobCode))
	}
	if stored.OobTimestamp != f.clock.Now().UnixMilli() {
		t.Fatal("oob timestamp not stamped")
	}

	sent := f.mailer.last(t)
	if sent.To != "alice@example.test" {
		t.Fatalf("email sent to %q", sent.To)
	}
	if !strings.Contains(sent.Subject, "Example") {
		t.Fatalf("site name missing from subject %q", sent.Subject)
	}
	wantURL := "https://app.example.test/auth/action?mode=resetPassword&oobCode=" + stored.OobCode
	if !strings.Contains(sent.HTMLBody, wantURL) {
		t.Fatalf("action url missing from body:\n%s", sent.HTMLBody)
	}
	if sent.PlainBody == "" || strings.Contains(sent.PlainBody, "<p>") {
		t.Fatalf("plain body not derived: %q", sent.PlainBody)
	}
}

func TestRequestOobValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.engine.RequestPasswordReset(ctx, "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if err := f.engine.RequestPasswordReset(ctx, "nobody@example.test"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRequestOobWithoutMailer(t *testing.T) {
	engine, err := New().
		WithConfig(testEngineConfig()).
		WithStore(newMockStore()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	if err := engine.RequestPasswordReset(context.Background(), "alice@example.test"); !errors.Is(err, ErrMailerRequired) {
		t.Fatalf("expected ErrMailerRequired, got %v", err)
	}
}

func TestNewOobCodeSupersedesOld(t *testing.T) {
	f := newFixture(t, nil)
	f.signUp(t, "alice@example.test", "secret-pass")
	ctx := context.Background()

	if err := f.engine.RequestPasswordReset(ctx, "alice@example.test"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	oldCode := f.store.raw(ByField(FieldEmail, "alice@example.test")).OobCode

	if err := f.engine.RequestPasswordReset(ctx, "alice@example.test"); err != nil {
		t.Fatalf("second request: %v", err)
	}
	newCode := f.store.raw(ByField(FieldEmail, "alice@example.test")).OobCode
	if newCode == oldCode {
		t.Fatal("second request did not mint a new code")
	}

	if _, err := f.engine.GetUserByOobCode(ctx, oldCode); !errors.Is(err, ErrOobInvalid) {
		t.Fatalf("superseded code still resolves: %v", err)
	}
	if _, err := f.engine.GetUserByOobCode(ctx, newCode); err != nil {
		t.Fatalf("fresh code rejected: %v", err)
	}
}

func TestOobCodeExpires(t *testing.T) {
	f := newFixture(t, nil)
	f.signUp(t, "alice@example.test", "secret-pass")
	ctx := context.Background()

	if err := f.engine.RequestPasswordReset(ctx, "alice@example.test"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	code := f.store.raw(ByField(FieldEmail, "alice@example.test")).OobCode

	f.clock.Advance(59 * time.Minute)
	if _, err := f.engine.GetUserByOobCode(ctx, code); err != nil {
		t.Fatalf("code inside window rejected: %v", err)
	}

	f.clock.Advance(2 * time.Minute)
	if _, err := f.engine.GetUserByOobCode(ctx, code); !errors.Is(err, ErrOobInvalid) {
		t.Fatalf("expected ErrOobInvalid after expiry, got %v", err)
	}
}

func TestGetUserByOobCodeUnknown(t *testing.T) {
	f := newFixture(t, nil)

	for _, code := range []string{"", "deadbeef"} {
		if _, err := f.engine.GetUserByOobCode(context.Background(), code); !errors.Is(err, ErrOobInvalid) {
			t.Fatalf("code %q: expected ErrOobInvalid, got %v", code, err)
		}
	}
}

func TestConfirmPasswordReset(t *testing.T) {
	f := newFixture(t, nil)
	f.signUp(t, "alice@example.test", "old-password")
	ctx := context.Background()

	if err := f.engine.RequestPasswordReset(ctx, "alice@example.test"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	before := f.store.raw(ByField(FieldEmail, "alice@example.test")).Clone()

	if err := f.engine.ConfirmPasswordReset(ctx, before.OobCode, "new-password"); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}

	if _, err := f.engine.GetUserByEmailAndPassword(ctx, "alice@example.test", "new-password"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := f.engine.GetUserByEmailAndPassword(ctx, "alice@example.test", "old-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}

	after := f.store.raw(ByField(FieldEmail, "alice@example.test"))
	if after.RefreshToken == before.RefreshToken {
		t.Fatal("refresh token not rotated on reset")
	}
	if after.OobCode != "" || after.OobMode != OobNone || after.OobTimestamp != 0 {
		t.Fatalf("oob slot not cleared: %+v", after)
	}

	// the code was consumed
	if err := f.engine.ConfirmPasswordReset(ctx, before.OobCode, "another-password"); !errors.Is(err, ErrOobInvalid) {
		t.Fatalf("consumed code still works: %v", err)
	}
}

func TestConfirmPasswordResetPolicy(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.engine.ConfirmPasswordReset(context.Background(), "whatever", "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestConfirmRejectsWrongMode(t *testing.T) {
	f := newFixture(t, nil)
	f.signUp(t, "alice@example.test", "secret-pass")
	ctx := context.Background()

	if err := f.engine.RequestEmailVerification(ctx, "alice@example.test"); err != nil {
		t.Fatalf("RequestEmailVerification: %v", err)
	}
	code := f.store.raw(ByField(FieldEmail, "alice@example.test")).OobCode

	// a verification code must not reset a password
	if err := f.engine.ConfirmPasswordReset(ctx, code, "new-password"); !errors.Is(err, ErrOobInvalid) {
		t.Fatalf("expected ErrOobInvalid, got %v", err)
	}
}

func TestConfirmEmailVerification(t *testing.T) {
	f := newFixture(t, nil)
	f.signUp(t, "alice@example.test", "secret-pass")
	ctx := context.Background()

	if err := f.engine.RequestEmailVerification(ctx, "alice@example.test"); err != nil {
		t.Fatalf("RequestEmailVerification: %v", err)
	}
	code := f.store.raw(ByField(FieldEmail, "alice@example.test")).OobCode

	if err := f.engine.ConfirmEmailVerification(ctx, code); err != nil {
		t.Fatalf("ConfirmEmailVerification: %v", err)
	}

	after := f.store.raw(ByField(FieldEmail, "alice@example.test"))
	if !after.EmailVerified {
		t.Fatal("email not marked verified")
	}
	if after.OobCode != "" || after.OobMode != OobNone {
		t.Fatal("oob slot not cleared")
	}

	if err := f.engine.ConfirmEmailVerification(ctx, code); !errors.Is(err, ErrOobInvalid) {
		t.Fatalf("consumed code still works: %v", err)
	}
}

func TestAuthActionURL(t *testing.T) {
	f := newFixture(t, nil)

	// fallback path
	got := f.engine.AuthActionURL(OobResetPassword, "abc123")
	if got != "/auth/action?mode=resetPassword&oobCode=abc123" {
		t.Fatalf("fallback url = %q", got)
	}

	// configured base with existing query
	f2 := newFixture(t, func(cfg *Config) {
		cfg.Oob.AuthURL = "https://app.example.test/action?app=demo"
	})
	got = f2.engine.AuthActionURL(OobVerifyEmail, "abc123")
	if got != "https://app.example.test/action?app=demo&mode=verifyEmail&oobCode=abc123" {
		t.Fatalf("configured url = %q", got)
	}

	// builder takes precedence
	f3 := newFixture(t, func(cfg *Config) {
		cfg.Oob.AuthURL = "https://ignored.example.test"
		cfg.Oob.AuthURLBuilder = func(mode OobMode, code string) string {
			return "custom://" + string(mode) + "/" + code
		}
	})
	got = f3.engine.AuthActionURL(OobResetPassword, "abc123")
	if got != "custom://resetPassword/abc123" {
		t.Fatalf("builder url = %q", got)
	}
}

func TestCustomEmailBuilders(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Oob.EmailSubject = func(mode OobMode) string {
			return "custom subject " + string(mode)
		}
		cfg.Oob.EmailBody = func(mode OobMode, url string, info UserInfo) string {
			return "<b>" + info.Email + "</b> visit " + url
		}
	})
	f.signUp(t, "alice@example.test", "secret-pass")

	if err := f.engine.RequestPasswordReset(context.Background(), "alice@example.test"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}

	sent := f.mailer.last(t)
	if sent.Subject != "custom subject resetPassword" {
		t.Fatalf("subject = %q", sent.Subject)
	}
	if !strings.Contains(sent.HTMLBody, "<b>alice@example.test</b>") {
		t.Fatalf("body builder not used: %q", sent.HTMLBody)
	}
	if strings.Contains(sent.PlainBody, "<b>") {
		t.Fatalf("plain body not stripped: %q", sent.PlainBody)
	}
}

func TestMailFailureSurfaces(t *testing.T) {
	f := newFixture(t, nil)
	f.signUp(t, "alice@example.test", "secret-pass")
	f.mailer.err = errors.New("smtp down")

	err := f.engine.RequestPasswordReset(context.Background(), "alice@example.test")
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("mail error not surfaced: %v", err)
	}
	if got := f.engine.MetricsSnapshot()["mail_failure"]; got != 1 {
		t.Fatalf("mail_failure = %d, want 1", got)
	}
}

func TestOobThrottle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := testEngineConfig()
	cfg.Security.EnableOobThrottle = true
	cfg.Security.MaxOobRequests = 2
	cfg.Security.OobCooldown = time.Hour

	store := newMockStore()
	mailer := &mockMailer{}
	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithMailer(mailer).
		WithRedis(client).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	f := &fixture{engine: engine, store: store, mailer: mailer, clock: newTestClock()}
	f.signUp(t, "alice@example.test", "secret-pass")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := engine.RequestPasswordReset(ctx, "alice@example.test"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}

	if err := engine.RequestPasswordReset(ctx, "alice@example.test"); !errors.Is(err, ErrOobRateLimited) {
		t.Fatalf("expected ErrOobRateLimited, got %v", err)
	}
	if mailer.count() != 2 {
		t.Fatalf("sent %d emails, want 2", mailer.count())
	}
}
