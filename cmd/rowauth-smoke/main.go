// Command rowauth-smoke runs the full account lifecycle against a real
// store: sign-up, login, token exchange, password reset, and deletion. It is
// a manual smoke check, not part of the library surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/rowAuth"
	"github.com/MrEthical07/rowAuth/mail"
	"github.com/MrEthical07/rowAuth/store/memstore"
	"github.com/MrEthical07/rowAuth/store/redistore"
	"github.com/MrEthical07/rowAuth/store/sqlstore"
)

type settings struct {
	Store      string `env:"ROWAUTH_STORE" envDefault:"memory"`
	Secret     string `env:"ROWAUTH_SECRET" envDefault:"smoke-test-secret-0123456789"`
	SiteName   string `env:"ROWAUTH_SITE_NAME" envDefault:"Smoke"`
	RedisAddr  string `env:"ROWAUTH_REDIS_ADDR" envDefault:"localhost:6379"`
	SQLitePath string `env:"ROWAUTH_SQLITE_PATH" envDefault:"rowauth-smoke.db"`
}

func main() {
	var cfg settings
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse environment: %v", err)
	}

	store, cleanup, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer cleanup()

	mailer := mail.NewCapture()

	engineConfig := rowAuth.DefaultConfig()
	engineConfig.Token.Secret = []byte(cfg.Secret)
	engineConfig.Oob.SiteName = cfg.SiteName
	engineConfig.Oob.AuthURL = "https://example.test/auth/action"
	engineConfig.Audit.Enabled = true
	engineConfig.Metrics.Enabled = true

	engine, err := rowAuth.New().
		WithConfig(engineConfig).
		WithStore(store).
		WithMailer(mailer).
		WithAuditSink(rowAuth.NewJSONWriterSink(os.Stderr)).
		Build()
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}
	defer engine.Close()

	if err := run(context.Background(), engine, mailer); err != nil {
		log.Fatalf("smoke run: %v", err)
	}

	snapshot, _ := json.MarshalIndent(engine.MetricsSnapshot(), "", "  ")
	fmt.Printf("metrics: %s\n", snapshot)
	fmt.Println("ok")
}

func openStore(cfg settings) (rowAuth.UserStore, func(), error) {
	switch cfg.Store {
	case "memory":
		return memstore.New(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return redistore.New(client, ""), func() { client.Close() }, nil
	case "sqlite":
		store, err := sqlstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func run(ctx context.Context, engine *rowAuth.Engine, mailer *mail.Capture) error {
	const (
		email    = "smoke@example.test"
		password = "initial-password"
	)

	// sign-up, then a clean re-login
	user, err := engine.GetUserByEmailAndPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	fmt.Printf("created uid=%s new=%v\n", user.UID(), user.Info().IsNewUser)

	if _, err := engine.GetUserByEmailAndPassword(ctx, email, "wrong-password"); err == nil {
		return fmt.Errorf("wrong password was accepted")
	}
	user, err = engine.GetUserByEmailAndPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	// ID token round trip
	idToken, err := user.IDToken()
	if err != nil {
		return fmt.Errorf("sign id token: %w", err)
	}
	resolved, err := engine.GetUserByIdToken(ctx, idToken)
	if err != nil {
		return fmt.Errorf("resolve id token: %w", err)
	}
	if resolved.UID() != user.UID() {
		return fmt.Errorf("id token resolved to wrong account")
	}

	// custom token round trip
	custom, err := engine.MintCustomToken(user.UID(), map[string]any{"role": "smoke"})
	if err != nil {
		return fmt.Errorf("mint custom token: %w", err)
	}
	if _, err := engine.GetUserByCustomToken(ctx, custom); err != nil {
		return fmt.Errorf("resolve custom token: %w", err)
	}

	// password reset through the mailed action link
	if err := engine.RequestPasswordReset(ctx, email); err != nil {
		return fmt.Errorf("request reset: %w", err)
	}
	sent, ok := mailer.Last()
	if !ok {
		return fmt.Errorf("no reset email captured")
	}
	code, err := extractOobCode(sent.HTMLBody)
	if err != nil {
		return err
	}
	if err := engine.ConfirmPasswordReset(ctx, code, "rotated-password"); err != nil {
		return fmt.Errorf("confirm reset: %w", err)
	}
	if _, err := engine.GetUserByEmailAndPassword(ctx, email, "rotated-password"); err != nil {
		return fmt.Errorf("login after reset: %w", err)
	}

	// profile visibility
	user.SetProfilePublicly("email").
		UpdateProfile(rowAuth.EditableProfile{DisplayName: "Smoke Tester"})
	if err := user.Save(ctx); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	profiles, err := engine.GetPublicProfiles(ctx, user.UID())
	if err != nil {
		return fmt.Errorf("public profiles: %w", err)
	}
	fmt.Printf("public profile: %+v\n", profiles[user.UID()])

	// cleanup
	fresh, err := engine.GetUser(ctx, rowAuth.ByField(rowAuth.FieldEmail, email))
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := fresh.Delete(ctx); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	return nil
}

// extractOobCode pulls the oobCode query parameter out of the mailed link.
func extractOobCode(body string) (string, error) {
	const marker = "oobCode="
	i := strings.Index(body, marker)
	if i < 0 {
		return "", fmt.Errorf("no oobCode in email body")
	}
	code := body[i+len(marker):]
	for j := 0; j < len(code); j++ {
		if !isHexDigit(code[j]) {
			code = code[:j]
			break
		}
	}
	if code == "" {
		return "", fmt.Errorf("empty oobCode in email body")
	}
	return code, nil
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f'
}
