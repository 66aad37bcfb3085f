package rowAuth

import (
	"context"
	"errors"
	"regexp"

	"github.com/MrEthical07/rowAuth/internal/rate"
)

// emailPattern is the WHATWG email grammar. Intentionally permissive; the
// real proof of ownership is the verification email.
var emailPattern = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")

func isValidEmail(email string) bool {
	return email != "" && len(email) <= 254 && emailPattern.MatchString(email)
}

// IsValidPassword reports whether the password satisfies the minimum length
// policy. Hash enforces the same bound.
func (e *Engine) IsValidPassword(password string) bool {
	return len(password) >= 7
}

// GetUser fetches an account by finder. Returns [ErrUserNotFound] when no
// row matches.
func (e *Engine) GetUser(ctx context.Context, finder Finder) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	record, err := e.store.GetUser(ctx, finder)
	if err != nil {
		return nil, err
	}
	return e.user(record), nil
}

// IsUser reports whether an account matching the finder exists.
func (e *Engine) IsUser(ctx context.Context, finder Finder) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}

	_, err := e.store.GetUser(ctx, finder)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetUserByEmailAndPassword authenticates an email/password pair. When the
// email is unknown and sign-up is allowed, the account is created on the
// spot and returned with IsNewUser set. Wrong passwords and unknown accounts
// with sign-up disabled are indistinguishable: both fail with
// [ErrInvalidCredentials].
func (e *Engine) GetUserByEmailAndPassword(ctx context.Context, email, pass string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !e.IsValidPassword(pass) {
		return nil, ErrPasswordPolicy
	}

	if err := e.checkLoginThrottle(ctx, email); err != nil {
		return nil, err
	}

	record, err := e.store.GetUser(ctx, ByField(FieldEmail, email))
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		if !e.config.Account.AllowSignUp {
			return nil, e.failLogin(ctx, email, "")
		}
		return e.signUpWithPassword(ctx, email, pass)
	}

	ok, err := e.passwords.Verify(pass, record.PasswordHash)
	if err != nil || !ok {
		return nil, e.failLogin(ctx, email, record.UID)
	}

	e.resetLoginThrottle(ctx, email)

	user := e.user(record)
	user.SetLastLogin()
	if err := user.Save(ctx); err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventLogin,
		UID:       record.UID,
		Email:     record.Email,
		Success:   true,
	})

	return user, nil
}

func (e *Engine) signUpWithPassword(ctx context.Context, email, pass string) (*User, error) {
	record, err := e.newUserRecord(ProviderPassword)
	if err != nil {
		return nil, err
	}
	record.Email = email

	user := e.user(record)
	user.SetPassword(pass)
	if err := user.Save(ctx); err != nil {
		return nil, err
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventAccountCreated,
		UID:       record.UID,
		Email:     email,
		Success:   true,
		Metadata:  map[string]string{"provider": string(ProviderPassword)},
	})

	return user, nil
}

// GetUserByCustomToken resolves a custom token minted with [Engine.MintCustomToken]
// (or by any holder of the server secret) to an account. An unknown uid
// provisions the account when AllowCustomTokenProvisioning is set, otherwise
// the call fails with [ErrUserNotFound].
func (e *Engine) GetUserByCustomToken(ctx context.Context, customToken string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.DecodeCustomToken(customToken)
	if err != nil {
		return nil, e.rejectToken(ctx, "custom")
	}
	uid, _ := claims["uid"].(string)
	if uid == "" {
		return nil, e.rejectToken(ctx, "custom")
	}

	record, err := e.store.GetUser(ctx, ByField(FieldUID, uid))
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		if !e.config.Account.AllowCustomTokenProvisioning {
			return nil, ErrUserNotFound
		}
		return e.provisionCustomUser(ctx, uid)
	}

	user := e.user(record)
	user.SetLastLogin()
	if err := user.Save(ctx); err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventLogin,
		UID:       uid,
		Success:   true,
		Metadata:  map[string]string{"provider": string(ProviderCustom)},
	})

	return user, nil
}

func (e *Engine) provisionCustomUser(ctx context.Context, uid string) (*User, error) {
	record, err := e.newUserRecord(ProviderCustom)
	if err != nil {
		return nil, err
	}
	record.UID = uid

	user := e.user(record)
	if err := user.Save(ctx); err != nil {
		return nil, err
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventAccountCreated,
		UID:       uid,
		Success:   true,
		Metadata:  map[string]string{"provider": string(ProviderCustom)},
	})

	return user, nil
}

// GetUserAnonymously creates a throwaway account with no credentials. Fails
// with [ErrProviderUnsupported] when anonymous accounts are disabled.
func (e *Engine) GetUserAnonymously(ctx context.Context) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Account.AllowAnonymous {
		return nil, ErrProviderUnsupported
	}

	record, err := e.newUserRecord(ProviderAnonymous)
	if err != nil {
		return nil, err
	}

	user := e.user(record)
	if err := user.Save(ctx); err != nil {
		return nil, err
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventAccountCreated,
		UID:       record.UID,
		Success:   true,
		Metadata:  map[string]string{"provider": string(ProviderAnonymous)},
	})

	return user, nil
}

// GetUserByIdToken resolves an ID token to the account it was issued for.
// Unlike custom tokens, an ID token never provisions anything: the uid must
// already exist or the call fails with [ErrInvalidCredentials].
func (e *Engine) GetUserByIdToken(ctx context.Context, idToken string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.DecodeIDToken(idToken)
	if err != nil {
		return nil, e.rejectToken(ctx, "id")
	}
	uid, _ := claims["uid"].(string)
	if uid == "" {
		return nil, e.rejectToken(ctx, "id")
	}

	record, err := e.store.GetUser(ctx, ByField(FieldUID, uid))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return e.user(record), nil
}

// GetUserByOobCode resolves an out-of-band action code. The code must match
// an account's active slot, carry a real mode, and be inside the validity
// window; anything else fails with [ErrOobInvalid]. Resolving does not
// consume the code.
func (e *Engine) GetUserByOobCode(ctx context.Context, oobCode string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if oobCode == "" {
		return nil, ErrOobInvalid
	}

	record, err := e.store.GetUser(ctx, ByField(FieldOobCode, oobCode))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricOobInvalid)
			return nil, ErrOobInvalid
		}
		return nil, err
	}

	if record.OobCode != oobCode || record.OobMode == OobNone || record.OobMode == "" {
		e.metricInc(MetricOobInvalid)
		return nil, ErrOobInvalid
	}
	if e.nowMillis()-record.OobTimestamp > e.config.Oob.TTL.Milliseconds() {
		e.metricInc(MetricOobInvalid)
		return nil, ErrOobInvalid
	}

	return e.user(record), nil
}

// GetUserByRefreshToken resolves an opaque refresh token to its account.
func (e *Engine) GetUserByRefreshToken(ctx context.Context, refreshToken string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrUserNotFound
	}

	record, err := e.store.GetUser(ctx, ByField(FieldRefreshToken, refreshToken))
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshLookup)
	return e.user(record), nil
}

// GetPublicProfiles fetches the public view of multiple accounts at once,
// keyed by uid. Unknown uids are silently skipped.
func (e *Engine) GetPublicProfiles(ctx context.Context, uids ...string) (map[string]*UserProfile, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	out := make(map[string]*UserProfile, len(uids))
	for _, uid := range uids {
		if uid == "" {
			continue
		}
		if _, seen := out[uid]; seen {
			continue
		}
		record, err := e.store.GetUser(ctx, ByField(FieldUID, uid))
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				continue
			}
			return nil, err
		}
		out[uid] = e.user(record).PublicProfile()
	}

	return out, nil
}

// newUserRecord builds a fresh record with generated uid and refresh token,
// both timestamps set to now, and IsNewUser marked.
func (e *Engine) newUserRecord(provider ProviderID) (*UserRecord, error) {
	uid, err := e.ids.NewUID()
	if err != nil {
		return nil, err
	}
	refresh, err := e.ids.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	now := e.nowMillis()
	return &UserRecord{
		UID:            uid,
		ProviderID:     provider,
		RefreshToken:   refresh,
		TokenTimestamp: now,
		CreatedAt:      now,
		LastLogin:      now,
		IsNewUser:      true,
	}, nil
}

/*
====================================
THROTTLE AND FAILURE HELPERS
====================================
*/

func (e *Engine) checkLoginThrottle(ctx context.Context, identifier string) error {
	if !e.config.Security.EnableLoginThrottle || e.limiter == nil {
		return nil
	}

	err := e.limiter.CheckLogin(ctx, identifier, clientIPFromContext(ctx))
	return e.mapLoginThrottleErr(ctx, identifier, err)
}

// failLogin records the failed attempt and returns the error the caller must
// surface. A throttle trip takes precedence over the credential error.
func (e *Engine) failLogin(ctx context.Context, email, uid string) error {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventLogin,
		UID:       uid,
		Email:     email,
		Success:   false,
		Error:     ErrInvalidCredentials.Error(),
	})

	if e.config.Security.EnableLoginThrottle && e.limiter != nil {
		err := e.limiter.IncrementLogin(ctx, email, clientIPFromContext(ctx))
		if mapped := e.mapLoginThrottleErr(ctx, email, err); mapped != nil {
			return mapped
		}
	}

	return ErrInvalidCredentials
}

func (e *Engine) resetLoginThrottle(ctx context.Context, identifier string) {
	if !e.config.Security.EnableLoginThrottle || e.limiter == nil {
		return
	}
	// best effort: a stale counter only shortens the budget
	_ = e.limiter.ResetLogin(ctx, identifier, clientIPFromContext(ctx))
}

func (e *Engine) mapLoginThrottleErr(ctx context.Context, identifier string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventRateLimited,
			Email:     identifier,
			Success:   false,
			Error:     ErrLoginRateLimited.Error(),
			Metadata:  map[string]string{"operation": "login"},
		})
		return ErrLoginRateLimited
	default:
		return ErrThrottleUnavailable
	}
}

func (e *Engine) rejectToken(ctx context.Context, tokenKind string) error {
	e.metricInc(MetricTokenRejected)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventTokenRejected,
		Success:   false,
		Error:     ErrInvalidCredentials.Error(),
		Metadata:  map[string]string{"token": tokenKind},
	})
	return ErrInvalidCredentials
}
