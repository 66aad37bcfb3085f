package rowAuth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
)

// Userinfo endpoints. Vars so tests can point them at a local server.
var (
	googleUserinfoURL   = "https://www.googleapis.com/oauth2/v3/userinfo"
	facebookUserinfoURL = "https://graph.facebook.com/me"
)

// providerProfile is the subset of a userinfo response the engine cares
// about.
type providerProfile struct {
	Email       string
	DisplayName string
	PhotoURL    string
}

// GetUserByProvider exchanges a provider access token for an account. The
// token is sent to the provider's userinfo endpoint; the returned email is
// matched against existing accounts, and an unknown email creates the
// account with the provider's profile fields and the email already verified
// (the provider proved ownership).
func (e *Engine) GetUserByProvider(ctx context.Context, provider ProviderID, accessToken string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if accessToken == "" {
		return nil, ErrInvalidInput
	}

	var (
		profile *providerProfile
		err     error
	)
	switch provider {
	case ProviderGoogle:
		profile, err = e.fetchGoogleProfile(ctx, accessToken)
	case ProviderFacebook:
		profile, err = e.fetchFacebookProfile(ctx, accessToken)
	default:
		return nil, ErrProviderUnsupported
	}
	if err != nil {
		return nil, err
	}
	if !isValidEmail(profile.Email) {
		return nil, ErrProviderUnavailable
	}

	record, err := e.store.GetUser(ctx, ByField(FieldEmail, profile.Email))
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return e.provisionProviderUser(ctx, provider, profile)
	}

	user := e.user(record)
	user.SetLastLogin()
	// backfill profile fields the account never had
	if record.DisplayName == "" {
		record.DisplayName = profile.DisplayName
	}
	if record.PhotoURL == "" {
		record.PhotoURL = profile.PhotoURL
	}
	if err := user.Save(ctx); err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventProviderSignIn,
		UID:       record.UID,
		Email:     record.Email,
		Success:   true,
		Metadata:  map[string]string{"provider": string(provider)},
	})

	return user, nil
}

func (e *Engine) provisionProviderUser(ctx context.Context, provider ProviderID, profile *providerProfile) (*User, error) {
	record, err := e.newUserRecord(provider)
	if err != nil {
		return nil, err
	}
	record.Email = profile.Email
	record.EmailVerified = true
	record.DisplayName = profile.DisplayName
	record.PhotoURL = profile.PhotoURL

	user := e.user(record)
	if err := user.Save(ctx); err != nil {
		return nil, err
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventProviderSignIn,
		UID:       record.UID,
		Email:     record.Email,
		Success:   true,
		Metadata:  map[string]string{"provider": string(provider), "new_user": "true"},
	})

	return user, nil
}

/*
====================================
PROVIDER USERINFO CLIENTS
====================================
*/

func (e *Engine) fetchGoogleProfile(ctx context.Context, accessToken string) (*providerProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserinfoURL, nil)
	if err != nil {
		return nil, ErrProviderUnavailable
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var body struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := e.doProviderRequest(req, &body); err != nil {
		return nil, err
	}

	return &providerProfile{
		Email:       body.Email,
		DisplayName: body.Name,
		PhotoURL:    body.Picture,
	}, nil
}

func (e *Engine) fetchFacebookProfile(ctx context.Context, accessToken string) (*providerProfile, error) {
	endpoint := facebookUserinfoURL + "?" + url.Values{
		"fields":       {"id,name,email,picture"},
		"access_token": {accessToken},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, ErrProviderUnavailable
	}

	var body struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := e.doProviderRequest(req, &body); err != nil {
		return nil, err
	}

	return &providerProfile{
		Email:       body.Email,
		DisplayName: body.Name,
		PhotoURL:    body.Picture.Data.URL,
	}, nil
}

func (e *Engine) doProviderRequest(req *http.Request, out any) error {
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return ErrProviderUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrProviderUnavailable
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ErrProviderUnavailable
	}

	return nil
}
