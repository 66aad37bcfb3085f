package rowAuth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/MrEthical07/rowAuth/internal/rate"
)

// defaultActionPath is the fallback action path used when the host sets
// neither Oob.AuthURL nor Oob.AuthURLBuilder.
const defaultActionPath = "/auth/action"

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// RequestPasswordReset issues a password reset code for the account behind
// email and mails the action link. The new code supersedes any previously
// issued one.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	return e.requestOob(ctx, email, OobResetPassword)
}

// RequestEmailVerification issues an email verification code for the account
// behind email and mails the action link.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	return e.requestOob(ctx, email, OobVerifyEmail)
}

func (e *Engine) requestOob(ctx context.Context, email string, mode OobMode) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.mailer == nil {
		return ErrMailerRequired
	}
	if !isValidEmail(email) {
		return ErrInvalidEmail
	}

	if err := e.checkOobThrottle(ctx, email); err != nil {
		return err
	}

	record, err := e.store.GetUser(ctx, ByField(FieldEmail, email))
	if err != nil {
		return err
	}

	user := e.user(record)
	if err := user.SetOob(mode).Save(ctx); err != nil {
		return err
	}

	e.incrementOobThrottle(ctx, email)
	e.metricInc(MetricOobIssued)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventOobRequest,
		UID:       record.UID,
		Email:     email,
		Success:   true,
		Metadata:  map[string]string{"mode": string(mode)},
	})

	return e.sendOobEmail(ctx, mode, user)
}

// ConfirmPasswordReset consumes a reset code: the new password is stored,
// the refresh token is rotated so stolen sessions die with the old password,
// and the code slot is cleared in the same write.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, oobCode, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if !e.IsValidPassword(newPassword) {
		return ErrPasswordPolicy
	}

	user, err := e.GetUserByOobCode(ctx, oobCode)
	if err != nil {
		return err
	}
	if user.data.OobMode != OobResetPassword {
		e.metricInc(MetricOobInvalid)
		return ErrOobInvalid
	}

	if err := user.SetPassword(newPassword).SetRefreshToken().SetOob(OobNone).Save(ctx); err != nil {
		return err
	}

	e.resetLoginThrottle(ctx, user.data.Email)
	e.metricInc(MetricOobConsumed)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventOobConfirm,
		UID:       user.data.UID,
		Email:     user.data.Email,
		Success:   true,
		Metadata:  map[string]string{"mode": string(OobResetPassword)},
	})

	return nil
}

// ConfirmEmailVerification consumes a verification code, marking the email
// verified and clearing the code slot in the same write.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, oobCode string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	user, err := e.GetUserByOobCode(ctx, oobCode)
	if err != nil {
		return err
	}
	if user.data.OobMode != OobVerifyEmail {
		e.metricInc(MetricOobInvalid)
		return ErrOobInvalid
	}

	if err := user.ConfirmEmail().SetOob(OobNone).Save(ctx); err != nil {
		return err
	}

	e.metricInc(MetricOobConsumed)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventOobConfirm,
		UID:       user.data.UID,
		Email:     user.data.Email,
		Success:   true,
		Metadata:  map[string]string{"mode": string(OobVerifyEmail)},
	})

	return nil
}

// AuthActionURL builds the action link embedded in OOB emails. An
// AuthURLBuilder takes full control; otherwise the mode and code are
// appended to Oob.AuthURL, or to a bare fallback path when that is unset.
func (e *Engine) AuthActionURL(mode OobMode, oobCode string) string {
	if e == nil {
		return ""
	}

	if e.config.Oob.AuthURLBuilder != nil {
		return e.config.Oob.AuthURLBuilder(mode, oobCode)
	}

	base := e.config.Oob.AuthURL
	if base == "" {
		base = defaultActionPath
	}

	separator := "?"
	if strings.Contains(base, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%smode=%s&oobCode=%s",
		base, separator, url.QueryEscape(string(mode)), url.QueryEscape(oobCode))
}

/*
====================================
EMAIL ASSEMBLY
====================================
*/

func (e *Engine) sendOobEmail(ctx context.Context, mode OobMode, user *User) error {
	info := user.Info()
	actionURL := e.AuthActionURL(mode, user.data.OobCode)

	subject := e.oobSubject(mode)
	htmlBody := e.oobBody(mode, actionURL, info)

	err := e.mailer.SendEmail(ctx, Email{
		To:        info.Email,
		FromName:  e.config.Oob.SiteName,
		Subject:   subject,
		PlainBody: stripHTML(htmlBody),
		HTMLBody:  htmlBody,
	})
	if err != nil {
		e.metricInc(MetricMailFailure)
		return err
	}

	e.metricInc(MetricMailSent)
	return nil
}

func (e *Engine) oobSubject(mode OobMode) string {
	if e.config.Oob.EmailSubject != nil {
		return e.config.Oob.EmailSubject(mode)
	}

	site := e.config.Oob.SiteName
	switch mode {
	case OobResetPassword:
		if site != "" {
			return "Reset your " + site + " password"
		}
		return "Reset your password"
	case OobVerifyEmail:
		if site != "" {
			return "Verify your email for " + site
		}
		return "Verify your email"
	default:
		return "Account action required"
	}
}

func (e *Engine) oobBody(mode OobMode, actionURL string, info UserInfo) string {
	if e.config.Oob.EmailBody != nil {
		return e.config.Oob.EmailBody(mode, actionURL, info)
	}

	name := info.DisplayName
	if name == "" {
		name = "User"
	}

	var action string
	switch mode {
	case OobResetPassword:
		action = "reset your password"
	case OobVerifyEmail:
		action = "verify your email address"
	default:
		action = "complete the requested action"
	}

	return fmt.Sprintf(
		"<p>Hello %s,</p>"+
			"<p>Click the link below to %s:</p>"+
			"<p><a href=\"%s\">%s</a></p>"+
			"<p>If you did not request this, you can safely ignore this email.</p>",
		name, action, actionURL, actionURL)
}

// stripHTML derives the plain-text alternative from the HTML body.
func stripHTML(html string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(html, " "))
}

/*
====================================
OOB THROTTLE HELPERS
====================================
*/

func (e *Engine) checkOobThrottle(ctx context.Context, identifier string) error {
	if !e.config.Security.EnableOobThrottle || e.limiter == nil {
		return nil
	}

	err := e.limiter.CheckOobRequest(ctx, identifier, clientIPFromContext(ctx))
	return e.mapOobThrottleErr(ctx, identifier, err)
}

func (e *Engine) incrementOobThrottle(ctx context.Context, identifier string) {
	if !e.config.Security.EnableOobThrottle || e.limiter == nil {
		return
	}
	// the budget was already checked; an over-count here only surfaces on
	// the next request
	_ = e.limiter.IncrementOobRequest(ctx, identifier, clientIPFromContext(ctx))
}

func (e *Engine) mapOobThrottleErr(ctx context.Context, identifier string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricOobRateLimited)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventRateLimited,
			Email:     identifier,
			Success:   false,
			Error:     ErrOobRateLimited.Error(),
			Metadata:  map[string]string{"operation": "oob_request"},
		})
		return ErrOobRateLimited
	default:
		return ErrThrottleUnavailable
	}
}
