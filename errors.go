package rowAuth

import "errors"

var (
	// ErrEngineNotReady is returned when a method is called on a nil or
	// unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials covers wrong passwords and undecodable or
	// mismatched tokens. It is deliberately indistinguishable from
	// "no such account" to prevent account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput marks missing or structurally malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidEmail marks a syntactically invalid email address.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrPasswordPolicy marks a password shorter than the minimum length.
	ErrPasswordPolicy = errors.New("password must be at least 7 characters")
	// ErrUserExists is returned by stores on a uid/email/username conflict.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when an account lookup with an existence
	// precondition finds nothing.
	ErrUserNotFound = errors.New("user not found")
	// ErrOobInvalid covers OOB codes that are absent, mismatched, expired,
	// or bound to a different action mode.
	ErrOobInvalid = errors.New("invalid oob code")
	// ErrTokenInvalid covers malformed, tampered, expired, or otherwise
	// unacceptable signed tokens. The specific reason is not surfaced.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrMailerRequired is returned by OOB request operations when the
	// engine was built without a mailer.
	ErrMailerRequired = errors.New("mailer required")
	// ErrLoginRateLimited is returned when the optional login throttle is
	// active and the attempt budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrOobRateLimited is returned when the optional OOB request throttle
	// is active and the request budget is exhausted.
	ErrOobRateLimited = errors.New("oob request rate limited")
	// ErrThrottleUnavailable is returned when a configured throttle backend
	// cannot be reached.
	ErrThrottleUnavailable = errors.New("throttle backend unavailable")
	// ErrProviderUnsupported is returned for OAuth providers the engine
	// cannot extract a profile from.
	ErrProviderUnsupported = errors.New("unsupported identity provider")
	// ErrProviderUnavailable is returned when a provider userinfo endpoint
	// cannot be reached or returns an unusable response.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)
