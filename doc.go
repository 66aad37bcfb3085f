// Package rowAuth provides email/password and custom-token authentication for
// applications backed by a row-oriented user table, with stateless HS256 ID
// tokens, rotating opaque refresh tokens, and out-of-band (OOB) action codes
// for password reset and email verification.
//
// The package is designed as a core: persistence, mail delivery, and HTTP
// routing are external collaborators. Callers supply a [UserStore] (one row
// per account) and optionally a [Mailer]; everything else — credential
// verification, token issuance, OOB lifecycle — lives here. Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// rowAuth is the public surface. It exposes [Engine], [Builder], [Config],
// [User], and value types (UserRecord, UserInfo, UserProfile, AuditEvent).
// Token signing lives in the token sub-package, password hashing in the
// password sub-package, and reference store adapters under store/. Nothing
// under internal/ is exported.
//
// # What this package must NOT do
//
//   - Enforce uniqueness of email/username/uid: that is the store's job. The
//     engine performs read-then-write without locking.
//   - Retry store or mail operations. A failed write surfaces to the caller.
//   - Keep server-side session state. "Authenticated" means the caller holds
//     a [User] handle for the current request; persistence of that fact is
//     entirely the bearer token and refresh token the client stores.
package rowAuth
