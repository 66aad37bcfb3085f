package rowAuth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/MrEthical07/rowAuth/token"
)

// settingsPrefix marks the per-field visibility flags inside Settings, so
// they never collide with application settings.
const settingsPrefix = "$"

// User is a handle on one account record, bound to the engine that loaded
// it. Mutators change only the in-memory record and return the handle for
// chaining; nothing touches the store until [User.Save]. A handle is not
// safe for concurrent use.
type User struct {
	engine *Engine
	data   *UserRecord
	err    error
}

// Err returns the first deferred mutator error, if any. Save surfaces it too.
func (u *User) Err() error {
	if u == nil {
		return ErrEngineNotReady
	}
	return u.err
}

// UID returns the account's application-level identifier.
func (u *User) UID() string {
	if u == nil || u.data == nil {
		return ""
	}
	return u.data.UID
}

// Record returns a deep copy of the underlying row. Mutating the copy does
// not affect the handle.
func (u *User) Record() *UserRecord {
	if u == nil {
		return nil
	}
	return u.data.Clone()
}

// Provider returns how the account was created.
func (u *User) Provider() ProviderID {
	if u == nil || u.data == nil {
		return ""
	}
	return u.data.ProviderID
}

/*
====================================
READ VIEWS
====================================
*/

// Info returns the full owner-facing view of the account. Secret fields
// (password hash, refresh token, OOB slot) never appear in it.
func (u *User) Info() UserInfo {
	if u == nil || u.data == nil {
		return UserInfo{}
	}

	d := u.data
	return UserInfo{
		UID:            d.UID,
		ProviderID:     d.ProviderID,
		Email:          d.Email,
		EmailVerified:  d.EmailVerified,
		CreatedAt:      d.CreatedAt,
		LastLogin:      d.LastLogin,
		Username:       d.Username,
		PhoneNumber:    d.PhoneNumber,
		DisplayName:    d.DisplayName,
		PhotoURL:       d.PhotoURL,
		Bio:            d.Bio,
		URL:            d.URL,
		Addresses:      d.Addresses,
		Claims:         cloneAnyMap(d.Claims),
		Settings:       cloneBoolMap(d.Settings),
		AdditionalData: cloneAnyMap(d.AdditionalData),
		IsAnonymous:    d.Email == "" && d.ProviderID == ProviderAnonymous,
		IsNewUser:      d.IsNewUser,
	}
}

// Profile returns the unfiltered restricted view: profile fields only, no
// secrets, no settings.
func (u *User) Profile() *UserProfile {
	if u == nil || u.data == nil {
		return nil
	}

	d := u.data
	return &UserProfile{
		UID:            d.UID,
		Email:          d.Email,
		CreatedAt:      d.CreatedAt,
		PhoneNumber:    d.PhoneNumber,
		DisplayName:    d.DisplayName,
		PhotoURL:       d.PhotoURL,
		Bio:            d.Bio,
		URL:            d.URL,
		Addresses:      d.Addresses,
		Claims:         cloneAnyMap(d.Claims),
		AdditionalData: cloneAnyMap(d.AdditionalData),
	}
}

// PublicProfile returns the view shown to other users. DisplayName, PhotoURL,
// Bio, URL, and CreatedAt are always visible; email, phone number, and
// addresses require the owner's "$field" opt-in in Settings. AdditionalData
// is included wholesale under "$additionalData", or key by key under
// "$additionalData.<key>".
func (u *User) PublicProfile() *UserProfile {
	profile := u.Profile()
	if profile == nil {
		return nil
	}

	settings := u.data.Settings
	if !settings[settingsPrefix+FieldEmail] {
		profile.Email = ""
	}
	if !settings[settingsPrefix+"phoneNumber"] {
		profile.PhoneNumber = ""
	}
	if !settings[settingsPrefix+"addresses"] {
		profile.Addresses = ""
	}
	if !settings[settingsPrefix+"claims"] {
		profile.Claims = nil
	}

	if settings[settingsPrefix+"additionalData"] {
		return profile
	}
	var kept map[string]any
	for key, value := range profile.AdditionalData {
		if settings[settingsPrefix+"additionalData."+key] {
			if kept == nil {
				kept = make(map[string]any)
			}
			kept[key] = value
		}
	}
	profile.AdditionalData = kept

	return profile
}

/*
====================================
TOKENS AND PASSWORDS
====================================
*/

// IDToken signs a fresh ID token for the account. Custom claims ride along;
// the reserved id/uid/sub fields always reflect the record.
func (u *User) IDToken() (string, error) {
	if u == nil || u.engine == nil {
		return "", ErrEngineNotReady
	}

	d := u.data
	claims := make(map[string]any, len(d.Claims)+3)
	for k, v := range d.Claims {
		claims[k] = v
	}
	claims["id"] = d.ID
	claims["uid"] = d.UID
	claims["sub"] = d.Email

	return u.engine.tokens.SignTyped(token.TypeID, claims)
}

// ComparePassword verifies a candidate password against the stored hash.
// Accounts without a password (anonymous, provider-created) never match.
func (u *User) ComparePassword(password string) bool {
	if u == nil || u.engine == nil || u.data.PasswordHash == "" {
		return false
	}
	ok, err := u.engine.passwords.Verify(password, u.data.PasswordHash)
	return err == nil && ok
}

/*
====================================
MUTATORS
====================================
*/

// UpdateProfile copies the non-empty fields of profile onto the record.
// Empty fields are left untouched, so a partial update never clears data.
func (u *User) UpdateProfile(profile EditableProfile) *User {
	if u == nil || u.data == nil {
		return u
	}

	d := u.data
	if profile.DisplayName != "" {
		d.DisplayName = profile.DisplayName
	}
	if profile.PhotoURL != "" {
		d.PhotoURL = profile.PhotoURL
	}
	if profile.Bio != "" {
		d.Bio = profile.Bio
	}
	if profile.URL != "" {
		d.URL = profile.URL
	}
	if profile.Addresses != "" {
		d.Addresses = profile.Addresses
	}
	if profile.PhoneNumber != "" {
		d.PhoneNumber = profile.PhoneNumber
	}
	if profile.Username != "" {
		d.Username = profile.Username
	}

	return u
}

// SetAdditionalData merges data into the record's additional data. Existing
// keys are overwritten; a nil value removes the key.
func (u *User) SetAdditionalData(data map[string]any) *User {
	if u == nil || u.data == nil {
		return u
	}

	if u.data.AdditionalData == nil {
		u.data.AdditionalData = make(map[string]any, len(data))
	}
	for k, v := range data {
		if v == nil {
			delete(u.data.AdditionalData, k)
			continue
		}
		u.data.AdditionalData[k] = v
	}

	return u
}

// SetSettings merges settings into the record's settings map.
func (u *User) SetSettings(settings map[string]bool) *User {
	if u == nil || u.data == nil {
		return u
	}

	if u.data.Settings == nil {
		u.data.Settings = make(map[string]bool, len(settings))
	}
	for k, v := range settings {
		u.data.Settings[k] = v
	}

	return u
}

// SetProfilePublicly flags the given profile fields as visible in
// [User.PublicProfile].
func (u *User) SetProfilePublicly(fields ...string) *User {
	return u.setFieldVisibility(true, fields)
}

// SetProfilePrivately removes the public flag from the given profile fields.
func (u *User) SetProfilePrivately(fields ...string) *User {
	return u.setFieldVisibility(false, fields)
}

func (u *User) setFieldVisibility(public bool, fields []string) *User {
	if u == nil || u.data == nil {
		return u
	}

	if u.data.Settings == nil {
		u.data.Settings = make(map[string]bool, len(fields))
	}
	for _, field := range fields {
		field = strings.TrimPrefix(field, settingsPrefix)
		if field == "" {
			continue
		}
		u.data.Settings[settingsPrefix+field] = public
	}

	return u
}

// UpdateClaims merges claims into the record's custom token claims. A nil
// value removes the key.
func (u *User) UpdateClaims(claims map[string]any) *User {
	if u == nil || u.data == nil {
		return u
	}

	if u.data.Claims == nil {
		u.data.Claims = make(map[string]any, len(claims))
	}
	for k, v := range claims {
		if v == nil {
			delete(u.data.Claims, k)
			continue
		}
		u.data.Claims[k] = v
	}

	return u
}

// SetLastLogin stamps the last-login time. The value never moves backwards,
// so a skewed clock cannot erase a newer login.
func (u *User) SetLastLogin() *User {
	if u == nil || u.data == nil || u.engine == nil {
		return u
	}

	if now := u.engine.nowMillis(); now > u.data.LastLogin {
		u.data.LastLogin = now
	}

	return u
}

// SetEmail replaces the account email and clears the verified flag. An
// invalid address is a deferred error surfaced by Save.
func (u *User) SetEmail(email string) *User {
	if u == nil || u.data == nil {
		return u
	}

	if !isValidEmail(email) {
		u.deferErr(ErrInvalidEmail)
		return u
	}
	u.data.Email = email
	u.data.EmailVerified = false

	return u
}

// ConfirmEmail marks the account email as verified.
func (u *User) ConfirmEmail() *User {
	if u == nil || u.data == nil {
		return u
	}
	u.data.EmailVerified = true
	return u
}

// SetUsername replaces the account username.
func (u *User) SetUsername(username string) *User {
	if u == nil || u.data == nil {
		return u
	}
	u.data.Username = username
	return u
}

// SetPhoneNumber replaces the account phone number.
func (u *User) SetPhoneNumber(phoneNumber string) *User {
	if u == nil || u.data == nil {
		return u
	}
	u.data.PhoneNumber = phoneNumber
	return u
}

// SetPassword hashes the password and stores the hash. A policy violation or
// hashing failure is a deferred error surfaced by Save.
func (u *User) SetPassword(password string) *User {
	if u == nil || u.data == nil || u.engine == nil {
		return u
	}

	if !u.engine.IsValidPassword(password) {
		u.deferErr(ErrPasswordPolicy)
		return u
	}
	hash, err := u.engine.passwords.Hash(password)
	if err != nil {
		u.deferErr(err)
		return u
	}
	u.data.PasswordHash = hash

	return u
}

// SetRefreshToken rotates the opaque refresh token, invalidating the old one
// once saved.
func (u *User) SetRefreshToken() *User {
	if u == nil || u.data == nil || u.engine == nil {
		return u
	}

	refresh, err := u.engine.ids.NewRefreshToken()
	if err != nil {
		u.deferErr(err)
		return u
	}
	u.data.RefreshToken = refresh
	u.data.TokenTimestamp = u.engine.nowMillis()

	return u
}

// SetOob rewrites the account's single OOB slot. A real mode mints a fresh
// unguessable code and stamps it; OobNone (or an unknown mode) clears the
// slot entirely, which is how a code is invalidated on use.
func (u *User) SetOob(mode OobMode) *User {
	if u == nil || u.data == nil || u.engine == nil {
		return u
	}

	switch mode {
	case OobResetPassword, OobVerifyEmail:
	default:
		mode = OobNone
	}

	if mode == OobNone {
		u.data.OobCode = ""
		u.data.OobMode = OobNone
		u.data.OobTimestamp = 0
		return u
	}

	sum := sha256.Sum256([]byte(u.data.UID + uuid.NewString()))
	u.data.OobCode = hex.EncodeToString(sum[:])
	u.data.OobMode = mode
	u.data.OobTimestamp = u.engine.nowMillis()

	return u
}

func (u *User) deferErr(err error) {
	if u.err == nil {
		u.err = err
	}
}

/*
====================================
PERSISTENCE
====================================
*/

// Save flushes the record to the store: an insert when the record has no row
// key yet, an update otherwise. A deferred mutator error aborts the save and
// is returned instead.
func (u *User) Save(ctx context.Context) error {
	if u == nil || u.engine == nil {
		return ErrEngineNotReady
	}
	if u.err != nil {
		err := u.err
		u.err = nil
		return err
	}

	if u.data.ID == "" {
		return u.engine.store.AddUser(ctx, u.data)
	}
	return u.engine.store.UpdateUser(ctx, ByID(u.data.ID), u.data)
}

// Delete removes the account row. The handle stays readable afterwards but
// must not be saved.
func (u *User) Delete(ctx context.Context) error {
	if u == nil || u.engine == nil {
		return ErrEngineNotReady
	}
	if u.data.ID == "" {
		return ErrUserNotFound
	}

	if err := u.engine.store.DeleteUser(ctx, ByID(u.data.ID)); err != nil {
		return err
	}

	u.engine.metricInc(MetricAccountDeleted)
	u.engine.emitAudit(ctx, AuditEvent{
		EventType: auditEventAccountDeleted,
		UID:       u.data.UID,
		Email:     u.data.Email,
		Success:   true,
	})
	u.data.ID = ""

	return nil
}
