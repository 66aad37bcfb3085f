package rowAuth

import "context"

// ProviderID identifies how an account was created.
type ProviderID string

const (
	// ProviderPassword marks accounts created with an email/password pair.
	ProviderPassword ProviderID = "password"
	// ProviderCustom marks accounts provisioned through a signed custom token.
	ProviderCustom ProviderID = "custom"
	// ProviderAnonymous marks throwaway accounts with no credentials.
	ProviderAnonymous ProviderID = "anonymous"
	// ProviderGoogle marks accounts created from a Google profile.
	ProviderGoogle ProviderID = "google.com"
	// ProviderFacebook marks accounts created from a Facebook profile.
	ProviderFacebook ProviderID = "facebook.com"
	// ProviderTwitter marks accounts created from a Twitter profile.
	ProviderTwitter ProviderID = "twitter.com"
)

// OobMode is the action an out-of-band code authorizes. A user has at most
// one active OOB slot; issuing a new code overwrites the previous one.
type OobMode string

const (
	// OobNone means no OOB action is pending. The code slot is empty.
	OobNone OobMode = "none"
	// OobResetPassword authorizes a password reset.
	OobResetPassword OobMode = "resetPassword"
	// OobVerifyEmail authorizes marking the account email as verified.
	OobVerifyEmail OobMode = "verifyEmail"
)

// UserRecord is one row of the user table. ID is the store-assigned row key;
// UID is the application-level identifier and never changes once set.
// Timestamps are epoch milliseconds.
type UserRecord struct {
	ID  string
	UID string

	ProviderID    ProviderID
	Email         string
	EmailVerified bool
	Username      string
	PhoneNumber   string
	DisplayName   string
	PhotoURL      string
	Bio           string
	URL           string
	Addresses     string

	PasswordHash   string
	RefreshToken   string
	TokenTimestamp int64

	OobCode      string
	OobMode      OobMode
	OobTimestamp int64

	Claims         map[string]any
	Settings       map[string]bool
	AdditionalData map[string]any

	CreatedAt int64
	LastLogin int64

	// IsNewUser is transient: set when the engine provisions the account in
	// the current request, never persisted by store adapters.
	IsNewUser bool
}

// Clone returns a deep copy of the record. Store adapters copy on read and
// write so no two requests ever share a record.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Claims = cloneAnyMap(r.Claims)
	out.Settings = cloneBoolMap(r.Settings)
	out.AdditionalData = cloneAnyMap(r.AdditionalData)
	return &out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// UserInfo is the full read view of an account: everything except secret
// fields (password hash, refresh token, OOB slot).
type UserInfo struct {
	UID            string          `json:"uid"`
	ProviderID     ProviderID      `json:"providerId,omitempty"`
	Email          string          `json:"email,omitempty"`
	EmailVerified  bool            `json:"emailVerified"`
	CreatedAt      int64           `json:"createdAt,omitempty"`
	LastLogin      int64           `json:"lastLogin,omitempty"`
	Username       string          `json:"username,omitempty"`
	PhoneNumber    string          `json:"phoneNumber,omitempty"`
	DisplayName    string          `json:"displayName,omitempty"`
	PhotoURL       string          `json:"photoURL,omitempty"`
	Bio            string          `json:"bio,omitempty"`
	URL            string          `json:"url,omitempty"`
	Addresses      string          `json:"addresses,omitempty"`
	Claims         map[string]any  `json:"claims,omitempty"`
	Settings       map[string]bool `json:"settings,omitempty"`
	AdditionalData map[string]any  `json:"additionalData,omitempty"`
	IsAnonymous    bool            `json:"isAnonymous"`
	IsNewUser      bool            `json:"isNewUser"`
}

// UserProfile is the restricted read view shared with other users. Secret
// fields never appear; [User.PublicProfile] additionally blanks every field
// the owner has not flagged public in Settings.
type UserProfile struct {
	UID            string         `json:"uid"`
	Email          string         `json:"email,omitempty"`
	CreatedAt      int64          `json:"createdAt,omitempty"`
	PhoneNumber    string         `json:"phoneNumber,omitempty"`
	DisplayName    string         `json:"displayName,omitempty"`
	PhotoURL       string         `json:"photoURL,omitempty"`
	Bio            string         `json:"bio,omitempty"`
	URL            string         `json:"url,omitempty"`
	Addresses      string         `json:"addresses,omitempty"`
	Claims         map[string]any `json:"claims,omitempty"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// EditableProfile carries the only fields [User.UpdateProfile] will copy.
// Empty fields are skipped, not cleared.
type EditableProfile struct {
	DisplayName string
	PhotoURL    string
	Bio         string
	URL         string
	Addresses   string
	PhoneNumber string
	Username    string
}

// Lookup field names understood by [ByField]. Store adapters index these;
// other field names are adapter-defined and may be rejected.
const (
	FieldUID          = "uid"
	FieldEmail        = "email"
	FieldUsername     = "username"
	FieldRefreshToken = "refreshToken"
	FieldOobCode      = "oobCode"
)

type finderKind uint8

const (
	findByID finderKind = iota
	findByField
)

// Finder selects at most one row: either by the store-assigned row key or by
// a single-field equality predicate. The store is expected to enforce
// uniqueness on the indexed fields; if multiple rows match, which one is
// returned is undefined.
type Finder struct {
	kind  finderKind
	id    string
	field string
	value string
}

// ByID selects a row by its store-assigned key.
func ByID(id string) Finder {
	return Finder{kind: findByID, id: id}
}

// ByField selects a row by single-field equality. See the Field* constants
// for the names every adapter must support.
func ByField(field, value string) Finder {
	return Finder{kind: findByField, field: field, value: value}
}

// IsByID reports whether the finder selects by row key, returning the key.
func (f Finder) IsByID() (string, bool) {
	return f.id, f.kind == findByID
}

// IsByField reports whether the finder is a field predicate, returning the
// field name and expected value.
func (f Finder) IsByField() (field, value string, ok bool) {
	return f.field, f.value, f.kind == findByField
}

// UserStore is the persistence collaborator: one row per account.
//
// GetUser returns [ErrUserNotFound] when no row matches. AddUser assigns the
// row key and writes it back into record.ID. Implementations must enforce
// uniqueness of uid, email, and username (empty values excluded) and return
// [ErrUserExists] on conflict.
type UserStore interface {
	GetUser(ctx context.Context, finder Finder) (*UserRecord, error)
	AddUser(ctx context.Context, record *UserRecord) error
	UpdateUser(ctx context.Context, finder Finder, record *UserRecord) error
	DeleteUser(ctx context.Context, finder Finder) error
}

// Email is an outbound message handed to the [Mailer]. PlainBody is always
// set; HTMLBody may be empty.
type Email struct {
	To        string
	FromName  string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Mailer delivers OOB action emails. The engine never retries a failed send.
type Mailer interface {
	SendEmail(ctx context.Context, email Email) error
}
