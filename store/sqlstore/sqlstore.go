// Package sqlstore is the SQLite-backed UserStore adapter, for hosts that
// want durable single-file storage without an external service. Uniqueness
// of uid, email, and username is enforced by the schema; empty values are
// stored as NULL so they never collide.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/MrEthical07/rowAuth"
)

// ErrUnsupportedField is returned for lookup fields outside the whitelist.
var ErrUnsupportedField = errors.New("sqlstore: unsupported lookup field")

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	uid             TEXT NOT NULL UNIQUE,
	provider_id     TEXT NOT NULL DEFAULT '',
	email           TEXT UNIQUE,
	email_verified  INTEGER NOT NULL DEFAULT 0,
	username        TEXT UNIQUE,
	phone_number    TEXT NOT NULL DEFAULT '',
	display_name    TEXT NOT NULL DEFAULT '',
	photo_url       TEXT NOT NULL DEFAULT '',
	bio             TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	addresses       TEXT NOT NULL DEFAULT '',
	password_hash   TEXT NOT NULL DEFAULT '',
	refresh_token   TEXT UNIQUE,
	token_timestamp INTEGER NOT NULL DEFAULT 0,
	oob_code        TEXT UNIQUE,
	oob_mode        TEXT NOT NULL DEFAULT 'none',
	oob_timestamp   INTEGER NOT NULL DEFAULT 0,
	claims          TEXT NOT NULL DEFAULT '{}',
	settings        TEXT NOT NULL DEFAULT '{}',
	additional_data TEXT NOT NULL DEFAULT '{}',
	created_at      INTEGER NOT NULL DEFAULT 0,
	last_login      INTEGER NOT NULL DEFAULT 0
);
`

const columns = `id, uid, provider_id, email, email_verified, username,
	phone_number, display_name, photo_url, bio, url, addresses,
	password_hash, refresh_token, token_timestamp,
	oob_code, oob_mode, oob_timestamp,
	claims, settings, additional_data, created_at, last_login`

// fieldColumns whitelists the lookup fields and maps them to columns.
var fieldColumns = map[string]string{
	rowAuth.FieldUID:          "uid",
	rowAuth.FieldEmail:        "email",
	rowAuth.FieldUsername:     "username",
	rowAuth.FieldRefreshToken: "refresh_token",
	rowAuth.FieldOobCode:      "oob_code",
}

// Store implements rowAuth.UserStore on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. WAL mode keeps concurrent readers cheap.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetUser implements rowAuth.UserStore.
func (s *Store) GetUser(ctx context.Context, finder rowAuth.Finder) (*rowAuth.UserRecord, error) {
	query, arg, err := whereClause(finder)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+columns+" FROM users WHERE "+query, arg)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rowAuth.ErrUserNotFound
		}
		return nil, err
	}

	return record, nil
}

// AddUser implements rowAuth.UserStore.
func (s *Store) AddUser(ctx context.Context, record *rowAuth.UserRecord) error {
	claims, settings, additional, err := encodeMaps(record)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			uid, provider_id, email, email_verified, username,
			phone_number, display_name, photo_url, bio, url, addresses,
			password_hash, refresh_token, token_timestamp,
			oob_code, oob_mode, oob_timestamp,
			claims, settings, additional_data, created_at, last_login
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.UID, string(record.ProviderID), nullable(record.Email),
		boolInt(record.EmailVerified), nullable(record.Username),
		record.PhoneNumber, record.DisplayName, record.PhotoURL,
		record.Bio, record.URL, record.Addresses,
		record.PasswordHash, nullable(record.RefreshToken), record.TokenTimestamp,
		nullable(record.OobCode), oobModeOrNone(record.OobMode), record.OobTimestamp,
		claims, settings, additional, record.CreatedAt, record.LastLogin,
	)
	if err != nil {
		return mapSQLErr(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlstore: last insert id: %w", err)
	}
	record.ID = strconv.FormatInt(id, 10)

	return nil
}

// UpdateUser implements rowAuth.UserStore.
func (s *Store) UpdateUser(ctx context.Context, finder rowAuth.Finder, record *rowAuth.UserRecord) error {
	query, arg, err := whereClause(finder)
	if err != nil {
		return err
	}
	claims, settings, additional, err := encodeMaps(record)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			uid = ?, provider_id = ?, email = ?, email_verified = ?, username = ?,
			phone_number = ?, display_name = ?, photo_url = ?, bio = ?, url = ?, addresses = ?,
			password_hash = ?, refresh_token = ?, token_timestamp = ?,
			oob_code = ?, oob_mode = ?, oob_timestamp = ?,
			claims = ?, settings = ?, additional_data = ?, created_at = ?, last_login = ?
		WHERE `+query,
		record.UID, string(record.ProviderID), nullable(record.Email),
		boolInt(record.EmailVerified), nullable(record.Username),
		record.PhoneNumber, record.DisplayName, record.PhotoURL,
		record.Bio, record.URL, record.Addresses,
		record.PasswordHash, nullable(record.RefreshToken), record.TokenTimestamp,
		nullable(record.OobCode), oobModeOrNone(record.OobMode), record.OobTimestamp,
		claims, settings, additional, record.CreatedAt, record.LastLogin,
		arg,
	)
	if err != nil {
		return mapSQLErr(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	if affected == 0 {
		return rowAuth.ErrUserNotFound
	}

	return nil
}

// DeleteUser implements rowAuth.UserStore.
func (s *Store) DeleteUser(ctx context.Context, finder rowAuth.Finder) error {
	query, arg, err := whereClause(finder)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE "+query, arg)
	if err != nil {
		return fmt.Errorf("sqlstore: delete: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	if affected == 0 {
		return rowAuth.ErrUserNotFound
	}

	return nil
}

/*
====================================
ROW MAPPING
====================================
*/

func whereClause(finder rowAuth.Finder) (string, any, error) {
	if id, ok := finder.IsByID(); ok {
		return "id = ?", id, nil
	}

	field, value, ok := finder.IsByField()
	if !ok || value == "" {
		return "", nil, rowAuth.ErrUserNotFound
	}
	column, ok := fieldColumns[field]
	if !ok {
		return "", nil, ErrUnsupportedField
	}

	return column + " = ?", value, nil
}

func scanRecord(row *sql.Row) (*rowAuth.UserRecord, error) {
	var (
		record                           rowAuth.UserRecord
		id                               int64
		provider, oobMode                string
		email, username, refresh, oob    sql.NullString
		verified                         int
		claims, settings, additionalData string
	)

	err := row.Scan(
		&id, &record.UID, &provider, &email, &verified, &username,
		&record.PhoneNumber, &record.DisplayName, &record.PhotoURL,
		&record.Bio, &record.URL, &record.Addresses,
		&record.PasswordHash, &refresh, &record.TokenTimestamp,
		&oob, &oobMode, &record.OobTimestamp,
		&claims, &settings, &additionalData,
		&record.CreatedAt, &record.LastLogin,
	)
	if err != nil {
		return nil, err
	}

	record.ID = strconv.FormatInt(id, 10)
	record.ProviderID = rowAuth.ProviderID(provider)
	record.Email = email.String
	record.EmailVerified = verified != 0
	record.Username = username.String
	record.RefreshToken = refresh.String
	record.OobCode = oob.String
	record.OobMode = rowAuth.OobMode(oobMode)

	if err := json.Unmarshal([]byte(claims), &record.Claims); err != nil {
		return nil, fmt.Errorf("sqlstore: decode claims: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &record.Settings); err != nil {
		return nil, fmt.Errorf("sqlstore: decode settings: %w", err)
	}
	if err := json.Unmarshal([]byte(additionalData), &record.AdditionalData); err != nil {
		return nil, fmt.Errorf("sqlstore: decode additional data: %w", err)
	}
	if len(record.Claims) == 0 {
		record.Claims = nil
	}
	if len(record.Settings) == 0 {
		record.Settings = nil
	}
	if len(record.AdditionalData) == 0 {
		record.AdditionalData = nil
	}

	return &record, nil
}

func encodeMaps(record *rowAuth.UserRecord) (claims, settings, additional string, err error) {
	c, err := json.Marshal(orEmptyAny(record.Claims))
	if err != nil {
		return "", "", "", fmt.Errorf("sqlstore: encode claims: %w", err)
	}
	s, err := json.Marshal(orEmptyBool(record.Settings))
	if err != nil {
		return "", "", "", fmt.Errorf("sqlstore: encode settings: %w", err)
	}
	a, err := json.Marshal(orEmptyAny(record.AdditionalData))
	if err != nil {
		return "", "", "", fmt.Errorf("sqlstore: encode additional data: %w", err)
	}
	return string(c), string(s), string(a), nil
}

func orEmptyAny(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyBool(m map[string]bool) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	return m
}

// nullable stores empty strings as NULL so the UNIQUE constraints ignore
// them.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func oobModeOrNone(mode rowAuth.OobMode) string {
	if mode == "" {
		return string(rowAuth.OobNone)
	}
	return string(mode)
}

func mapSQLErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return rowAuth.ErrUserExists
	}
	return fmt.Errorf("sqlstore: %w", err)
}
