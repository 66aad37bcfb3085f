// Package redistore is the Redis-backed UserStore adapter. Each account is
// one JSON value; lookups by field go through index keys claimed with SETNX,
// which doubles as the uniqueness guarantee.
package redistore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/rowAuth"
)

// DefaultPrefix namespaces all keys when New is given an empty prefix.
const DefaultPrefix = "ra"

// ErrUnsupportedField is returned for lookup fields this adapter does not
// index.
var ErrUnsupportedField = errors.New("redistore: unsupported lookup field")

// indexedFields are the lookup fields maintained as index keys. They are
// exactly the Field* constants every adapter must support.
var indexedFields = []string{
	rowAuth.FieldUID,
	rowAuth.FieldEmail,
	rowAuth.FieldUsername,
	rowAuth.FieldRefreshToken,
	rowAuth.FieldOobCode,
}

// Store implements rowAuth.UserStore on a Redis client. Safe for concurrent
// use; atomicity of index claims relies on SETNX.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New returns a Store using the given client. An empty prefix falls back to
// [DefaultPrefix].
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// GetUser implements rowAuth.UserStore.
func (s *Store) GetUser(ctx context.Context, finder rowAuth.Finder) (*rowAuth.UserRecord, error) {
	id, err := s.resolveID(ctx, finder)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// AddUser implements rowAuth.UserStore. The row key comes from an INCR
// sequence; index keys are claimed before the row is written, so a conflict
// never leaves a half-visible account.
func (s *Store) AddUser(ctx context.Context, record *rowAuth.UserRecord) error {
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("redistore: assign id: %w", err)
	}
	id := strconv.FormatInt(seq, 10)

	stored := record.Clone()
	stored.ID = id
	stored.IsNewUser = false

	if err := s.claimIndexes(ctx, stored, nil); err != nil {
		return err
	}
	if err := s.write(ctx, stored); err != nil {
		s.dropIndexes(ctx, stored)
		return err
	}

	record.ID = id
	return nil
}

// UpdateUser implements rowAuth.UserStore. Changed index fields claim their
// new key before releasing the old one.
func (s *Store) UpdateUser(ctx context.Context, finder rowAuth.Finder, record *rowAuth.UserRecord) error {
	id, err := s.resolveID(ctx, finder)
	if err != nil {
		return err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	stored := record.Clone()
	stored.ID = id
	stored.IsNewUser = false

	if err := s.claimIndexes(ctx, stored, current); err != nil {
		return err
	}
	if err := s.write(ctx, stored); err != nil {
		return err
	}

	// release index keys for values the update abandoned
	for _, field := range indexedFields {
		oldValue := fieldValue(current, field)
		if oldValue != "" && oldValue != fieldValue(stored, field) {
			s.client.Del(ctx, s.idxKey(field, oldValue))
		}
	}

	return nil
}

// DeleteUser implements rowAuth.UserStore.
func (s *Store) DeleteUser(ctx context.Context, finder rowAuth.Finder) error {
	id, err := s.resolveID(ctx, finder)
	if err != nil {
		return err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	keys := []string{s.userKey(id)}
	for _, field := range indexedFields {
		if value := fieldValue(current, field); value != "" {
			keys = append(keys, s.idxKey(field, value))
		}
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redistore: delete: %w", err)
	}

	return nil
}

/*
====================================
INTERNALS
====================================
*/

func (s *Store) resolveID(ctx context.Context, finder rowAuth.Finder) (string, error) {
	if id, ok := finder.IsByID(); ok {
		return id, nil
	}

	field, value, ok := finder.IsByField()
	if !ok || value == "" {
		return "", rowAuth.ErrUserNotFound
	}
	if !isIndexed(field) {
		return "", ErrUnsupportedField
	}

	id, err := s.client.Get(ctx, s.idxKey(field, value)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", rowAuth.ErrUserNotFound
		}
		return "", fmt.Errorf("redistore: index lookup: %w", err)
	}

	return id, nil
}

func (s *Store) load(ctx context.Context, id string) (*rowAuth.UserRecord, error) {
	raw, err := s.client.Get(ctx, s.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, rowAuth.ErrUserNotFound
		}
		return nil, fmt.Errorf("redistore: load: %w", err)
	}

	var record rowAuth.UserRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("redistore: decode: %w", err)
	}

	return &record, nil
}

func (s *Store) write(ctx context.Context, record *rowAuth.UserRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redistore: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.userKey(record.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("redistore: write: %w", err)
	}
	return nil
}

// claimIndexes claims an index key for every non-empty indexed field whose
// value is new relative to current. A failed claim rolls back the ones made
// before it and reports [rowAuth.ErrUserExists].
func (s *Store) claimIndexes(ctx context.Context, record, current *rowAuth.UserRecord) error {
	var claimed []string

	rollback := func() {
		if len(claimed) > 0 {
			s.client.Del(ctx, claimed...)
		}
	}

	for _, field := range indexedFields {
		value := fieldValue(record, field)
		if value == "" {
			continue
		}
		if current != nil && fieldValue(current, field) == value {
			continue
		}

		key := s.idxKey(field, value)
		ok, err := s.client.SetNX(ctx, key, record.ID, 0).Result()
		if err != nil {
			rollback()
			return fmt.Errorf("redistore: claim index: %w", err)
		}
		if !ok {
			rollback()
			return rowAuth.ErrUserExists
		}
		claimed = append(claimed, key)
	}

	return nil
}

func (s *Store) dropIndexes(ctx context.Context, record *rowAuth.UserRecord) {
	var keys []string
	for _, field := range indexedFields {
		if value := fieldValue(record, field); value != "" {
			keys = append(keys, s.idxKey(field, value))
		}
	}
	if len(keys) > 0 {
		s.client.Del(ctx, keys...)
	}
}

func (s *Store) userKey(id string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, id)
}

func (s *Store) seqKey() string {
	return s.prefix + ":user:seq"
}

func (s *Store) idxKey(field, value string) string {
	return fmt.Sprintf("%s:idx:%s:%s", s.prefix, field, value)
}

func isIndexed(field string) bool {
	for _, f := range indexedFields {
		if f == field {
			return true
		}
	}
	return false
}

func fieldValue(record *rowAuth.UserRecord, field string) string {
	switch field {
	case rowAuth.FieldUID:
		return record.UID
	case rowAuth.FieldEmail:
		return record.Email
	case rowAuth.FieldUsername:
		return record.Username
	case rowAuth.FieldRefreshToken:
		return record.RefreshToken
	case rowAuth.FieldOobCode:
		return record.OobCode
	default:
		return ""
	}
}
