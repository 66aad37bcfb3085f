// Package memstore is the in-memory UserStore adapter. It backs tests and
// single-process setups; nothing survives a restart.
package memstore

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/MrEthical07/rowAuth"
)

// ErrUnsupportedField is returned for lookup fields this adapter does not
// index.
var ErrUnsupportedField = errors.New("memstore: unsupported lookup field")

// Store holds user rows in a map guarded by one RWMutex. Safe for concurrent
// use. Records are deep-copied on every read and write, so callers never
// share memory with the store.
type Store struct {
	mu   sync.RWMutex
	seq  int64
	rows map[string]*rowAuth.UserRecord
}

// New returns an empty Store.
func New() *Store {
	return &Store{rows: make(map[string]*rowAuth.UserRecord)}
}

// GetUser implements rowAuth.UserStore.
func (s *Store) GetUser(_ context.Context, finder rowAuth.Finder) (*rowAuth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := s.find(finder)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// AddUser implements rowAuth.UserStore. The assigned row key is written back
// into record.ID.
func (s *Store) AddUser(_ context.Context, record *rowAuth.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(record, ""); err != nil {
		return err
	}

	s.seq++
	id := strconv.FormatInt(s.seq, 10)

	stored := record.Clone()
	stored.ID = id
	stored.IsNewUser = false
	s.rows[id] = stored

	record.ID = id
	return nil
}

// UpdateUser implements rowAuth.UserStore. The stored row keeps its key;
// everything else is replaced by record.
func (s *Store) UpdateUser(_ context.Context, finder rowAuth.Finder, record *rowAuth.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.find(finder)
	if err != nil {
		return err
	}
	if err := s.checkUnique(record, current.ID); err != nil {
		return err
	}

	stored := record.Clone()
	stored.ID = current.ID
	stored.IsNewUser = false
	s.rows[current.ID] = stored

	return nil
}

// DeleteUser implements rowAuth.UserStore.
func (s *Store) DeleteUser(_ context.Context, finder rowAuth.Finder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.find(finder)
	if err != nil {
		return err
	}
	delete(s.rows, current.ID)

	return nil
}

// Len reports the number of stored rows. Tests use it.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *Store) find(finder rowAuth.Finder) (*rowAuth.UserRecord, error) {
	if id, ok := finder.IsByID(); ok {
		record, ok := s.rows[id]
		if !ok {
			return nil, rowAuth.ErrUserNotFound
		}
		return record, nil
	}

	field, value, ok := finder.IsByField()
	if !ok || value == "" {
		return nil, rowAuth.ErrUserNotFound
	}

	for _, record := range s.rows {
		got, err := fieldValue(record, field)
		if err != nil {
			return nil, err
		}
		if got == value {
			return record, nil
		}
	}

	return nil, rowAuth.ErrUserNotFound
}

// checkUnique rejects a record whose uid, email, or username collides with a
// different row. Empty values never collide.
func (s *Store) checkUnique(record *rowAuth.UserRecord, selfID string) error {
	for id, existing := range s.rows {
		if id == selfID {
			continue
		}
		if record.UID != "" && existing.UID == record.UID {
			return rowAuth.ErrUserExists
		}
		if record.Email != "" && existing.Email == record.Email {
			return rowAuth.ErrUserExists
		}
		if record.Username != "" && existing.Username == record.Username {
			return rowAuth.ErrUserExists
		}
	}
	return nil
}

func fieldValue(record *rowAuth.UserRecord, field string) (string, error) {
	switch field {
	case rowAuth.FieldUID:
		return record.UID, nil
	case rowAuth.FieldEmail:
		return record.Email, nil
	case rowAuth.FieldUsername:
		return record.Username, nil
	case rowAuth.FieldRefreshToken:
		return record.RefreshToken, nil
	case rowAuth.FieldOobCode:
		return record.OobCode, nil
	default:
		return "", ErrUnsupportedField
	}
}
