package rowAuth

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"
)

/*
====================================
MOCK STORE
====================================
*/

// mockStore is a minimal in-memory UserStore for engine tests. forcedErr,
// when set, is returned by every call.
type mockStore struct {
	mu        sync.Mutex
	seq       int
	rows      map[string]*UserRecord
	forcedErr error
}

func newMockStore() *mockStore {
	return &mockStore{rows: make(map[string]*UserRecord)}
}

func (s *mockStore) GetUser(_ context.Context, finder Finder) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forcedErr != nil {
		return nil, s.forcedErr
	}
	record, err := s.find(finder)
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

func (s *mockStore) AddUser(_ context.Context, record *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forcedErr != nil {
		return s.forcedErr
	}
	for _, existing := range s.rows {
		if record.UID != "" && existing.UID == record.UID {
			return ErrUserExists
		}
		if record.Email != "" && existing.Email == record.Email {
			return ErrUserExists
		}
	}

	s.seq++
	id := strconv.Itoa(s.seq)
	stored := record.Clone()
	stored.ID = id
	stored.IsNewUser = false
	s.rows[id] = stored
	record.ID = id

	return nil
}

func (s *mockStore) UpdateUser(_ context.Context, finder Finder, record *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forcedErr != nil {
		return s.forcedErr
	}
	current, err := s.find(finder)
	if err != nil {
		return err
	}

	stored := record.Clone()
	stored.ID = current.ID
	stored.IsNewUser = false
	s.rows[current.ID] = stored

	return nil
}

func (s *mockStore) DeleteUser(_ context.Context, finder Finder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forcedErr != nil {
		return s.forcedErr
	}
	current, err := s.find(finder)
	if err != nil {
		return err
	}
	delete(s.rows, current.ID)

	return nil
}

func (s *mockStore) find(finder Finder) (*UserRecord, error) {
	if id, ok := finder.IsByID(); ok {
		record, ok := s.rows[id]
		if !ok {
			return nil, ErrUserNotFound
		}
		return record, nil
	}

	field, value, _ := finder.IsByField()
	if value == "" {
		return nil, ErrUserNotFound
	}
	for _, record := range s.rows {
		var got string
		switch field {
		case FieldUID:
			got = record.UID
		case FieldEmail:
			got = record.Email
		case FieldUsername:
			got = record.Username
		case FieldRefreshToken:
			got = record.RefreshToken
		case FieldOobCode:
			got = record.OobCode
		}
		if got == value {
			return record, nil
		}
	}

	return nil, ErrUserNotFound
}

// raw returns the stored record without cloning, for direct assertions.
func (s *mockStore) raw(finder Finder) *UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.find(finder)
	if err != nil {
		return nil
	}
	return record
}

func (s *mockStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

/*
====================================
MOCK MAILER AND CLOCK
====================================
*/

type mockMailer struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (m *mockMailer) SendEmail(_ context.Context, email Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *mockMailer) last(t *testing.T) Email {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sent) == 0 {
		t.Fatal("no email was sent")
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

/*
====================================
FIXTURE
====================================
*/

type fixture struct {
	engine *Engine
	store  *mockStore
	mailer *mockMailer
	clock  *testClock
}

func testEngineConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	// cheap hashing keeps the suite fast
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.SaltLength = 16
	cfg.Password.KeyLength = 16
	cfg.Metrics.Enabled = true
	return cfg
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	cfg := testEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := newMockStore()
	mailer := &mockMailer{}
	clock := newTestClock()

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithMailer(mailer).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &fixture{engine: engine, store: store, mailer: mailer, clock: clock}
}

// signUp creates an account through the public API and returns the handle.
func (f *fixture) signUp(t *testing.T, email, password string) *User {
	t.Helper()

	user, err := f.engine.GetUserByEmailAndPassword(context.Background(), email, password)
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return user
}
