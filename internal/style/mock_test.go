package style

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kalambet/idiolect/internal/storage"
)

// --- Mock document store ---

type mockDocStore struct {
	mu   sync.Mutex
	docs map[string]string

	getErr  error
	saveErr error
	saves   int
}

func newMockDocStore() *mockDocStore {
	return &mockDocStore{docs: make(map[string]string)}
}

func (m *mockDocStore) GetStyleDocument(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	d, ok := m.docs[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return d, nil
}

func (m *mockDocStore) SaveStyleDocument(key, document string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.docs[key] = document
	return nil
}

func (m *mockDocStore) ListStyleKeys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// --- Mock cross-process locker ---

// lockingDocStore adds a KeyLocker to mockDocStore and records lock traffic.
type lockingDocStore struct {
	*mockDocStore

	lockErr  error
	locked   map[string]bool
	locks    int
	unlocks  int
	overlaps int
}

func newLockingDocStore() *lockingDocStore {
	return &lockingDocStore{mockDocStore: newMockDocStore(), locked: make(map[string]bool)}
}

func (m *lockingDocStore) LockStyle(key string) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	if m.locked[key] {
		m.overlaps++
	}
	m.locked[key] = true
	m.locks++
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.locked[key] = false
		m.unlocks++
		return nil
	}, nil
}

// --- Mock history ---

type mockHistory struct {
	messages map[string][]string
	err      error

	// afterList runs after the snapshot is taken, before it is returned.
	afterList func(key string)
}

func (m *mockHistory) ListUserMessages(_ context.Context, key string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	snapshot := append([]string(nil), m.messages[key]...)
	if m.afterList != nil {
		m.afterList(key)
	}
	return snapshot, nil
}

func (m *mockHistory) ListMessageStyleKeys(_ context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	keys := make([]string, 0, len(m.messages))
	for k := range m.messages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestClock() *mockClock {
	return &mockClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func newTestAnalyzer() (*Analyzer, *mockClock) {
	clock := newTestClock()
	return NewAnalyzerWithClock(DefaultVocabulary(), 0, clock), clock
}

var errDiskFull = errors.New("disk full")
