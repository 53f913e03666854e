package style

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/idiolect/internal/storage"
)

// DocumentStore defines the storage operations the Store needs.
// Implemented by storage.Store and redisstore.Store. Missing keys must be
// reported as storage.ErrNotFound.
type DocumentStore interface {
	GetStyleDocument(key string) (string, error)
	SaveStyleDocument(key, document string) error
	ListStyleKeys() ([]string, error)
}

// Store loads and saves whole Profile documents, one per style key.
type Store struct {
	docs DocumentStore
}

// NewStore creates a Store over docs.
func NewStore(docs DocumentStore) *Store {
	return &Store{docs: docs}
}

// Load returns the profile stored under key, or an empty profile if none
// exists. A document that fails to decode is reported as a
// *CorruptProfileError, never replaced silently.
func (s *Store) Load(key string) (Profile, error) {
	if err := validateKey(key); err != nil {
		return Profile{}, err
	}
	doc, err := s.docs.GetStyleDocument(key)
	if errors.Is(err, storage.ErrNotFound) {
		return NewProfile(), nil
	}
	if err != nil {
		return Profile{}, &StorageError{Op: "load", Key: key, Err: err}
	}

	var p Profile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return Profile{}, &CorruptProfileError{Key: key, Err: err}
	}
	p.normalize()
	if err := p.validate(); err != nil {
		return Profile{}, &CorruptProfileError{Key: key, Err: err}
	}
	return p, nil
}

// Save overwrites the document stored under key.
func (s *Store) Save(key string, p Profile) error {
	if err := validateKey(key); err != nil {
		return err
	}
	p.normalize()
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshalling profile %q: %w", key, err)
	}
	if err := s.docs.SaveStyleDocument(key, string(b)); err != nil {
		return &StorageError{Op: "save", Key: key, Err: err}
	}
	return nil
}

// KeyLocker is implemented by document stores that several processes write
// to. LockStyle blocks until key is exclusively held and returns the release
// func.
type KeyLocker interface {
	LockStyle(key string) (unlock func() error, err error)
}

// lock takes the backend's cross-process lock for key when it has one.
func (s *Store) lock(key string) (func(), error) {
	locker, ok := s.docs.(KeyLocker)
	if !ok {
		return func() {}, nil
	}
	unlock, err := locker.LockStyle(key)
	if err != nil {
		return nil, &StorageError{Op: "lock", Key: key, Err: err}
	}
	return func() {
		if err := unlock(); err != nil {
			slog.Warn("releasing style lock", "style_key", key, "error", err)
		}
	}, nil
}

// Keys lists every style key with a stored profile.
func (s *Store) Keys() ([]string, error) {
	keys, err := s.docs.ListStyleKeys()
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return keys, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
