// Package redisstore keeps style profile documents in Redis so several
// idiolect processes can share them. Every load-analyze-save on a key runs
// under a SET NX lock at "{prefix}:lock:{key}" that only its owner can release.
// Messages and jobs stay in SQLite.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kalambet/idiolect/internal/storage"
)

// DefaultPrefix namespaces keys when no prefix is configured.
const DefaultPrefix = "idiolect"

const (
	// lockTTL bounds how long a crashed holder can block a key.
	lockTTL       = 30 * time.Second
	lockWait      = 10 * time.Second
	lockRetryWait = 20 * time.Millisecond
)

// ErrLockTimeout is returned when a style key stays locked past the wait.
var ErrLockTimeout = errors.New("timed out waiting for style lock")

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store implements style.DocumentStore over Redis.
// Documents live under "{prefix}:style:{key}".
type Store struct {
	client   redis.UniversalClient
	prefix   string
	ctx      context.Context
	lockWait time.Duration
}

// New wraps an existing client. An empty prefix uses DefaultPrefix.
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		client:   client,
		prefix:   prefix,
		ctx:      context.Background(),
		lockWait: lockWait,
	}
}

// Open connects to addr and verifies the server answers PING.
func Open(addr, prefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	return New(client, prefix), nil
}

func (s *Store) styleKey(key string) string {
	return fmt.Sprintf("%s:style:%s", s.prefix, key)
}

// GetStyleDocument returns the raw document for key, or storage.ErrNotFound.
func (s *Store) GetStyleDocument(key string) (string, error) {
	val, err := s.client.Get(s.ctx, s.styleKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// SaveStyleDocument overwrites the document for key. A single SET replaces
// the value atomically.
func (s *Store) SaveStyleDocument(key, document string) error {
	return s.client.Set(s.ctx, s.styleKey(key), document, 0).Err()
}

// ListStyleKeys scans for every stored style key, sorted.
func (s *Store) ListStyleKeys() ([]string, error) {
	prefix := fmt.Sprintf("%s:style:", s.prefix)
	var keys []string
	iter := s.client.Scan(s.ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(s.ctx) {
		if k := strings.TrimPrefix(iter.Val(), prefix); k != "" {
			keys = append(keys, k)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// LockStyle blocks until it holds the cross-process lock for key, or fails
// with ErrLockTimeout. The returned func releases the lock only if it is
// still ours.
func (s *Store) LockStyle(key string) (func() error, error) {
	lk := fmt.Sprintf("%s:lock:%s", s.prefix, key)
	token := uuid.NewString()
	deadline := time.Now().Add(s.lockWait)
	for {
		ok, err := s.client.SetNX(s.ctx, lk, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("locking %q: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %q", ErrLockTimeout, key)
		}
		time.Sleep(lockRetryWait)
	}
	return func() error {
		return unlockScript.Run(s.ctx, s.client, []string{lk}, token).Err()
	}, nil
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) Close() error {
	return s.client.Close()
}
