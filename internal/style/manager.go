package style

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kalambet/idiolect/internal/observe"
)

// HistoryProvider supplies past user messages for rebuilds.
// Implemented by storage.Store.
type HistoryProvider interface {
	// ListUserMessages returns every user message for styleKey, oldest first.
	ListUserMessages(ctx context.Context, styleKey string) ([]string, error)
	// ListMessageStyleKeys returns every style key that has logged messages.
	ListMessageStyleKeys(ctx context.Context) ([]string, error)
}

// ManagerDeps holds the Manager's collaborators. History and Metrics are
// optional.
type ManagerDeps struct {
	Store    *Store
	Analyzer *Analyzer
	History  HistoryProvider
	Metrics  *observe.Metrics
}

// Manager serializes load-analyze-save per style key. Different keys proceed
// in parallel.
type Manager struct {
	store    *Store
	analyzer *Analyzer
	history  HistoryProvider
	metrics  *observe.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	reads singleflight.Group
}

// NewManager creates a Manager.
func NewManager(deps ManagerDeps) *Manager {
	return &Manager{
		store:    deps.Store,
		analyzer: deps.Analyzer,
		history:  deps.History,
		metrics:  deps.Metrics,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockKey takes the in-process lock for key and then, when the document
// backend is shared between processes, its cross-process lock. The returned
// func releases both.
func (m *Manager) lockKey(key string) (func(), error) {
	l := m.keyLock(key)
	l.Lock()
	release, err := m.store.lock(key)
	if err != nil {
		l.Unlock()
		m.recordStoreError("lock", err)
		return nil, err
	}
	return func() {
		release()
		l.Unlock()
	}, nil
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// UpdateProfile folds text into the profile for key and persists it.
func (m *Manager) UpdateProfile(key, text string) (Profile, error) {
	if err := validateKey(key); err != nil {
		return Profile{}, err
	}
	unlock, err := m.lockKey(key)
	if err != nil {
		return Profile{}, err
	}
	defer unlock()

	p, err := m.store.Load(key)
	if err != nil {
		m.recordStoreError("load", err)
		return Profile{}, err
	}

	pruned := m.analyzer.apply(&p, text)

	if err := m.store.Save(key, p); err != nil {
		m.recordStoreError("save", err)
		return Profile{}, err
	}

	if m.metrics != nil {
		ctx := context.Background()
		m.metrics.MessagesAnalyzed.Add(ctx, 1)
		if pruned > 0 {
			m.metrics.PhrasesPruned.Add(ctx, int64(pruned))
		}
	}
	return p, nil
}

// RebuildProfile discards the stored profile for key and replays messages,
// oldest first.
func (m *Manager) RebuildProfile(key string, messages []string) (Profile, error) {
	if err := validateKey(key); err != nil {
		return Profile{}, err
	}
	unlock, err := m.lockKey(key)
	if err != nil {
		return Profile{}, err
	}
	defer unlock()

	return m.rebuildLocked(key, messages)
}

// RebuildFromHistory replays every logged user message for key. The key stays
// locked from the history read until the save, so an update that lands in
// between waits and is applied on top of the rebuilt profile. ctx bounds only
// the history query; the replay itself runs to completion.
func (m *Manager) RebuildFromHistory(ctx context.Context, key string) (Profile, error) {
	if err := validateKey(key); err != nil {
		return Profile{}, err
	}
	if m.history == nil {
		return Profile{}, errors.New("no message history configured")
	}
	unlock, err := m.lockKey(key)
	if err != nil {
		return Profile{}, err
	}
	defer unlock()

	messages, err := m.history.ListUserMessages(ctx, key)
	if err != nil {
		return Profile{}, &StorageError{Op: "list history", Key: key, Err: err}
	}
	return m.rebuildLocked(key, messages)
}

// rebuildLocked replays messages and saves the result. The caller holds the
// key lock.
func (m *Manager) rebuildLocked(key string, messages []string) (Profile, error) {
	start := time.Now()
	p, pruned := m.analyzer.rebuild(messages)
	if err := m.store.Save(key, p); err != nil {
		m.recordStoreError("save", err)
		m.recordRebuild(start, "error")
		return Profile{}, err
	}
	m.recordRebuild(start, "ok")
	if m.metrics != nil && pruned > 0 {
		m.metrics.PhrasesPruned.Add(context.Background(), int64(pruned))
	}
	return p, nil
}

// RebuildAll rebuilds every key that has a stored profile or logged messages,
// running up to concurrency rebuilds at once. Returns the rebuilt keys.
func (m *Manager) RebuildAll(ctx context.Context, concurrency int) ([]string, error) {
	keys, err := m.allKeys(ctx)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, key := range keys {
		g.Go(func() error {
			if _, err := m.RebuildFromHistory(gctx, key); err != nil {
				return fmt.Errorf("rebuilding %q: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (m *Manager) allKeys(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	stored, err := m.store.Keys()
	if err != nil {
		return nil, err
	}
	for _, k := range stored {
		seen[k] = true
	}
	if m.history != nil {
		logged, err := m.history.ListMessageStyleKeys(ctx)
		if err != nil {
			return nil, &StorageError{Op: "list history keys", Err: err}
		}
		for _, k := range logged {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetProfile returns the stored profile for key (empty if none).
func (m *Manager) GetProfile(key string) (Profile, error) {
	p, err := m.store.Load(key)
	if err != nil {
		m.recordStoreError("load", err)
		return Profile{}, err
	}
	return p, nil
}

// GetProfileSummary renders the summary for key. Concurrent calls for the
// same key share one load.
func (m *Manager) GetProfileSummary(key string) (Summary, error) {
	if err := validateKey(key); err != nil {
		return Summary{}, err
	}
	v, err, _ := m.reads.Do(key, func() (any, error) {
		p, err := m.GetProfile(key)
		if err != nil {
			return Summary{}, err
		}
		return Summarize(p), nil
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// ListKeys returns every style key with a stored profile, sorted.
func (m *Manager) ListKeys() ([]string, error) {
	keys, err := m.store.Keys()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Manager) recordStoreError(op string, err error) {
	if m.metrics == nil {
		return
	}
	var kind string
	var corrupt *CorruptProfileError
	var storageErr *StorageError
	switch {
	case errors.As(err, &corrupt):
		kind = "corrupt"
	case errors.As(err, &storageErr):
		kind = "storage"
	default:
		return
	}
	m.metrics.StoreErrors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("kind", kind),
	))
}

func (m *Manager) recordRebuild(start time.Time, status string) {
	if m.metrics == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.metrics.Rebuilds.Add(ctx, 1, attrs)
	m.metrics.RebuildDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}
