package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kalambet/idiolect/internal/config"
	"github.com/kalambet/idiolect/internal/observe"
	"github.com/kalambet/idiolect/internal/storage"
	"github.com/kalambet/idiolect/internal/storage/redisstore"
	"github.com/kalambet/idiolect/internal/style"
)

// runtime bundles the message log, the profile document backend and the
// style manager built on top of them.
type runtime struct {
	store  *storage.Store
	docs   io.Closer // nil when profiles share the SQLite store
	styles *style.Manager
}

func openRuntime(cfg config.Config, metrics *observe.Metrics) (*runtime, error) {
	vocab := style.DefaultVocabulary()
	if cfg.Style.VocabularyFile != "" {
		v, err := style.LoadVocabulary(cfg.Style.VocabularyFile)
		if err != nil {
			return nil, fmt.Errorf("loading vocabulary: %w", err)
		}
		vocab = v
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	rt := &runtime{store: store}

	var docs style.DocumentStore = store
	if cfg.Storage.Backend == config.BackendRedis {
		rs, err := redisstore.Open(cfg.Storage.RedisAddr, cfg.Storage.RedisPrefix)
		if err != nil {
			store.Close()
			return nil, err
		}
		docs = rs
		rt.docs = rs
	}
	slog.Info("storage ready", "backend", cfg.Storage.Backend, "data_dir", cfg.Storage.DataDir)

	rt.styles = style.NewManager(style.ManagerDeps{
		Store:    style.NewStore(docs),
		Analyzer: style.NewAnalyzer(vocab, cfg.Style.MaxMinedRunes),
		History:  store,
		Metrics:  metrics,
	})
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.docs != nil {
		if err := rt.docs.Close(); err != nil {
			slog.Warn("closing profile backend", "error", err)
		}
	}
	if err := rt.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}

// setupLogging installs a text slog handler on w at the configured level.
func setupLogging(level string, w io.Writer) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}
