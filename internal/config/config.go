package config

import (
	"fmt"
	"time"
)

// Storage backends for style profile documents.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Style   StyleConfig
	Worker  WorkerConfig
	API     APIConfig
}

type ServerConfig struct {
	Port int
}

// StorageConfig selects where profiles live. Messages and jobs always stay in
// the SQLite database under DataDir.
type StorageConfig struct {
	Backend     string
	DataDir     string
	RedisAddr   string
	RedisPrefix string
}

type LogConfig struct {
	Level string
}

type StyleConfig struct {
	// VocabularyFile replaces the embedded Japanese vocabulary when set.
	VocabularyFile string
	// MaxMinedRunes bounds phrase mining per message; 0 uses the analyzer default.
	MaxMinedRunes int
}

type WorkerConfig struct {
	Enabled      bool
	PollInterval time.Duration
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			Backend:     BackendSQLite,
			DataDir:     defaultDataDir(),
			RedisAddr:   "localhost:6379",
			RedisPrefix: "idiolect",
		},
		Log: LogConfig{
			Level: "info",
		},
		Style: StyleConfig{
			MaxMinedRunes: 4000,
		},
		Worker: WorkerConfig{
			Enabled:      true,
			PollInterval: 500 * time.Millisecond,
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/idiolect/config.json and applies IDIOLECT_* environment
// overrides. Secrets (api.token) are read from the environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Backend {
	case BackendSQLite:
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("invalid config: storage.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid config: storage.backend must be %q or %q, got %q", BackendSQLite, BackendRedis, c.Storage.Backend)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("invalid config: storage.data_dir is empty")
	}
	if c.Style.MaxMinedRunes < 0 {
		return fmt.Errorf("invalid config: style.max_mined_runes must not be negative")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("invalid config: worker.poll_interval must be positive")
	}
	return nil
}
