package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names a durable slot implementation.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendTables   Backend = "tables"
	BackendPostgres Backend = "postgres"
)

// Config holds the application configuration.
type Config struct {
	Backend Backend `yaml:"backend"`
	DataDir string  `yaml:"data_dir"`
	SlotKey string  `yaml:"slot_key"`

	Redis struct {
		// ConnectionString is a redis URL or "host:port,password=...,ssl=true".
		ConnectionString string        `yaml:"connection_string"`
		CacheTTL         time.Duration `yaml:"cache_ttl"`
	} `yaml:"redis"`

	Tables struct {
		ConnectionString string `yaml:"connection_string"`
		Table            string `yaml:"table"`
	} `yaml:"tables"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	HTTP struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"http"`

	NoticeDelay time.Duration `yaml:"notice_delay"`
	Debug       bool          `yaml:"debug"`
	LogFormat   string        `yaml:"log_format"`
}

// Default returns the configuration used when no file or env is present.
func Default() *Config {
	cfg := &Config{
		Backend:     BackendFile,
		DataDir:     defaultDataDir(),
		NoticeDelay: 2500 * time.Millisecond,
		LogFormat:   "text",
	}
	cfg.Tables.Table = "tasklist"
	cfg.HTTP.ListenAddr = "127.0.0.1:8080"
	return cfg
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "tasklist")
}

// Path returns the config file location: $TASKLIST_CONFIG, or
// config.yaml under the user config directory.
func Path() string {
	if p := os.Getenv("TASKLIST_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load reads the config file, falling back to defaults when it does not
// exist, then applies environment overrides.
func Load() (*Config, error) {
	cfg, err := LoadFile(Path())
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFile reads a YAML config on top of Default. A missing file is not an
// error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.DataDir = expandPath(cfg.DataDir)
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid %s: %q", key, v)
		}
		*dst = d
		return nil
	}

	var backend string
	str("TASKLIST_BACKEND", &backend)
	if backend != "" {
		c.Backend = Backend(strings.ToLower(backend))
	}
	str("TASKLIST_DATA_DIR", &c.DataDir)
	c.DataDir = expandPath(c.DataDir)
	str("TASKLIST_SLOT_KEY", &c.SlotKey)
	str("REDIS_CONNECTION_STRING", &c.Redis.ConnectionString)
	str("STORAGE_CONNECTION_STRING", &c.Tables.ConnectionString)
	str("TASKS_TABLE", &c.Tables.Table)
	str("POSTGRES_DSN", &c.Postgres.DSN)
	str("LISTEN_ADDR", &c.HTTP.ListenAddr)
	str("LOG_FORMAT", &c.LogFormat)
	if err := dur("CACHE_TTL", &c.Redis.CacheTTL); err != nil {
		return err
	}
	if err := dur("NOTICE_DELAY", &c.NoticeDelay); err != nil {
		return err
	}
	if v, ok := lookup("DEBUG"); ok {
		if dbg, err := strconv.ParseBool(v); err == nil {
			c.Debug = dbg
		}
	}
	return nil
}

// Validate reports settings the selected backend cannot run without.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendFile:
		if c.DataDir == "" {
			errs = append(errs, errors.New("file backend needs data_dir"))
		}
	case BackendMemory:
	case BackendRedis:
		if c.Redis.ConnectionString == "" {
			errs = append(errs, errors.New("redis backend needs redis.connection_string"))
		}
	case BackendTables:
		if c.Tables.ConnectionString == "" || c.Tables.Table == "" {
			errs = append(errs, errors.New("tables backend needs tables.connection_string and tables.table"))
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres backend needs postgres.dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.NoticeDelay <= 0 {
		errs = append(errs, errors.New("notice_delay must be positive"))
	}
	return errors.Join(errs...)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, path[1:])
}
