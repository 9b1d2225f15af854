// Package config provides configuration management for orion.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/orion/internal/cache"
	"github.com/thebtf/orion/internal/graphsink"
	"github.com/thebtf/orion/internal/layout"
)

const (
	// DefaultWorkerPort is the default HTTP/gRPC port.
	DefaultWorkerPort = 37800
	// DefaultWorkerHost binds to loopback only.
	DefaultWorkerHost = "127.0.0.1"
	// EnvPrefix prefixes every environment override, e.g. ORION_WORKER_PORT
	// or ORION_CACHE_ADDR for the nested cache.addr key.
	EnvPrefix = "ORION"
)

// DBConfig selects and configures the database.
type DBConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Path     string `mapstructure:"path" yaml:"path"`
	MaxConns int    `mapstructure:"max_conns" yaml:"max_conns"`
}

// EngineConfig configures the external clustering engine client.
type EngineConfig struct {
	URL               string        `mapstructure:"url" yaml:"url"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	MaxTokensPerForce int           `mapstructure:"max_tokens_per_force" yaml:"max_tokens_per_force"`
}

// ClusteringConfig configures the job orchestrator.
type ClusteringConfig struct {
	Algorithm          string        `mapstructure:"algorithm" yaml:"algorithm"`
	PageSize           int           `mapstructure:"page_size" yaml:"page_size"`
	LoadBudget         time.Duration `mapstructure:"load_budget" yaml:"load_budget"`
	TargetClusters     int           `mapstructure:"target_clusters" yaml:"target_clusters"`
	MinCoveragePercent float64       `mapstructure:"min_coverage_percent" yaml:"min_coverage_percent"`
	IncludeSignals     bool          `mapstructure:"include_signals" yaml:"include_signals"`
	MaxConcurrentJobs  int           `mapstructure:"max_concurrent_jobs" yaml:"max_concurrent_jobs"`
}

// Config holds orion configuration.
type Config struct {
	WorkerHost string           `mapstructure:"worker_host" yaml:"worker_host"`
	WorkerPort int              `mapstructure:"worker_port" yaml:"worker_port"`
	LogLevel   string           `mapstructure:"log_level" yaml:"log_level"`
	DB         DBConfig         `mapstructure:"db" yaml:"db"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Clustering ClusteringConfig `mapstructure:"clustering" yaml:"clustering"`
	Layout     layout.Options   `mapstructure:"layout" yaml:"layout"`
	Cache      cache.Config     `mapstructure:"cache" yaml:"cache"`
	Graph      graphsink.Config `mapstructure:"graph" yaml:"graph"`
}

var (
	globalConfig *Config
	configMu     sync.RWMutex
)

// DataDir returns the data directory path.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".orion")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "orion.db")
}

// SettingsPath returns the default settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		WorkerHost: DefaultWorkerHost,
		WorkerPort: DefaultWorkerPort,
		LogLevel:   "info",
		DB: DBConfig{
			Driver:   "sqlite",
			Path:     DBPath(),
			MaxConns: 4,
		},
		Engine: EngineConfig{
			URL:               "http://127.0.0.1:8090",
			Timeout:           5 * time.Minute,
			RequestsPerSecond: 2,
			MaxTokensPerForce: 512,
		},
		Clustering: ClusteringConfig{
			Algorithm:         "louvain",
			PageSize:          750,
			LoadBudget:        25 * time.Second,
			TargetClusters:    37,
			MaxConcurrentJobs: 2,
		},
		Layout: layout.DefaultOptions(),
		Cache: cache.Config{
			Prefix: "orion:layout:",
			TTL:    10 * time.Minute,
		},
		Graph: graphsink.Config{Graph: "orion"},
	}
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings file at path if none exists.
// An empty path means SettingsPath().
func EnsureSettings(path string) error {
	if path == "" {
		path = SettingsPath()
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode default settings: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll ensures the data directory and settings file exist.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings("")
}

// Load reads configuration from the YAML file at path (SettingsPath() when
// empty) and ORION_* environment variables. A missing or unreadable file
// leaves defaults in place.
func Load(path string) (*Config, error) {
	if path == "" {
		path = SettingsPath()
	}

	// Seed viper with every default key so environment overrides reach
	// nested fields during Unmarshal.
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
		default:
			log.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable settings file")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.WorkerPort <= 0 || c.WorkerPort > 65535 {
		return fmt.Errorf("worker_port %d out of range", c.WorkerPort)
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for sqlite")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}
	if c.Clustering.MinCoveragePercent < 0 || c.Clustering.MinCoveragePercent > 100 {
		return fmt.Errorf("clustering.min_coverage_percent %.1f out of range", c.Clustering.MinCoveragePercent)
	}
	return nil
}

// Addr returns host:port for the worker listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.WorkerHost, c.WorkerPort)
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	configMu.RLock()
	cfg := globalConfig
	configMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	configMu.Lock()
	defer configMu.Unlock()
	if globalConfig == nil {
		loaded, err := Load("")
		if err != nil {
			log.Warn().Err(err).Msg("Using default configuration")
			loaded = Default()
		}
		globalConfig = loaded
	}
	return globalConfig
}

// Set replaces the process-wide configuration.
func Set(cfg *Config) {
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
}
