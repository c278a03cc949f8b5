// Package config loads batchidx configuration from defaults, the user
// config file, the project file and BATCHIDX_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectFileName is the per-directory config file.
const ProjectFileName = ".batchidx.yaml"

// Config represents the complete batchidx configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	DataDir string        `yaml:"data_dir" json:"data_dir"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Flush   FlushConfig   `yaml:"flush" json:"flush"`
	SQLite  SQLiteConfig  `yaml:"sqlite" json:"sqlite"`
	Badger  BadgerConfig  `yaml:"badger" json:"badger"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// IndexConfig configures new indexes and reads.
type IndexConfig struct {
	// Backend for new indexes: "sqlite" (default), "bleve", "badger" or "memory".
	// Existing indexes keep the backend they were created with.
	Backend string `yaml:"backend" json:"backend"`

	// PageSize is the number of IDs a cursor fetches per backend page.
	PageSize int `yaml:"page_size" json:"page_size"`

	// CacheSize is the number of exact-match results cached per index (0 disables).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// FlushConfig configures the retry of the final flush at shutdown.
type FlushConfig struct {
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	InitialDelay string `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     string `yaml:"max_delay" json:"max_delay"`
}

// SQLiteConfig tunes the SQLite backend.
type SQLiteConfig struct {
	CacheMB int `yaml:"cache_mb" json:"cache_mb"` // page cache in MB (default: 64)
}

// BadgerConfig tunes the badger backend.
type BadgerConfig struct {
	SyncWrites bool `yaml:"sync_writes" json:"sync_writes"`

	// MemTableMB is badger's memtable size. Zero keeps badger's default.
	MemTableMB int `yaml:"memtable_mb" json:"memtable_mb"`
}

// LoggingConfig configures the log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a configuration with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: ".batchidx",
		Index: IndexConfig{
			Backend:   "sqlite",
			PageSize:  1000,
			CacheSize: 1024,
		},
		Flush: FlushConfig{
			MaxRetries:   3,
			InitialDelay: "200ms",
			MaxDelay:     "5s",
		},
		SQLite: SQLiteConfig{
			CacheMB: 64,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/batchidx/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/batchidx/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "batchidx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "batchidx", "config.yaml")
	}
	return filepath.Join(home, ".config", "batchidx", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var cfg Config
	if err := readYAML(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &cfg, nil
}

// Load loads configuration for the project directory dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/batchidx/config.yaml)
//  3. Project config (.batchidx.yaml in dir)
//  4. Environment variables (BATCHIDX_*)
//
// A relative data_dir is resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.DataDir != "" && !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(dir, cfg.DataDir)
	}
	return cfg, nil
}

// loadFromFile attempts to load configuration from .batchidx.yaml or .batchidx.yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectFileName, ".batchidx.yml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := readYAML(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.PageSize != 0 {
		c.Index.PageSize = other.Index.PageSize
	}
	if other.Index.CacheSize != 0 {
		c.Index.CacheSize = other.Index.CacheSize
	}

	if other.Flush.MaxRetries != 0 {
		c.Flush.MaxRetries = other.Flush.MaxRetries
	}
	if other.Flush.InitialDelay != "" {
		c.Flush.InitialDelay = other.Flush.InitialDelay
	}
	if other.Flush.MaxDelay != "" {
		c.Flush.MaxDelay = other.Flush.MaxDelay
	}

	if other.SQLite.CacheMB != 0 {
		c.SQLite.CacheMB = other.SQLite.CacheMB
	}
	if other.Badger.SyncWrites {
		c.Badger.SyncWrites = true
	}
	if other.Badger.MemTableMB != 0 {
		c.Badger.MemTableMB = other.Badger.MemTableMB
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies BATCHIDX_* environment variables.
// Unparseable numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BATCHIDX_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("BATCHIDX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("BATCHIDX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.PageSize = n
		}
	}
	if v := os.Getenv("BATCHIDX_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.CacheSize = n
		}
	}
	if v := os.Getenv("BATCHIDX_FLUSH_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Flush.MaxRetries = n
		}
	}
	if v := os.Getenv("BATCHIDX_BADGER_SYNC_WRITES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Badger.SyncWrites = b
		}
	}
	if v := os.Getenv("BATCHIDX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BATCHIDX_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validBackends := map[string]bool{"sqlite": true, "bleve": true, "badger": true, "memory": true}
	if !validBackends[strings.ToLower(c.Index.Backend)] {
		return fmt.Errorf("index.backend must be 'sqlite', 'bleve', 'badger' or 'memory', got %s", c.Index.Backend)
	}
	if c.Index.PageSize <= 0 {
		return fmt.Errorf("index.page_size must be positive, got %d", c.Index.PageSize)
	}
	if c.Index.CacheSize < 0 {
		return fmt.Errorf("index.cache_size must be non-negative, got %d", c.Index.CacheSize)
	}

	if c.Flush.MaxRetries < 0 {
		return fmt.Errorf("flush.max_retries must be non-negative, got %d", c.Flush.MaxRetries)
	}
	if _, err := time.ParseDuration(c.Flush.InitialDelay); err != nil {
		return fmt.Errorf("flush.initial_delay: %w", err)
	}
	if _, err := time.ParseDuration(c.Flush.MaxDelay); err != nil {
		return fmt.Errorf("flush.max_delay: %w", err)
	}

	if c.SQLite.CacheMB < 0 {
		return fmt.Errorf("sqlite.cache_mb must be non-negative, got %d", c.SQLite.CacheMB)
	}
	if c.Badger.MemTableMB < 0 {
		return fmt.Errorf("badger.memtable_mb must be non-negative, got %d", c.Badger.MemTableMB)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return fmt.Errorf("logging.max_size_mb and logging.max_files must be non-negative")
	}
	return nil
}

// FlushDelays returns the parsed retry delays. Call after Validate.
func (c *Config) FlushDelays() (initial, max time.Duration) {
	initial, _ = time.ParseDuration(c.Flush.InitialDelay)
	max, _ = time.ParseDuration(c.Flush.MaxDelay)
	return initial, max
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
