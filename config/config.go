// Package config provides configuration loading, validation and hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Hashing HashingConfig `yaml:"hashing"`
	Upload  UploadConfig  `yaml:"upload"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StoreConfig configures the document store.
type StoreConfig struct {
	Driver  string        `yaml:"driver"` // "sqlite" or "memory"
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"` // per-call ceiling
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret,omitempty"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

// HashingConfig configures credential hashing.
type HashingConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// UploadConfig configures binary uploads.
type UploadConfig struct {
	Dir     string `yaml:"dir"`
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Environment variables always override file values
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// Useful for container deployments where no config file is mounted.
//
// Environment variables:
//
//	DOCMAP_SERVER_HOST     - Server host (default: 0.0.0.0)
//	DOCMAP_SERVER_PORT     - Server port (default: 9080)
//	DOCMAP_STORE_DRIVER    - Store driver: sqlite or memory (default: sqlite)
//	DOCMAP_STORE_DSN       - Store path (default: docmap.db)
//	DOCMAP_STORE_TIMEOUT   - Per-call store timeout (default: 5s)
//	DOCMAP_TOKEN_SECRET    - Session token signing secret
//	DOCMAP_TOKEN_TTL       - Session token lifetime (default: 24h)
//	DOCMAP_BCRYPT_COST     - Credential hashing cost (default: bcrypt default)
//	DOCMAP_UPLOAD_DIR      - Upload directory (default: uploads)
//	DOCMAP_UPLOAD_BASE_URL - Public upload URL prefix
//	DOCMAP_LOG_LEVEL       - Log level: debug, info, warn, error (default: info)
//	DOCMAP_LOG_FORMAT      - Log format: json or console (default: json)
//	DOCMAP_METRICS_ENABLED - Enable /metrics endpoint (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries the file first, then environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("DOCMAP_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DOCMAP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DOCMAP_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("DOCMAP_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Store configuration
	if v := os.Getenv("DOCMAP_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("DOCMAP_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("DOCMAP_STORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Store.Timeout = d
		}
	}

	// Auth configuration
	if v := os.Getenv("DOCMAP_TOKEN_SECRET"); v != "" {
		cfg.Auth.TokenSecret = v
	}
	if v := os.Getenv("DOCMAP_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}

	// Hashing configuration
	if v := os.Getenv("DOCMAP_BCRYPT_COST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Hashing.BcryptCost = n
		}
	}

	// Upload configuration
	if v := os.Getenv("DOCMAP_UPLOAD_DIR"); v != "" {
		cfg.Upload.Dir = v
	}
	if v := os.Getenv("DOCMAP_UPLOAD_BASE_URL"); v != "" {
		cfg.Upload.BaseURL = v
	}

	// Logging configuration
	if v := os.Getenv("DOCMAP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DOCMAP_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("DOCMAP_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOCMAP_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = "docmap.db"
	}
	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = 5 * time.Second
	}

	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = "uploads"
	}
	if cfg.Upload.BaseURL == "" {
		cfg.Upload.BaseURL = fmt.Sprintf("http://localhost:%d/uploads", cfg.Server.Port)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Store.Driver] {
		return fmt.Errorf("store.driver must be 'sqlite' or 'memory', got %q", cfg.Store.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Store.Timeout < 0 {
		return fmt.Errorf("store.timeout cannot be negative")
	}

	return nil
}
