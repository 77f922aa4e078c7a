package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	DataDir        string       `json:"data_dir"`
	DBPath         string       `json:"db_path"`
	ExportDir      string       `json:"export_dir"`
	LogLevel       string       `json:"log_level"`
	LogDevelopment bool         `json:"log_development"`
	Workers        int          `json:"workers"`
	Redis          RedisConfig  `json:"redis"`
	HTTP           HTTPConfig   `json:"http"`
	Strava         StravaConfig `json:"strava"`
}

// RedisConfig configures the optional artifact cache. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	TTL      string `json:"ttl"` // Go duration, e.g. "15m"
}

// HTTPConfig configures the read API
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// StravaConfig holds Strava API credentials
type StravaConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// ErrNoConfig is returned when the config file doesn't exist
var ErrNoConfig = errors.New("config file not found")

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	dir, err := GetConfigDir()
	if err != nil {
		dir = ".ridemetrics"
	}
	return Config{
		DataDir:   dir,
		DBPath:    filepath.Join(dir, "data.db"),
		ExportDir: filepath.Join(dir, "exports"),
		LogLevel:  "info",
		Workers:   4,
		Redis: RedisConfig{
			TTL: "15m",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads the configuration from path. An empty path reads
// ~/.ridemetrics/config.json.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := getConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills missing values. Paths not set explicitly follow DataDir.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = defaults.DataDir
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "data.db")
	}
	if c.ExportDir == "" {
		c.ExportDir = filepath.Join(c.DataDir, "exports")
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.Workers == 0 {
		c.Workers = defaults.Workers
	}
	if c.Redis.TTL == "" {
		c.Redis.TTL = defaults.Redis.TTL
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = defaults.HTTP.Addr
	}
}

// Save writes the configuration to path, or ~/.ridemetrics/config.json
// when path is empty.
func Save(path string, cfg *Config) error {
	if path == "" {
		p, err := getConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// CreateExample creates an example config file if none exists
func CreateExample(path string) error {
	if path == "" {
		p, err := getConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return nil // Config exists, don't overwrite
	}

	example := DefaultConfig()
	example.Strava = StravaConfig{
		ClientID:     "YOUR_CLIENT_ID",
		ClientSecret: "YOUR_CLIENT_SECRET",
	}

	return Save(path, &example)
}

// Validate checks the config for unusable values
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	if c.Redis.TTL != "" {
		if _, err := time.ParseDuration(c.Redis.TTL); err != nil {
			return fmt.Errorf("redis.ttl: %w", err)
		}
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative, got %d", c.Redis.DB)
	}
	return nil
}

// ValidateStrava checks that Strava credentials are present
func (c *Config) ValidateStrava() error {
	if c.Strava.ClientID == "" || c.Strava.ClientID == "YOUR_CLIENT_ID" {
		return errors.New("strava.client_id is required - get it from https://www.strava.com/settings/api")
	}
	if c.Strava.ClientSecret == "" || c.Strava.ClientSecret == "YOUR_CLIENT_SECRET" {
		return errors.New("strava.client_secret is required - get it from https://www.strava.com/settings/api")
	}
	return nil
}

// CacheTTL returns the artifact cache TTL, falling back to 15 minutes
func (c *Config) CacheTTL() time.Duration {
	ttl, err := time.ParseDuration(c.Redis.TTL)
	if err != nil || ttl <= 0 {
		return 15 * time.Minute
	}
	return ttl
}

// SampleDir returns the directory holding a user's raw sample files
func (c *Config) SampleDir(user string) string {
	return filepath.Join(c.DataDir, "samples", user)
}

// SamplesRoot returns the directory holding all per-user sample directories
func (c *Config) SamplesRoot() string {
	return filepath.Join(c.DataDir, "samples")
}

// SettingsDir returns the directory holding per-user settings files
func (c *Config) SettingsDir() string {
	return filepath.Join(c.DataDir, "settings")
}

// UserExportDir returns the export directory of a user
func (c *Config) UserExportDir(user string) string {
	return filepath.Join(c.ExportDir, user)
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".ridemetrics"), nil
}
