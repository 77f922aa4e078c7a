package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidUser is returned for empty or path-unsafe user ids
var ErrInvalidUser = errors.New("invalid user id")

// UserConfig holds the per-user thresholds metrics are computed against
type UserConfig struct {
	FTP    float64 `json:"ftp" yaml:"ftp"`         // watts
	Weight float64 `json:"weight" yaml:"weight"`   // kg
	HRMax  float64 `json:"hr_max" yaml:"hr_max"`   // bpm
	HRRest float64 `json:"hr_rest" yaml:"hr_rest"` // bpm
}

// DefaultUserConfig returns the settings used for missing values
func DefaultUserConfig() UserConfig {
	return UserConfig{
		FTP:    250,
		Weight: 70,
		HRMax:  190,
		HRRest: 60,
	}
}

// withDefaults replaces zero or negative values with the defaults
func (u UserConfig) withDefaults() UserConfig {
	d := DefaultUserConfig()
	if u.FTP <= 0 {
		u.FTP = d.FTP
	}
	if u.Weight <= 0 {
		u.Weight = d.Weight
	}
	if u.HRMax <= 0 {
		u.HRMax = d.HRMax
	}
	if u.HRRest <= 0 {
		u.HRRest = d.HRRest
	}
	return u
}

// NormalizeUser trims and lower-cases a user id and rejects ids that are
// empty or could escape a directory.
func NormalizeUser(user string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(user))
	if u == "" || u == "." || u == ".." || strings.ContainsAny(u, `/\`) || strings.HasPrefix(u, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidUser, user)
	}
	return u, nil
}

// SettingsStore reads and writes one settings file per user
type SettingsStore struct {
	dir string
}

// NewSettingsStore returns a store over dir
func NewSettingsStore(dir string) *SettingsStore {
	return &SettingsStore{dir: dir}
}

var settingsExtensions = []string{".json", ".yaml", ".yml"}

// Load returns a user's settings. A missing file or missing fields fall
// back to DefaultUserConfig.
func (s *SettingsStore) Load(user string) (UserConfig, error) {
	u, err := NormalizeUser(user)
	if err != nil {
		return UserConfig{}, err
	}

	path, ok := s.find(u)
	if !ok {
		return DefaultUserConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return UserConfig{}, fmt.Errorf("reading settings: %w", err)
	}

	var cfg UserConfig
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return UserConfig{}, fmt.Errorf("parsing settings %s: %w", filepath.Base(path), err)
	}

	return cfg.withDefaults(), nil
}

// Save writes a user's settings, keeping the format of an existing file
// and defaulting to JSON.
func (s *SettingsStore) Save(user string, cfg UserConfig) error {
	u, err := NormalizeUser(user)
	if err != nil {
		return err
	}

	path, ok := s.find(u)
	if !ok {
		path = filepath.Join(s.dir, u+".json")
	}

	var data []byte
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}

// find returns the first existing settings file of a normalized user
func (s *SettingsStore) find(user string) (string, bool) {
	for _, ext := range settingsExtensions {
		path := filepath.Join(s.dir, user+ext)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
