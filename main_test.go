package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ridemetrics/internal/config"
)

func TestRequireUser(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"anna", "anna", false},
		{"  Anna ", "anna", false},
		{"", "", true},
		{"../etc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u := tt.in
			err := requireUser(&u)
			if (err != nil) != tt.wantErr {
				t.Fatalf("requireUser(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && u != tt.want {
				t.Errorf("requireUser(%q) = %q, want %q", tt.in, u, tt.want)
			}
		})
	}
}

func TestLoadConfig_MissingFileWritesExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Workers != config.DefaultConfig().Workers {
		t.Errorf("Workers = %d, want default", cfg.Workers)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("example config not written: %v", err)
	}

	if _, err := config.Load(path); errors.Is(err, config.ErrNoConfig) {
		t.Error("example config should load")
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{
		"import", "rebuild", "backfill-cp", "settings",
		"report", "serve", "strava-auth", "strava-sync",
	} {
		if commands[name] == nil {
			t.Errorf("command %q not registered", name)
		}
	}
}
