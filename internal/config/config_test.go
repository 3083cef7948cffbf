package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		DefaultSession: "work",
		API:            API{BaseURL: "https://api.example.com"},
		Channel:        Channel{URL: "wss://api.example.com/socket"},
		Identity:       Identity{Role: "client", UserID: "u-1"},
		Watch:          Watch{PeerID: "a-1"},
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, validConfig()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.API.BaseURL != "https://api.example.com" {
		t.Errorf("API.BaseURL = %q, want https://api.example.com", loaded.API.BaseURL)
	}
	if loaded.Identity.Role != "client" {
		t.Errorf("Identity.Role = %q, want client", loaded.Identity.Role)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, validConfig()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"valid agent role", func(c *Config) { c.Identity.Role = "agent" }, false},
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }, true},
		{"missing channel url", func(c *Config) { c.Channel.URL = "" }, true},
		{"bad role", func(c *Config) { c.Identity.Role = "admin" }, true},
		{"missing user id", func(c *Config) { c.Identity.UserID = "" }, true},
		{"missing peer id", func(c *Config) { c.Watch.PeerID = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
