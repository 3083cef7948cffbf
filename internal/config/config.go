package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	API            API      `toml:"api"`
	Channel        Channel  `toml:"channel"`
	Identity       Identity `toml:"identity"`
	Watch          Watch    `toml:"watch"`
}

// API configures the marketplace REST backend.
type API struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Channel configures the push-event websocket endpoint.
type Channel struct {
	URL string `toml:"url"`
}

// Identity describes the acting side of the conversation. Role is "client"
// or "agent". The display fields are used as fallbacks when the server
// omits them from a conversation payload.
type Identity struct {
	Role        string `toml:"role"`
	UserID      string `toml:"user_id"`
	DisplayName string `toml:"display_name"`
	Email       string `toml:"email"`
	Phone       string `toml:"phone"`
}

// Watch names the conversation the daemon keeps synchronized: the peer
// participant and, optionally, the listing it is scoped to.
type Watch struct {
	PeerID     string `toml:"peer_id"`
	PropertyID string `toml:"property_id"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Channel.URL == "" {
		return fmt.Errorf("channel.url is required")
	}
	switch c.Identity.Role {
	case "client", "agent":
	default:
		return fmt.Errorf("identity.role must be %q or %q, got %q", "client", "agent", c.Identity.Role)
	}
	if c.Identity.UserID == "" {
		return fmt.Errorf("identity.user_id is required")
	}
	if c.Watch.PeerID == "" {
		return fmt.Errorf("watch.peer_id is required")
	}
	return nil
}
