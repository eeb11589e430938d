package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.SocketPath != "/tmp/voidline_socket" {
		t.Errorf("Expected default socket path, got %q", cfg.SocketPath)
	}
	if cfg.Bluetooth.GlobalDeadline != 20 {
		t.Errorf("Expected default global deadline 20, got %d", cfg.Bluetooth.GlobalDeadline)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `socket_path = "/tmp/test.sock"

[bluetooth]
poll_interval = 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.SocketPath != "/tmp/test.sock" {
		t.Errorf("Expected overridden socket path, got %q", cfg.SocketPath)
	}
	if cfg.Bluetooth.PollInterval != 5 {
		t.Errorf("Expected overridden poll interval 5, got %d", cfg.Bluetooth.PollInterval)
	}
	if cfg.Network.PollInterval != 15 {
		t.Errorf("Expected default network poll interval, got %d", cfg.Network.PollInterval)
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := DefaultConfig
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config must validate: %v", err)
	}
}

func TestValidate_BadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty socket path", func(c *Config) { c.SocketPath = "" }},
		{"zero poll interval", func(c *Config) { c.Bluetooth.PollInterval = 0 }},
		{"huge step timeout", func(c *Config) { c.Network.StepTimeout = 1000 }},
		{"deadline below step timeout", func(c *Config) { c.Network.GlobalDeadline = 2; c.Network.StepTimeout = 10 }},
		{"bad busy policy", func(c *Config) { c.Bluetooth.BusyPolicy = "queue" }},
		{"negative cache size", func(c *Config) { c.Bluetooth.InfoCacheSize = -1 }},
	}

	for _, tc := range cases {
		cfg := DefaultConfig
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("Expected validation error for %s", tc.name)
		}
	}
}

func TestSaveAndReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := DefaultConfig
	cfg.Network.BusyPolicy = "supersede"
	if err := SaveConfig(&cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Network.BusyPolicy != "supersede" {
		t.Errorf("Expected round-tripped busy policy, got %q", loaded.Network.BusyPolicy)
	}
}
