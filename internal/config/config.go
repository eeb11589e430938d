package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	AppName    string          `toml:"app_name"`
	SocketPath string          `toml:"socket_path"`
	LogFile    string          `toml:"log_file"`
	Bluetooth  BluetoothConfig `toml:"bluetooth"`
	Network    NetworkConfig   `toml:"network"`
	Display    DisplayConfig   `toml:"display"`
}

// BluetoothConfig controls the bluetooth service. Intervals and timeouts are
// in seconds.
type BluetoothConfig struct {
	Enabled        bool   `toml:"enabled"`
	PollInterval   int    `toml:"poll_interval"`
	StepTimeout    int    `toml:"step_timeout"`
	GlobalDeadline int    `toml:"global_deadline"`
	BusyPolicy     string `toml:"busy_policy"`
	InfoCacheSize  int    `toml:"info_cache_size"`
	InfoCacheTTL   int    `toml:"info_cache_ttl"`
	DBusWatcher    bool   `toml:"dbus_watcher"`
}

// NetworkConfig controls the Wi-Fi service. Intervals and timeouts are in
// seconds.
type NetworkConfig struct {
	Enabled        bool   `toml:"enabled"`
	PollInterval   int    `toml:"poll_interval"`
	StepTimeout    int    `toml:"step_timeout"`
	GlobalDeadline int    `toml:"global_deadline"`
	BusyPolicy     string `toml:"busy_policy"`
}

// DisplayConfig controls the output tracker. Intervals and timeouts are in
// seconds.
type DisplayConfig struct {
	Enabled        bool `toml:"enabled"`
	PollInterval   int  `toml:"poll_interval"`
	StepTimeout    int  `toml:"step_timeout"`
	GlobalDeadline int  `toml:"global_deadline"`
}

var DefaultConfig = Config{
	AppName:    "voidlined",
	SocketPath: "/tmp/voidline_socket",
	LogFile:    "voidlined.log",
	Bluetooth: BluetoothConfig{
		Enabled:        true,
		PollInterval:   15,
		StepTimeout:    10,
		GlobalDeadline: 20,
		BusyPolicy:     "reject",
		InfoCacheSize:  64,
		InfoCacheTTL:   30,
		DBusWatcher:    true,
	},
	Network: NetworkConfig{
		Enabled:        true,
		PollInterval:   15,
		StepTimeout:    15,
		GlobalDeadline: 20,
		BusyPolicy:     "reject",
	},
	Display: DisplayConfig{
		Enabled:        true,
		PollInterval:   30,
		StepTimeout:    10,
		GlobalDeadline: 20,
	},
}

func LoadConfig(path string) (*Config, error) {
	expandedPath := expandPath(path)

	if _, err := os.Stat(expandedPath); os.IsNotExist(err) {
		cfg := DefaultConfig
		return &cfg, nil
	}

	data, err := os.ReadFile(expandedPath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.SocketPath = expandPath(cfg.SocketPath)
	cfg.LogFile = expandPath(cfg.LogFile)

	return &cfg, nil
}

func LoadAndValidateConfig(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		usr, err := user.Current()
		if err == nil {
			return filepath.Join(usr.HomeDir, path[1:])
		}
	}
	return path
}

func SaveConfig(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(expandedPath, data, 0644)
}

func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket_path must not be empty")
	}
	if err := validateTimings("bluetooth", c.Bluetooth.PollInterval, c.Bluetooth.StepTimeout, c.Bluetooth.GlobalDeadline); err != nil {
		return err
	}
	if err := validateTimings("network", c.Network.PollInterval, c.Network.StepTimeout, c.Network.GlobalDeadline); err != nil {
		return err
	}
	if err := validateTimings("display", c.Display.PollInterval, c.Display.StepTimeout, c.Display.GlobalDeadline); err != nil {
		return err
	}
	if err := validateBusyPolicy("bluetooth", c.Bluetooth.BusyPolicy); err != nil {
		return err
	}
	if err := validateBusyPolicy("network", c.Network.BusyPolicy); err != nil {
		return err
	}
	if c.Bluetooth.InfoCacheSize < 0 || c.Bluetooth.InfoCacheSize > 10000 {
		return fmt.Errorf("invalid bluetooth info_cache_size: %d (must be 0-10000)", c.Bluetooth.InfoCacheSize)
	}
	if c.Bluetooth.InfoCacheTTL < 0 || c.Bluetooth.InfoCacheTTL > 3600 {
		return fmt.Errorf("invalid bluetooth info_cache_ttl: %d (must be 0-3600s)", c.Bluetooth.InfoCacheTTL)
	}
	return nil
}

func validateTimings(section string, pollInterval, stepTimeout, globalDeadline int) error {
	if pollInterval < 1 || pollInterval > 3600 {
		return fmt.Errorf("invalid %s poll_interval: %d (must be 1-3600s)", section, pollInterval)
	}
	if stepTimeout < 1 || stepTimeout > 300 {
		return fmt.Errorf("invalid %s step_timeout: %d (must be 1-300s)", section, stepTimeout)
	}
	if globalDeadline < 1 || globalDeadline > 600 {
		return fmt.Errorf("invalid %s global_deadline: %d (must be 1-600s)", section, globalDeadline)
	}
	if globalDeadline < stepTimeout {
		return fmt.Errorf("%s global_deadline (%ds) must not be shorter than step_timeout (%ds)", section, globalDeadline, stepTimeout)
	}
	return nil
}

func validateBusyPolicy(section, policy string) error {
	switch policy {
	case "", "reject", "supersede":
		return nil
	default:
		return fmt.Errorf("invalid %s busy_policy: %q (must be reject or supersede)", section, policy)
	}
}

func ValidateConfig(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
