package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/tether_serial/pkg/pathing"
)

var ErrInvalidConfig = errors.New("invalid configuration")

var (
	SerialDrivers  = []string{"jacobsa", "tarm"}
	PayloadFormats = []string{"json", "envelope"}
	LogLevels      = []string{"debug", "info", "warn", "error"}
	LogFormats     = []string{"json", "text"}
)

func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		SerialDevice:      "/dev/ttyACM0",
		Baudrate:          9600,
		SerialDriver:      "jacobsa",
		ReadTimeoutMs:     100,
		WatchdogTimeoutMs: 0,
		Role:              "serial",
		InstanceId:        "any",
		PlugName:          "values",
		LogLevel:          "info",
		LogFormat:         "text",
		NatsURL:           "nats://127.0.0.1:4222",
		PayloadFormat:     "json",
		ListenAddress:     "0.0.0.0",
		ListenPort:        9040,
		JournalEnabled:    false,
		JournalPath:       pathing.GetJournalDbPath(),
	}
}

func DefaultListenerConfig() *ListenerConfig {
	return &ListenerConfig{
		BridgeHost: "localhost:9040",
		FeedPath:   "/ws",
		TLSEnabled: false,
	}
}

// LoadBridgeConfig reads the bridge config at path.
// A default config file is written when none exists yet.
func LoadBridgeConfig(path string) (*BridgeConfig, error) {
	cfg := DefaultBridgeConfig()
	if err := loadOrCreate(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadListenerConfig(path string) (*ListenerConfig, error) {
	cfg := DefaultListenerConfig()
	if err := loadOrCreate(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decodes path into cfg, which must already hold the defaults.
// Keys missing from the file keep their default value.
func loadOrCreate(path string, cfg any) error {
	// Create default if not exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create config dir for %s: %w", path, err)
		}
		cfgFile, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create default config %s: %w", path, err)
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return fmt.Errorf("write default config %s: %w", path, err)
		}
		return nil
	}

	// Load existing config
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// Destination is the subject every value is published under.
func (c *BridgeConfig) Destination() string {
	return strings.Join([]string{c.Role, c.InstanceId, c.PlugName}, ".")
}

func (c *BridgeConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// WatchdogTimeout returns 0 when the watchdog is disabled.
func (c *BridgeConfig) WatchdogTimeout() time.Duration {
	return time.Duration(c.WatchdogTimeoutMs) * time.Millisecond
}

func (c *BridgeConfig) ListenerEnabled() bool {
	return c.ListenPort != 0
}

func (c *BridgeConfig) Validate() error {
	var errs []error
	if c.SerialDevice == "" {
		errs = append(errs, errors.New("serial_device is empty"))
	}
	if c.Baudrate == 0 {
		errs = append(errs, errors.New("baudrate must be positive"))
	}
	if !slices.Contains(SerialDrivers, c.SerialDriver) {
		errs = append(errs, fmt.Errorf("unknown serial_driver %q", c.SerialDriver))
	}
	if !slices.Contains(PayloadFormats, c.PayloadFormat) {
		errs = append(errs, fmt.Errorf("unknown payload_format %q", c.PayloadFormat))
	}
	if !slices.Contains(LogLevels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if !slices.Contains(LogFormats, strings.ToLower(c.LogFormat)) {
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	if c.ReadTimeoutMs == 0 {
		errs = append(errs, errors.New("read_timeout_ms must be positive"))
	}
	if c.WatchdogTimeoutMs != 0 && c.ReadTimeoutMs >= c.WatchdogTimeoutMs {
		errs = append(errs, fmt.Errorf("read_timeout_ms (%d) must be shorter than watchdog_timeout_ms (%d)",
			c.ReadTimeoutMs, c.WatchdogTimeoutMs))
	}
	if c.Role == "" || c.InstanceId == "" || c.PlugName == "" {
		errs = append(errs, errors.New("role, instance_id and plug_name are required"))
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid listen_port %d", c.ListenPort))
	}
	if c.JournalEnabled && c.JournalPath == "" {
		errs = append(errs, errors.New("journal_path is empty"))
	}
	if c.NatsURL == "" && !c.ListenerEnabled() && !c.JournalEnabled {
		errs = append(errs, errors.New("no sink configured: set nats_url, listen_port or journal_enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
