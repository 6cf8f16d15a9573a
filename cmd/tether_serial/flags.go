package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/NotCoffee418/tether_serial/pkg/config"
	"github.com/NotCoffee418/tether_serial/pkg/pathing"
)

var errUsage = errors.New("invalid command line")

// CLIConfig holds command-line configuration. Only flags that were set on
// the command line or through the environment override the config file.
type CLIConfig struct {
	ConfigPath   string
	SerialDevice string
	Baudrate     uint
	LogLevel     string
	Role         string
	InstanceId   string
	PlugName     string
	TimeoutMs    uint
	NatsURL      string
	ShowVersion  bool

	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{set: make(map[string]bool)}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("TETHER_SERIAL_CONFIG", pathing.GetBridgeConfigPath()),
		"Path to configuration file, empty to run on defaults (env: TETHER_SERIAL_CONFIG)")
	fs.UintVar(&cfg.Baudrate, "baudRate",
		getEnvUint("TETHER_SERIAL_BAUDRATE", 9600),
		"Serial baud rate (env: TETHER_SERIAL_BAUDRATE)")
	fs.StringVar(&cfg.LogLevel, "loglevel",
		getEnv("TETHER_SERIAL_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: TETHER_SERIAL_LOG_LEVEL)")
	fs.StringVar(&cfg.Role, "tether.role",
		getEnv("TETHER_SERIAL_ROLE", "serial"),
		"Role part of the destination (env: TETHER_SERIAL_ROLE)")
	fs.StringVar(&cfg.InstanceId, "tether.id",
		getEnv("TETHER_SERIAL_ID", "any"),
		"Instance id part of the destination (env: TETHER_SERIAL_ID)")
	fs.StringVar(&cfg.PlugName, "plugName",
		getEnv("TETHER_SERIAL_PLUG", "values"),
		"Output plug name (env: TETHER_SERIAL_PLUG)")
	fs.UintVar(&cfg.TimeoutMs, "timeout",
		getEnvUint("TETHER_SERIAL_TIMEOUT_MS", 0),
		"Exit when no valid value arrived for this many ms, 0 to disable (env: TETHER_SERIAL_TIMEOUT_MS)")
	fs.StringVar(&cfg.NatsURL, "nats",
		getEnv("TETHER_SERIAL_NATS_URL", "nats://127.0.0.1:4222"),
		"NATS server url, empty to disable (env: TETHER_SERIAL_NATS_URL)")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")

	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: %s [options] [serial device]\n\nOptions:\n", appName)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })
	markEnvSet(cfg.set)

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.SerialDevice = fs.Arg(0)
		cfg.set["device"] = true
	default:
		return nil, fmt.Errorf("%w: expected at most one serial device, got %d", errUsage, fs.NArg())
	}
	return cfg, nil
}

var envFlags = map[string]string{
	"TETHER_SERIAL_BAUDRATE":   "baudRate",
	"TETHER_SERIAL_LOG_LEVEL":  "loglevel",
	"TETHER_SERIAL_ROLE":       "tether.role",
	"TETHER_SERIAL_ID":         "tether.id",
	"TETHER_SERIAL_PLUG":       "plugName",
	"TETHER_SERIAL_TIMEOUT_MS": "timeout",
	"TETHER_SERIAL_NATS_URL":   "nats",
}

// Empty variables count as unset, like in getEnv.
func markEnvSet(set map[string]bool) {
	for env, name := range envFlags {
		if os.Getenv(env) != "" {
			set[name] = true
		}
	}
}

// apply copies every explicitly set option over the file config.
func (c *CLIConfig) apply(cfg *config.BridgeConfig) {
	if c.set["device"] {
		cfg.SerialDevice = c.SerialDevice
	}
	if c.set["baudRate"] {
		cfg.Baudrate = c.Baudrate
	}
	if c.set["loglevel"] {
		cfg.LogLevel = c.LogLevel
	}
	if c.set["tether.role"] {
		cfg.Role = c.Role
	}
	if c.set["tether.id"] {
		cfg.InstanceId = c.InstanceId
	}
	if c.set["plugName"] {
		cfg.PlugName = c.PlugName
	}
	if c.set["timeout"] {
		cfg.WatchdogTimeoutMs = c.TimeoutMs
	}
	if c.set["nats"] {
		cfg.NatsURL = c.NatsURL
	}
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint) uint {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 0); err == nil {
			return uint(parsed)
		}
	}
	return defaultValue
}
