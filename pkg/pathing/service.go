package pathing

import (
	"os"
	"path/filepath"
)

// EnsureDataDir creates the data directory when it does not exist yet.
// Only needed when something is persisted, e.g. the value journal.
func EnsureDataDir() error {
	dir := GetDataDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func GetJournalDbPath() string {
	// Join path
	return filepath.Join(GetDataDir(), "tether-serial-journal.db")
}

func GetBridgeConfigPath() string {
	return filepath.Join(GetConfigDir(), "tether_serial.toml")
}

func GetListenerConfigPath() string {
	return filepath.Join(GetConfigDir(), "value_listener.toml")
}

func GetDataDir() string {
	return "/var/lib/tether_serial"
}

func GetConfigDir() string {
	return "/etc/tether_serial"
}
