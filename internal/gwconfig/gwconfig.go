// Package gwconfig loads the gateway daemon's own bootstrap settings
// from the environment: everything the orchestrator needs before it
// can construct the S4 Driver, the BLE adapters, and the logger. It is
// not the persistent, user-facing settings store (out of scope). The
// package has no setters: LoadFromEnv reads the environment once and
// returns a plain Config value.
package gwconfig

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the daemon's bootstrap configuration.
type Config struct {
	SerialPort     string
	PollInterval   time.Duration
	ActiveSubset   []string
	BLEAdapterName string
	DataDir        string
	LogLevel       string
	LogFormat      string
}

// LoadFromEnv populates a Config from the process environment, falling
// back to sane defaults for anything unset.
func LoadFromEnv() Config {
	cfg := Config{
		SerialPort:     getEnv("WR_SERIAL_PORT", ""),
		PollInterval:   200 * time.Millisecond,
		BLEAdapterName: getEnv("WR_BLE_ADAPTER_NAME", "default"),
		DataDir:        getEnv("WR_DATA_DIR", "."),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
	}

	if raw := os.Getenv("WR_POLL_INTERVAL_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			cfg.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}

	if raw := os.Getenv("WR_ACTIVE_SUBSET"); raw != "" {
		var names []string
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				names = append(names, name)
			}
		}
		cfg.ActiveSubset = names
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
