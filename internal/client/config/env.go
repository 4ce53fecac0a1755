package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "EXMATE_"

// loadDotEnv exports the variables in path into the process environment
// without overriding ones already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// parseEnv overlays cfg with EXMATE_* variables. Durations use
// time.ParseDuration syntax.
func parseEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SERVER_URL":    &cfg.ServerURL,
		"REALTIME_URL":  &cfg.RealtimeURL,
		"DB_PATH":       &cfg.DBPath,
		"CALLBACK_ADDR": &cfg.CallbackAddr,
		"LOG_LEVEL":     &cfg.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"BADGE_POLL_INTERVAL": &cfg.BadgePollInterval,
		"REQUEST_TIMEOUT":     &cfg.RequestTimeout,
	}
	for name, dst := range durations {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}
	return nil
}
