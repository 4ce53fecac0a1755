package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/exmate/exmate/internal/timex"
)

// fileConfig is the on-disk shape, shared by JSON and YAML. Absent fields
// leave the current value alone.
type fileConfig struct {
	ServerURL         *string         `json:"server_url" yaml:"server_url"`
	RealtimeURL       *string         `json:"realtime_url" yaml:"realtime_url"`
	DBPath            *string         `json:"db_path" yaml:"db_path"`
	CallbackAddr      *string         `json:"callback_addr" yaml:"callback_addr"`
	BadgePollInterval *timex.Duration `json:"badge_poll_interval" yaml:"badge_poll_interval"`
	RequestTimeout    *timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	LogLevel          *string         `json:"log_level" yaml:"log_level"`
}

// parseFile overlays cfg with the file at path. Files ending in .yaml or
// .yml are YAML; anything else is JSON. An empty path is a no-op.
func parseFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.ServerURL, fc.ServerURL)
	setString(&cfg.RealtimeURL, fc.RealtimeURL)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.CallbackAddr, fc.CallbackAddr)
	setString(&cfg.LogLevel, fc.LogLevel)
	if fc.BadgePollInterval != nil {
		cfg.BadgePollInterval = fc.BadgePollInterval.Duration
	}
	if fc.RequestTimeout != nil {
		cfg.RequestTimeout = fc.RequestTimeout.Duration
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
