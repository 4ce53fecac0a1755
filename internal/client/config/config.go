package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/exmate/exmate/internal/flagx"
)

// Config holds runtime settings for the exmate terminal client.
type Config struct {
	ServerURL         string
	RealtimeURL       string
	DBPath            string
	CallbackAddr      string
	BadgePollInterval time.Duration
	RequestTimeout    time.Duration
	LogLevel          string
}

// LoadDefaults populates c with sensible defaults. RealtimeURL is left
// empty and derived from ServerURL unless set explicitly.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:5000"
	c.RealtimeURL = ""
	c.DBPath = "exmate.db"
	c.CallbackAddr = "127.0.0.1:8765"
	c.BadgePollInterval = 30 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.LogLevel = "info"
}

// LoadConfig builds a Config from defaults, the environment (including a
// .env file in the working directory), an optional config file named by
// -c/-config, and finally the flags in args. Later sources win.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := parseFile(cfg, flagx.ConfigFileFlag(args)); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finalize derives RealtimeURL and checks the result.
func (c *Config) finalize() error {
	if c.RealtimeURL == "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil {
			return fmt.Errorf("server url: %w", err)
		}
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
		u.Path = strings.TrimRight(u.Path, "/") + "/ws"
		u.RawQuery = ""
		c.RealtimeURL = u.String()
	}
	if c.BadgePollInterval <= 0 {
		return errors.New("badge poll interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	return nil
}
