package config

import (
	"flag"
	"io"
	"time"

	"github.com/exmate/exmate/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
//	-s string   REST API base URL
//	-w string   realtime websocket URL
//	-d string   local database path
//	-l string   callback listener address
//	-i int      badge poll interval (seconds)
//	-t int      request timeout (seconds)
//	-v string   log level
//
// args are filtered with flagx.FilterArgs so flags meant for other parsers
// (-c/-config) do not cause errors here.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-s", "-w", "-d", "-l", "-i", "-t", "-v"})

	fs := flag.NewFlagSet("exmate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "REST API base URL")
	fs.StringVar(&cfg.RealtimeURL, "w", cfg.RealtimeURL, "realtime websocket URL")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "local database path")
	fs.StringVar(&cfg.CallbackAddr, "l", cfg.CallbackAddr, "callback listener address")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level (debug, info, warn, error)")
	poll := fs.Int("i", int(cfg.BadgePollInterval.Seconds()), "badge poll interval (in seconds)")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.BadgePollInterval = time.Duration(*poll) * time.Second
		case "t":
			cfg.RequestTimeout = time.Duration(*timeout) * time.Second
		}
	})
	return nil
}
