// Package config loads runtime configuration for the exmate terminal client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment: EXMATE_* variables, after a .env file in the working
//     directory is loaded with godotenv.
//  3. Optional config file selected via -c or -config. JSON, or YAML when
//     the name ends in .yaml/.yml.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// # File schema
//
// Intervals use timex.Duration, so values can be strings like "30s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "https://exmate.example",
//	  "db_path": "/var/lib/exmate/client.db",
//	  "callback_addr": "127.0.0.1:8765",
//	  "badge_poll_interval": "30s",
//	  "request_timeout": "10s",
//	  "log_level": "info"
//	}
//
// When no realtime URL is configured it is derived from the server URL:
// http→ws, https→wss, path /ws.
package config
