/*
Package config loads application configuration.

PURPOSE:
  Aggregates configuration for the server, database, ledger, and logging.
  Values come from an optional YAML file, overridden by environment
  variables, overridden in turn by command-line flags in cmd/server.

ENVIRONMENT VARIABLES:
  PL_ADDR             Listen address (default :8080)
  PL_DB_PATH          SQLite database path (default points.db)
  PL_CONTROLLERS      Comma-separated controller principals
  PL_ALLOWED_ORIGINS  Comma-separated CORS origins
  PL_LOG_LEVEL        debug|info|warn|error (default info)
  PL_LOG_FORMAT       text|json (default text)
*/
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config aggregates application configuration values.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Database DBConfig      `yaml:"database"`
	Ledger   LedgerConfig  `yaml:"ledger"`
	Logging  LoggingConfig `yaml:"logging"`
}

// ServerConfig governs HTTP server behaviour.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// DBConfig describes the SQLite database.
type DBConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig holds ledger-level settings.
type LedgerConfig struct {
	// Controllers are the principals allowed to perform the one-time
	// service bootstrap.
	Controllers []string `yaml:"controllers"`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

const (
	defaultAddr            = ":8080"
	defaultDBPath          = "points.db"
	defaultReadTimeout     = Duration(15 * time.Second)
	defaultWriteTimeout    = Duration(15 * time.Second)
	defaultIdleTimeout     = Duration(60 * time.Second)
	defaultShutdownTimeout = Duration(30 * time.Second)
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            defaultAddr,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
			AllowedOrigins:  []string{"http://localhost:5173"},
		},
		Database: DBConfig{Path: defaultDBPath},
		Logging:  LoggingConfig{Level: defaultLogLevel, Format: defaultLogFormat},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PL_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PL_CONTROLLERS"); v != "" {
		cfg.Ledger.Controllers = splitCSV(v)
	}
	if v := os.Getenv("PL_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("PL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
