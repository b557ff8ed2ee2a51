// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads service configuration from a YAML file, command-line
// flags, and environment fallbacks.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/accounts/internal/auth"
)

// CodeInvalid tags every configuration error.
const CodeInvalid = "CONFIG_INVALID"

// Environment variables consulted when the file and flags leave a key empty.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvTokenSecret = "ACCOUNTS_TOKEN_SECRET"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Default values.
const (
	DefaultServerAddr      = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMetricsAddr     = "127.0.0.1:9100"
	DefaultControlAddr     = "127.0.0.1:9101"
	DefaultConnectTimeout  = 30 * time.Second
	DefaultLogFormat       = "json"
	DefaultLogLevel        = "info"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Metrics MetricsConfig `koanf:"metrics"`
	Control ControlConfig `koanf:"control"`
	Store   StoreConfig   `koanf:"store"`
	Token   TokenConfig   `koanf:"token"`
	Hasher  HasherConfig  `koanf:"hasher"`
	Log     LogConfig     `koanf:"log"`
}

// ServerConfig configures the API listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// ControlConfig configures the gRPC health listener. An empty Addr disables it.
type ControlConfig struct {
	Addr string `koanf:"addr"`
}

// StoreConfig selects and locates the user directory.
type StoreConfig struct {
	Driver         string        `koanf:"driver"`
	DSN            string        `koanf:"dsn"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// TokenConfig configures the session token codec.
type TokenConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

// HasherConfig configures password hashing.
type HasherConfig struct {
	Algorithm       string `koanf:"algorithm"`
	Argon2Time      uint32 `koanf:"argon2_time"`
	Argon2MemoryKiB uint32 `koanf:"argon2_memory_kib"`
	Argon2Threads   uint8  `koanf:"argon2_threads"`
	BcryptCost      int    `koanf:"bcrypt_cost"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":             "server.addr",
	"read-timeout":     "server.read_timeout",
	"shutdown-timeout": "server.shutdown_timeout",
	"metrics-addr":     "metrics.addr",
	"control-addr":     "control.addr",
	"store":            "store.driver",
	"dsn":              "store.dsn",
	"connect-timeout":  "store.connect_timeout",
	"token-ttl":        "token.ttl",
	"hash-algorithm":   "hasher.algorithm",
	"argon2-time":      "hasher.argon2_time",
	"argon2-memory":    "hasher.argon2_memory_kib",
	"argon2-threads":   "hasher.argon2_threads",
	"bcrypt-cost":      "hasher.bcrypt_cost",
	"log-format":       "log.format",
	"log-level":        "log.level",
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	hasher := auth.DefaultHasherConfig()
	return Config{
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			ReadTimeout:     DefaultReadTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr},
		Control: ControlConfig{Addr: DefaultControlAddr},
		Store: StoreConfig{
			Driver:         DriverPostgres,
			ConnectTimeout: DefaultConnectTimeout,
		},
		Token: TokenConfig{TTL: auth.DefaultTokenTTL},
		Hasher: HasherConfig{
			Algorithm:       hasher.Algorithm,
			Argon2Time:      hasher.Argon2Time,
			Argon2MemoryKiB: hasher.Argon2MemoryKiB,
			Argon2Threads:   hasher.Argon2Threads,
			BcryptCost:      hasher.BcryptCost,
		},
		Log: LogConfig{Format: DefaultLogFormat, Level: DefaultLogLevel},
	}
}

// RegisterFlags adds the configuration flags to fs with their default values.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("addr", d.Server.Addr, "API listen address")
	fs.Duration("read-timeout", d.Server.ReadTimeout, "API request read timeout")
	fs.Duration("shutdown-timeout", d.Server.ShutdownTimeout, "graceful shutdown budget")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("control-addr", d.Control.Addr, "control gRPC address (empty = disabled)")
	fs.String("store", d.Store.Driver, "user store driver (postgres, sqlite, memory)")
	fs.String("dsn", "", "store connection string (default: $"+EnvDatabaseURL+")")
	fs.Duration("connect-timeout", d.Store.ConnectTimeout, "how long to wait for the database at startup")
	fs.Duration("token-ttl", d.Token.TTL, "session token lifetime")
	fs.String("hash-algorithm", d.Hasher.Algorithm, "password hash algorithm (argon2id or bcrypt)")
	fs.Uint32("argon2-time", d.Hasher.Argon2Time, "argon2id iterations")
	fs.Uint32("argon2-memory", d.Hasher.Argon2MemoryKiB, "argon2id memory in KiB")
	fs.Uint8("argon2-threads", d.Hasher.Argon2Threads, "argon2id parallelism")
	fs.Int("bcrypt-cost", d.Hasher.BcryptCost, "bcrypt cost")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// Load builds a Config. The YAML file at path (optional) is read first; flags
// set explicitly on the command line override it, and flag defaults fill keys
// the file left unset. Empty store.dsn and token.secret fall back to the
// environment through getenv.
func Load(path string, fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code(CodeInvalid).
				With("operation", "read config file").
				With("path", path).
				Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeInvalid).
				With("operation", "read flags").
				Wrap(err)
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalid).
			With("operation", "decode config").
			Wrap(err)
	}

	if getenv != nil {
		if cfg.Store.DSN == "" {
			cfg.Store.DSN = getenv(EnvDatabaseURL)
		}
		if cfg.Token.Secret == "" {
			cfg.Token.Secret = getenv(EnvTokenSecret)
		}
	}

	return &cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	err := errors.Join(
		c.Server.Validate(),
		c.Store.Validate(),
		c.Token.Validate(),
		c.Hasher.Validate(),
		c.Log.Validate(),
	)
	if err != nil {
		return oops.Code(CodeInvalid).Wrap(err)
	}
	return nil
}

// Validate checks the API listener settings.
func (s ServerConfig) Validate() error {
	if s.Addr == "" {
		return oops.Code(CodeInvalid).Errorf("server.addr is required")
	}
	if s.ReadTimeout <= 0 {
		return oops.Code(CodeInvalid).Errorf("server.read_timeout must be positive, got %s", s.ReadTimeout)
	}
	if s.ShutdownTimeout <= 0 {
		return oops.Code(CodeInvalid).Errorf("server.shutdown_timeout must be positive, got %s", s.ShutdownTimeout)
	}
	return nil
}

// Validate checks the store driver and its connection string.
func (s StoreConfig) Validate() error {
	switch s.Driver {
	case DriverPostgres, DriverSQLite:
		if s.DSN == "" {
			return oops.Code(CodeInvalid).
				With("driver", s.Driver).
				Errorf("store.dsn is required for %s (or set %s)", s.Driver, EnvDatabaseURL)
		}
	case DriverMemory:
	default:
		return oops.Code(CodeInvalid).Errorf("store.driver must be postgres, sqlite, or memory, got %q", s.Driver)
	}
	if s.ConnectTimeout <= 0 {
		return oops.Code(CodeInvalid).Errorf("store.connect_timeout must be positive, got %s", s.ConnectTimeout)
	}
	return nil
}

// Validate checks the token secret and lifetime.
func (t TokenConfig) Validate() error {
	if t.Secret == "" {
		return oops.Code(CodeInvalid).Errorf("token.secret is required (or set %s)", EnvTokenSecret)
	}
	if len(t.Secret) < auth.MinSecretLength {
		return oops.Code(CodeInvalid).
			Errorf("token.secret must be at least %d bytes, got %d", auth.MinSecretLength, len(t.Secret))
	}
	if t.TTL < auth.MinTokenTTL {
		return oops.Code(CodeInvalid).Errorf("token.ttl must be at least %s, got %s", auth.MinTokenTTL, t.TTL)
	}
	return nil
}

// Validate checks the hashing parameters.
func (h HasherConfig) Validate() error {
	if err := h.Auth().Validate(); err != nil {
		return oops.Code(CodeInvalid).With("section", "hasher").Errorf("hasher: %v", err)
	}
	return nil
}

// Auth converts h to the hasher's own configuration type.
func (h HasherConfig) Auth() auth.HasherConfig {
	return auth.HasherConfig{
		Algorithm:       h.Algorithm,
		Argon2Time:      h.Argon2Time,
		Argon2MemoryKiB: h.Argon2MemoryKiB,
		Argon2Threads:   h.Argon2Threads,
		BcryptCost:      h.BcryptCost,
	}
}

// Validate checks the log format and level.
func (l LogConfig) Validate() error {
	if l.Format != "json" && l.Format != "text" {
		return oops.Code(CodeInvalid).Errorf("log.format must be 'json' or 'text', got %q", l.Format)
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return oops.Code(CodeInvalid).Errorf("log.level must be debug, info, warn, or error, got %q", l.Level)
	}
	return nil
}

// String renders the configuration for startup logs with the secret redacted.
func (c *Config) String() string {
	secret := ""
	if c.Token.Secret != "" {
		secret = "[redacted]"
	}
	return fmt.Sprintf("server=%s store=%s metrics=%s control=%s token.ttl=%s token.secret=%s hasher=%s log=%s/%s",
		c.Server.Addr, c.Store.Driver, c.Metrics.Addr, c.Control.Addr,
		c.Token.TTL, secret, c.Hasher.Algorithm, c.Log.Format, c.Log.Level)
}
