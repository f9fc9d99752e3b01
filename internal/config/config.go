// Package config loads server settings from defaults, an optional TOML file
// and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// AuditOff is the DB_PATH value that disables the audit journal.
const AuditOff = "off"

// Config holds the server settings.
type Config struct {
	Port                 int
	DBPath               string
	AllowedOrigins       []string
	SessionMaxAge        time.Duration
	SweepInterval        time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	ShutdownTimeout      time.Duration
	LogLevel             string
	LogPretty            bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:                 3000,
		DBPath:               "data/signaling.db",
		AllowedOrigins:       []string{},
		SessionMaxAge:        24 * time.Hour,
		SweepInterval:        time.Hour,
		MaxMessageBytes:      64 * 1024,
		MaxMessagesPerSecond: 50,
		ShutdownTimeout:      15 * time.Second,
		LogLevel:             "info",
	}
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// AuditEnabled reports whether session events are journaled to SQLite.
func (c Config) AuditEnabled() bool {
	path := strings.TrimSpace(c.DBPath)
	return path != "" && !strings.EqualFold(path, AuditOff)
}

// Validate checks that every setting is usable.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("session max age must be positive, got %v", c.SessionMaxAge)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", c.SweepInterval)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max message bytes must be positive, got %d", c.MaxMessageBytes)
	}
	if c.MaxMessagesPerSecond <= 0 {
		return fmt.Errorf("max messages per second must be positive, got %d", c.MaxMessagesPerSecond)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.ShutdownTimeout)
	}
	return nil
}

// Load reads .env if present, then CONFIG_FILE if set, then the process
// environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(os.Getenv("CONFIG_FILE"), os.LookupEnv)
}

// LoadFrom builds the configuration from an optional TOML file and an
// environment lookup function.
func LoadFrom(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type fileConfig struct {
	Port                 int      `toml:"port"`
	DBPath               string   `toml:"db_path"`
	AllowedOrigins       []string `toml:"allowed_origins"`
	SessionMaxAge        string   `toml:"session_max_age"`
	SweepInterval        string   `toml:"sweep_interval"`
	MaxMessageBytes      int64    `toml:"max_message_bytes"`
	MaxMessagesPerSecond int      `toml:"max_messages_per_second"`
	ShutdownTimeout      string   `toml:"shutdown_timeout"`
	LogLevel             string   `toml:"log_level"`
	LogPretty            bool     `toml:"log_pretty"`
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}

	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("db_path") {
		cfg.DBPath = strings.TrimSpace(raw.DBPath)
	}
	if meta.IsDefined("allowed_origins") {
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	}
	if meta.IsDefined("session_max_age") {
		if cfg.SessionMaxAge, err = parseDuration("session_max_age", raw.SessionMaxAge); err != nil {
			return err
		}
	}
	if meta.IsDefined("sweep_interval") {
		if cfg.SweepInterval, err = parseDuration("sweep_interval", raw.SweepInterval); err != nil {
			return err
		}
	}
	if meta.IsDefined("max_message_bytes") {
		cfg.MaxMessageBytes = raw.MaxMessageBytes
	}
	if meta.IsDefined("max_messages_per_second") {
		cfg.MaxMessagesPerSecond = raw.MaxMessagesPerSecond
	}
	if meta.IsDefined("shutdown_timeout") {
		if cfg.ShutdownTimeout, err = parseDuration("shutdown_timeout", raw.ShutdownTimeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_pretty") {
		cfg.LogPretty = raw.LogPretty
	}

	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	var err error
	if v, ok := get("PORT"); ok {
		if cfg.Port, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("parse PORT: %w", err)
		}
	}
	if v, ok := get("DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := get("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = normalizeOrigins(strings.Split(v, ","))
	}
	if v, ok := get("SESSION_MAX_AGE"); ok {
		if cfg.SessionMaxAge, err = parseDuration("SESSION_MAX_AGE", v); err != nil {
			return err
		}
	}
	if v, ok := get("SWEEP_INTERVAL"); ok {
		if cfg.SweepInterval, err = parseDuration("SWEEP_INTERVAL", v); err != nil {
			return err
		}
	}
	if v, ok := get("MAX_MESSAGE_BYTES"); ok {
		if cfg.MaxMessageBytes, err = strconv.ParseInt(v, 10, 64); err != nil {
			return fmt.Errorf("parse MAX_MESSAGE_BYTES: %w", err)
		}
	}
	if v, ok := get("MAX_MESSAGES_PER_SECOND"); ok {
		if cfg.MaxMessagesPerSecond, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("parse MAX_MESSAGES_PER_SECOND: %w", err)
		}
	}
	if v, ok := get("SHUTDOWN_TIMEOUT"); ok {
		if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", v); err != nil {
			return err
		}
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := get("LOG_PRETTY"); ok {
		if cfg.LogPretty, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("parse LOG_PRETTY: %w", err)
		}
	}

	return nil
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return d, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
