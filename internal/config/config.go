// Package config handles Team HQ configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Chat     ChatConfig     `yaml:"chat" mapstructure:"chat"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	// Addr is the HTTP service address.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DatabaseConfig contains Postgres settings.
type DatabaseConfig struct {
	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn" mapstructure:"dsn"`

	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// RedisConfig contains the change-notification transport settings.
// An empty Addr runs the hub in-process without Redis.
type RedisConfig struct {
	Addr    string `yaml:"addr" mapstructure:"addr"`
	Channel string `yaml:"channel" mapstructure:"channel"`
}

// AuthConfig contains token settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`

	// AdminEmails register with the admin role. Channel management needs at
	// least one admin.
	AdminEmails []string `yaml:"admin_emails" mapstructure:"admin_emails"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// ChatConfig tunes the realtime delivery path.
type ChatConfig struct {
	// SubscriberBuffer is the per-subscription queue length; pushes beyond it are dropped.
	SubscriberBuffer int `yaml:"subscriber_buffer" mapstructure:"subscriber_buffer"`

	// DedupeWindow is how many recently delivered message ids a binding remembers.
	DedupeWindow int `yaml:"dedupe_window" mapstructure:"dedupe_window"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "teamhq-messages",
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Chat: ChatConfig{
			SubscriberBuffer: 256,
			DedupeWindow:     512,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL))
	}
	if c.Redis.Channel == "" {
		errs = append(errs, errors.New("redis.channel is required"))
	}
	if c.Chat.SubscriberBuffer <= 0 {
		errs = append(errs, fmt.Errorf("chat.subscriber_buffer must be positive, got %d", c.Chat.SubscriberBuffer))
	}
	if c.Chat.DedupeWindow <= 0 {
		errs = append(errs, fmt.Errorf("chat.dedupe_window must be positive, got %d", c.Chat.DedupeWindow))
	}
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("database.max_open_conns must be positive, got %d", c.Database.MaxOpenConns))
	}
	return errors.Join(errs...)
}
