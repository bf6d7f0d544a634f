package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// BindFlags lets command-line flags override every other source.
// Flag names use dashes; "server-addr" binds to server.addr.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = l.v.BindPFlag(key, f)
	})
	return bindErr
}

var flagKeys = map[string]string{
	"addr":       "server.addr",
	"log-level":  "logging.level",
	"log-format": "logging.format",
	"redis-addr": "redis.addr",
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "teamhq"))
	}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "teamhq"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("TEAMHQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)
	bindEnvVars(v)
	v.AutomaticEnv()
}

func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	v.SetDefault("server.addr", cfg.Server.Addr)

	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)

	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.channel", cfg.Redis.Channel)

	v.SetDefault("auth.jwt_secret", cfg.Auth.JWTSecret)
	v.SetDefault("auth.token_ttl", cfg.Auth.TokenTTL)
	v.SetDefault("auth.admin_emails", cfg.Auth.AdminEmails)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	v.SetDefault("chat.subscriber_buffer", cfg.Chat.SubscriberBuffer)
	v.SetDefault("chat.dedupe_window", cfg.Chat.DedupeWindow)
}

// bindEnvVars binds every key to TEAMHQ_* and keeps the bare names the
// docker deployment has always exported.
func bindEnvVars(v *viper.Viper) {
	bindings := map[string][]string{
		"server.addr":                {"TEAMHQ_SERVER_ADDR"},
		"database.dsn":               {"TEAMHQ_DATABASE_DSN", "DB_DSN"},
		"database.max_open_conns":    {"TEAMHQ_DATABASE_MAX_OPEN_CONNS"},
		"database.conn_max_lifetime": {"TEAMHQ_DATABASE_CONN_MAX_LIFETIME"},
		"redis.addr":                 {"TEAMHQ_REDIS_ADDR", "REDIS_ADDR"},
		"redis.channel":              {"TEAMHQ_REDIS_CHANNEL"},
		"auth.jwt_secret":            {"TEAMHQ_AUTH_JWT_SECRET", "JWT_SECRET"},
		"auth.token_ttl":             {"TEAMHQ_AUTH_TOKEN_TTL"},
		"auth.admin_emails":          {"TEAMHQ_AUTH_ADMIN_EMAILS"},
		"logging.level":              {"TEAMHQ_LOGGING_LEVEL"},
		"logging.format":             {"TEAMHQ_LOGGING_FORMAT"},
		"chat.subscriber_buffer":     {"TEAMHQ_CHAT_SUBSCRIBER_BUFFER"},
		"chat.dedupe_window":         {"TEAMHQ_CHAT_DEDUPE_WINDOW"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}
	return l.v.ReadInConfig()
}
