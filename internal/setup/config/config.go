package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// CurrentConfigVersion is the version the config file must declare.
const CurrentConfigVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Telegram   Telegram   `koanf:"telegram"`
	Worker     Worker     `koanf:"worker"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"db_name"`
	// Maximum number of open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum number of idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Maximum lifetime of a connection in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Maximum idle time of a connection in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Telegram contains Bot API configuration.
type Telegram struct {
	// Bot token issued by BotFather.
	Token string `koanf:"token"`
	// Base URL of the Bot API, overridable for self-hosted gateways.
	APIURL string `koanf:"api_url"`
	// Chat that receives run-level failure and policy hazard alerts.
	AdminChatID int64 `koanf:"admin_chat_id"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
}

// Worker contains reconciliation worker configuration.
type Worker struct {
	// Interval between reconciliation runs in seconds.
	RunInterval int `koanf:"run_interval"`
	// Startup delay in milliseconds applied to timer-driven runs.
	StartupDelay int `koanf:"startup_delay"`
	// Maximum concurrent gateway calls per action batch.
	MaxConcurrentActions int `koanf:"max_concurrent_actions"`
}

// LoadConfig loads the config file from the standard search paths and
// returns the parsed configuration along with the directory it was found in.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".joinwarden",
		homeDir + "/.joinwarden/config",
		"/etc/joinwarden/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/config.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Version == 0 {
		return nil, "", ErrConfigVersionMissing
	}

	if config.Version != CurrentConfigVersion {
		return nil, "", fmt.Errorf("%w: expected version %d, got %d",
			ErrConfigVersionMismatch, CurrentConfigVersion, config.Version)
	}

	applyDefaults(&config)

	return &config, usedConfigPath, nil
}

// applyDefaults fills in values the config file may omit.
func applyDefaults(config *Config) {
	if config.Debug.LogLevel == "" {
		config.Debug.LogLevel = "info"
	}

	if config.Telegram.APIURL == "" {
		config.Telegram.APIURL = "https://api.telegram.org"
	}

	if config.Telegram.RequestTimeout == 0 {
		config.Telegram.RequestTimeout = 30000
	}

	if config.Worker.RunInterval == 0 {
		config.Worker.RunInterval = 60
	}

	if config.Worker.MaxConcurrentActions == 0 {
		config.Worker.MaxConcurrentActions = 8
	}
}
