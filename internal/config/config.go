// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultWidgetUserID is the widget owner used when none is configured.
const DefaultWidgetUserID = "684406c479f1ca7347878665"

// Config holds all application configuration.
type Config struct {
	Port           string        `yaml:"port"`
	RemoteBaseURL  string        `yaml:"remote_base_url"`
	DBPath         string        `yaml:"db_path"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	WidgetUserID   string        `yaml:"widget_user_id"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogLevel       string        `yaml:"log_level"`
}

func defaults() *Config {
	return &Config{
		Port:           "8090",
		RemoteBaseURL:  "http://localhost:3000",
		DBPath:         "./data/console.db",
		HTTPTimeout:    30 * time.Second,
		WidgetUserID:   DefaultWidgetUserID,
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
	}
}

// Load reads configuration from the YAML file named by CONSOLE_CONFIG, if
// any, then from environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := getEnv("CONSOLE_CONFIG", ""); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.RemoteBaseURL = getEnv("REMOTE_BASE_URL", cfg.RemoteBaseURL)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.WidgetUserID = getEnv("WIDGET_USER_ID", cfg.WidgetUserID)
	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	u, err := url.Parse(c.RemoteBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("REMOTE_BASE_URL must be an http(s) URL, got %q", c.RemoteBaseURL)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be >= 0")
	}
	if c.WidgetUserID == "" {
		return fmt.Errorf("WIDGET_USER_ID cannot be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS cannot be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// IsDevelopment returns true when the remote service runs on this machine.
func (c *Config) IsDevelopment() bool {
	return strings.Contains(c.RemoteBaseURL, "localhost") ||
		strings.Contains(c.RemoteBaseURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	// Bare integers are seconds.
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
