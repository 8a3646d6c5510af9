// Package config
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	TLS      TLSConfig      `yaml:"tls"`
	CORS     CORSConfig     `yaml:"cors"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAgeSeconds  int      `yaml:"max_age_seconds"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type AuthConfig struct {
	AdminUsername  string `yaml:"admin_username"`
	AdminPassword  string `yaml:"admin_password"`
	JWTSecret      string `yaml:"jwt_secret"`
	JWTExpiryHours int    `yaml:"jwt_expiry_hours"`
}

type MonitorConfig struct {
	TickSeconds             int `yaml:"tick_seconds"`
	TickJitterMS            int `yaml:"tick_jitter_ms"`
	MinSpacingSeconds       int `yaml:"min_spacing_seconds"`
	FallbackIntervalSeconds int `yaml:"fallback_interval_seconds"`
	ReconnectDelaySeconds   int `yaml:"reconnect_delay_seconds"`
	DialTimeoutMS           int `yaml:"dial_timeout_ms"`
	CommandTimeoutMS        int `yaml:"command_timeout_ms"`
}

type NotifyConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	BackoffSeconds int    `yaml:"backoff_seconds"`
	SMTPHost       string `yaml:"smtp_host"`
	SMTPPort       int    `yaml:"smtp_port"`
	SMTPFrom       string `yaml:"smtp_from"`
	SMTPUsername   string `yaml:"smtp_username"`
	SMTPPassword   string `yaml:"smtp_password"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from file and applies environment variable overrides
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	cfg.applyDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate ensures all required configuration values are set
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("UPS_AUTH_JWT_SECRET is required (minimum 32 characters)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters")
	}

	if c.Auth.AdminPassword == "" || c.Auth.AdminPassword == "changeme" {
		return fmt.Errorf("UPS_AUTH_ADMIN_PASSWORD must be set to a strong password")
	}

	// Validate database config
	if c.Database.Host == "" || c.Database.DBName == "" {
		return fmt.Errorf("database host and dbname are required")
	}

	return nil
}

// applyDefaults fills the monitoring and notification timings the upsd watch
// loop relies on.
func (c *Config) applyDefaults() {
	if c.Monitor.TickSeconds <= 0 {
		c.Monitor.TickSeconds = 10
	}
	if c.Monitor.TickJitterMS <= 0 {
		c.Monitor.TickJitterMS = 2000
	}
	if c.Monitor.MinSpacingSeconds <= 0 {
		c.Monitor.MinSpacingSeconds = 3
	}
	if c.Monitor.FallbackIntervalSeconds <= 0 {
		c.Monitor.FallbackIntervalSeconds = 60
	}
	if c.Monitor.ReconnectDelaySeconds <= 0 {
		c.Monitor.ReconnectDelaySeconds = 10
	}
	if c.Monitor.DialTimeoutMS <= 0 {
		c.Monitor.DialTimeoutMS = 5000
	}
	if c.Monitor.CommandTimeoutMS <= 0 {
		c.Monitor.CommandTimeoutMS = 5000
	}
	if c.Notify.MaxAttempts <= 0 {
		c.Notify.MaxAttempts = 3
	}
	if c.Notify.BackoffSeconds <= 0 {
		c.Notify.BackoffSeconds = 1
	}
	if c.Auth.JWTExpiryHours <= 0 {
		c.Auth.JWTExpiryHours = 24
	}
}

// applyEnvOverrides checks for environment variables with UPS_ prefix
func applyEnvOverrides(cfg *Config) {
	// Database overrides
	if v := os.Getenv("UPS_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("UPS_DATABASE_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Database.Port)
	}
	if v := os.Getenv("UPS_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}

	// Auth overrides
	if v := os.Getenv("UPS_AUTH_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("UPS_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	// SMTP overrides
	if v := os.Getenv("UPS_NOTIFY_SMTP_PASSWORD"); v != "" {
		cfg.Notify.SMTPPassword = v
	}
}

// GetReadTimeout returns the read timeout as a duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// GetWriteTimeout returns the write timeout as a duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// GetDSN returns the PostgreSQL connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// GetJWTExpiry returns JWT expiry as duration
func (a *AuthConfig) GetJWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

func (m *MonitorConfig) GetTickInterval() time.Duration {
	return time.Duration(m.TickSeconds) * time.Second
}

func (m *MonitorConfig) GetTickJitterMax() time.Duration {
	return time.Duration(m.TickJitterMS) * time.Millisecond
}

func (m *MonitorConfig) GetMinSpacing() time.Duration {
	return time.Duration(m.MinSpacingSeconds) * time.Second
}

func (m *MonitorConfig) GetFallbackInterval() time.Duration {
	return time.Duration(m.FallbackIntervalSeconds) * time.Second
}

func (m *MonitorConfig) GetReconnectDelay() time.Duration {
	return time.Duration(m.ReconnectDelaySeconds) * time.Second
}

func (m *MonitorConfig) GetDialTimeout() time.Duration {
	return time.Duration(m.DialTimeoutMS) * time.Millisecond
}

func (m *MonitorConfig) GetCommandTimeout() time.Duration {
	return time.Duration(m.CommandTimeoutMS) * time.Millisecond
}

func (n *NotifyConfig) GetBackoffUnit() time.Duration {
	return time.Duration(n.BackoffSeconds) * time.Second
}

// IsLogLevelValid checks if the log level is valid
func (l *LoggingConfig) IsLogLevelValid() bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	return slices.Contains(validLevels, strings.ToLower(l.Level))
}
