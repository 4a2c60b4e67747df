package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for AORTA
type Config struct {
	// Root of the resource store
	DataDir string `mapstructure:"data_dir"`

	// Listener settings (PROTOCOL, PORT, KEY, CERT are honored too)
	Protocol string `mapstructure:"protocol"`
	Port     int    `mapstructure:"port"`
	TLSKey   string `mapstructure:"tls_key"`
	TLSCert  string `mapstructure:"tls_cert"`

	// Directory with <script>.html digest templates overriding the built-in ones
	TemplatesDir string `mapstructure:"templates_dir"`

	// Session backend (file or redis) and session lifetime
	SessionBackend string        `mapstructure:"session_backend"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`

	// Request limits
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
	BodyLimit  int64         `mapstructure:"body_limit"`

	// Take client addresses from X-Forwarded-For behind a reverse proxy
	TrustProxy bool `mapstructure:"trust_proxy"`

	// Mail relay for report notifications (SMTP_* are honored too)
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
	SMTPFrom     string `mapstructure:"smtp_from"`

	// Logging (text or json)
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Client settings
	Server   string `mapstructure:"server"`
	User     string `mapstructure:"user"`
	AuthCode string `mapstructure:"auth_code"`
	Session  string `mapstructure:"session"`

	// Test-execution engine binary and its per-job timeout
	Engine        string        `mapstructure:"engine"`
	EngineTimeout time.Duration `mapstructure:"engine_timeout"`

	// Verbose output
	Verbose bool `mapstructure:"verbose"`

	// Debug mode
	Debug bool `mapstructure:"debug"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		DataDir:        "data",
		Protocol:       "http",
		Port:           3005,
		SessionBackend: "file",
		SessionTTL:     12 * time.Hour,
		RedisAddr:      "localhost:6379",
		RateLimit:      120,
		RateWindow:     time.Minute,
		BodyLimit:      4 << 20,
		SMTPPort:       587,
		LogLevel:       "info",
		LogFormat:      "text",
		Server:         "http://localhost:3005",
		Engine:         "testaro",
		EngineTimeout:  30 * time.Minute,
	}
}

// plainEnv lists the unprefixed environment variables the server has
// always read, by config key.
var plainEnv = map[string]string{
	"protocol":      "PROTOCOL",
	"port":          "PORT",
	"tls_key":       "KEY",
	"tls_cert":      "CERT",
	"smtp_host":     "SMTP_HOST",
	"smtp_port":     "SMTP_PORT",
	"smtp_user":     "SMTP_USER",
	"smtp_password": "SMTP_PASSWORD",
	"smtp_from":     "SMTP_FROM",
}

// Load loads configuration with the following precedence (lowest to highest):
// 1. Default values
// 2. Config file (~/aorta.yaml or ./aorta.yaml)
// 3. Environment variables (AORTA_*, then the plain names in plainEnv)
// 4. CLI flags (handled by caller)
func Load() (*Config, error) {
	return LoadFromFile("")
}

// LoadFromFile loads configuration from a specific file path
// If path is empty, it searches for config in standard locations
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("protocol", defaults.Protocol)
	v.SetDefault("port", defaults.Port)
	v.SetDefault("tls_key", "")
	v.SetDefault("tls_cert", "")
	v.SetDefault("templates_dir", "")
	v.SetDefault("session_backend", defaults.SessionBackend)
	v.SetDefault("session_ttl", defaults.SessionTTL)
	v.SetDefault("redis_addr", defaults.RedisAddr)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("rate_limit", defaults.RateLimit)
	v.SetDefault("rate_window", defaults.RateWindow)
	v.SetDefault("body_limit", defaults.BodyLimit)
	v.SetDefault("trust_proxy", false)
	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", defaults.SMTPPort)
	v.SetDefault("smtp_user", "")
	v.SetDefault("smtp_password", "")
	v.SetDefault("smtp_from", "")
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("server", defaults.Server)
	v.SetDefault("user", "")
	v.SetDefault("auth_code", "")
	v.SetDefault("session", "")
	v.SetDefault("engine", defaults.Engine)
	v.SetDefault("engine_timeout", defaults.EngineTimeout)
	v.SetDefault("verbose", false)
	v.SetDefault("debug", false)

	v.SetConfigName("aorta")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			v.AddConfigPath(filepath.Join(xdgConfig, "aorta"))
		}
	}

	v.SetEnvPrefix("AORTA")
	v.AutomaticEnv()
	for key, name := range plainEnv {
		if err := v.BindEnv(key, "AORTA_"+strings.ToUpper(key), name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is OK, we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}

	switch c.Protocol {
	case "http":
	case "https":
		if c.TLSKey == "" || c.TLSCert == "" {
			return fmt.Errorf("https requires tls_key and tls_cert")
		}
	default:
		return fmt.Errorf("invalid protocol: %s (must be http or https)", c.Protocol)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	switch c.SessionBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("invalid session_backend: %s (must be file or redis)", c.SessionBackend)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}

	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("rate_window must be positive")
	}
	if c.BodyLimit <= 0 {
		return fmt.Errorf("body_limit must be positive")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (must be text or json)", c.LogFormat)
	}

	if c.EngineTimeout <= 0 {
		return fmt.Errorf("engine_timeout must be positive")
	}

	return nil
}

// Addr returns the listen address of the server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GetStoragePath returns the absolute path to the data directory
func (c *Config) GetStoragePath() (string, error) {
	if strings.HasPrefix(c.DataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, c.DataDir[2:]), nil
	}

	absPath, err := filepath.Abs(c.DataDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// ConfigPath returns the per-user config file written by `aorta login`
func ConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "aorta", "aorta.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "aorta.yaml")
	}
	return "aorta.yaml"
}

// WriteSession stores a session id and the server it belongs to in the
// config file at path, keeping every other setting. An empty sessionID
// removes the stored session.
func WriteSession(sessionID, server, path string) error {
	settings := map[string]any{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if settings == nil {
			settings = map[string]any{}
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if sessionID == "" {
		delete(settings, "session")
	} else {
		settings["session"] = sessionID
		if server != "" {
			settings["server"] = server
		}
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file
	return os.Chmod(path, 0o600)
}

// GenerateSampleConfig generates a sample configuration file content
func GenerateSampleConfig() string {
	return `# AORTA Configuration
# Save this file as ~/aorta.yaml or ./aorta.yaml
# Every key can also be set as AORTA_<KEY>, e.g. AORTA_DATA_DIR.

# Resource store root (scripts/, batches/, orders/, jobs/, reports/, digests/, users/)
data_dir: data

# Listener: http or https. PROTOCOL, PORT, KEY and CERT are honored too.
protocol: http
port: 3005
# tls_key: /etc/aorta/key.pem
# tls_cert: /etc/aorta/cert.pem

# Directory with <script>.html templates overriding the built-in digests
# templates_dir: /etc/aorta/templates

# Sessions: file (under data_dir/sessions) or redis
session_backend: file
session_ttl: 12h
# redis_addr: localhost:6379
# redis_password: ""
# redis_db: 0

# Request limits per client IP
rate_limit: 120
rate_window: 1m
body_limit: 4194304
# Only behind a reverse proxy that overwrites X-Forwarded-For
# trust_proxy: false

# Report notifications. SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASSWORD
# and SMTP_FROM are honored too. Without smtp_host they are only logged.
# smtp_host: mail.example.com
# smtp_port: 587
# smtp_user: aorta
# smtp_password: secret
# smtp_from: aorta@example.com

# Logging: debug, info, warn, error; text or json
log_level: info
log_format: text

# Client settings
server: http://localhost:3005
# user: alice
# auth_code: secret

# Test-execution engine used by "aorta run"
engine: testaro
engine_timeout: 30m

# Enable verbose output
verbose: false

# Enable debug mode
debug: false
`
}
