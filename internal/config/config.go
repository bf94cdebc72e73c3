package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anstrom/gvmbridge/internal/registry"
)

// Default GVM object identifiers and names used when the caller does not
// override them. These match the stock Greenbone community feed setup.
const (
	DefaultPortListID  = "33d0cd82-57c6-11e1-8ed1-406186ea4fc5"
	DefaultConfigName  = "Full and fast"
	DefaultScannerName = "OpenVAS Default"

	// Report filter applied when fetching completed reports.
	DefaultReportFilter = "levels=hml rows=100 min_qod=70 first=1 sort-reverse=severity"
)

// Config represents the complete gvmbridge configuration
type Config struct {
	// Engine connection configuration
	GVM GVMConfig `yaml:"gvm" json:"gvm"`

	// Scan orchestration configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// Registry configuration (in-memory plus optional durable store)
	Registry RegistryConfig `yaml:"registry" json:"registry"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// Background poller configuration
	Poller PollerConfig `yaml:"poller" json:"poller"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// GVMConfig holds connection settings for the scanning engine.
type GVMConfig struct {
	// Transport is "unix" or "tls"
	Transport string `yaml:"transport" json:"transport"`

	// Unix socket path (transport=unix)
	SocketPath string `yaml:"socket_path" json:"socket_path"`

	// Manager host and port (transport=tls)
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// Skip TLS certificate verification (self-signed manager certs)
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`

	// GMP credentials
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// Timeout for connect plus login handshake
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`

	// Timeout applied to each command round-trip
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`
}

// ScanningConfig holds scan orchestration settings.
type ScanningConfig struct {
	// Port list bound to created targets
	PortListID string `yaml:"port_list_id" json:"port_list_id"`

	// Scan config resolved by name on the engine
	ConfigName string `yaml:"config_name" json:"config_name"`

	// Scanner resolved by name on the engine
	ScannerName string `yaml:"scanner_name" json:"scanner_name"`

	// Filter string passed to get_reports
	ReportFilter string `yaml:"report_filter" json:"report_filter"`

	// Retry configuration for idempotent engine reads
	Retry RetryConfig `yaml:"retry" json:"retry"`
}

// RetryConfig holds retry settings for idempotent engine reads.
type RetryConfig struct {
	// Maximum number of retries
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// Delay before the first retry
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`

	// Exponential backoff multiplier
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// RegistryConfig holds scan registry settings.
type RegistryConfig struct {
	// Persist records to PostgreSQL so scans survive restarts
	Persistence bool `yaml:"persistence" json:"persistence"`

	// Store connection settings, used when persistence is enabled
	Database registry.StoreConfig `yaml:"database" json:"database"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// Request timeout
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Maximum request size
	MaxRequestSize int64 `yaml:"max_request_size" json:"max_request_size"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// PollerConfig holds background poll scheduler settings. The orchestration
// core stays pull-based; the poller is an external cadence driver.
type PollerConfig struct {
	// Enable the background poller
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Cron spec controlling poll cadence
	Schedule string `yaml:"schedule" json:"schedule"`

	// Maximum scans polled concurrently per tick
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// Timeout per individual poll
	PollTimeout time.Duration `yaml:"poll_timeout" json:"poll_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		GVM: GVMConfig{
			Transport:      "unix",
			SocketPath:     "/var/run/gvmd.sock",
			Host:           "127.0.0.1",
			Port:           9390,
			Username:       "admin",
			Password:       "admin",
			ConnectTimeout: 15 * time.Second,
			CommandTimeout: 60 * time.Second,
		},
		Scanning: ScanningConfig{
			PortListID:   DefaultPortListID,
			ConfigName:   DefaultConfigName,
			ScannerName:  DefaultScannerName,
			ReportFilter: DefaultReportFilter,
			Retry: RetryConfig{
				MaxRetries:        3,
				RetryDelay:        2 * time.Second,
				BackoffMultiplier: 2.0,
			},
		},
		Registry: RegistryConfig{
			Persistence: false,
			Database:    registry.DefaultStoreConfig(),
		},
		API: APIConfig{
			ListenAddr:     "127.0.0.1",
			Port:           8080,
			RequestTimeout: 30 * time.Second,
			MaxRequestSize: 1024 * 1024, // 1MB
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
			},
		},
		Poller: PollerConfig{
			Enabled:     true,
			Schedule:    "@every 1m",
			Concurrency: 4,
			PollTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate engine configuration
	switch c.GVM.Transport {
	case "unix":
		if c.GVM.SocketPath == "" {
			return fmt.Errorf("gvm socket path is required for unix transport")
		}
	case "tls":
		if c.GVM.Host == "" {
			return fmt.Errorf("gvm host is required for tls transport")
		}
		if c.GVM.Port <= 0 || c.GVM.Port > 65535 {
			return fmt.Errorf("gvm port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("invalid gvm transport: %s", c.GVM.Transport)
	}
	if c.GVM.Username == "" {
		return fmt.Errorf("gvm username is required")
	}
	if c.GVM.ConnectTimeout <= 0 {
		return fmt.Errorf("gvm connect timeout must be positive")
	}
	if c.GVM.CommandTimeout <= 0 {
		return fmt.Errorf("gvm command timeout must be positive")
	}

	// Validate scanning configuration
	if c.Scanning.PortListID == "" {
		return fmt.Errorf("port list id is required")
	}
	if c.Scanning.ConfigName == "" {
		return fmt.Errorf("scan config name is required")
	}
	if c.Scanning.ScannerName == "" {
		return fmt.Errorf("scanner name is required")
	}
	if c.Scanning.Retry.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	// Validate registry store configuration
	if c.Registry.Persistence {
		if c.Registry.Database.Host == "" {
			return fmt.Errorf("registry database host is required when persistence is enabled")
		}
		if c.Registry.Database.Database == "" {
			return fmt.Errorf("registry database name is required when persistence is enabled")
		}
	}

	// Validate API configuration
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("API port must be between 1 and 65535")
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("API listen address is required")
	}

	// Validate poller configuration
	if c.Poller.Enabled {
		if c.Poller.Schedule == "" {
			return fmt.Errorf("poller schedule is required when the poller is enabled")
		}
		if c.Poller.Concurrency <= 0 {
			return fmt.Errorf("poller concurrency must be positive")
		}
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}

// GetEngineAddress returns the engine endpoint the configured transport dials.
func (c *Config) GetEngineAddress() string {
	if c.GVM.Transport == "unix" {
		return c.GVM.SocketPath
	}
	return fmt.Sprintf("%s:%d", c.GVM.Host, c.GVM.Port)
}

// IsPersistenceEnabled returns true if the registry is backed by PostgreSQL.
func (c *Config) IsPersistenceEnabled() bool {
	return c.Registry.Persistence
}
