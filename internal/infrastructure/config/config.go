// Package config loads runtime configuration from environment
// variables.
package config

import (
	"fmt"
	"os/user"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Workspace WorkspaceConfig
	Bash      BashConfig
	Jupyter   JupyterConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port string `envconfig:"PORT" default:"8000"`
}

// WorkspaceConfig describes the container workspace the sessions run in.
type WorkspaceConfig struct {
	WorkDir  string `envconfig:"WORK_DIR" default:"/workspace"`
	Username string `envconfig:"USERNAME"`
}

// BashConfig holds execution-session tuning.
type BashConfig struct {
	SoftTimeoutSeconds int `envconfig:"BASH_SOFT_TIMEOUT" default:"30"`
	PollIntervalMillis int `envconfig:"BASH_POLL_INTERVAL_MS" default:"50"`
	MaxOutputBytes     int `envconfig:"BASH_MAX_OUTPUT_BYTES" default:"32768"`
	HistorySize        int `envconfig:"BASH_HISTORY_SIZE" default:"10000"`
	InitTimeoutSeconds int `envconfig:"BASH_INIT_TIMEOUT" default:"10"`
}

// JupyterConfig holds the Python execution engine configuration.
type JupyterConfig struct {
	Enabled        bool   `envconfig:"JUPYTER_ENABLED" default:"true"`
	Port           int    `envconfig:"JUPYTER_PORT" default:"8001"`
	KernelName     string `envconfig:"JUPYTER_KERNEL" default:"python3"`
	StartupSeconds int    `envconfig:"JUPYTER_STARTUP_TIMEOUT" default:"60"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds per-IP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{
		Server:    ServerConfig{Host: "0.0.0.0", Port: "8000"},
		Workspace: WorkspaceConfig{WorkDir: "/workspace"},
		Bash: BashConfig{
			SoftTimeoutSeconds: 30,
			PollIntervalMillis: 50,
			MaxOutputBytes:     32768,
			HistorySize:        10000,
			InitTimeoutSeconds: 10,
		},
		Jupyter: JupyterConfig{
			Enabled:        true,
			Port:           8001,
			KernelName:     "python3",
			StartupSeconds: 60,
		},
		Logging:   LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{RequestsPerSecond: 100, Burst: 200, Enabled: true},
	}
	cfg.fillDefaults()
	return cfg
}

// Validate rejects configurations the runtime cannot operate with.
func (c *Config) Validate() error {
	if c.Bash.SoftTimeoutSeconds <= 0 {
		return fmt.Errorf("BASH_SOFT_TIMEOUT must be positive, got %d", c.Bash.SoftTimeoutSeconds)
	}
	if c.Bash.MaxOutputBytes < 1024 {
		return fmt.Errorf("BASH_MAX_OUTPUT_BYTES must be at least 1024, got %d", c.Bash.MaxOutputBytes)
	}
	if c.Jupyter.Port < 1024 || c.Jupyter.Port > 65535 {
		return fmt.Errorf("JUPYTER_PORT must be in 1024..65535, got %d", c.Jupyter.Port)
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Workspace.Username == "" {
		if u, err := user.Current(); err == nil {
			c.Workspace.Username = u.Username
		} else {
			c.Workspace.Username = "root"
		}
	}
}

// SoftTimeout returns the no-output timeout as a duration.
func (c *BashConfig) SoftTimeout() time.Duration {
	return time.Duration(c.SoftTimeoutSeconds) * time.Second
}

// PollInterval returns the session poll interval as a duration.
func (c *BashConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// InitTimeout returns the session startup deadline as a duration.
func (c *BashConfig) InitTimeout() time.Duration {
	return time.Duration(c.InitTimeoutSeconds) * time.Second
}

// StartupTimeout returns the gateway startup deadline as a duration.
func (c *JupyterConfig) StartupTimeout() time.Duration {
	return time.Duration(c.StartupSeconds) * time.Second
}
