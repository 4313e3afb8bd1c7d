package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	GRPC          GRPCConfig
	Logging       LogConfig
	RateLimit     RateLimitConfig
	Storage       StorageConfig
	Verification  VerificationConfig
	SharedLibrary SharedLibraryConfig
	Webhooks      WebhookConfig
	Users         UserConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// GRPCConfig holds the health service listener configuration.
type GRPCConfig struct {
	Port    string `envconfig:"GRPC_PORT" default:"50061"`
	Enabled bool   `envconfig:"GRPC_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// StorageConfig locates package data and the snapshot database.
// An empty DBPath disables persistence. APKs under SystemDir are installed
// as system packages at startup.
type StorageConfig struct {
	DataRoot  string `envconfig:"PM_DATA_ROOT" default:"/tmp/pkgmgr"`
	DBPath    string `envconfig:"PM_DB_PATH" default:""`
	SystemDir string `envconfig:"PM_SYSTEM_DIR" default:""`
}

// VerificationConfig controls the install verification protocol.
type VerificationConfig struct {
	Enabled          bool          `envconfig:"PM_VERIFY_INSTALLS" default:"true"`
	Timeout          time.Duration `envconfig:"PM_VERIFICATION_TIMEOUT" default:"3s"`
	StreamingTimeout time.Duration `envconfig:"PM_STREAMING_VERIFICATION_TIMEOUT" default:"3s"`
	DefaultAllow     bool          `envconfig:"PM_VERIFICATION_DEFAULT_ALLOW" default:"true"`
	PolicyFile       string        `envconfig:"PM_VERIFIER_POLICY" default:""`
	Required         []string      `envconfig:"PM_REQUIRED_VERIFIERS" default:""`
}

// SharedLibraryConfig controls SDK library resolution and pruning.
type SharedLibraryConfig struct {
	CertDigestOverride string        `envconfig:"PM_SDK_CERT_DIGEST_OVERRIDE" default:""`
	PruneGrace         time.Duration `envconfig:"PM_SDK_PRUNE_GRACE" default:"1h"`
	PruneInterval      time.Duration `envconfig:"PM_SDK_PRUNE_INTERVAL" default:"10m"`
}

// WebhookConfig lists external broadcast receivers.
type WebhookConfig struct {
	URLs    []string      `envconfig:"PM_WEBHOOK_URLS" default:""`
	Retries int           `envconfig:"PM_WEBHOOK_RETRIES" default:"3"`
	Timeout time.Duration `envconfig:"PM_WEBHOOK_TIMEOUT" default:"5s"`
}

// UserConfig declares the device users. User 0 always exists.
type UserConfig struct {
	IDs    []int `envconfig:"PM_USERS" default:"0"`
	Hidden []int `envconfig:"PM_HIDDEN_USERS" default:""`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		GRPC: GRPCConfig{
			Port:    "50061",
			Enabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Storage: StorageConfig{
			DataRoot: "/tmp/pkgmgr",
		},
		Verification: VerificationConfig{
			Enabled:          true,
			Timeout:          3 * time.Second,
			StreamingTimeout: 3 * time.Second,
			DefaultAllow:     true,
		},
		SharedLibrary: SharedLibraryConfig{
			PruneGrace:    time.Hour,
			PruneInterval: 10 * time.Minute,
		},
		Webhooks: WebhookConfig{
			Retries: 3,
			Timeout: 5 * time.Second,
		},
		Users: UserConfig{
			IDs: []int{0},
		},
	}
}
