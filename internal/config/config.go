package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Quota    QuotaConfig    `yaml:"quota"`
	Storage  StorageConfig  `yaml:"storage"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	MaxConns    int      `yaml:"max_conns"` // concurrent connections, 0 for unlimited
}

// DatabaseConfig holds database connection settings. An empty URL keeps
// flows in memory only.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the conversation store connection. An empty address
// keeps conversations in memory.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	// EncryptionKey seals stored conversation state with AES-256-GCM when
	// set. 32 bytes, hex or base64 encoded.
	EncryptionKey string `yaml:"encryption_key"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// UnpublishedPolicy decides what happens to suspended conversations whose
// flow went back to draft.
type UnpublishedPolicy string

const (
	PolicyAbort    UnpublishedPolicy = "abort"
	PolicyContinue UnpublishedPolicy = "continue"
)

// RuntimeConfig holds conversation executor settings.
type RuntimeConfig struct {
	MaxSilentHops     int               `yaml:"max_silent_hops"`    // hops allowed without output (default: 50)
	MaxStepsPerTurn   int               `yaml:"max_steps_per_turn"` // hard cap per inbound event (default: 500)
	SweepSpec         string            `yaml:"sweep_spec"`         // cron spec for the timeout sweeper (default: "@every 1s")
	SweepBatch        int               `yaml:"sweep_batch"`        // due waits fired per sweep (default: 100)
	UnpublishedPolicy UnpublishedPolicy `yaml:"unpublished_policy"` // "abort" (default) or "continue"
	GlobalMax         int               `yaml:"global_max"`         // concurrent turns system-wide (default: 64)
	PerTenant         int               `yaml:"per_tenant"`         // concurrent turns per tenant (default: 8)
	LockTTL           time.Duration     `yaml:"lock_ttl"`           // conversation lock expiry (default: 30s)
	HTTPTimeout       time.Duration     `yaml:"http_timeout"`       // httpRequest node default (default: 10s)
}

// QuotaConfig holds per-tenant plan limits. Zero means unlimited.
type QuotaConfig struct {
	MaxFlows        int `yaml:"max_flows"`
	MaxNodesPerFlow int `yaml:"max_nodes_per_flow"`
}

// StorageConfig holds avatar blob storage settings.
type StorageConfig struct {
	AvatarDir string `yaml:"avatar_dir"`
}

// DeliveryConfig holds outbound message transport settings. An empty
// WebhookURL logs outbound messages instead of sending them.
type DeliveryConfig struct {
	WebhookURL   string        `yaml:"webhook_url"`
	WebhookToken string        `yaml:"webhook_token"`
	Timeout      time.Duration `yaml:"timeout"`
	// OAuth2 client credentials replace WebhookToken when TokenURL is set.
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
	// HandoffSlackURL receives an alert for every human transfer.
	HandoffSlackURL string `yaml:"handoff_slack_url"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Redis: RedisConfig{
			Prefix: "chatflow:",
			TTL:    7 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			Issuer: "chatflow",
		},
		Runtime: RuntimeConfig{
			MaxSilentHops:     50,
			MaxStepsPerTurn:   500,
			SweepSpec:         "@every 1s",
			SweepBatch:        100,
			UnpublishedPolicy: PolicyAbort,
			GlobalMax:         64,
			PerTenant:         8,
			LockTTL:           30 * time.Second,
			HTTPTimeout:       10 * time.Second,
		},
		Storage: StorageConfig{
			AvatarDir: "data/avatars",
		},
		Delivery: DeliveryConfig{
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file at path and returns a Config with
// environment overrides applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadDefault loads .env into the process environment when present, then
// tries "config.yaml" from the current directory. If the file does not
// exist, it returns defaults with environment overrides. Any other error
// (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = defaults()
			if err := cfg.applyEnv(); err != nil {
				return nil, err
			}
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a dotenv file without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CHATFLOW_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHATFLOW_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("CHATFLOW_STATE_KEY"); v != "" {
		c.Redis.EncryptionKey = v
	}
	if v := os.Getenv("DELIVERY_WEBHOOK_URL"); v != "" {
		c.Delivery.WebhookURL = v
	}
	if v := os.Getenv("DELIVERY_WEBHOOK_TOKEN"); v != "" {
		c.Delivery.WebhookToken = v
	}
	if v := os.Getenv("DELIVERY_CLIENT_SECRET"); v != "" {
		c.Delivery.ClientSecret = v
	}
	if v := os.Getenv("HANDOFF_SLACK_URL"); v != "" {
		c.Delivery.HandoffSlackURL = v
	}
	if v := os.Getenv("CHATFLOW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate rejects settings the runtime cannot honour.
func (c *Config) Validate() error {
	switch c.Runtime.UnpublishedPolicy {
	case PolicyAbort, PolicyContinue:
	default:
		return fmt.Errorf("runtime.unpublished_policy: unknown policy %q", c.Runtime.UnpublishedPolicy)
	}
	if c.Runtime.MaxSilentHops <= 0 || c.Runtime.MaxStepsPerTurn <= 0 {
		return errors.New("runtime step budgets must be positive")
	}
	if c.Runtime.MaxStepsPerTurn < c.Runtime.MaxSilentHops {
		return errors.New("runtime.max_steps_per_turn must be at least max_silent_hops")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
