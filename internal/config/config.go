// Package config handles loading and validation of service configuration.
// Supports both development (env vars or CONFIG_FILE) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

const (
	defaultPort       = "8080"
	defaultTimeout    = 15 * time.Second
	defaultStorePath  = ".cart-sync"
	defaultPendingKey = "cart"
	defaultSecretID   = "cart-sync"
)

// Config holds all service configuration.
// Environment determines whether settings load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	SecretID   string

	Remote RemoteConfig
	Store  StoreConfig
}

// RemoteConfig describes the cart service.
type RemoteConfig struct {
	BaseURL       string        `json:"base_url" yaml:"base_url"`
	Timeout       time.Duration `json:"-" yaml:"-"`
	RawTimeout    string        `json:"timeout,omitempty" yaml:"timeout,omitempty"` // e.g. "15s"
	ChromeTLS     bool          `json:"chrome_tls,omitempty" yaml:"chrome_tls,omitempty"`
	MinAPIVersion string        `json:"min_api_version,omitempty" yaml:"min_api_version,omitempty"`
}

// StoreConfig selects where the pending cart queue is kept.
type StoreConfig struct {
	Backend       string `json:"backend" yaml:"backend"` // file, redis or memory
	Path          string `json:"path,omitempty" yaml:"path,omitempty"`
	PendingKey    string `json:"pending_key,omitempty" yaml:"pending_key,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
}

// settings is the shape of CONFIG_FILE and of the production secret.
type settings struct {
	Port        string       `json:"port" yaml:"port"`
	Environment string       `json:"environment" yaml:"environment"`
	LogLevel    string       `json:"log_level" yaml:"log_level"`
	Remote      RemoteConfig `json:"remote" yaml:"remote"`
	Store       StoreConfig  `json:"store" yaml:"store"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", defaultPort),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		SecretID:    envOrDefault("SECRET_ID", defaultSecretID),
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading service config: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON or YAML file.
// The format follows the extension; anything but .yaml/.yml is JSON.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var s settings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(s.Port, defaultPort),
		Environment: withDefault(s.Environment, "development"),
		LogLevel:    withDefault(s.LogLevel, "info"),
		Remote:      s.Remote,
		Store:       s.Store,
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches remote and store settings from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applySecret(result.Payload.Data)
}

// applySecret decodes the secret payload. Server settings stay as read from env.
func (c *Config) applySecret(data []byte) error {
	var s settings
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	c.Remote = s.Remote
	c.Store = s.Store
	return nil
}

// loadFromEnv reads remote and store settings from individual environment variables.
func (c *Config) loadFromEnv() error {
	c.Remote = RemoteConfig{
		BaseURL:       os.Getenv("CART_SERVICE_URL"),
		RawTimeout:    os.Getenv("CART_SERVICE_TIMEOUT"),
		MinAPIVersion: os.Getenv("CART_API_MIN_VERSION"),
	}
	if raw := os.Getenv("CHROME_TLS"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parsing CHROME_TLS: %w", err)
		}
		c.Remote.ChromeTLS = v
	}

	c.Store = StoreConfig{
		Backend:       os.Getenv("STORE_BACKEND"),
		Path:          os.Getenv("STORE_PATH"),
		PendingKey:    os.Getenv("PENDING_KEY"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parsing REDIS_DB: %w", err)
		}
		c.Store.RedisDB = db
	}

	return nil
}

// finish applies defaults and validates.
func (c *Config) finish() error {
	c.Store.Backend = withDefault(c.Store.Backend, BackendFile)
	c.Store.PendingKey = withDefault(c.Store.PendingKey, defaultPendingKey)
	if c.Store.Backend == BackendFile {
		c.Store.Path = withDefault(c.Store.Path, defaultStorePath)
	}

	c.Remote.Timeout = defaultTimeout
	if c.Remote.RawTimeout != "" {
		d, err := time.ParseDuration(c.Remote.RawTimeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid remote timeout %q", c.Remote.RawTimeout)
		}
		c.Remote.Timeout = d
	}

	return c.validate()
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("cart service base_url is required")
	}
	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid cart service base_url %q", c.Remote.BaseURL)
	}

	switch c.Store.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store backend %q (file, redis or memory)", c.Store.Backend)
	}

	return nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
