package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// configEnv lists every variable Load reads.
var configEnv = []string{
	"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT", "SECRET_ID",
	"CART_SERVICE_URL", "CART_SERVICE_TIMEOUT", "CHROME_TLS", "CART_API_MIN_VERSION",
	"STORE_BACKEND", "STORE_PATH", "PENDING_KEY", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
}

// clearEnv blanks the config environment for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CART_SERVICE_URL", "http://localhost:8081")
	t.Setenv("CART_SERVICE_TIMEOUT", "5s")
	t.Setenv("CHROME_TLS", "true")
	t.Setenv("CART_API_MIN_VERSION", "1.2.0")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.Remote.BaseURL != "http://localhost:8081" {
		t.Errorf("BaseURL = %s", cfg.Remote.BaseURL)
	}
	if cfg.Remote.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Remote.Timeout)
	}
	if !cfg.Remote.ChromeTLS {
		t.Error("ChromeTLS = false, want true")
	}
	if cfg.Remote.MinAPIVersion != "1.2.0" {
		t.Errorf("MinAPIVersion = %s, want 1.2.0", cfg.Remote.MinAPIVersion)
	}
	if cfg.Store.Backend != BackendRedis || cfg.Store.RedisAddr != "localhost:6379" || cfg.Store.RedisDB != 2 {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.PendingKey != "cart" {
		t.Errorf("PendingKey = %s, want cart", cfg.Store.PendingKey)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CART_SERVICE_URL", "http://localhost:8081")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Remote.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Remote.Timeout)
	}
	if cfg.Store.Backend != BackendFile || cfg.Store.Path != ".cart-sync" {
		t.Errorf("Store = %+v, want file store at .cart-sync", cfg.Store)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing base url",
			env:     map[string]string{},
			wantErr: "base_url is required",
		},
		{
			name:    "relative base url",
			env:     map[string]string{"CART_SERVICE_URL": "localhost"},
			wantErr: "invalid cart service base_url",
		},
		{
			name:    "bad timeout",
			env:     map[string]string{"CART_SERVICE_URL": "http://x", "CART_SERVICE_TIMEOUT": "soon"},
			wantErr: "invalid remote timeout",
		},
		{
			name:    "bad chrome flag",
			env:     map[string]string{"CART_SERVICE_URL": "http://x", "CHROME_TLS": "maybe"},
			wantErr: "CHROME_TLS",
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"CART_SERVICE_URL": "http://x", "STORE_BACKEND": "sqlite"},
			wantErr: "unknown store backend",
		},
		{
			name:    "redis without address",
			env:     map[string]string{"CART_SERVICE_URL": "http://x", "STORE_BACKEND": "redis"},
			wantErr: "redis_addr is required",
		},
		{
			name:    "bad redis db",
			env:     map[string]string{"CART_SERVICE_URL": "http://x", "REDIS_DB": "one"},
			wantErr: "REDIS_DB",
		},
		{
			name:    "production without project",
			env:     map[string]string{"ENVIRONMENT": "production"},
			wantErr: "GCP_PROJECT required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(context.Background())
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"config.json": `{
			"port": "3000",
			"log_level": "warn",
			"remote": {"base_url": "https://cart.example.com", "timeout": "2s", "chrome_tls": true},
			"store": {"backend": "memory"}
		}`,
		"config.yaml": `
port: "3000"
log_level: warn
remote:
  base_url: https://cart.example.com
  timeout: 2s
  chrome_tls: true
store:
  backend: memory
`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			t.Setenv("CONFIG_FILE", path)

			cfg, err := Load(context.Background())
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}

			if cfg.Port != "3000" || cfg.LogLevel != "warn" {
				t.Errorf("server = %s/%s, want 3000/warn", cfg.Port, cfg.LogLevel)
			}
			if cfg.Remote.BaseURL != "https://cart.example.com" || cfg.Remote.Timeout != 2*time.Second {
				t.Errorf("Remote = %+v", cfg.Remote)
			}
			if !cfg.Remote.ChromeTLS {
				t.Error("ChromeTLS = false, want true")
			}
			if cfg.Store.Backend != BackendMemory || cfg.Store.PendingKey != "cart" {
				t.Errorf("Store = %+v", cfg.Store)
			}
		})
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadFromFile(filepath.Join(dir, "nope.json")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		os.WriteFile(path, []byte("{not json"), 0o644)
		_, err := loadFromFile(path)
		if err == nil || !strings.Contains(err.Error(), "parsing config file") {
			t.Errorf("Error = %v, want parse error", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yml")
		os.WriteFile(path, []byte("remote: [unclosed"), 0o644)
		_, err := loadFromFile(path)
		if err == nil || !strings.Contains(err.Error(), "parsing config file") {
			t.Errorf("Error = %v, want parse error", err)
		}
	})

	t.Run("missing base url", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		os.WriteFile(path, []byte(`{"store": {"backend": "memory"}}`), 0o644)
		if _, err := loadFromFile(path); err == nil {
			t.Error("Expected validation error")
		}
	})
}

func TestApplySecret(t *testing.T) {
	cfg := &Config{Port: "8080"}
	err := cfg.applySecret([]byte(`{
		"port": "1",
		"remote": {"base_url": "https://cart.internal"},
		"store": {"backend": "redis", "redis_addr": "10.0.0.3:6379", "redis_password": "s3cret"}
	}`))
	if err != nil {
		t.Fatalf("applySecret() error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %s, server settings should not come from the secret", cfg.Port)
	}
	if cfg.Store.RedisPassword != "s3cret" || cfg.Remote.BaseURL != "https://cart.internal" {
		t.Errorf("cfg = %+v", cfg)
	}

	if err := cfg.applySecret([]byte("nope")); err == nil {
		t.Error("Expected error for invalid secret JSON")
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_ENV_VAR", "custom")
	if got := envOrDefault("TEST_ENV_VAR", "default"); got != "custom" {
		t.Errorf("envOrDefault() = %s, want custom", got)
	}

	t.Setenv("TEST_ENV_VAR", "")
	if got := envOrDefault("TEST_ENV_VAR", "default"); got != "default" {
		t.Errorf("envOrDefault() = %s, want default", got)
	}
}

func TestWithDefault(t *testing.T) {
	if got := withDefault("", "fallback"); got != "fallback" {
		t.Errorf("withDefault() = %s, want fallback", got)
	}
	if got := withDefault("set", "fallback"); got != "set" {
		t.Errorf("withDefault() = %s, want set", got)
	}
}
