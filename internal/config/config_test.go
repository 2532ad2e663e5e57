package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/pool"
)

func TestLoad(t *testing.T) {
	yaml := `
pool:
  acquire_timeout: 45s
  backoff_table: [1s, 2s, 5s]
transport:
  url: wss://realtime.example.com/ws
  auth_token: test-token
categories:
  chat:
    max_channels: 8
    priority: high
    idle_timeout: 5m
  voice:
    max_channels: 4
    priority: critical
database:
  host: localhost
  port: 5432
  name: ops_db
  user: ops
  password: secret
metrics:
  enabled: true
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport.URL != "wss://realtime.example.com/ws" {
		t.Errorf("Transport.URL = %q", cfg.Transport.URL)
	}
	if cfg.Pool.AcquireTimeout.Duration() != 45*time.Second {
		t.Errorf("Pool.AcquireTimeout = %v, want 45s", cfg.Pool.AcquireTimeout)
	}
	if len(cfg.Pool.BackoffTable) != 3 || cfg.Pool.BackoffTable[2].Duration() != 5*time.Second {
		t.Errorf("Pool.BackoffTable = %v", cfg.Pool.BackoffTable)
	}
	if cfg.Categories["chat"].MaxChannels != 8 {
		t.Errorf("Categories[chat].MaxChannels = %d, want 8", cfg.Categories["chat"].MaxChannels)
	}
	if cfg.Categories["chat"].IdleTimeout.Duration() != 5*time.Minute {
		t.Errorf("Categories[chat].IdleTimeout = %v, want 5m", cfg.Categories["chat"].IdleTimeout)
	}
	if cfg.Categories["voice"].Priority != "critical" {
		t.Errorf("Categories[voice].Priority = %q", cfg.Categories["voice"].Priority)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want localhost", cfg.Database.Host)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_WS_TOKEN", "secret123")

	yaml := `
transport:
  url: wss://realtime.example.com/ws
  auth_token: ${TEST_WS_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transport.AuthToken != "secret123" {
		t.Errorf("Transport.AuthToken = %q, want %q", cfg.Transport.AuthToken, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
transport:
  url: wss://realtime.example.com/ws
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Pool.AcquireTimeout != DefaultAcquireTimeout {
		t.Errorf("Pool.AcquireTimeout = %v, want %v", cfg.Pool.AcquireTimeout, DefaultAcquireTimeout)
	}
	if cfg.Transport.PingTimeout != DefaultPingTimeout {
		t.Errorf("Transport.PingTimeout = %v, want %v", cfg.Transport.PingTimeout, DefaultPingTimeout)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Events.BufferSize != DefaultEventBufferSize {
		t.Errorf("Events.BufferSize = %d, want %d", cfg.Events.BufferSize, DefaultEventBufferSize)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestLoad_FileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{
			Transport: TransportConfig{URL: "wss://realtime.example.com/ws"},
			Categories: map[string]CategoryConfig{
				"chat": {MaxChannels: 4, Priority: "high", IdleTimeout: Duration(time.Minute)},
			},
		}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing transport url",
			mutate:  func(c *Config) { c.Transport.URL = "" },
			wantErr: "transport.url is required",
		},
		{
			name: "unknown category",
			mutate: func(c *Config) {
				c.Categories["video"] = CategoryConfig{MaxChannels: 1, IdleTimeout: Duration(time.Minute)}
			},
			wantErr: "categories.video",
		},
		{
			name: "zero max channels",
			mutate: func(c *Config) {
				c.Categories["chat"] = CategoryConfig{MaxChannels: 0, IdleTimeout: Duration(time.Minute)}
			},
			wantErr: "categories.chat.max_channels must be >= 1",
		},
		{
			name: "bad priority",
			mutate: func(c *Config) {
				c.Categories["chat"] = CategoryConfig{MaxChannels: 1, Priority: "urgent", IdleTimeout: Duration(time.Minute)}
			},
			wantErr: "categories.chat",
		},
		{
			name: "events enabled without database",
			mutate: func(c *Config) {
				c.Events.Enabled = true
			},
			wantErr: "database.host is required",
		},
		{
			name: "bad metrics port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 99999
			},
			wantErr: "metrics.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
			} else if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestBuildPool(t *testing.T) {
	cfg := &Config{
		Categories: map[string]CategoryConfig{
			"chat": {MaxChannels: 16, Priority: "critical", IdleTimeout: Duration(2 * time.Minute)},
		},
	}
	cfg.applyDefaults()

	pc := BuildPool(cfg)

	chat := pc.Policies[pool.CategoryChat]
	if chat.MaxChannels != 16 {
		t.Errorf("chat MaxChannels = %d, want 16", chat.MaxChannels)
	}
	if chat.Priority != pool.PriorityCritical {
		t.Errorf("chat Priority = %s, want critical", chat.Priority)
	}
	if chat.IdleTimeout != 2*time.Minute {
		t.Errorf("chat IdleTimeout = %v", chat.IdleTimeout)
	}

	// Categories missing from the file keep their defaults.
	voice := pc.Policies[pool.CategoryVoice]
	if voice.MaxChannels == 0 {
		t.Error("voice policy lost its default")
	}

	if pc.AcquireTimeout != DefaultAcquireTimeout.Duration() {
		t.Errorf("AcquireTimeout = %v", pc.AcquireTimeout)
	}
}

func TestBuildTransport(t *testing.T) {
	cfg := &Config{
		Transport: TransportConfig{
			URL:       "wss://realtime.example.com/ws",
			AuthToken: "tok",
		},
	}
	cfg.applyDefaults()

	tc := BuildTransport(cfg)
	if tc.URL != cfg.Transport.URL {
		t.Errorf("URL = %q", tc.URL)
	}
	if got := tc.Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization header = %q", got)
	}
	if tc.BufferSize != DefaultBufferSize {
		t.Errorf("BufferSize = %d", tc.BufferSize)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
