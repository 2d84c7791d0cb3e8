package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	if cfg == nil {
		t.Fatal("NewConfig() returned nil")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected default log format 'json', got %q", cfg.Log.Format)
	}
	if cfg.Scheduler.MaxConcurrentAccounts != 4 {
		t.Errorf("expected default max concurrent accounts 4, got %d", cfg.Scheduler.MaxConcurrentAccounts)
	}
	if cfg.Data.LedgerDir == "" {
		t.Error("expected a non-empty default ledger directory")
	}
}

func TestConfigValidation(t *testing.T) {
	validBase := func() *Config {
		return &Config{
			Gateway: GatewayConfig{Endpoint: "https://archival-rpc.mainnet.near.org", Timeout: 15 * time.Second},
			Data:    DataConfig{LedgerDir: "/tmp/acctsync-ledger", MetadataPath: "/tmp/acctsync-meta"},
			Log:     LogConfig{Level: "info", Format: "json"},
			Scheduler: SchedulerConfig{
				CycleDelay:            5 * time.Minute,
				AccountTimeout:        2 * time.Minute,
				MaxConcurrentAccounts: 4,
			},
			EventBus: EventBusConfig{Type: "local", PublishBufferSize: 1000, HistorySize: 100},
			Node:     NodeConfig{ID: "test-node", Role: "all"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing gateway endpoint", mutate: func(c *Config) { c.Gateway.Endpoint = "" }, wantErr: true},
		{name: "zero gateway timeout", mutate: func(c *Config) { c.Gateway.Timeout = 0 }, wantErr: true},
		{name: "missing ledger dir", mutate: func(c *Config) { c.Data.LedgerDir = "" }, wantErr: true},
		{name: "invalid log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: true},
		{name: "invalid log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{name: "zero cycle delay", mutate: func(c *Config) { c.Scheduler.CycleDelay = 0 }, wantErr: true},
		{name: "invalid eventbus type", mutate: func(c *Config) { c.EventBus.Type = "carrier-pigeon" }, wantErr: true},
		{
			name: "redis enabled without addresses",
			mutate: func(c *Config) {
				c.EventBus.Redis.Enabled = true
				c.EventBus.Redis.PoolSize = 10
			},
			wantErr: true,
		},
		{name: "invalid node role", mutate: func(c *Config) { c.Node.Role = "observer" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ACCTSYNC_GATEWAY_ENDPOINT", "https://archival-rpc.mainnet.near.org")
	t.Setenv("ACCTSYNC_LOG_LEVEL", "debug")
	t.Setenv("ACCTSYNC_SCHEDULER_MAX_CONCURRENT_ACCOUNTS", "8")

	cfg := NewConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Gateway.Endpoint != "https://archival-rpc.mainnet.near.org" {
		t.Errorf("expected gateway endpoint from env, got %q", cfg.Gateway.Endpoint)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug' from env, got %q", cfg.Log.Level)
	}
	if cfg.Scheduler.MaxConcurrentAccounts != 8 {
		t.Errorf("expected max concurrent accounts 8 from env, got %d", cfg.Scheduler.MaxConcurrentAccounts)
	}
}

func TestLoadFromEnvInvalidDuration(t *testing.T) {
	t.Setenv("ACCTSYNC_GATEWAY_TIMEOUT", "not-a-duration")

	cfg := NewConfig()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Fatal("expected error for invalid duration env var")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "gateway:\n  endpoint: https://archival-rpc.mainnet.near.org\n  timeout: 20s\nlog:\n  level: warn\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg := NewConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Gateway.Endpoint != "https://archival-rpc.mainnet.near.org" {
		t.Errorf("expected gateway endpoint from file, got %q", cfg.Gateway.Endpoint)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level 'warn' from file, got %q", cfg.Log.Level)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "gateway:\n  endpoint: https://archival-rpc.mainnet.near.org\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Endpoint != "https://archival-rpc.mainnet.near.org" {
		t.Errorf("expected gateway endpoint to be set, got %q", cfg.Gateway.Endpoint)
	}
	if cfg.Scheduler.CycleDelay == 0 {
		t.Error("expected default scheduler cycle delay to be applied")
	}
}
