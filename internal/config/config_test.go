package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Environment: "test", NodeID: "output-node"},
		Broker: BrokerConfig{Name: "alpaca", UseSandbox: true},
		Execution: ExecutionConfig{
			TimeInForce: "day",
			MaxRetry:    3,
			DryRun:      true,
		},
		Server: ServerConfig{Port: 8090, ShutdownTimeout: 5 * time.Second},
		Database: DatabaseConfig{
			Path:            "data/test.db",
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxLifetime: time.Hour,
		},
		Logging: LoggingConfig{
			Level:            "info",
			Encoding:         "console",
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		},
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing node id", func(c *Config) { c.App.NodeID = "" }},
		{"missing broker name", func(c *Config) { c.Broker.Name = "" }},
		{"live mode without keys", func(c *Config) { c.Execution.DryRun = false }},
		{"zero retry", func(c *Config) { c.Execution.MaxRetry = 0 }},
		{"slippage out of range", func(c *Config) { c.Execution.Slippage = 0.5 }},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }},
		{"missing db path", func(c *Config) { c.Database.Path = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidate_LiveModeWithKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Execution.DryRun = false
	cfg.Broker.APIKey = "key"
	cfg.Broker.APISecret = "secret"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("live config with keys rejected: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  environment: test
  node_id: node-a
execution:
  dry_run: true
server:
  port: 9001
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.NodeID != "node-a" {
		t.Errorf("node_id = %s, want node-a", cfg.App.NodeID)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("port = %d, want 9001", cfg.Server.Port)
	}
	// 未显式配置的字段回落到默认值
	if cfg.Broker.Name != "alpaca" {
		t.Errorf("broker name default = %s, want alpaca", cfg.Broker.Name)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown_timeout default = %s, want 5s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Execution.MaxRetry != 3 {
		t.Errorf("max_retry default = %d, want 3", cfg.Execution.MaxRetry)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "absent.yaml") {
		t.Errorf("error should name the missing file, got: %v", err)
	}
}
