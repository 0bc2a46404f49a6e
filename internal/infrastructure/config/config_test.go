package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
gateway:
  host: "127.0.0.1"
  port: 6013
  auth_key: "password"
registry:
  rediscovery_attempts: 2
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.Port != 6013 {
		t.Errorf("Gateway.Port = %d, want 6013", cfg.Gateway.Port)
	}
	if cfg.Gateway.AckHost != "127.0.0.1" {
		t.Errorf("Gateway.AckHost = %q, want it to default to the listen host", cfg.Gateway.AckHost)
	}
	if cfg.Registry.RediscoveryAttempts != 2 {
		t.Errorf("Registry.RediscoveryAttempts = %d, want 2", cfg.Registry.RediscoveryAttempts)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	// Untouched sections keep their defaults.
	if cfg.Driver.Protocol != "wemo" {
		t.Errorf("Driver.Protocol = %q, want default %q", cfg.Driver.Protocol, "wemo")
	}
	if cfg.Gateway.MaxFrameSize != 64*1024 {
		t.Errorf("Gateway.MaxFrameSize = %d, want default", cfg.Gateway.MaxFrameSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
gateway:
  port: 7000
  auth_key: "password"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for port 7000, got nil")
	}
	if !strings.Contains(err.Error(), "gateway.port") {
		t.Errorf("error = %v, want mention of gateway.port", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WEMOGW_AUTH_KEY", "from-env")
	t.Setenv("WEMOGW_GATEWAY_PORT", "6020")
	t.Setenv("WEMOGW_MQTT_HOST", "env-broker")

	cfg, err := Load(writeConfig(t, "gateway:\n  host: localhost\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.AuthKey != "from-env" {
		t.Errorf("Gateway.AuthKey = %q, want %q", cfg.Gateway.AuthKey, "from-env")
	}
	if cfg.Gateway.Port != 6020 {
		t.Errorf("Gateway.Port = %d, want 6020", cfg.Gateway.Port)
	}
	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "env-broker")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Gateway.AuthKey = "password"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}, wantErr: false},
		{name: "lowest port", mutate: func(c *Config) { c.Gateway.Port = 6000 }, wantErr: false},
		{name: "highest port", mutate: func(c *Config) { c.Gateway.Port = 6999 }, wantErr: false},
		{name: "port below range", mutate: func(c *Config) { c.Gateway.Port = 5999 }, wantErr: true},
		{name: "port above range", mutate: func(c *Config) { c.Gateway.Port = 7000 }, wantErr: true},
		{name: "missing auth key", mutate: func(c *Config) { c.Gateway.AuthKey = "" }, wantErr: true},
		{name: "missing host", mutate: func(c *Config) { c.Gateway.Host = "" }, wantErr: true},
		{name: "cache-only registry", mutate: func(c *Config) { c.Registry.RediscoveryAttempts = 0 }, wantErr: false},
		{name: "negative rediscovery", mutate: func(c *Config) { c.Registry.RediscoveryAttempts = -1 }, wantErr: true},
		{name: "too many rediscovery rounds", mutate: func(c *Config) { c.Registry.RediscoveryAttempts = 6 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "negative sidecar restarts", mutate: func(c *Config) { c.Driver.Sidecar.MaxRestarts = -1 }, wantErr: true},
		{name: "zero driver timeout", mutate: func(c *Config) { c.Driver.RequestTimeout = 0 }, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{
			name: "journal enabled without path",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name: "api enabled without jwt secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "api enabled with short jwt secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.JWT.Secret = "too-short"
			},
			wantErr: true,
		},
		{
			name: "api enabled",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.JWT.Secret = strings.Repeat("k", 32)
			},
			wantErr: false,
		},
		{
			name: "api enabled with bad port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
				c.API.JWT.Secret = strings.Repeat("k", 32)
			},
			wantErr: true,
		},
		{
			name: "file logging without path",
			mutate: func(c *Config) {
				c.Logging.Output = "file"
				c.Logging.File.Path = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Gateway.Port = 1
	cfg.MQTT.QoS = 9

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"gateway.port", "gateway.auth_key", "mqtt.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err.Error(), want)
		}
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetHandshakeTimeout(); got != 5*time.Second {
		t.Errorf("GetHandshakeTimeout() = %v, want 5s", got)
	}
	if got := cfg.GetReadTimeout(); got != 10*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 10*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetDriverTimeout(); got != 10*time.Second {
		t.Errorf("GetDriverTimeout() = %v, want 10s", got)
	}
}
