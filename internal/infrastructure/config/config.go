package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Gateway listen ports live in a fixed private range shared with the
// sibling processes; the message codec enforces the same range.
const (
	minGatewayPort = 6000
	maxGatewayPort = 7000 // exclusive

	maxRediscoveryAttempts = 5

	minJWTSecretLength = 32
)

// Config is the root configuration structure for the WeMo gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Registry RegistryConfig `yaml:"registry"`
	Driver   DriverConfig   `yaml:"driver"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Journal  JournalConfig  `yaml:"journal"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig contains the inter-process channel settings.
type GatewayConfig struct {
	// Host is the interface the listener binds to. Acks are sent to AckHost.
	Host string `yaml:"host"`

	// Port is this process's own port; inbound messages whose destination
	// differs are dropped.
	Port int `yaml:"port"`

	// AuthKey is the shared pre-key every peer must prove knowledge of.
	// Set it via WEMOGW_AUTH_KEY rather than in the file.
	AuthKey string `yaml:"auth_key"`

	// AckHost is where outbound acknowledgements are dialled.
	// Default: same as Host.
	AckHost string `yaml:"ack_host"`

	// Timeouts in seconds.
	HandshakeTimeout int `yaml:"handshake_timeout"`
	ReadTimeout      int `yaml:"read_timeout"`
	WriteTimeout     int `yaml:"write_timeout"`

	// MaxFrameSize bounds a single inbound frame in bytes.
	MaxFrameSize int `yaml:"max_frame_size"`
}

// RegistryConfig contains device registry settings.
type RegistryConfig struct {
	// RediscoveryAttempts is how many discover-then-resolve rounds a
	// cache miss may trigger before a command reports not-found.
	RediscoveryAttempts int `yaml:"rediscovery_attempts"`
}

// DriverConfig contains device driver (MQTT device bridge) settings.
type DriverConfig struct {
	// Protocol is the bridge topic segment, e.g. "wemo".
	Protocol string `yaml:"protocol"`

	// RequestTimeout is how long (seconds) a single bridge request may take.
	RequestTimeout int `yaml:"request_timeout"`

	// Sidecar optionally launches the bridge process alongside the gateway.
	Sidecar SidecarConfig `yaml:"sidecar"`
}

// SidecarConfig describes a locally supervised bridge process.
// It is disabled when Command is empty.
type SidecarConfig struct {
	Command []string `yaml:"command"`
	Env     []string `yaml:"env"`

	// MaxRestarts caps restarts after a crash; 0 means unlimited.
	MaxRestarts int `yaml:"max_restarts"`

	// Backoff bounds in seconds.
	RestartDelay    int `yaml:"restart_delay"`
	MaxRestartDelay int `yaml:"max_restart_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// JournalConfig contains command journal settings.
type JournalConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Database DatabaseConfig `yaml:"database"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// PublishState mirrors device state and command events onto the bus.
	PublishState bool `yaml:"publish_state"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the admin HTTP API settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	JWT       JWTConfig        `yaml:"jwt"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
	CORS      APICORSConfig    `yaml:"cors"`
}

// APITimeoutConfig contains HTTP server timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// JWTConfig contains bearer token settings for the admin API.
type JWTConfig struct {
	// Secret signs and verifies tokens. Set it via WEMOGW_JWT_SECRET.
	Secret string `yaml:"secret"`

	// TokenTTL is the lifetime of issued tokens in minutes.
	TokenTTL int `yaml:"token_ttl"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// APICORSConfig lists origins allowed to call the admin API.
// An empty list allows all origins.
type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Only used when Output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WEMOGW_SECTION_KEY
// For example: WEMOGW_GATEWAY_PORT, WEMOGW_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Gateway.AckHost == "" {
		cfg.Gateway.AckHost = cfg.Gateway.Host
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:             "localhost",
			Port:             6013,
			HandshakeTimeout: 5,
			ReadTimeout:      10,
			WriteTimeout:     10,
			MaxFrameSize:     64 * 1024,
		},
		Registry: RegistryConfig{
			RediscoveryAttempts: 1,
		},
		Driver: DriverConfig{
			Protocol:       "wemo",
			RequestTimeout: 10,
			Sidecar: SidecarConfig{
				RestartDelay:    1,
				MaxRestartDelay: 60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wemogw",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			PublishState: true,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Journal: JournalConfig{
			Database: DatabaseConfig{
				Path:        "./data/wemogw.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8013,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			JWT: JWTConfig{
				TokenTTL: 60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/wemogw.log",
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WEMOGW_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("WEMOGW_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("WEMOGW_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("WEMOGW_AUTH_KEY"); v != "" {
		cfg.Gateway.AuthKey = v
	}

	// MQTT
	if v := os.Getenv("WEMOGW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WEMOGW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WEMOGW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("WEMOGW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Journal
	if v := os.Getenv("WEMOGW_JOURNAL_PATH"); v != "" {
		cfg.Journal.Database.Path = v
	}

	// API
	if v := os.Getenv("WEMOGW_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("WEMOGW_JWT_SECRET"); v != "" {
		cfg.API.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Gateway validation
	if c.Gateway.Host == "" {
		errs = append(errs, "gateway.host is required")
	}
	if c.Gateway.Port < minGatewayPort || c.Gateway.Port >= maxGatewayPort {
		errs = append(errs, fmt.Sprintf("gateway.port must be in [%d, %d)", minGatewayPort, maxGatewayPort))
	}
	if c.Gateway.AuthKey == "" {
		errs = append(errs, "gateway.auth_key is required (set WEMOGW_AUTH_KEY environment variable)")
	}
	if c.Gateway.MaxFrameSize < 0 {
		errs = append(errs, "gateway.max_frame_size must not be negative")
	}

	// Registry validation
	if c.Registry.RediscoveryAttempts < 0 || c.Registry.RediscoveryAttempts > maxRediscoveryAttempts {
		errs = append(errs, fmt.Sprintf("registry.rediscovery_attempts must be between 0 and %d", maxRediscoveryAttempts))
	}

	// Driver validation
	if c.Driver.Protocol == "" {
		errs = append(errs, "driver.protocol is required")
	}
	if c.Driver.RequestTimeout < 1 {
		errs = append(errs, "driver.request_timeout must be at least 1 second")
	}
	if c.Driver.Sidecar.MaxRestarts < 0 {
		errs = append(errs, "driver.sidecar.max_restarts must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Database.Path == "" {
		errs = append(errs, "journal.database.path is required when the journal is enabled")
	}

	// API validation
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		if len(c.API.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, fmt.Sprintf("api.jwt.secret must be at least %d characters (set WEMOGW_JWT_SECRET environment variable)", minJWTSecretLength))
		}
	}

	// Logging validation
	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetHandshakeTimeout returns the channel handshake timeout as a Duration.
func (c *Config) GetHandshakeTimeout() time.Duration {
	return time.Duration(c.Gateway.HandshakeTimeout) * time.Second
}

// GetReadTimeout returns the channel read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Gateway.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the channel write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Gateway.WriteTimeout) * time.Second
}

// GetDriverTimeout returns the device bridge request timeout as a Duration.
func (c *Config) GetDriverTimeout() time.Duration {
	return time.Duration(c.Driver.RequestTimeout) * time.Second
}
