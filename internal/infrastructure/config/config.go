package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the WHEP gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	WHEP      WHEPConfig      `yaml:"whep"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// GatewayConfig contains device refresh and shutdown tuning.
type GatewayConfig struct {
	// UpdateInterval is the number of seconds between successful device refreshes.
	// Default: 3600
	UpdateInterval int `yaml:"update_interval"`

	// BackoffInterval is the number of seconds to wait before retrying a failed refresh.
	// Default: 60
	BackoffInterval int `yaml:"backoff_interval"`

	// ShutdownGrace bounds how long background tasks may take to stop (seconds).
	// Exceeding it is a fatal shutdown error.
	// Default: 10
	ShutdownGrace int `yaml:"shutdown_grace"`
}

// WHEPConfig contains session handling settings.
type WHEPConfig struct {
	// CodecSubstitutions rewrites codec names in offers before they are
	// forwarded to the device (e.g. H265 -> H264).
	CodecSubstitutions map[string]string `yaml:"codec_substitutions"`

	// MonitorSessions starts a watcher per session that polls until the
	// device reports the session gone.
	MonitorSessions bool `yaml:"monitor_sessions"`

	// MonitorInterval is the session poll interval (seconds).
	MonitorInterval int `yaml:"monitor_interval"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Player   PlayerConfig     `yaml:"player"`

	// SocketActivation serves on sockets inherited through LISTEN_FDS
	// instead of binding Host:Port. Falls back to Host:Port when none are passed.
	SocketActivation bool `yaml:"socket_activation"`
}

// PlayerConfig controls the built-in browser test player at /api/v1/player/.
type PlayerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir serves the player from disk instead of the embedded copy.
	Dir string `yaml:"dir"`
}

// WebSocketConfig contains settings for the live event stream.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
// Write is 0 by default: answer generation has no deadline imposed by the gateway.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// UpstreamConfig describes the device-control API the gateway fronts.
type UpstreamConfig struct {
	BaseURL   string `yaml:"base_url"`
	TokenURL  string `yaml:"token_url"`
	ClientID  string `yaml:"client_id"`
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds individual list/close/exists calls (seconds).
	// Stream generation is never cut short by the gateway.
	Timeout int `yaml:"timeout"`

	// TokenStore selects where credentials live: "file" or "sqlite".
	TokenStore string `yaml:"token_store"`
	TokenFile  string `yaml:"token_file"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains admin token settings.
// An empty secret disables the admin endpoints.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WHEPGW_SECTION_KEY
// For example: WHEPGW_API_PORT, WHEPGW_UPSTREAM_TOKEN_FILE
//
// Parameters:
//   - path: Path to the YAML configuration file (may be empty)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the default configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			UpdateInterval:  3600,
			BackoffInterval: 60,
			ShutdownGrace:   10,
		},
		WHEP: WHEPConfig{
			CodecSubstitutions: map[string]string{"H265": "H264"},
			MonitorSessions:    true,
			MonitorInterval:    30,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read: 30,
				Idle: 120,
			},
			Player: PlayerConfig{
				Enabled: true,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Upstream: UpstreamConfig{
			UserAgent:  "whep-gateway",
			Timeout:    30,
			TokenStore: "file",
			TokenFile:  "./data/token.json",
		},
		Database: DatabaseConfig{
			Path:        "./data/whepgw.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "whep-gateway",
			},
			QoS:         1,
			TopicPrefix: "whepgw",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WHEPGW_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Gateway
	if err := envInt("WHEPGW_GATEWAY_UPDATE_INTERVAL", &cfg.Gateway.UpdateInterval); err != nil {
		return err
	}
	if err := envInt("WHEPGW_GATEWAY_BACKOFF_INTERVAL", &cfg.Gateway.BackoffInterval); err != nil {
		return err
	}

	// API
	if v := os.Getenv("WHEPGW_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if err := envInt("WHEPGW_API_PORT", &cfg.API.Port); err != nil {
		return err
	}

	// Upstream
	if v := os.Getenv("WHEPGW_UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("WHEPGW_UPSTREAM_TOKEN_FILE"); v != "" {
		cfg.Upstream.TokenFile = v
	}

	// Database
	if v := os.Getenv("WHEPGW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("WHEPGW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WHEPGW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WHEPGW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("WHEPGW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("WHEPGW_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	return nil
}

// envInt parses an integer environment variable into dst when set.
func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.UpdateInterval <= 0 {
		errs = append(errs, "gateway.update_interval must be positive")
	}
	if c.Gateway.BackoffInterval <= 0 {
		errs = append(errs, "gateway.backoff_interval must be positive")
	}
	if c.Gateway.ShutdownGrace <= 0 {
		errs = append(errs, "gateway.shutdown_grace must be positive")
	}

	if c.WHEP.MonitorSessions && c.WHEP.MonitorInterval <= 0 {
		errs = append(errs, "whep.monitor_interval must be positive when monitoring is enabled")
	}
	for from, to := range c.WHEP.CodecSubstitutions {
		if from == "" || to == "" {
			errs = append(errs, "whep.codec_substitutions entries must be non-empty")
			break
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls requires cert_file and key_file")
	}

	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	switch c.Upstream.TokenStore {
	case "file":
		if c.Upstream.TokenFile == "" {
			errs = append(errs, "upstream.token_file is required for the file token store")
		}
	case "sqlite":
	default:
		errs = append(errs, "upstream.token_store must be \"file\" or \"sqlite\"")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Admin endpoints can stop the process; a short secret is not acceptable.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// UpdateInterval returns the refresh cadence as a Duration.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.Gateway.UpdateInterval) * time.Second
}

// BackoffInterval returns the refresh retry delay as a Duration.
func (c *Config) BackoffInterval() time.Duration {
	return time.Duration(c.Gateway.BackoffInterval) * time.Second
}

// ShutdownGrace returns the background shutdown bound as a Duration.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Gateway.ShutdownGrace) * time.Second
}

// MonitorInterval returns the session poll interval as a Duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.WHEP.MonitorInterval) * time.Second
}
