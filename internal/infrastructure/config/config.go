package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends for storage.backend.
const (
	StorageBackendSQLite = "sqlite"
	StorageBackendJSON   = "json"
)

// Config mirrors configs/config.yaml.
type Config struct {
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Settings  SettingsConfig  `yaml:"settings"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds http.Server timeouts in whole seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

func (t APITimeoutConfig) ReadTimeout() time.Duration  { return seconds(t.Read) }
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }
func (t APITimeoutConfig) IdleTimeout() time.Duration  { return seconds(t.Idle) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// CORSConfig lists what browsers may send. No origins means any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig sizes are bytes, intervals seconds, SendBuffer messages.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBuffer     int    `yaml:"send_buffer"`
}

// StorageConfig picks where readings and settings live.
type StorageConfig struct {
	Backend string `yaml:"backend"`

	// DataDir holds readings.json and settings.json for the json backend.
	DataDir string `yaml:"data_dir"`
}

type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig enables the optional broker ingest path.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds paho's backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig enables mirroring readings to InfluxDB.
// FlushInterval is in seconds.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// ProxyConfig limits the LAN polling proxy.
type ProxyConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// SettingsConfig seeds the settings record on first boot. Keys from the
// file are merged over the built-in defaults.
type SettingsConfig struct {
	Defaults map[string]any `yaml:"defaults"`
}

// DashboardConfig serves Dir when it exists, else the embedded page.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load layers the YAML file at path over the defaults, then the
// environment over both, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadOrDefault is Load, except a missing file yields the defaults so the
// binary starts without a config.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return finish(defaultConfig())
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     3000,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 64 << 10,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     256,
		},
		Storage:  StorageConfig{Backend: StorageBackendSQLite, DataDir: "./data"},
		Database: DatabaseConfig{Path: "./data/afmeter.db", WALMode: true, BusyTimeout: 5},
		MQTT: MQTTConfig{
			Broker:      MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "afmeter-core"},
			QoS:         1,
			Reconnect:   MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
			TopicPrefix: "afmeter",
		},
		Proxy: ProxyConfig{Timeout: 5 * time.Second, MaxBodyBytes: 5 << 20},
		Settings: SettingsConfig{Defaults: map[string]any{
			"warning_threshold": 25.0,
			"alert_threshold":   30.0,
		}},
		Dashboard: DashboardConfig{Enabled: true},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535, got %d", c.API.Port)
	check(!c.API.TLS.Enabled || (c.API.TLS.CertFile != "" && c.API.TLS.KeyFile != ""),
		"api.tls requires cert_file and key_file")

	switch c.Storage.Backend {
	case StorageBackendSQLite:
		check(c.Database.Path != "", "database.path is required for the sqlite backend")
	case StorageBackendJSON:
		check(c.Storage.DataDir != "", "storage.data_dir is required for the json backend")
	default:
		check(false, "storage.backend must be %q or %q, got %q",
			StorageBackendSQLite, StorageBackendJSON, c.Storage.Backend)
	}

	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1 or 2")
	check(!c.MQTT.Enabled || isSet(c.MQTT.TopicPrefix), "mqtt.topic_prefix is required when mqtt is enabled")
	check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")
	check(c.Proxy.Timeout > 0, "proxy.timeout must be positive")
	check(c.Proxy.MaxBodyBytes > 0, "proxy.max_body_bytes must be positive")

	return errors.Join(errs...)
}
