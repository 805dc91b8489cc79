package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// envOverride maps one variable onto the config. Later entries win, so
// AFMETER_API_PORT beats the PaaS-style PORT.
type envOverride struct {
	name  string
	apply func(c *Config, v string) error
}

var envOverrides = []envOverride{
	{"PORT", setInt(func(c *Config) *int { return &c.API.Port })},
	{"AFMETER_API_HOST", setString(func(c *Config) *string { return &c.API.Host })},
	{"AFMETER_API_PORT", setInt(func(c *Config) *int { return &c.API.Port })},
	{"AFMETER_STORAGE_BACKEND", setString(func(c *Config) *string { return &c.Storage.Backend })},
	{"AFMETER_STORAGE_DATA_DIR", setString(func(c *Config) *string { return &c.Storage.DataDir })},
	{"AFMETER_DATABASE_PATH", setString(func(c *Config) *string { return &c.Database.Path })},
	{"AFMETER_MQTT_ENABLED", setBool(func(c *Config) *bool { return &c.MQTT.Enabled })},
	{"AFMETER_MQTT_HOST", setString(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"AFMETER_MQTT_PORT", setInt(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"AFMETER_MQTT_USERNAME", setString(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"AFMETER_MQTT_PASSWORD", setString(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"AFMETER_INFLUXDB_ENABLED", setBool(func(c *Config) *bool { return &c.InfluxDB.Enabled })},
	{"AFMETER_INFLUXDB_URL", setString(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"AFMETER_INFLUXDB_TOKEN", setString(func(c *Config) *string { return &c.InfluxDB.Token })},
	{"AFMETER_LOG_LEVEL", setString(func(c *Config) *string { return &c.Logging.Level })},
}

// applyEnvOverrides copies set, non-empty variables into cfg. A value that
// does not parse is an error rather than a silent fallback.
func applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		v := strings.TrimSpace(os.Getenv(o.name))
		if v == "" {
			continue
		}
		if err := o.apply(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", o.name, err)
		}
	}
	return nil
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setInt(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		*field(c) = n
		return nil
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("not a boolean: %q", v)
		}
		*field(c) = b
		return nil
	}
}

func isSet(s string) bool {
	return strings.TrimSpace(s) != ""
}
