// Package config loads configs/config.yaml.
//
// Values resolve in three layers: built-in defaults, then the YAML file,
// then environment variables (see envOverrides). Keep the MQTT password
// and InfluxDB token in the environment rather than the file.
package config
