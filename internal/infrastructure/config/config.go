package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported values for enumerated settings.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	InfluxAPIv1 = 1
	InfluxAPIv2 = 2
)

// validPrecisions lists the time precisions understood by the InfluxDB HTTP API.
var validPrecisions = map[string]bool{
	"": true, "ns": true, "u": true, "ms": true, "s": true, "m": true, "h": true,
}

// Config is the root configuration structure for the energy saving core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Timeseries TimeseriesConfig `yaml:"timeseries"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig contains relational metadata store settings.
//
// Driver "sqlite" uses Path; driver "postgres" uses DSN.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	DSN         string `yaml:"dsn"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains time-series store connection settings.
//
// APIVersion 1 talks InfluxQL with username/password. APIVersion 2 writes and
// deletes through the token API (Org/Bucket) and queries through the v1
// compatibility endpoint, mapping Database to the bucket's DBRP mapping.
type InfluxDBConfig struct {
	Enabled    bool   `yaml:"enabled"`
	APIVersion int    `yaml:"api_version"`
	URL        string `yaml:"url"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Token      string `yaml:"token"`
	Org        string `yaml:"org"`
	Bucket     string `yaml:"bucket"`
	// Tabular switches read results to the column-oriented frame shape.
	Tabular bool `yaml:"tabular"`
	// Timeout is the per-request HTTP timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// TimeseriesConfig contains engine behaviour settings.
type TimeseriesConfig struct {
	// Precision is the epoch precision used for queries and writes
	// (ns, u, ms, s, m, h). Empty means RFC3339 timestamps on read and
	// nanosecond writes.
	Precision string `yaml:"precision"`

	// StrictConversion makes a single failed value coercion fail the write.
	StrictConversion bool `yaml:"strict_conversion"`

	// MaxConcurrency bounds the number of concurrent sub-queries and series writes.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// IngestConfig controls the MQTT telemetry ingest bridge.
type IngestConfig struct {
	Enabled bool `yaml:"enabled"`

	// Datacenters restricts ingestion to the listed datacenters. Empty accepts all.
	Datacenters []string `yaml:"datacenters"`

	// WriteTimeout bounds one resolve-and-write pipeline, in seconds.
	WriteTimeout int `yaml:"write_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ENERGYSAVING_SECTION_KEY
// For example: ENERGYSAVING_DATABASE_PATH, ENERGYSAVING_INFLUXDB_TOKEN
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			Path:        "./data/energysaving.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:    true,
			APIVersion: InfluxAPIv1,
			URL:        "http://localhost:8086",
			Database:   "energy_saving",
			Timeout:    30,
		},
		Timeseries: TimeseriesConfig{
			MaxConcurrency: 4,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "energysaving-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Ingest: IngestConfig{
			WriteTimeout: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENERGYSAVING_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("ENERGYSAVING_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ENERGYSAVING_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if v := os.Getenv("ENERGYSAVING_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("ENERGYSAVING_INFLUXDB_PASSWORD"); v != "" {
		cfg.InfluxDB.Password = v
	}
	if v := os.Getenv("ENERGYSAVING_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("ENERGYSAVING_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ENERGYSAVING_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ENERGYSAVING_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be %q or %q", DriverSQLite, DriverPostgres))
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required")
		}
		switch c.InfluxDB.APIVersion {
		case InfluxAPIv1:
			if c.InfluxDB.Database == "" {
				errs = append(errs, "influxdb.database is required for api_version 1")
			}
		case InfluxAPIv2:
			if c.InfluxDB.Token == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
				errs = append(errs, "influxdb.token, influxdb.org and influxdb.bucket are required for api_version 2")
			}
		default:
			errs = append(errs, "influxdb.api_version must be 1 or 2")
		}
	}

	if !validPrecisions[c.Timeseries.Precision] {
		errs = append(errs, fmt.Sprintf("timeseries.precision %q is not one of ns, u, ms, s, m, h", c.Timeseries.Precision))
	}
	if c.Timeseries.MaxConcurrency < 0 {
		errs = append(errs, "timeseries.max_concurrency must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Ingest writes through InfluxDB.
	if c.Ingest.Enabled && !c.InfluxDB.Enabled {
		errs = append(errs, "ingest.enabled requires influxdb.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetInfluxTimeout returns the InfluxDB request timeout as a Duration.
func (c *Config) GetInfluxTimeout() time.Duration {
	return time.Duration(c.InfluxDB.Timeout) * time.Second
}

// GetIngestWriteTimeout returns the ingest write timeout as a Duration.
func (c *Config) GetIngestWriteTimeout() time.Duration {
	return time.Duration(c.Ingest.WriteTimeout) * time.Second
}
