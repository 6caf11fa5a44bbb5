package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sink kinds
const (
	SinkInfluxDB  = "influxdb"
	SinkInfluxDB2 = "influxdb2"
	SinkTimescale = "timescale"
)

const (
	dfltInfluxPort     = 8086
	dfltInfluxDatabase = "energy"
	dfltTimescaleTable = "energy_consumption"
	dfltMeterInterval  = 10
)

// Config is the validated collector configuration. It is not modified after Load.
type Config struct {
	Sink      string          `yaml:"sink"`
	InfluxDB  SinkConfig      `yaml:"influxdb"`
	InfluxDB2 Influx2Config   `yaml:"influxdb2"`
	Timescale TimescaleConfig `yaml:"timescale"`
	HTTP      HTTPConfig      `yaml:"http"`
	Meters    []MeterConfig   `yaml:"meters"`
}

// SinkConfig holds InfluxDB 1.x connection parameters.
type SinkConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Database        string `yaml:"database"`
	RetentionPolicy string `yaml:"retention_policy"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SSL             bool   `yaml:"ssl"`
}

// Addr returns the http(s) base URL of the database.
func (s SinkConfig) Addr() string {
	scheme := "http"
	if s.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
}

// Influx2Config holds InfluxDB 2.x connection parameters.
type Influx2Config struct {
	URL    string `yaml:"url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	Token  string `yaml:"token"`
}

// TimescaleConfig holds the PostgreSQL/TimescaleDB sink parameters.
type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

// HTTPConfig configures the optional status and metrics listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MeterConfig describes one polled meter.
type MeterConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Interval int    `yaml:"interval"`
}

// UnmarshalYAML applies the interval default only when the key is absent,
// so an explicit zero still fails validation.
func (m *MeterConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain MeterConfig
	p := plain{Interval: dfltMeterInterval}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*m = MeterConfig(p)
	return nil
}

// PollInterval returns the configured interval as duration.
func (m MeterConfig) PollInterval() time.Duration {
	return time.Duration(m.Interval) * time.Second
}

// Error reports a configuration that cannot be used. It is fatal at startup.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads, defaults and validates the YAML document at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes a configuration document without touching the filesystem.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DuplicateMeterNames lists names used by more than one meter.
func (c *Config) DuplicateMeterNames() []string {
	seen := make(map[string]int, len(c.Meters))
	var dup []string
	for _, m := range c.Meters {
		seen[m.Name]++
		if seen[m.Name] == 2 {
			dup = append(dup, m.Name)
		}
	}
	return dup
}

func (c *Config) applyEnv() {
	envString("INFLUX_HOST", &c.InfluxDB.Host)
	envInt("INFLUX_PORT", &c.InfluxDB.Port)
	envString("INFLUX_DATABASE", &c.InfluxDB.Database)
	envString("INFLUX_RETENTION_POLICY", &c.InfluxDB.RetentionPolicy)
	envString("INFLUX_USERNAME", &c.InfluxDB.Username)
	envString("INFLUX_PASSWORD", &c.InfluxDB.Password)
	envString("INFLUX_URL", &c.InfluxDB2.URL)
	envString("INFLUX_ORG", &c.InfluxDB2.Org)
	envString("INFLUX_BUCKET", &c.InfluxDB2.Bucket)
	envString("INFLUX_TOKEN", &c.InfluxDB2.Token)
	envString("TIMESCALE_CONN_STRING", &c.Timescale.ConnString)
	envString("HTTP_ADDR", &c.HTTP.Addr)
}

func (c *Config) applyDefaults() {
	c.Sink = strings.ToLower(strings.TrimSpace(c.Sink))
	if c.Sink == "" {
		c.Sink = SinkInfluxDB
	}
	if c.InfluxDB.Port == 0 {
		c.InfluxDB.Port = dfltInfluxPort
	}
	if c.InfluxDB.Database == "" {
		c.InfluxDB.Database = dfltInfluxDatabase
	}
	if c.InfluxDB2.Bucket == "" {
		c.InfluxDB2.Bucket = dfltInfluxDatabase
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = dfltTimescaleTable
	}
}

func (c *Config) validate() error {
	switch c.Sink {
	case SinkInfluxDB:
		if strings.TrimSpace(c.InfluxDB.Host) == "" {
			return fmt.Errorf("influxdb.host is required")
		}
		if c.InfluxDB.Port < 0 || c.InfluxDB.Port > 65535 {
			return fmt.Errorf("influxdb.port %d out of range", c.InfluxDB.Port)
		}
	case SinkInfluxDB2:
		if strings.TrimSpace(c.InfluxDB2.URL) == "" {
			return fmt.Errorf("influxdb2.url is required")
		}
		if strings.TrimSpace(c.InfluxDB2.Org) == "" {
			return fmt.Errorf("influxdb2.org is required")
		}
	case SinkTimescale:
		if strings.TrimSpace(c.Timescale.ConnString) == "" {
			return fmt.Errorf("timescale.conn_string is required")
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}

	if len(c.Meters) == 0 {
		return fmt.Errorf("at least one meter is required")
	}
	for i, m := range c.Meters {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("meters[%d].name is required", i)
		}
		if strings.TrimSpace(m.Host) == "" {
			return fmt.Errorf("meters[%d].host is required", i)
		}
		if m.Interval <= 0 {
			return fmt.Errorf("meters[%d].interval must be > 0, got %d", i, m.Interval)
		}
	}
	return nil
}

func envString(key string, target *string) {
	if v, ok := os.LookupEnv(key); ok {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = n
		}
	}
}
