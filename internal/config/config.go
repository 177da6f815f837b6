package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverInfluxDB = "influxdb"
	DriverSQLite   = "sqlite"
)

// Config captures the settings required to boot the activity trainer.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP, gRPC health and metrics listeners.
type ServerConfig struct {
	HTTPAddress     string        `yaml:"httpAddress"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	// RateLimit is the sustained number of training requests per second allowed per client; zero
	// disables limiting.
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

// StoreConfig selects and configures the time-series store.
type StoreConfig struct {
	Driver           string        `yaml:"driver"`
	DiscoveryTTL     time.Duration `yaml:"discoveryTTL"`
	DiscoveryEntries int           `yaml:"discoveryEntries"`
	InfluxDB         InfluxConfig  `yaml:"influxdb"`
	SQLite           SQLiteConfig  `yaml:"sqlite"`
}

// InfluxConfig configures access to an InfluxDB 1.x server.
type InfluxConfig struct {
	URL      string        `yaml:"url"`
	Database string        `yaml:"database"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SQLiteConfig configures the embedded store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
	// SeedRows writes that many synthetic devicemotion samples per activity on startup.
	SeedRows int `yaml:"seedRows"`
}

// PipelineConfig controls training and compilation.
type PipelineConfig struct {
	LabelKey       string        `yaml:"labelKey"`
	TimeColumn     string        `yaml:"timeColumn"`
	CacheSize      int           `yaml:"cacheSize"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	Dialect        string        `yaml:"dialect"`
	ClassName      string        `yaml:"className"`
}

// PreprocessConfig controls windowed preprocessing.
type PreprocessConfig struct {
	// SamplingInterval is the spacing between samples; zero measures it from the data.
	SamplingInterval time.Duration `yaml:"samplingInterval"`
	FallbackInterval time.Duration `yaml:"fallbackInterval"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_ACTIVITY_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverInfluxDB:
		if c.Store.InfluxDB.URL == "" {
			return fmt.Errorf("store.influxdb.url is required")
		}
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.DiscoveryEntries <= 0 {
		return fmt.Errorf("store.discoveryEntries must be positive, got %d", c.Store.DiscoveryEntries)
	}
	if c.Pipeline.CacheSize <= 0 {
		return fmt.Errorf("pipeline.cacheSize must be positive, got %d", c.Pipeline.CacheSize)
	}
	if c.Pipeline.Dialect != "js" && c.Pipeline.Dialect != "json" {
		return fmt.Errorf("unsupported dialect %q", c.Pipeline.Dialect)
	}
	if c.Pipeline.LabelKey == "" {
		return fmt.Errorf("pipeline.labelKey is required")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress:     ":5000",
			GRPCAddress:     ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			RateLimit:       5,
			RateBurst:       10,
		},
		Store: StoreConfig{
			Driver:           DriverInfluxDB,
			DiscoveryTTL:     30 * time.Second,
			DiscoveryEntries: 256,
			InfluxDB: InfluxConfig{
				URL:      "http://localhost:8086",
				Database: "activity",
				Username: "root",
				Password: "root",
				Timeout:  10 * time.Second,
			},
			SQLite: SQLiteConfig{Path: ":memory:"},
		},
		Pipeline: PipelineConfig{
			LabelKey:       "Traininglabel",
			TimeColumn:     "time",
			CacheSize:      100,
			RequestTimeout: 30 * time.Second,
			Dialect:        "js",
			ClassName:      "Activity",
		},
		Preprocess: PreprocessConfig{FallbackInterval: 20 * time.Millisecond},
		Logging:    LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_ACTIVITY_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_RATE_LIMIT"); v != "" {
		if limit, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = limit
		}
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_SQLITE_PATH"); v != "" {
		cfg.Store.SQLite.Path = v
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_SQLITE_SEED_ROWS"); v != "" {
		if rows, err := strconv.Atoi(v); err == nil {
			cfg.Store.SQLite.SeedRows = rows
		}
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_INFLUXDB_URL"); v != "" {
		cfg.Store.InfluxDB.URL = v
	}
	host, port := os.Getenv("INFLUXDB_HOSTNAME"), os.Getenv("INFLUXDB_PORT")
	if host != "" || port != "" {
		cfg.Store.InfluxDB.URL = withHostPort(cfg.Store.InfluxDB.URL, host, port)
	}
	if v := os.Getenv("INFLUXDB_USERNAME"); v != "" {
		cfg.Store.InfluxDB.Username = v
	}
	if v := os.Getenv("INFLUXDB_PASSWORD"); v != "" {
		cfg.Store.InfluxDB.Password = v
	}
	if v := os.Getenv("INFLUXDB_DATABASE"); v != "" {
		cfg.Store.InfluxDB.Database = v
	}
	if v := os.Getenv("CACHE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.CacheSize = size
		}
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_DISCOVERY_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.DiscoveryEntries = n
		}
	}
	if v := os.Getenv("LABEL_KEY"); v != "" {
		cfg.Pipeline.LabelKey = v
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.RequestTimeout = d
		}
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_DIALECT"); v != "" {
		cfg.Pipeline.Dialect = strings.ToLower(v)
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_SAMPLING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Preprocess.SamplingInterval = d
		}
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_ACTIVITY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

// withHostPort replaces the host and/or port of raw, keeping its scheme and path.
func withHostPort(raw, host, port string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u = &url.URL{Scheme: "http", Host: "localhost:8086"}
	}
	currentHost, currentPort, err := net.SplitHostPort(u.Host)
	if err != nil {
		currentHost, currentPort = u.Host, "8086"
	}
	if host == "" {
		host = currentHost
	}
	if port == "" {
		port = currentPort
	}
	u.Host = net.JoinHostPort(host, port)
	return u.String()
}
