package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"shareit/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	DefaultUserHeader = "X-Sharer-User-Id"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Seed       SeedConfig       `yaml:"seed"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Path         string `yaml:"path"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type KafkaConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	BatchSize int      `yaml:"batch_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP       APIHTTPConfig      `yaml:"http"`
	GRPC       APIGRPCConfig      `yaml:"grpc"`
	RateLimit  APIRateLimitConfig `yaml:"rate_limit"`
	UserHeader string             `yaml:"user_header"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	DefaultPageSize int           `yaml:"default_page_size"`
	MaxPageSize     int           `yaml:"max_page_size"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	ExportLimit     int           `yaml:"export_limit"`
}

type SeedConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional outside local runs
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite3")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for pgx")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka brokers are required when kafka is enabled")
	}

	if c.Booking.DefaultPageSize <= 0 || c.Booking.MaxPageSize <= 0 {
		return errors.New("booking page sizes must be positive")
	}
	if c.Booking.DefaultPageSize > c.Booking.MaxPageSize {
		return fmt.Errorf("booking default_page_size %d exceeds max_page_size %d",
			c.Booking.DefaultPageSize, c.Booking.MaxPageSize)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.UserHeader == "" {
		c.API.UserHeader = DefaultUserHeader
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "booking-events"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 20
	}

	if c.Booking.DefaultPageSize == 0 {
		c.Booking.DefaultPageSize = models.DefaultPageSize
	}
	if c.Booking.MaxPageSize == 0 {
		c.Booking.MaxPageSize = models.MaxPageSize
	}
	if c.Booking.CacheTTL == 0 {
		c.Booking.CacheTTL = models.DefaultCacheTTLSeconds * time.Second
	}
	if c.Booking.ExportLimit == 0 {
		c.Booking.ExportLimit = models.DefaultExportLimit
	}
}
