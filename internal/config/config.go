package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Source   SourceConfig   `yaml:"source"`
	Sync     SyncConfig     `yaml:"sync"`
	Seed     SeedConfig     `yaml:"seed"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	LogLevel string         `yaml:"log_level"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN prefers discrete connection settings when all of them are present and
// falls back to the URL otherwise.
func (d DatabaseConfig) DSN() string {
	if d.hasDiscrete() {
		u := url.URL{
			Scheme:   "postgresql",
			User:     url.UserPassword(d.User, d.Password),
			Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
			Path:     "/" + d.DBName,
			RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
		}
		return u.String()
	}
	return d.URL
}

func (d DatabaseConfig) hasDiscrete() bool {
	return d.Host != "" && d.User != "" && d.Password != "" && d.DBName != ""
}

type SourceConfig struct {
	BaseURL    string        `yaml:"base_url"`
	BatchParam string        `yaml:"batch_param"`
	Timeout    time.Duration `yaml:"timeout"`
	RateLimit  float64       `yaml:"rate_limit"`
	Retry      RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// SyncConfig controls the background re-sync. A zero interval disables it.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type SeedConfig struct {
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

// RabbitMQConfig is optional; an empty URL disables sync event publishing.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

// RedisConfig is optional; an empty Addr disables the item cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Load reads the YAML config at path, expanding environment variables. A
// missing file is not an error: defaults and environment still apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.DSN() == "" {
		return errors.New("DATABASE_URL or PGHOST/PGUSER/PGPASSWORD/PGDATABASE are required")
	}
	if c.Source.BaseURL == "" {
		return errors.New("source.base_url is required")
	}
	return nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Database.URL, "DATABASE_URL")
	setFromEnv(&c.Database.Host, "PGHOST")
	setFromEnv(&c.Database.User, "PGUSER")
	setFromEnv(&c.Database.Password, "PGPASSWORD")
	setFromEnv(&c.Database.DBName, "PGDATABASE")
	if c.Database.Port == 0 {
		if port, err := strconv.Atoi(os.Getenv("PGPORT")); err == nil {
			c.Database.Port = port
		}
	}
	if c.Server.Addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			c.Server.Addr = ":" + port
		}
	}
}

func setFromEnv(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "require"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = "https://studyuk.fun/um.php"
	}
	if c.Source.BatchParam == "" {
		c.Source.BatchParam = "batch_id"
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.Retry.MaxAttempts == 0 {
		c.Source.Retry.MaxAttempts = 1
	}
	if c.Source.Retry.InitialBackoff == 0 {
		c.Source.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Source.Retry.MaxBackoff == 0 {
		c.Source.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = 5 * time.Minute
	}
	if c.Seed.Path == "" {
		c.Seed.Path = "attached_assets/batch_1753084974876.json"
	}
	if c.Seed.Limit == 0 {
		c.Seed.Limit = 50
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "batchtrack"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "batch.synced"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "batch_sync_events"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
