package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PROFDASH_SERVER_PORT.
const EnvPrefix = "PROFDASH"

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
}

type ServerConfig struct {
	Port               int      `mapstructure:"port"`
	Mode               string   `mapstructure:"mode"`
	ShutdownTimeoutSec int      `mapstructure:"shutdown_timeout_sec"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	// NodeID distinguishes instances in generated event ids (0..1023).
	NodeID             int64    `mapstructure:"node_id"`
}

// DatabaseConfig selects the gorm driver. "postgres" is the production
// store; "sqlite" is for local runs and tests.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

type RateLimitConfig struct {
	Limit          int  `mapstructure:"limit"`
	WindowSec      int  `mapstructure:"window_sec"`
	MaxConcurrency int  `mapstructure:"max_concurrency"`
	FailOpen       bool `mapstructure:"fail_open"`
}

type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	DLQTopic       string   `mapstructure:"dlq_topic"`
	GroupID        string   `mapstructure:"group_id"`
	MaxRetries     int      `mapstructure:"max_retries"`
	RetryBackoffMs int      `mapstructure:"retry_backoff_ms"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AnalyticsConfig points at the public CSV export of the metrics sheet.
type AnalyticsConfig struct {
	SheetURL        string `mapstructure:"sheet_url"`
	WindowDays      int    `mapstructure:"window_days"`
	NoiseModel      string `mapstructure:"noise_model"`
	CacheTTLSec     int    `mapstructure:"cache_ttl_sec"`
	FetchTimeoutSec int    `mapstructure:"fetch_timeout_sec"`
}

type GRPCConfig struct {
	Address string `mapstructure:"address"`
}

// LoadConfig reads the config file at path (missing file is fine), then
// applies PROFDASH_* environment overrides on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout_sec", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.node_id", 0)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "profdash")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "profdash.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.secret", defaultJWTSecret)
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_hours", 2)

	v.SetDefault("ratelimit.limit", 300)
	v.SetDefault("ratelimit.window_sec", 60)
	v.SetDefault("ratelimit.max_concurrency", 512)
	v.SetDefault("ratelimit.fail_open", true)

	v.SetDefault("worker_pool.size", 64)
	v.SetDefault("worker_pool.queue_size", 4096)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "profdash.events")
	v.SetDefault("kafka.dlq_topic", "profdash.events.dlq")
	v.SetDefault("kafka.group_id", "profdash-dashboard")
	v.SetDefault("kafka.max_retries", 5)
	v.SetDefault("kafka.retry_backoff_ms", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "logs/profdash.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("analytics.sheet_url", "")
	v.SetDefault("analytics.window_days", 30)
	v.SetDefault("analytics.noise_model", "improved")
	v.SetDefault("analytics.cache_ttl_sec", 300)
	v.SetDefault("analytics.fetch_timeout_sec", 10)

	v.SetDefault("grpc.address", "")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.NodeID < 0 || c.Server.NodeID > 1023 {
		return fmt.Errorf("invalid server node id: %d", c.Server.NodeID)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if c.Server.Mode == "release" && c.JWT.Secret == defaultJWTSecret {
		return errors.New("jwt secret must be changed in release mode")
	}
	if c.Analytics.WindowDays <= 0 {
		return fmt.Errorf("invalid analytics window: %d", c.Analytics.WindowDays)
	}
	switch c.Analytics.NoiseModel {
	case "simple", "improved", "realistic":
	default:
		return fmt.Errorf("unknown analytics noise model: %q", c.Analytics.NoiseModel)
	}
	return nil
}

// KafkaEnabled reports whether events go through a broker.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
