package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	OTel     OTelConfig     `mapstructure:"otel"`
	Booking  BookingConfig  `mapstructure:"booking"`
	Drainer  DrainerConfig  `mapstructure:"drainer"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Clients  ClientsConfig  `mapstructure:"clients"`
	Pools    PoolsConfig    `mapstructure:"pools"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	ClientID          string   `mapstructure:"client_id"`
	NotificationTopic string   `mapstructure:"notification_topic"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// BookingConfig holds admission-control settings for booking creation
type BookingConfig struct {
	PaymentWindow  time.Duration `mapstructure:"payment_window"`  // lock + pending record TTL for MEDIUM and drained HIGH
	QueueEntryTTL  time.Duration `mapstructure:"queue_entry_ttl"` // how long a QUEUED row may wait before expiry sweep
	ProcessingTTL  time.Duration `mapstructure:"processing_ttl"`  // duplicate-drain guard marker TTL
	RateLimitMax   int           `mapstructure:"rate_limit_max"`  // stream connections per reference per window
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
}

// DrainerConfig holds queue drainer settings
type DrainerConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// StreamConfig holds status stream (SSE) settings
type StreamConfig struct {
	InitialDelayJitter time.Duration `mapstructure:"initial_delay_jitter"`
	UpdateInterval     time.Duration `mapstructure:"update_interval"`
	UpdateJitter       time.Duration `mapstructure:"update_jitter"`
	MaxConnectionAge   time.Duration `mapstructure:"max_connection_age"`
}

// ClientsConfig holds URLs of external collaborators
type ClientsConfig struct {
	SupplierURL    string        `mapstructure:"supplier_url"`
	PaymentURL     string        `mapstructure:"payment_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PoolsConfig holds worker pool sizing
type PoolsConfig struct {
	ConfirmationWorkers   int `mapstructure:"confirmation_workers"`
	ConfirmationQueueSize int `mapstructure:"confirmation_queue_size"`
	NotificationWorkers   int `mapstructure:"notification_workers"`
	NotificationQueueSize int `mapstructure:"notification_queue_size"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// Read from .env file (optional)
	if err := v.ReadInConfig(); err != nil {
		// It's okay if .env doesn't exist, we'll use environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// We still continue because env vars might be set
		}
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "booking-engine")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "booking_db")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 100)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "booking-engine")
	v.SetDefault("KAFKA_NOTIFICATION_TOPIC", "booking-notifications")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_SERVICE_NAME", "booking-engine")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Booking defaults
	v.SetDefault("BOOKING_PAYMENT_WINDOW", "15m")
	v.SetDefault("BOOKING_QUEUE_ENTRY_TTL", "1h")
	v.SetDefault("BOOKING_PROCESSING_TTL", "1m")
	v.SetDefault("BOOKING_RATE_LIMIT_MAX", 10)
	v.SetDefault("BOOKING_RATE_LIMIT_WINDOW", "1m")

	// Drainer defaults
	v.SetDefault("DRAINER_INTERVAL", "5s")
	v.SetDefault("DRAINER_BATCH_SIZE", 100)
	v.SetDefault("DRAINER_CLEANUP_INTERVAL", "5m")
	v.SetDefault("DRAINER_HEALTH_INTERVAL", "30s")

	// Stream defaults
	v.SetDefault("STREAM_INITIAL_DELAY_JITTER", "2s")
	v.SetDefault("STREAM_UPDATE_INTERVAL", "3s")
	v.SetDefault("STREAM_UPDATE_JITTER", "2s")
	v.SetDefault("STREAM_MAX_CONNECTION_AGE", "5m")

	// External client defaults
	v.SetDefault("CLIENTS_SUPPLIER_URL", "http://localhost:9001")
	v.SetDefault("CLIENTS_PAYMENT_URL", "https://payment.example.com")
	v.SetDefault("CLIENTS_REQUEST_TIMEOUT", "5s")

	// Worker pool defaults
	v.SetDefault("POOLS_CONFIRMATION_WORKERS", 20)
	v.SetDefault("POOLS_CONFIRMATION_QUEUE_SIZE", 500)
	v.SetDefault("POOLS_NOTIFICATION_WORKERS", 30)
	v.SetDefault("POOLS_NOTIFICATION_QUEUE_SIZE", 1000)
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	brokersStr := v.GetString("KAFKA_BROKERS")
	cfg.Kafka.Brokers = strings.Split(brokersStr, ",")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.NotificationTopic = v.GetString("KAFKA_NOTIFICATION_TOPIC")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Booking
	cfg.Booking.PaymentWindow = v.GetDuration("BOOKING_PAYMENT_WINDOW")
	cfg.Booking.QueueEntryTTL = v.GetDuration("BOOKING_QUEUE_ENTRY_TTL")
	cfg.Booking.ProcessingTTL = v.GetDuration("BOOKING_PROCESSING_TTL")
	cfg.Booking.RateLimitMax = v.GetInt("BOOKING_RATE_LIMIT_MAX")
	cfg.Booking.RateLimitWindow = v.GetDuration("BOOKING_RATE_LIMIT_WINDOW")

	// Drainer
	cfg.Drainer.Interval = v.GetDuration("DRAINER_INTERVAL")
	cfg.Drainer.BatchSize = v.GetInt("DRAINER_BATCH_SIZE")
	cfg.Drainer.CleanupInterval = v.GetDuration("DRAINER_CLEANUP_INTERVAL")
	cfg.Drainer.HealthInterval = v.GetDuration("DRAINER_HEALTH_INTERVAL")

	// Stream
	cfg.Stream.InitialDelayJitter = v.GetDuration("STREAM_INITIAL_DELAY_JITTER")
	cfg.Stream.UpdateInterval = v.GetDuration("STREAM_UPDATE_INTERVAL")
	cfg.Stream.UpdateJitter = v.GetDuration("STREAM_UPDATE_JITTER")
	cfg.Stream.MaxConnectionAge = v.GetDuration("STREAM_MAX_CONNECTION_AGE")

	// Clients
	cfg.Clients.SupplierURL = v.GetString("CLIENTS_SUPPLIER_URL")
	cfg.Clients.PaymentURL = v.GetString("CLIENTS_PAYMENT_URL")
	cfg.Clients.RequestTimeout = v.GetDuration("CLIENTS_REQUEST_TIMEOUT")

	// Pools
	cfg.Pools.ConfirmationWorkers = v.GetInt("POOLS_CONFIRMATION_WORKERS")
	cfg.Pools.ConfirmationQueueSize = v.GetInt("POOLS_CONFIRMATION_QUEUE_SIZE")
	cfg.Pools.NotificationWorkers = v.GetInt("POOLS_NOTIFICATION_WORKERS")
	cfg.Pools.NotificationQueueSize = v.GetInt("POOLS_NOTIFICATION_QUEUE_SIZE")

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Booking.PaymentWindow <= 0 {
		return fmt.Errorf("payment window must be positive")
	}

	if c.Drainer.Interval <= 0 {
		return fmt.Errorf("drainer interval must be positive")
	}

	if c.Drainer.BatchSize <= 0 {
		return fmt.Errorf("drainer batch size must be positive")
	}

	if c.Booking.RateLimitMax <= 0 {
		return fmt.Errorf("rate limit max must be positive")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
