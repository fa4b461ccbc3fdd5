package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	DeadLetter DeadLetterConfig `mapstructure:"deadletter"`
	Health     HealthConfig     `mapstructure:"health"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// BrokerConfig selects and configures the transport tasks are submitted to.
// Kind is "redis" (Celery-style list queues) or "http" (executor webhook).
type BrokerConfig struct {
	Kind              string        `mapstructure:"kind"`
	RedisURL          string        `mapstructure:"redis_url"`
	KeyPrefix         string        `mapstructure:"key_prefix"`
	ExecutorURL       string        `mapstructure:"executor_url"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Routes            []string      `mapstructure:"routes"`
}

// SchedulerConfig holds retry scheduler configuration
type SchedulerConfig struct {
	TickInterval              time.Duration `mapstructure:"tick_interval"`
	RetryBatchSize            int           `mapstructure:"retry_batch_size"`
	DispatchConcurrency       int           `mapstructure:"dispatch_concurrency"`
	RedeliveryTimeout         time.Duration `mapstructure:"redelivery_timeout"`
	StaleClaimAge             time.Duration `mapstructure:"stale_claim_age"`
	UnavailableAlertThreshold int           `mapstructure:"unavailable_alert_threshold"`
}

// ClassifierConfig holds failure classification configuration. The keyword
// lists are ordered; the first match wins and is reported as the reason.
type ClassifierConfig struct {
	VocabularyVersion      string        `mapstructure:"vocabulary_version"`
	BaseRetryDelaySeconds  int           `mapstructure:"base_retry_delay_seconds"`
	MaxRetryDelaySeconds   int           `mapstructure:"max_retry_delay_seconds"`
	MaxTaskAge             time.Duration `mapstructure:"max_task_age"`
	PermanentErrorKeywords []string      `mapstructure:"permanent_error_keywords"`
	TransientErrorKeywords []string      `mapstructure:"transient_error_keywords"`
}

// DeadLetterConfig holds dead letter archive configuration
type DeadLetterConfig struct {
	RetentionDays        int           `mapstructure:"retention_days"`
	BatchSize            int           `mapstructure:"batch_size"`
	ArchiveInterval      time.Duration `mapstructure:"archive_interval"`
	ManualReviewAttempts int           `mapstructure:"manual_review_attempts"`
	FinancialQueueTypes  []string      `mapstructure:"financial_queue_types"`
	UnsafeTaskKeywords   []string      `mapstructure:"unsafe_task_keywords"`
}

// HealthConfig holds health reporter configuration
type HealthConfig struct {
	CollectInterval time.Duration `mapstructure:"collect_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Load .env file
	if err := loadEnvFile(); err != nil {
		// .env is optional, log but don't fail
		log.Warn().Err(err).Msg("Warning: .env file not loaded")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvPrefix("TASK_SERVICE")

	// Bind env keys for nested config
	bindEnvVars(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// loadEnvFile loads .env file by parsing KEY=VALUE lines and setting them as environment variables
func loadEnvFile() error {
	envPaths := []string{
		".",
		"./config",
	}

	for _, path := range envPaths {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			if err := loadDotEnvFile(envFile); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			// Remove quotes if present
			value = strings.Trim(value, "\"'")
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")

	// Broker
	v.BindEnv("broker.kind", "BROKER_KIND")
	v.BindEnv("broker.redis_url", "REDIS_URL")
	v.BindEnv("broker.executor_url", "EXECUTOR_URL")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	// Broker defaults
	v.SetDefault("broker.kind", "redis")
	v.SetDefault("broker.redis_url", "redis://localhost:6379/0")
	v.SetDefault("broker.key_prefix", "taskq:")
	v.SetDefault("broker.executor_url", "")
	v.SetDefault("broker.http_timeout", 30*time.Second)
	v.SetDefault("broker.requests_per_second", 20)
	v.SetDefault("broker.routes", []string{
		"email=notifications",
		"sms=notifications",
		"webhook=webhooks",
	})

	// Scheduler defaults
	v.SetDefault("scheduler.tick_interval", 30*time.Second)
	v.SetDefault("scheduler.retry_batch_size", 25)
	v.SetDefault("scheduler.dispatch_concurrency", 8)
	v.SetDefault("scheduler.redelivery_timeout", 15*time.Minute)
	v.SetDefault("scheduler.stale_claim_age", 5*time.Minute)
	v.SetDefault("scheduler.unavailable_alert_threshold", 5)

	// Classifier defaults
	v.SetDefault("classifier.vocabulary_version", "builtin-1")
	v.SetDefault("classifier.base_retry_delay_seconds", 300)
	v.SetDefault("classifier.max_retry_delay_seconds", 3600)
	v.SetDefault("classifier.max_task_age", 168*time.Hour)
	v.SetDefault("classifier.permanent_error_keywords", []string{
		"validation",
		"invalid payload",
		"unauthorized",
		"forbidden",
		"not found",
		"does not exist",
		"malformed",
		"misconfigured",
		"bad configuration",
	})
	v.SetDefault("classifier.transient_error_keywords", []string{
		"timeout",
		"timed out",
		"connection",
		"rate limit",
		"too many requests",
		"service unavailable",
		"temporarily unavailable",
		"unavailable",
		"broken pipe",
		"reset by peer",
	})

	// Dead letter defaults
	v.SetDefault("deadletter.retention_days", 30)
	v.SetDefault("deadletter.batch_size", 50)
	v.SetDefault("deadletter.archive_interval", 1*time.Hour)
	v.SetDefault("deadletter.manual_review_attempts", 3)
	v.SetDefault("deadletter.financial_queue_types", []string{"payment", "payment_webhook"})
	v.SetDefault("deadletter.unsafe_task_keywords", []string{"charge", "refund", "payout", "transfer"})

	// Health defaults
	v.SetDefault("health.collect_interval", 30*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// GetDatabaseURL returns the database URL from config or environment
func GetDatabaseURL() string {
	if cfg := Get(); cfg != nil && cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}
