// Package config provides configuration management for the streamsink server.
// It loads settings from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/adapters/kafka"
	"github.com/coregx/streamsink/retry"
)

// Broker kinds.
const (
	BrokerKafka  = "kafka"
	BrokerMemory = "memory"
)

// DriverMemory keeps every table in process memory instead of a database.
const DriverMemory = "memory"

// Config holds all configuration for the streamsink server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Broker   BrokerConfig
	Topics   streamsink.Topics
	Retry    RetryConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver      string // mysql, postgres, sqlite3 or memory
	Host        string
	Port        int
	User        string
	Password    string
	Database    string // Database name, or file path for sqlite3
	AutoMigrate bool   // Apply migrations on serve
}

// BrokerConfig holds message broker configuration.
type BrokerConfig struct {
	Kind              string // kafka or memory
	Brokers           []string
	ClientID          string
	GroupID           string
	Version           string
	OffsetReset       string
	ProvisionTopics   bool
	Partitions        int
	ReplicationFactor int
	SASLUsername      string
	SASLPassword      string
	TLSEnabled        bool
}

// RetryConfig holds consumer retry configuration.
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first
	Backoff     time.Duration // Fixed wait between attempts
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// MetricsConfig holds OpenTelemetry configuration.
type MetricsConfig struct {
	OTLPEndpoint string // gRPC collector address, empty disables export
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	kafkaDefaults := kafka.DefaultConfig()
	topicDefaults := streamsink.DefaultTopics()
	retryDefaults := retry.DefaultStrategy()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(getEnv("DB_DRIVER", "sqlite3")),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvInt("DB_PORT", 3306),
			User:        getEnv("DB_USER", "streamsink"),
			Password:    getEnv("DB_PASSWORD", ""),
			Database:    getEnv("DB_NAME", "streamsink.db"),
			AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Broker: BrokerConfig{
			Kind:              strings.ToLower(getEnv("BROKER", BrokerKafka)),
			Brokers:           getEnvList("KAFKA_BROKERS", kafkaDefaults.Brokers),
			ClientID:          getEnv("KAFKA_CLIENT_ID", kafkaDefaults.ClientID),
			GroupID:           getEnv("KAFKA_GROUP_ID", kafkaDefaults.GroupID),
			Version:           getEnv("KAFKA_VERSION", kafkaDefaults.Version),
			OffsetReset:       getEnv("KAFKA_OFFSET_RESET", kafkaDefaults.OffsetReset),
			ProvisionTopics:   getEnvBool("KAFKA_PROVISION_TOPICS", true),
			Partitions:        getEnvInt("KAFKA_PARTITIONS", int(kafkaDefaults.Partitions)),
			ReplicationFactor: getEnvInt("KAFKA_REPLICATION_FACTOR", int(kafkaDefaults.ReplicationFactor)),
			SASLUsername:      getEnv("KAFKA_SASL_USERNAME", ""),
			SASLPassword:      getEnv("KAFKA_SASL_PASSWORD", ""),
			TLSEnabled:        getEnvBool("KAFKA_TLS_ENABLED", false),
		},
		Topics: streamsink.Topics{
			Users:         getEnv("TOPIC_USERS", topicDefaults.Users),
			Orders:        getEnv("TOPIC_ORDERS", topicDefaults.Orders),
			Notifications: getEnv("TOPIC_NOTIFICATIONS", topicDefaults.Notifications),
			Events:        getEnv("TOPIC_EVENTS", topicDefaults.Events),
			DeadLetter:    getEnvAllowEmpty("TOPIC_DEADLETTER", topicDefaults.DeadLetter),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", retryDefaults.MaxAttempts),
			Backoff:     getEnvDuration("RETRY_BACKOFF", retryDefaults.BaseDelay),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if !lo.Contains([]string{"mysql", "postgres", "sqlite3", DriverMemory}, c.Database.Driver) {
		return fmt.Errorf("DB_DRIVER must be mysql, postgres, sqlite3 or memory, got %q", c.Database.Driver)
	}
	if (c.Database.Driver == "mysql" || c.Database.Driver == "postgres") && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD environment variable is required for %s", c.Database.Driver)
	}
	if c.Broker.Kind != BrokerKafka && c.Broker.Kind != BrokerMemory {
		return fmt.Errorf("BROKER must be kafka or memory, got %q", c.Broker.Kind)
	}
	if c.Broker.Kind == BrokerKafka {
		if err := c.KafkaConfig().Validate(); err != nil {
			return fmt.Errorf("invalid kafka configuration: %w", err)
		}
	}
	if err := c.Topics.Validate(); err != nil {
		return fmt.Errorf("invalid topics: %w", err)
	}
	if err := c.RetryStrategy().Validate(); err != nil {
		return fmt.Errorf("invalid retry configuration: %w", err)
	}
	return nil
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}

// KafkaConfig converts the broker settings for the kafka adapter.
func (c *Config) KafkaConfig() kafka.Config {
	return kafka.Config{
		Brokers:           c.Broker.Brokers,
		ClientID:          c.Broker.ClientID,
		GroupID:           c.Broker.GroupID,
		Version:           c.Broker.Version,
		OffsetReset:       c.Broker.OffsetReset,
		Partitions:        int32(c.Broker.Partitions),
		ReplicationFactor: int16(c.Broker.ReplicationFactor),
		SessionTimeout:    kafka.DefaultConfig().SessionTimeout,
		SASLUsername:      c.Broker.SASLUsername,
		SASLPassword:      c.Broker.SASLPassword,
		TLSEnabled:        c.Broker.TLSEnabled,
	}
}

// RetryStrategy returns the fixed-backoff strategy configured for consumers.
func (c *Config) RetryStrategy() retry.Strategy {
	return retry.FixedStrategy(c.Retry.MaxAttempts, c.Retry.Backoff)
}

// getEnv retrieves environment variable or returns default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty distinguishes an unset variable from one set to "".
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as boolean or returns default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1500ms") or whole milliseconds ("1500").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := lo.Map(strings.Split(value, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}
