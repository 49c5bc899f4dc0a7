package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "streamsink.db", cfg.Database.GetDSN())
	assert.Equal(t, BrokerKafka, cfg.Broker.Kind)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Broker.Brokers)
	assert.Equal(t, "users-topic", cfg.Topics.Users)
	assert.Equal(t, "deadletter-topic", cfg.Topics.DeadLetter)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.Backoff)

	s := cfg.RetryStrategy()
	assert.True(t, s.IsFixed())
	assert.Equal(t, 3, s.MaxAttempts)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("BROKER", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("KAFKA_PARTITIONS", "6")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RETRY_BACKOFF", "250ms")
	t.Setenv("TOPIC_DEADLETTER", "")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_PORT", "5432")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BrokerMemory, cfg.Broker.Kind)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Brokers)
	assert.Equal(t, int32(6), cfg.KafkaConfig().Partitions)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Backoff)
	assert.Empty(t, cfg.Topics.DeadLetter)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=localhost port=5432 user=streamsink password=secret dbname=streamsink.db sslmode=disable", cfg.Database.GetDSN())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}},
		{"mysql without password", map[string]string{"DB_DRIVER": "mysql"}},
		{"unknown broker", map[string]string{"BROKER": "rabbit"}},
		{"zero attempts", map[string]string{"RETRY_MAX_ATTEMPTS": "0"}},
		{"duplicate topics", map[string]string{"TOPIC_ORDERS": "users-topic"}},
		{"bad kafka version", map[string]string{"KAFKA_VERSION": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_GetDSN_MySQL(t *testing.T) {
	c := DatabaseConfig{Driver: "mysql", User: "u", Password: "p", Host: "db", Port: 3306, Database: "app"}
	assert.Equal(t, "u:p@tcp(db:3306)/app?parseTime=true&multiStatements=true", c.GetDSN())
	assert.Empty(t, (&DatabaseConfig{Driver: DriverMemory}).GetDSN())
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("D1", "1500")
	t.Setenv("D2", "nonsense")
	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("D1", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("D2", time.Second))
}
