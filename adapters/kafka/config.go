package kafka

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Offset reset strategy constants
const (
	OffsetResetNewest = "newest"
	OffsetResetOldest = "oldest"
)

// Config holds the settings shared by producer, consumer group and admin.
type Config struct {
	Brokers           []string      // Kafka broker addresses
	ClientID          string        // Client identifier
	GroupID           string        // Consumer group for all streams
	Version           string        // Kafka protocol version, e.g. "2.3.0"
	OffsetReset       string        // "oldest" or "newest" for groups without commits
	Partitions        int32         // Partitions for provisioned topics
	ReplicationFactor int16         // Replication factor for provisioned topics
	SessionTimeout    time.Duration // Consumer group session timeout
	SASLUsername      string        // SASL/PLAIN user, empty disables SASL
	SASLPassword      string        // SASL/PLAIN password
	TLSEnabled        bool          // Enable TLS (implied by SASL)
}

// DefaultConfig returns settings for a local single-broker cluster.
func DefaultConfig() Config {
	return Config{
		Brokers:           []string{"localhost:9092"},
		ClientID:          "streamsink",
		GroupID:           "streamsink-group",
		Version:           "2.3.0",
		OffsetReset:       OffsetResetOldest,
		Partitions:        3,
		ReplicationFactor: 1,
		SessionTimeout:    30 * time.Second,
	}
}

// Validate reports settings sarama would reject later with a less helpful error.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one broker is required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("group id is required")
	}
	if c.Partitions < 1 {
		return fmt.Errorf("partitions must be >= 1, got %d", c.Partitions)
	}
	if c.ReplicationFactor < 1 {
		return fmt.Errorf("replication factor must be >= 1, got %d", c.ReplicationFactor)
	}
	if c.OffsetReset != OffsetResetOldest && c.OffsetReset != OffsetResetNewest {
		return fmt.Errorf("offset reset must be %q or %q, got %q", OffsetResetOldest, OffsetResetNewest, c.OffsetReset)
	}
	if _, err := sarama.ParseKafkaVersion(c.Version); err != nil {
		return fmt.Errorf("invalid kafka version %q: %w", c.Version, err)
	}
	return nil
}

// SaramaConfig builds the sarama configuration used by every client.
func (c Config) SaramaConfig() (*sarama.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	sc := sarama.NewConfig()
	sc.ClientID = c.ClientID
	sc.Version, _ = sarama.ParseKafkaVersion(c.Version)

	// Producer: synchronous, fully acknowledged, hint-aware partitioning
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Partitioner = NewHintPartitioner

	// Consumer group
	sc.Consumer.Return.Errors = true
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	if c.SessionTimeout > 0 {
		sc.Consumer.Group.Session.Timeout = c.SessionTimeout
	}
	if c.OffsetReset == OffsetResetNewest {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	if c.TLSEnabled || c.SASLUsername != "" {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}
	if c.SASLUsername != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = c.SASLUsername
		sc.Net.SASL.Password = c.SASLPassword
		sc.Net.SASL.Handshake = true
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sarama config: %w", err)
	}
	return sc, nil
}
