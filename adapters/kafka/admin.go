package kafka

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/coregx/streamsink"
)

// topicAdmin is the subset of sarama.ClusterAdmin used for provisioning.
type topicAdmin interface {
	ListTopics() (map[string]sarama.TopicDetail, error)
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
}

// EnsureTopics creates every missing topic with the configured partition
// count and replication factor. It returns the names of the created topics.
func EnsureTopics(cfg Config, topics []string, logger streamsink.Logger) ([]string, error) {
	sc, err := cfg.SaramaConfig()
	if err != nil {
		return nil, err
	}

	admin, err := sarama.NewClusterAdmin(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster admin: %w", err)
	}
	defer func() {
		if cerr := admin.Close(); cerr != nil {
			logger.Warnf("Failed to close cluster admin: %v", cerr)
		}
	}()

	return ensureTopics(admin, topics, cfg.Partitions, cfg.ReplicationFactor, logger)
}

func ensureTopics(admin topicAdmin, topics []string, partitions int32, replication int16, logger streamsink.Logger) ([]string, error) {
	existing, err := admin.ListTopics()
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	var created []string
	for _, topic := range topics {
		if topic == "" {
			continue
		}
		if detail, ok := existing[topic]; ok {
			logger.Debugf("Topic %s exists with %d partitions", topic, detail.NumPartitions)
			continue
		}

		err := admin.CreateTopic(topic, &sarama.TopicDetail{
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		}, false)
		if err != nil && !isTopicExists(err) {
			return created, fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		if err == nil {
			logger.Infof("Created topic %s (partitions=%d, replication=%d)", topic, partitions, replication)
			created = append(created, topic)
		}
	}
	return created, nil
}

func isTopicExists(err error) bool {
	if errors.Is(err, sarama.ErrTopicAlreadyExists) {
		return true
	}
	var topicErr *sarama.TopicError
	return errors.As(err, &topicErr) && topicErr.Err == sarama.ErrTopicAlreadyExists
}
