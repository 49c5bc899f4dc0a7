package kafka

import (
	"github.com/IBM/sarama"
)

// partitionHint travels in ProducerMessage.Metadata; sarama never sends it to the broker.
type partitionHint int32

// hintPartitioner honours a partitionHint and falls back to key hashing.
type hintPartitioner struct {
	fallback sarama.Partitioner
}

// NewHintPartitioner is a sarama.PartitionerConstructor. A message whose
// Metadata carries a non-negative hint goes to hint % numPartitions, so a
// dead-letter record lands on the same partition number as its source when
// the topics are equally sized. Other messages are placed by key hash.
func NewHintPartitioner(topic string) sarama.Partitioner {
	return &hintPartitioner{fallback: sarama.NewHashPartitioner(topic)}
}

func (p *hintPartitioner) Partition(msg *sarama.ProducerMessage, numPartitions int32) (int32, error) {
	if hint, ok := msg.Metadata.(partitionHint); ok && hint >= 0 && numPartitions > 0 {
		return int32(hint) % numPartitions, nil
	}
	return p.fallback.Partition(msg, numPartitions)
}

func (p *hintPartitioner) RequiresConsistency() bool {
	return true
}
