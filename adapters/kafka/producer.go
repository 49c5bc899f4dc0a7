package kafka

import (
	"context"
	"fmt"
	"sort"

	"github.com/IBM/sarama"

	"github.com/coregx/streamsink"
)

// Producer implements streamsink.Producer on a sarama.SyncProducer.
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer connects a synchronous producer to the cluster.
func NewProducer(cfg Config) (*Producer, error) {
	sc, err := cfg.SaramaConfig()
	if err != nil {
		return nil, err
	}

	sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return NewProducerFromSync(sp), nil
}

// NewProducerFromSync wraps an existing producer, e.g. a sarama mock.
func NewProducerFromSync(sp sarama.SyncProducer) *Producer {
	return &Producer{producer: sp}
}

// Produce sends rec and waits for the broker acknowledgement.
func (p *Producer) Produce(ctx context.Context, rec streamsink.ProducerRecord) (int32, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	msg := &sarama.ProducerMessage{
		Topic:    rec.Stream,
		Value:    sarama.ByteEncoder(rec.Value),
		Headers:  recordHeaders(rec.Headers),
		Metadata: partitionHint(rec.Partition),
	}
	if rec.Key != "" {
		msg.Key = sarama.StringEncoder(rec.Key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to send to %s: %w", rec.Stream, err)
	}
	return partition, offset, nil
}

// Close flushes and closes the underlying producer.
func (p *Producer) Close() error {
	return p.producer.Close()
}

func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]sarama.RecordHeader, 0, len(keys))
	for _, k := range keys {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(headers[k])})
	}
	return out
}
