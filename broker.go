package streamsink

import (
	"context"

	"github.com/coregx/streamsink/model"
)

// AnyPartition lets the producer pick the partition from the record key.
const AnyPartition int32 = -1

// ProducerRecord is a single record handed to a Producer.
type ProducerRecord struct {
	Stream    string
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int32 // Partition hint, AnyPartition for key-based placement
}

// Producer writes records to the broker. Implementations must be safe for
// concurrent use: every partition worker shares one producer.
type Producer interface {
	// Produce sends the record and blocks until the broker acknowledged it.
	// It returns the partition and offset the record was written to.
	Produce(ctx context.Context, rec ProducerRecord) (partition int32, offset int64, err error)

	// Close flushes and releases the producer.
	Close() error
}

// DeliveryFunc processes one delivered record. Returning nil commits the
// record's offset; returning an error leaves it uncommitted so the broker
// delivers it again after a restart or rebalance.
type DeliveryFunc func(ctx context.Context, env *model.Envelope) error

// StreamSource delivers records from a set of streams.
//
// Records of one partition are delivered sequentially, in offset order; the
// next record is not delivered before fn returned for the previous one.
// Different partitions are delivered concurrently.
type StreamSource interface {
	// Consume blocks until ctx is canceled or the source fails.
	Consume(ctx context.Context, streams []string, fn DeliveryFunc) error

	// Close releases the source. Offsets marked before Close are committed.
	Close() error
}

// Handler processes one message. A returned error (or a panic) counts as a
// failed attempt and is subject to the retry strategy.
type Handler interface {
	Handle(ctx context.Context, env *model.Envelope) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env *model.Envelope) error

// Handle calls f(ctx, env).
func (f HandlerFunc) Handle(ctx context.Context, env *model.Envelope) error {
	return f(ctx, env)
}
