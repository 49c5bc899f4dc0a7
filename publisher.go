package streamsink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coregx/streamsink/model"
)

// Publisher validates domain messages, serializes them as JSON and hands
// them to the broker keyed by message id.
type Publisher struct {
	producer Producer
	topics   Topics
	logger   Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// NewPublisher creates a new Publisher with the provided options.
//
// Required options:
//   - WithPublisherProducer: broker producer
//   - WithPublisherLogger: logger instance
//
// Optional options:
//   - WithPublisherTopics: topic names (default: DefaultTopics())
//
// Example:
//
//	publisher, err := streamsink.NewPublisher(
//	    streamsink.WithPublisherProducer(producer),
//	    streamsink.WithPublisherLogger(logger),
//	)
func NewPublisher(opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{topics: DefaultTopics()}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	if p.producer == nil {
		return nil, NewError(ErrCodeConfiguration, "Producer is required (use WithPublisherProducer)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithPublisherLogger)")
	}

	return p, nil
}

// WithPublisherProducer sets the broker producer.
func WithPublisherProducer(producer Producer) PublisherOption {
	return func(p *Publisher) error {
		if producer == nil {
			return fmt.Errorf("producer cannot be nil")
		}
		p.producer = producer
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithPublisherTopics overrides the topic names.
func WithPublisherTopics(topics Topics) PublisherOption {
	return func(p *Publisher) error {
		if err := topics.Validate(); err != nil {
			return err
		}
		p.topics = topics
		return nil
	}
}

// Topics returns the topic names the publisher writes to.
func (p *Publisher) Topics() Topics {
	return p.topics
}

// PublishRequest represents a request to publish a raw payload.
type PublishRequest struct {
	Stream  string            // Target stream
	Key     string            // Message key, the domain id
	Payload []byte            // Serialized message
	Headers map[string]string // Optional record headers
}

// PublishResult represents the result of a publish operation.
type PublishResult struct {
	Stream    string
	Key       string
	Partition int32
	Offset    int64
}

// Publish sends a raw payload. Broker errors are returned as PUBLISH_FAILURE.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if req.Stream == "" {
		return nil, NewError(ErrCodeValidation, "stream is required")
	}

	partition, offset, err := p.producer.Produce(ctx, ProducerRecord{
		Stream:    req.Stream,
		Key:       req.Key,
		Value:     req.Payload,
		Headers:   req.Headers,
		Partition: AnyPartition,
	})
	if err != nil {
		p.logger.Errorf("Failed to publish key=%s to %s: %v", req.Key, req.Stream, err)
		return nil, NewErrorWithCause(ErrCodePublish, fmt.Sprintf("failed to publish to %s", req.Stream), err)
	}

	p.logger.Debugf("Published key=%s to %s/%d@%d", req.Key, req.Stream, partition, offset)

	return &PublishResult{
		Stream:    req.Stream,
		Key:       req.Key,
		Partition: partition,
		Offset:    offset,
	}, nil
}

// PublishUser publishes a user message to the users topic.
func (p *Publisher) PublishUser(ctx context.Context, user model.User) (*PublishResult, error) {
	return p.publishMessage(ctx, p.topics.Users, user.ID, user)
}

// PublishOrder publishes an order message to the orders topic.
func (p *Publisher) PublishOrder(ctx context.Context, order model.Order) (*PublishResult, error) {
	return p.publishMessage(ctx, p.topics.Orders, order.ID, order)
}

// PublishNotification publishes a notification message to the notifications topic.
func (p *Publisher) PublishNotification(ctx context.Context, notification model.Notification) (*PublishResult, error) {
	return p.publishMessage(ctx, p.topics.Notifications, notification.ID, notification)
}

// PublishEvent publishes a generic event to the events topic.
func (p *Publisher) PublishEvent(ctx context.Context, event model.GenericEvent) (*PublishResult, error) {
	return p.publishMessage(ctx, p.topics.Events, event.ID, event)
}

type validatable interface {
	Validate() error
}

func (p *Publisher) publishMessage(ctx context.Context, stream, key string, msg validatable) (*PublishResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid message", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeSerialization, "failed to encode message", err)
	}

	return p.Publish(ctx, PublishRequest{Stream: stream, Key: key, Payload: payload})
}
