package streamsink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/coregx/streamsink/model"
)

// Consumer routes every delivered record to the handler registered for its
// stream, through the Dispatcher's retry and dead-letter logic.
//
// Thread safety: Run may be called once at a time. Handlers must be safe for
// concurrent use across partitions.
type Consumer struct {
	source     StreamSource
	dispatcher *Dispatcher
	handlers   map[string]Handler
	logger     Logger

	mu      sync.Mutex
	running bool
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer) error

// NewConsumer creates a new Consumer with the provided options.
//
// Required options:
//   - WithConsumerSource: the stream source
//   - WithConsumerDispatcher: retry/dead-letter dispatcher
//   - WithConsumerLogger: logger instance
//   - WithHandler: at least one stream handler
//
// Example:
//
//	consumer, err := streamsink.NewConsumer(
//	    streamsink.WithConsumerSource(source),
//	    streamsink.WithConsumerDispatcher(dispatcher),
//	    streamsink.WithConsumerLogger(logger),
//	    streamsink.WithHandler("users-topic", streamsink.NewUserSink(userRepo, logger)),
//	)
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	c := &Consumer{handlers: map[string]Handler{}}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply consumer option", err)
		}
	}

	if c.source == nil {
		return nil, NewError(ErrCodeConfiguration, "StreamSource is required (use WithConsumerSource)")
	}
	if c.dispatcher == nil {
		return nil, NewError(ErrCodeConfiguration, "Dispatcher is required (use WithConsumerDispatcher)")
	}
	if c.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithConsumerLogger)")
	}
	if len(c.handlers) == 0 {
		return nil, NewError(ErrCodeConfiguration, "at least one handler is required (use WithHandler)")
	}

	return c, nil
}

// WithConsumerSource sets the stream source.
func WithConsumerSource(source StreamSource) ConsumerOption {
	return func(c *Consumer) error {
		if source == nil {
			return fmt.Errorf("source cannot be nil")
		}
		c.source = source
		return nil
	}
}

// WithConsumerDispatcher sets the dispatcher.
func WithConsumerDispatcher(dispatcher *Dispatcher) ConsumerOption {
	return func(c *Consumer) error {
		if dispatcher == nil {
			return fmt.Errorf("dispatcher cannot be nil")
		}
		c.dispatcher = dispatcher
		return nil
	}
}

// WithConsumerLogger sets the logger instance.
func WithConsumerLogger(logger Logger) ConsumerOption {
	return func(c *Consumer) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithHandler registers the handler for one stream.
func WithHandler(stream string, h Handler) ConsumerOption {
	return func(c *Consumer) error {
		if stream == "" {
			return fmt.Errorf("stream cannot be empty")
		}
		if h == nil {
			return fmt.Errorf("handler for %s cannot be nil", stream)
		}
		if _, ok := c.handlers[stream]; ok {
			return fmt.Errorf("handler for %s already registered", stream)
		}
		c.handlers[stream] = h
		return nil
	}
}

// Streams returns the subscribed streams in a stable order.
func (c *Consumer) Streams() []string {
	streams := lo.Keys(c.handlers)
	sort.Strings(streams)
	return streams
}

// Run consumes until ctx is canceled. An attempt in progress when ctx is
// canceled finishes; the current message is then left uncommitted unless
// it already reached a final outcome.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return NewError(ErrCodeConfiguration, "consumer is already running")
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	streams := c.Streams()
	strategy := c.dispatcher.RetryStrategy()
	c.logger.Infof("Consumer started: streams=%v, max_attempts=%d", streams, strategy.MaxAttempts)
	c.logger.Debugf("%s", strategy.GetRetrySchedule())

	err := c.source.Consume(ctx, streams, c.deliver)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream source stopped: %w", err)
	}

	c.logger.Info("Consumer stopped")
	return nil
}

func (c *Consumer) deliver(ctx context.Context, env *model.Envelope) error {
	h, ok := c.handlers[env.Stream]
	if !ok {
		c.logger.Warnf("No handler for stream %s, skipping %d@%d", env.Stream, env.Partition, env.Offset)
		return nil
	}

	outcome, err := c.dispatcher.Dispatch(ctx, env, h)
	if !outcome.ShouldCommit() {
		return err
	}
	return nil
}
