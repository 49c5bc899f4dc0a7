package streamsink

import (
	"fmt"

	"github.com/coregx/streamsink/retry"
)

// Option is a function that configures a Dispatcher.
//
// Example:
//
//	dispatcher, err := streamsink.NewDispatcher(
//	    streamsink.WithProducer(producer),
//	    streamsink.WithLogger(logger),
//	    streamsink.WithRetryStrategy(retry.FixedStrategy(5, 2*time.Second)), // optional
//	)
type Option func(*Dispatcher) error

// WithProducer sets the producer used to publish dead-letter records.
//
// This is a required option for NewDispatcher.
func WithProducer(producer Producer) Option {
	return func(d *Dispatcher) error {
		if producer == nil {
			return fmt.Errorf("producer cannot be nil")
		}
		d.producer = producer
		return nil
	}
}

// WithLogger sets the logger instance for the dispatcher.
// Logger is required and must not be nil.
//
// Use NoopLogger for silent operation.
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		d.logger = logger
		return nil
	}
}

// WithRetryStrategy sets a custom retry strategy.
// This is an optional configuration - if not provided, retry.DefaultStrategy()
// (3 attempts, fixed 1s backoff) is used.
func WithRetryStrategy(strategy retry.Strategy) Option {
	return func(d *Dispatcher) error {
		if err := strategy.Validate(); err != nil {
			return err
		}
		d.retryStrategy = strategy
		return nil
	}
}

// WithDeadLetterStream routes every exhausted message to one shared stream.
// With an empty name (the default) each stream gets its own "<stream>-dlq".
func WithDeadLetterStream(stream string) Option {
	return func(d *Dispatcher) error {
		d.deadLetterStream = stream
		return nil
	}
}

// WithNotifications sets an optional notification service.
// If not provided, NoOpNotificationService is used.
//
// Use MultiNotificationService to combine logging and metrics.
func WithNotifications(service NotificationService) Option {
	return func(d *Dispatcher) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		d.notificationService = service
		return nil
	}
}
