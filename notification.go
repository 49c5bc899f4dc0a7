package streamsink

import (
	"context"
	"errors"
	"time"

	"github.com/coregx/streamsink/model"
)

// NotificationService receives callbacks from the dispatcher about retries,
// dead letters and final outcomes.
//
// Implementations might log, export metrics or page an operator. Returned
// errors are logged by the dispatcher and never change the outcome.
type NotificationService interface {
	// NotifyRetry is called after a failed attempt that will be retried after delay.
	NotifyRetry(ctx context.Context, env *model.Envelope, cause error, delay time.Duration) error

	// NotifyDeadLettered is called after a record was published to the dead-letter stream.
	NotifyDeadLettered(ctx context.Context, stream string, rec model.DeadLetterRecord) error

	// NotifyDeadLetterFailed is called when an exhausted message could not be
	// dead-lettered and was committed anyway.
	NotifyDeadLetterFailed(ctx context.Context, env *model.Envelope, cause error) error

	// NotifyOutcome is called once per delivery with the final outcome.
	NotifyOutcome(ctx context.Context, env *model.Envelope, outcome Outcome, elapsed time.Duration) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
type NoOpNotificationService struct{}

// NotifyRetry does nothing.
func (n *NoOpNotificationService) NotifyRetry(_ context.Context, _ *model.Envelope, _ error, _ time.Duration) error {
	return nil
}

// NotifyDeadLettered does nothing.
func (n *NoOpNotificationService) NotifyDeadLettered(_ context.Context, _ string, _ model.DeadLetterRecord) error {
	return nil
}

// NotifyDeadLetterFailed does nothing.
func (n *NoOpNotificationService) NotifyDeadLetterFailed(_ context.Context, _ *model.Envelope, _ error) error {
	return nil
}

// NotifyOutcome does nothing.
func (n *NoOpNotificationService) NotifyOutcome(_ context.Context, _ *model.Envelope, _ Outcome, _ time.Duration) error {
	return nil
}

// LoggingNotificationService logs every notification.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyRetry logs the scheduled retry.
func (n *LoggingNotificationService) NotifyRetry(_ context.Context, env *model.Envelope, cause error, delay time.Duration) error {
	n.logger.Warnf("Retry scheduled: stream=%s, partition=%d, offset=%d, key=%s, attempt=%d, delay=%v, error=%v",
		env.Stream, env.Partition, env.Offset, env.Key, env.AttemptCount, delay, cause)
	return nil
}

// NotifyDeadLettered logs the dead-letter publish.
func (n *LoggingNotificationService) NotifyDeadLettered(_ context.Context, stream string, rec model.DeadLetterRecord) error {
	n.logger.Warnf("Message dead-lettered: stream=%s, dead_letter_stream=%s, key=%s, attempts=%d, reason=%s",
		rec.OriginalStream, stream, rec.Key, rec.AttemptCount, rec.FailureReason)
	return nil
}

// NotifyDeadLetterFailed logs the lost message.
func (n *LoggingNotificationService) NotifyDeadLetterFailed(_ context.Context, env *model.Envelope, cause error) error {
	n.logger.Errorf("Dead-letter publish failed, message committed: stream=%s, partition=%d, offset=%d, key=%s, error=%v",
		env.Stream, env.Partition, env.Offset, env.Key, cause)
	return nil
}

// NotifyOutcome logs the final outcome at debug level.
func (n *LoggingNotificationService) NotifyOutcome(_ context.Context, env *model.Envelope, outcome Outcome, elapsed time.Duration) error {
	n.logger.Debugf("Delivery finished: stream=%s, partition=%d, offset=%d, outcome=%s, attempts=%d, elapsed=%v",
		env.Stream, env.Partition, env.Offset, outcome, env.AttemptCount, elapsed)
	return nil
}

// MultiNotificationService fans every notification out to several services.
type MultiNotificationService []NotificationService

// NotifyRetry calls every service and joins their errors.
func (m MultiNotificationService) NotifyRetry(ctx context.Context, env *model.Envelope, cause error, delay time.Duration) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifyRetry(ctx, env, cause, delay))
	}
	return errors.Join(errs...)
}

// NotifyDeadLettered calls every service and joins their errors.
func (m MultiNotificationService) NotifyDeadLettered(ctx context.Context, stream string, rec model.DeadLetterRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifyDeadLettered(ctx, stream, rec))
	}
	return errors.Join(errs...)
}

// NotifyDeadLetterFailed calls every service and joins their errors.
func (m MultiNotificationService) NotifyDeadLetterFailed(ctx context.Context, env *model.Envelope, cause error) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifyDeadLetterFailed(ctx, env, cause))
	}
	return errors.Join(errs...)
}

// NotifyOutcome calls every service and joins their errors.
func (m MultiNotificationService) NotifyOutcome(ctx context.Context, env *model.Envelope, outcome Outcome, elapsed time.Duration) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.NotifyOutcome(ctx, env, outcome, elapsed))
	}
	return errors.Join(errs...)
}
