package streamsink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coregx/streamsink/model"
	"github.com/coregx/streamsink/retry"
)

// Headers added to every dead-letter record.
const (
	HeaderOriginalStream    = "dlt-original-stream"
	HeaderOriginalPartition = "dlt-original-partition"
	HeaderOriginalOffset    = "dlt-original-offset"
	HeaderFailureReason     = "dlt-exception-message"
	HeaderAttempts          = "dlt-attempts"
)

// Outcome is the final state of one delivery.
type Outcome int

const (
	// OutcomeCommitted means the handler succeeded.
	OutcomeCommitted Outcome = iota

	// OutcomeDeadLettered means the retry budget was spent and a
	// DeadLetterRecord was published.
	OutcomeDeadLettered

	// OutcomeDeadLetterFailed means the budget was spent but the record could
	// not be dead-lettered. The message is committed regardless.
	OutcomeDeadLetterFailed

	// OutcomeInterrupted means shutdown began during a backoff wait. The
	// message is not committed and will be delivered again.
	OutcomeInterrupted
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeDeadLettered:
		return "dead_lettered"
	case OutcomeDeadLetterFailed:
		return "dead_letter_failed"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// ShouldCommit reports whether the source may commit the message offset.
func (o Outcome) ShouldCommit() bool {
	return o != OutcomeInterrupted
}

// Dispatcher runs a handler against one message with retries and routes
// exhausted messages to the dead-letter stream.
//
// For each delivery:
//  1. Invoke the handler (attempt 1)
//  2. On failure, wait the strategy delay and invoke again
//  3. After MaxAttempts failures, publish a DeadLetterRecord keyed like the
//     original, with the original partition as hint
//  4. Report an Outcome telling the source whether to commit
//
// The handler runs with a context that is never canceled, so an attempt in
// progress always completes. Cancellation of the dispatch context only cuts
// backoff waits short.
//
// Thread safety: Safe for concurrent use. Retry state lives on the envelope,
// one envelope per partition worker.
type Dispatcher struct {
	producer            Producer
	retryStrategy       retry.Strategy
	deadLetterStream    string
	logger              Logger
	notificationService NotificationService
}

// NewDispatcher creates a dispatcher with the provided options.
//
// Required options:
//   - WithProducer: producer used for dead-letter records
//   - WithLogger: logger instance
//
// Optional options:
//   - WithRetryStrategy: custom retry strategy (default: retry.DefaultStrategy())
//   - WithDeadLetterStream: shared dead-letter stream (default: "<stream>-dlq")
//   - WithNotifications: notification hooks (default: none)
//
// Example:
//
//	dispatcher, err := streamsink.NewDispatcher(
//	    streamsink.WithProducer(producer),
//	    streamsink.WithLogger(logger),
//	    streamsink.WithRetryStrategy(retry.FixedStrategy(3, time.Second)),
//	    streamsink.WithDeadLetterStream("deadletter-topic"),
//	)
func NewDispatcher(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		retryStrategy:       retry.DefaultStrategy(),
		notificationService: &NoOpNotificationService{},
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	if d.producer == nil {
		return nil, NewError(ErrCodeConfiguration, "Producer is required (use WithProducer)")
	}
	if d.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}
	if err := d.retryStrategy.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "invalid retry strategy", err)
	}

	return d, nil
}

// RetryStrategy returns the strategy in use.
func (d *Dispatcher) RetryStrategy() retry.Strategy {
	return d.retryStrategy
}

// DeadLetterStreamFor returns the dead-letter stream for records from source.
func (d *Dispatcher) DeadLetterStreamFor(source string) string {
	return model.DeadLetterStream(d.deadLetterStream, source)
}

// IsDeadLetterStream reports whether stream is itself a dead-letter stream.
func (d *Dispatcher) IsDeadLetterStream(stream string) bool {
	if d.deadLetterStream != "" {
		return stream == d.deadLetterStream
	}
	return strings.HasSuffix(stream, model.DeadLetterSuffix)
}

// Dispatch delivers env to h. The returned Outcome tells the caller whether
// to commit; the error is non-nil only for OutcomeDeadLetterFailed and
// OutcomeInterrupted.
//
// A fresh delivery always starts with an attempt count of zero, so a message
// redelivered after a crash gets a full budget again.
func (d *Dispatcher) Dispatch(ctx context.Context, env *model.Envelope, h Handler) (Outcome, error) {
	start := time.Now()
	outcome, err := d.dispatch(ctx, env, h)

	if nerr := d.notificationService.NotifyOutcome(ctx, env, outcome, time.Since(start)); nerr != nil {
		d.logger.Debugf("Outcome notification failed: %v", nerr)
	}

	return outcome, err
}

func (d *Dispatcher) dispatch(ctx context.Context, env *model.Envelope, h Handler) (Outcome, error) {
	env.AttemptCount = 0
	handlerCtx := context.WithoutCancel(ctx)

	var lastErr error
	for {
		attempt := env.RecordAttempt()

		lastErr = d.invoke(handlerCtx, env, h)
		if lastErr == nil {
			if attempt > 1 {
				d.logger.Infof("Message %s/%d@%d processed on attempt %d",
					env.Stream, env.Partition, env.Offset, attempt)
			} else {
				d.logger.Debugf("Message %s/%d@%d processed", env.Stream, env.Partition, env.Offset)
			}
			return OutcomeCommitted, nil
		}

		if d.retryStrategy.ShouldDeadLetter(attempt) {
			break
		}

		delay := d.retryStrategy.CalculateRetryDelay(attempt)
		d.logger.Warnf("Attempt %d/%d failed for %s/%d@%d (key=%s), retrying in %v: %v",
			attempt, d.retryStrategy.MaxAttempts, env.Stream, env.Partition, env.Offset, env.Key, delay, lastErr)

		if nerr := d.notificationService.NotifyRetry(ctx, env, lastErr, delay); nerr != nil {
			d.logger.Debugf("Retry notification failed: %v", nerr)
		}

		if err := retry.Wait(ctx, delay); err != nil {
			d.logger.Infof("Shutdown during backoff, leaving %s/%d@%d uncommitted after %d attempts",
				env.Stream, env.Partition, env.Offset, attempt)
			return OutcomeInterrupted, err
		}
	}

	return d.deadLetter(handlerCtx, env, lastErr)
}

// invoke runs the handler and turns a panic into a HANDLER_FAILURE error.
func (d *Dispatcher) invoke(ctx context.Context, env *model.Envelope, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrCodeHandlerFailure, fmt.Sprintf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, env)
}

func (d *Dispatcher) deadLetter(ctx context.Context, env *model.Envelope, cause error) (Outcome, error) {
	if d.IsDeadLetterStream(env.Stream) {
		err := NewErrorWithCause(ErrCodeHandlerFailure,
			fmt.Sprintf("message on dead-letter stream %s failed %d times", env.Stream, env.AttemptCount), cause)
		return d.deadLetterFailed(ctx, env, err)
	}

	target := d.DeadLetterStreamFor(env.Stream)
	rec := model.NewDeadLetterRecord(env, cause.Error())

	value, err := json.Marshal(rec)
	if err != nil {
		return d.deadLetterFailed(ctx, env, NewErrorWithCause(ErrCodeSerialization, "failed to encode dead-letter record", err))
	}

	headers := make(map[string]string, len(env.Headers)+5)
	for k, v := range env.Headers {
		headers[k] = v
	}
	headers[HeaderOriginalStream] = env.Stream
	headers[HeaderOriginalPartition] = strconv.FormatInt(int64(env.Partition), 10)
	headers[HeaderOriginalOffset] = strconv.FormatInt(env.Offset, 10)
	headers[HeaderFailureReason] = rec.FailureReason
	headers[HeaderAttempts] = strconv.Itoa(rec.AttemptCount)

	partition, offset, err := d.producer.Produce(ctx, ProducerRecord{
		Stream:    target,
		Key:       env.Key,
		Value:     value,
		Headers:   headers,
		Partition: env.Partition,
	})
	if err != nil {
		return d.deadLetterFailed(ctx, env, NewErrorWithCause(ErrCodePublish,
			fmt.Sprintf("failed to publish dead-letter record to %s", target), err))
	}

	d.logger.Warnf("Message %s/%d@%d (key=%s) dead-lettered to %s/%d@%d after %d attempts: %v",
		env.Stream, env.Partition, env.Offset, env.Key, target, partition, offset, env.AttemptCount, cause)

	if nerr := d.notificationService.NotifyDeadLettered(ctx, target, rec); nerr != nil {
		d.logger.Debugf("Dead-letter notification failed: %v", nerr)
	}

	return OutcomeDeadLettered, nil
}

func (d *Dispatcher) deadLetterFailed(ctx context.Context, env *model.Envelope, err error) (Outcome, error) {
	d.logger.Errorf("Dropping %s/%d@%d (key=%s) after %d attempts: %v",
		env.Stream, env.Partition, env.Offset, env.Key, env.AttemptCount, err)

	if nerr := d.notificationService.NotifyDeadLetterFailed(ctx, env, err); nerr != nil {
		d.logger.Debugf("Dead-letter failure notification failed: %v", nerr)
	}

	return OutcomeDeadLetterFailed, err
}
