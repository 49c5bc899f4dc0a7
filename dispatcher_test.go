package streamsink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/streamsink/model"
	"github.com/coregx/streamsink/retry"
)

const testBackoff = 20 * time.Millisecond

func newTestDispatcher(t *testing.T, producer Producer, opts ...Option) *Dispatcher {
	t.Helper()
	base := []Option{
		WithProducer(producer),
		WithLogger(&NoopLogger{}),
		WithRetryStrategy(retry.FixedStrategy(3, testBackoff)),
		WithDeadLetterStream("deadletter-topic"),
	}
	d, err := NewDispatcher(append(base, opts...)...)
	require.NoError(t, err)
	return d
}

func TestNewDispatcher_RequiredOptions(t *testing.T) {
	_, err := NewDispatcher(WithLogger(&NoopLogger{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Producer is required")

	_, err = NewDispatcher(WithProducer(&fakeProducer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Logger is required")

	_, err = NewDispatcher(WithProducer(nil))
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeConfiguration))

	_, err = NewDispatcher(
		WithProducer(&fakeProducer{}),
		WithLogger(&NoopLogger{}),
		WithRetryStrategy(retry.FixedStrategy(0, time.Second)),
	)
	require.Error(t, err)

	_, err = NewDispatcher(WithProducer(&fakeProducer{}), WithLogger(&NoopLogger{}), WithNotifications(nil))
	require.Error(t, err)
}

func TestNewDispatcher_Defaults(t *testing.T) {
	d, err := NewDispatcher(WithProducer(&fakeProducer{}), WithLogger(&NoopLogger{}))
	require.NoError(t, err)

	assert.Equal(t, retry.DefaultStrategy(), d.RetryStrategy())
	assert.Equal(t, "users-dlq", d.DeadLetterStreamFor("users"))
	assert.True(t, d.IsDeadLetterStream("users-dlq"))
	assert.False(t, d.IsDeadLetterStream("users"))
}

func TestDispatch_SuccessOnFirstAttempt(t *testing.T) {
	producer := &fakeProducer{}
	d := newTestDispatcher(t, producer)
	h := &scriptedHandler{}

	env := model.NewEnvelope("users", "u1", 0, 5, []byte(`{"id":"u1"}`))
	outcome, err := d.Dispatch(context.Background(), env, h)

	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, outcome)
	assert.True(t, outcome.ShouldCommit())
	assert.Equal(t, 1, h.Calls())
	assert.Equal(t, 1, env.AttemptCount)
	assert.Empty(t, producer.Records())
}

func TestDispatch_LogsEverySuccess(t *testing.T) {
	logger := &recordingLogger{}
	d := newTestDispatcher(t, &fakeProducer{}, WithLogger(logger))

	_, err := d.Dispatch(context.Background(), model.NewEnvelope("users", "u1", 0, 5, []byte(`{}`)), &scriptedHandler{})
	require.NoError(t, err)
	assert.Equal(t, []string{"DEBUG Message users/0@5 processed"}, logger.Lines("DEBUG"))

	_, err = d.Dispatch(context.Background(), model.NewEnvelope("users", "u1", 0, 6, []byte(`{}`)), &scriptedHandler{failures: 1})
	require.NoError(t, err)
	assert.Contains(t, logger.Lines("INFO"), "INFO Message users/0@6 processed on attempt 2")
}

func TestDispatch_RecoversBeforeBudgetIsSpent(t *testing.T) {
	for k := 1; k < 3; k++ {
		producer := &fakeProducer{}
		d := newTestDispatcher(t, producer)
		h := &scriptedHandler{failures: k}

		outcome, err := d.Dispatch(context.Background(), model.NewEnvelope("users", "u1", 0, 0, []byte(`{}`)), h)

		require.NoError(t, err)
		assert.Equal(t, OutcomeCommitted, outcome)
		assert.Equal(t, k+1, h.Calls(), "k=%d", k)
		assert.Empty(t, producer.Records())

		for i := 1; i < len(h.calls); i++ {
			assert.GreaterOrEqual(t, h.calls[i].Sub(h.calls[i-1]), testBackoff, "gap before attempt %d", i+1)
		}
	}
}

func TestDispatch_DeadLettersAfterBudget(t *testing.T) {
	producer := &fakeProducer{}
	notifier := &recordingNotifier{}
	d := newTestDispatcher(t, producer, WithNotifications(notifier))
	h := &scriptedHandler{failures: 100}

	env := model.NewEnvelope("users", "u1", 2, 17, []byte(`{"id":"u1"}`))
	env.SetHeader("trace", "abc")

	outcome, err := d.Dispatch(context.Background(), env, h)

	require.NoError(t, err)
	assert.Equal(t, OutcomeDeadLettered, outcome)
	assert.True(t, outcome.ShouldCommit())
	assert.Equal(t, 3, h.Calls())

	records := producer.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "deadletter-topic", rec.Stream)
	assert.Equal(t, "u1", rec.Key)
	assert.Equal(t, int32(2), rec.Partition)
	assert.Equal(t, "users", rec.Headers[HeaderOriginalStream])
	assert.Equal(t, "2", rec.Headers[HeaderOriginalPartition])
	assert.Equal(t, "17", rec.Headers[HeaderOriginalOffset])
	assert.Equal(t, "3", rec.Headers[HeaderAttempts])
	assert.Equal(t, "attempt 3 failed", rec.Headers[HeaderFailureReason])
	assert.Equal(t, "abc", rec.Headers["trace"])

	var dl model.DeadLetterRecord
	require.NoError(t, json.Unmarshal(rec.Value, &dl))
	assert.Equal(t, "users", dl.OriginalStream)
	assert.Equal(t, int32(2), dl.Partition)
	assert.Equal(t, int64(17), dl.Offset)
	assert.Equal(t, "u1", dl.Key)
	assert.JSONEq(t, `{"id":"u1"}`, string(dl.Payload))
	assert.Equal(t, 3, dl.AttemptCount)
	assert.Equal(t, "attempt 3 failed", dl.FailureReason)

	assert.Equal(t, []time.Duration{testBackoff, testBackoff}, notifier.retries)
	assert.Len(t, notifier.deadLettered, 1)
	assert.Equal(t, []Outcome{OutcomeDeadLettered}, notifier.outcomes)
}

func TestDispatch_UserScenario(t *testing.T) {
	producer := &fakeProducer{}
	d := newTestDispatcher(t, producer)
	h := HandlerFunc(func(context.Context, *model.Envelope) error {
		return errors.New("database unavailable")
	})

	outcome, err := d.Dispatch(context.Background(), model.NewEnvelope("users", "u1", 0, 0, []byte(`{"id":"u1"}`)), h)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeadLettered, outcome)

	records := producer.Records()
	require.Len(t, records, 1)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(records[0].Value, &wire))
	assert.Equal(t, "users", wire["originalStream"])
	assert.Equal(t, map[string]interface{}{"id": "u1"}, wire["payload"])
}

func TestDispatch_DerivedDeadLetterStream(t *testing.T) {
	producer := &fakeProducer{}
	d := newTestDispatcher(t, producer, WithDeadLetterStream(""))

	outcome, err := d.Dispatch(context.Background(), model.NewEnvelope("orders", "o1", 1, 0, []byte(`{}`)), &scriptedHandler{failures: 3})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeadLettered, outcome)

	records := producer.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "orders-dlq", records[0].Stream)
}

func TestDispatch_PanicCountsAsFailure(t *testing.T) {
	producer := &fakeProducer{}
	d := newTestDispatcher(t, producer)
	h := &scriptedHandler{failures: 1, panicMsg: "nil map"}

	outcome, err := d.Dispatch(context.Background(), model.NewEnvelope("users", "u1", 0, 0, nil), h)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, outcome)
	assert.Equal(t, 2, h.Calls())

	always := &scriptedHandler{failures: 10, panicMsg: "boom"}
	outcome, err = d.Dispatch(context.Background(), model.NewEnvelope("users", "u2", 0, 1, nil), always)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeadLettered, outcome)

	records := producer.Records()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Headers[HeaderFailureReason], "handler panic: boom")
}

func TestDispatch_DeadLetterPublishFailure(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	logger := &recordingLogger{}
	notifier := &recordingNotifier{}
	d := newTestDispatcher(t, producer, WithLogger(logger), WithNotifications(notifier))

	outcome, err := d.Dispatch(context.Background(), model.NewEnvelope("users", "u1", 0, 0, nil), &scriptedHandler{failures: 3})

	assert.Equal(t, OutcomeDeadLetterFailed, outcome)
	assert.True(t, outcome.ShouldCommit())
	require.Error(t, err)
	assert.True(t, IsPublishFailure(err))
	assert.NotEmpty(t, logger.Lines("ERROR"))
	assert.Len(t, notifier.failed, 1)
}

func TestDispatch_ShutdownDuringBackoff(t *testing.T) {
	producer := &fakeProducer{}
	d := newTestDispatcher(t, producer, WithRetryStrategy(retry.FixedStrategy(3, time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	h := HandlerFunc(func(hctx context.Context, _ *model.Envelope) error {
		cancel()
		// The attempt in progress keeps running with a live context.
		assert.NoError(t, hctx.Err())
		return errors.New("transient")
	})

	start := time.Now()
	outcome, err := d.Dispatch(ctx, model.NewEnvelope("users", "u1", 0, 0, nil), h)

	assert.Equal(t, OutcomeInterrupted, outcome)
	assert.False(t, outcome.ShouldCommit())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Empty(t, producer.Records())
}

func TestDispatch_RedeliveryStartsFresh(t *testing.T) {
	producer := &fakeProducer{}
	d := newTestDispatcher(t, producer)

	// A redelivered record arrives as a new envelope; even a stale counter is reset.
	env := model.NewEnvelope("users", "u1", 0, 0, nil)
	env.AttemptCount = 2
	h := &scriptedHandler{failures: 2}

	outcome, err := d.Dispatch(context.Background(), env, h)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, outcome)
	assert.Equal(t, 3, h.Calls())
	assert.Empty(t, producer.Records())
}

func TestDispatch_LoopGuardOnDeadLetterStream(t *testing.T) {
	producer := &fakeProducer{}
	d := newTestDispatcher(t, producer)

	outcome, err := d.Dispatch(context.Background(), model.NewEnvelope("deadletter-topic", "u1", 0, 0, nil), &scriptedHandler{failures: 3})

	assert.Equal(t, OutcomeDeadLetterFailed, outcome)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeHandlerFailure))
	assert.Empty(t, producer.Records())
}

func TestDispatch_SingleAttemptBudget(t *testing.T) {
	producer := &fakeProducer{}
	d := newTestDispatcher(t, producer, WithRetryStrategy(retry.FixedStrategy(1, time.Hour)))
	h := &scriptedHandler{failures: 1}

	outcome, err := d.Dispatch(context.Background(), model.NewEnvelope("users", "u1", 0, 0, nil), h)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeadLettered, outcome)
	assert.Equal(t, 1, h.Calls())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "committed", OutcomeCommitted.String())
	assert.Equal(t, "dead_lettered", OutcomeDeadLettered.String())
	assert.Equal(t, "dead_letter_failed", OutcomeDeadLetterFailed.String())
	assert.Equal(t, "interrupted", OutcomeInterrupted.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
