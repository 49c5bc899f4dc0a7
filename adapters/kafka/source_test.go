package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx context.Context

	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MemberID() string { return "member-1" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) Claims() map[string][]int32 { return map[string][]int32{"users-topic": {0}} }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newClaim(msgs ...*sarama.ConsumerMessage) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

func TestGroupHandler_ConsumeClaim_MarksSuccessfulMessages(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var got []*model.Envelope
	h := &groupHandler{
		logger: &streamsink.NoopLogger{},
		fn: func(_ context.Context, env *model.Envelope) error {
			got = append(got, env)
			return nil
		},
	}
	session := &fakeSession{ctx: context.Background()}
	claim := newClaim(
		&sarama.ConsumerMessage{
			Topic: "users-topic", Partition: 0, Offset: 7, Key: []byte("u1"), Value: []byte(`{"id":"u1"}`),
			Timestamp: ts,
			Headers:   []*sarama.RecordHeader{{Key: []byte("trace"), Value: []byte("abc")}, nil},
		},
		&sarama.ConsumerMessage{Topic: "users-topic", Partition: 0, Offset: 8, Value: []byte(`{"id":"u2"}`)},
	)

	require.NoError(t, h.ConsumeClaim(session, claim))

	assert.Equal(t, []int64{7, 8}, session.marked)
	require.Len(t, got, 2)
	assert.Equal(t, "users-topic", got[0].Stream)
	assert.Equal(t, "u1", got[0].Key)
	assert.Equal(t, int64(7), got[0].Offset)
	assert.Equal(t, `{"id":"u1"}`, string(got[0].Payload))
	assert.Equal(t, "abc", got[0].Header("trace"))
	assert.Equal(t, ts, got[0].Timestamp)
	assert.Equal(t, "", got[1].Key)
}

func TestGroupHandler_ConsumeClaim_StopsOnDeliveryError(t *testing.T) {
	calls := 0
	h := &groupHandler{
		logger: &streamsink.NoopLogger{},
		fn: func(_ context.Context, env *model.Envelope) error {
			calls++
			if env.Offset == 1 {
				return context.Canceled
			}
			return nil
		},
	}
	session := &fakeSession{ctx: context.Background()}
	claim := newClaim(
		&sarama.ConsumerMessage{Topic: "t", Offset: 0},
		&sarama.ConsumerMessage{Topic: "t", Offset: 1},
		&sarama.ConsumerMessage{Topic: "t", Offset: 2},
	)

	require.NoError(t, h.ConsumeClaim(session, claim))

	assert.Equal(t, 2, calls)
	assert.Equal(t, []int64{0}, session.marked)
}

func TestGroupHandler_ConsumeClaim_ReturnsWhenSessionEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &groupHandler{
		logger: &streamsink.NoopLogger{},
		fn:     func(context.Context, *model.Envelope) error { return nil },
	}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}

	assert.NoError(t, h.ConsumeClaim(&fakeSession{ctx: ctx}, claim))
}

func TestGroupHandler_SetupCleanup(t *testing.T) {
	h := &groupHandler{logger: &streamsink.NoopLogger{}}
	session := &fakeSession{ctx: context.Background()}

	assert.NoError(t, h.Setup(session))
	assert.NoError(t, h.Cleanup(session))
}

type fakeGroup struct {
	sarama.ConsumerGroup
	errs     chan error
	sessions int
	results  []error
	topics   []string
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Consume(_ context.Context, topics []string, _ sarama.ConsumerGroupHandler) error {
	g.topics = topics
	res := g.results[g.sessions]
	g.sessions++
	return res
}

func (g *fakeGroup) Close() error {
	close(g.errs)
	return nil
}

func TestSource_Consume_RejoinsUntilGroupClosed(t *testing.T) {
	group := &fakeGroup{
		errs:    make(chan error, 1),
		results: []error{nil, nil, sarama.ErrClosedConsumerGroup},
	}
	group.errs <- errors.New("broker hiccup")
	src := NewSourceFromGroup(group, &streamsink.NoopLogger{})

	err := src.Consume(context.Background(), []string{"users-topic", "orders-topic"}, func(context.Context, *model.Envelope) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, 3, group.sessions)
	assert.Equal(t, []string{"users-topic", "orders-topic"}, group.topics)
	require.NoError(t, src.Close())
}

func TestSource_Consume_ReturnsSessionError(t *testing.T) {
	group := &fakeGroup{
		errs:    make(chan error),
		results: []error{sarama.ErrOutOfBrokers},
	}
	src := NewSourceFromGroup(group, &streamsink.NoopLogger{})

	err := src.Consume(context.Background(), []string{"t"}, func(context.Context, *model.Envelope) error { return nil })

	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, src.Close())
}

func TestSource_Consume_StopsOnCanceledContext(t *testing.T) {
	group := &fakeGroup{
		errs:    make(chan error),
		results: []error{nil},
	}
	src := NewSourceFromGroup(group, &streamsink.NoopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := src.Consume(ctx, []string{"t"}, func(context.Context, *model.Envelope) error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, 1, group.sessions)
	require.NoError(t, src.Close())
}
