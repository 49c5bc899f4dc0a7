package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"github.com/coregx/streamsink"
	"github.com/coregx/streamsink/model"
)

// Source implements streamsink.StreamSource on a sarama consumer group.
type Source struct {
	group  sarama.ConsumerGroup
	logger streamsink.Logger
	errWG  sync.WaitGroup
}

// NewSource joins the consumer group configured in cfg.
func NewSource(cfg Config, logger streamsink.Logger) (*Source, error) {
	sc, err := cfg.SaramaConfig()
	if err != nil {
		return nil, err
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return NewSourceFromGroup(group, logger), nil
}

// NewSourceFromGroup wraps an existing consumer group.
func NewSourceFromGroup(group sarama.ConsumerGroup, logger streamsink.Logger) *Source {
	s := &Source{group: group, logger: logger}

	// Monitor consumer group errors
	s.errWG.Add(1)
	go func() {
		defer s.errWG.Done()
		for err := range group.Errors() {
			s.logger.Errorf("Consumer group error: %v", err)
		}
	}()

	return s
}

// Consume joins the group for streams and serves claims until ctx is
// canceled. A rebalance ends the current session and a new one is joined.
func (s *Source) Consume(ctx context.Context, streams []string, fn streamsink.DeliveryFunc) error {
	handler := &groupHandler{fn: fn, logger: s.logger}

	for {
		if err := s.group.Consume(ctx, streams, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consumer group session failed: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Debugf("Consumer group session ended, rejoining for %v", streams)
	}
}

// Close leaves the group and commits marked offsets.
func (s *Source) Close() error {
	err := s.group.Close()
	s.errWG.Wait()
	return err
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	fn     streamsink.DeliveryFunc
	logger streamsink.Logger
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.logger.Infof("Partitions assigned: member=%s, generation=%d, claims=%v",
		session.MemberID(), session.GenerationID(), session.Claims())
	return nil
}

func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.logger.Infof("Partitions released: member=%s, generation=%d", session.MemberID(), session.GenerationID())
	return nil
}

// ConsumeClaim processes one partition sequentially. A record whose delivery
// failed is not marked and ends the claim, so neither it nor any later
// record of the partition is committed in this session.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.fn(ctx, envelopeFromMessage(msg)); err != nil {
				h.logger.Infof("Leaving %s/%d@%d uncommitted: %v", msg.Topic, msg.Partition, msg.Offset, err)
				return nil
			}
			session.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

func envelopeFromMessage(msg *sarama.ConsumerMessage) *model.Envelope {
	env := model.NewEnvelope(msg.Topic, string(msg.Key), msg.Partition, msg.Offset, msg.Value)
	env.Timestamp = msg.Timestamp
	for _, header := range msg.Headers {
		if header == nil {
			continue
		}
		env.SetHeader(string(header.Key), string(header.Value))
	}
	return env
}
