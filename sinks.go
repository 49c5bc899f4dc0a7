package streamsink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coregx/streamsink/model"
)

// decodePayload unmarshals the envelope payload into v. Malformed JSON is a
// SERIALIZATION_FAILURE and goes through the normal retry path.
func decodePayload(env *model.Envelope, v interface{}) error {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return NewErrorWithCause(ErrCodeSerialization,
			fmt.Sprintf("malformed payload on %s/%d@%d", env.Stream, env.Partition, env.Offset), err)
	}
	return nil
}

func validateMessage(msg validatable) error {
	if err := msg.Validate(); err != nil {
		return NewErrorWithCause(ErrCodeValidation, "invalid message", err)
	}
	return nil
}

// UserSink stores user messages.
type UserSink struct {
	repo   UserRepository
	logger Logger
}

// NewUserSink creates a sink writing to repo.
func NewUserSink(repo UserRepository, logger Logger) *UserSink {
	return &UserSink{repo: repo, logger: logger}
}

// Handle decodes, validates and upserts one user.
func (s *UserSink) Handle(ctx context.Context, env *model.Envelope) error {
	var u model.User
	if err := decodePayload(env, &u); err != nil {
		return err
	}
	if err := validateMessage(u); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, u); err != nil {
		return err
	}
	s.logger.Debugf("Stored user %s", u.ID)
	return nil
}

// OrderSink stores order messages.
type OrderSink struct {
	repo   OrderRepository
	logger Logger
}

// NewOrderSink creates a sink writing to repo.
func NewOrderSink(repo OrderRepository, logger Logger) *OrderSink {
	return &OrderSink{repo: repo, logger: logger}
}

// Handle decodes, validates and upserts one order.
func (s *OrderSink) Handle(ctx context.Context, env *model.Envelope) error {
	var o model.Order
	if err := decodePayload(env, &o); err != nil {
		return err
	}
	if err := validateMessage(o); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, o); err != nil {
		return err
	}
	s.logger.Debugf("Stored order %s for user %s", o.ID, o.UserID)
	return nil
}

// NotificationSink stores notification messages.
type NotificationSink struct {
	repo   NotificationRepository
	logger Logger
}

// NewNotificationSink creates a sink writing to repo.
func NewNotificationSink(repo NotificationRepository, logger Logger) *NotificationSink {
	return &NotificationSink{repo: repo, logger: logger}
}

// Handle decodes, validates and upserts one notification.
func (s *NotificationSink) Handle(ctx context.Context, env *model.Envelope) error {
	var n model.Notification
	if err := decodePayload(env, &n); err != nil {
		return err
	}
	if err := validateMessage(n); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, n); err != nil {
		return err
	}
	s.logger.Debugf("Stored notification %s (%s)", n.ID, n.Level)
	return nil
}

// EventSink stores generic events with their payload re-serialized as JSON.
type EventSink struct {
	repo   EventRepository
	logger Logger
}

// NewEventSink creates a sink writing to repo.
func NewEventSink(repo EventRepository, logger Logger) *EventSink {
	return &EventSink{repo: repo, logger: logger}
}

// Handle decodes, validates and upserts one event.
func (s *EventSink) Handle(ctx context.Context, env *model.Envelope) error {
	var e model.GenericEvent
	if err := decodePayload(env, &e); err != nil {
		return err
	}
	if err := validateMessage(e); err != nil {
		return err
	}
	rec := e.ToRecord()
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return err
	}
	s.logger.Debugf("Stored event %s of type %s", rec.ID, rec.Type)
	return nil
}

// DeadLetterArchiveSink consumes the dead-letter stream and keeps one
// archive row per dead-lettered source record.
type DeadLetterArchiveSink struct {
	repo   DeadLetterRepository
	logger Logger
}

// NewDeadLetterArchiveSink creates a sink writing to repo.
func NewDeadLetterArchiveSink(repo DeadLetterRepository, logger Logger) *DeadLetterArchiveSink {
	return &DeadLetterArchiveSink{repo: repo, logger: logger}
}

// Handle decodes a DeadLetterRecord and archives it unless a row for the
// same source record already exists.
func (s *DeadLetterArchiveSink) Handle(ctx context.Context, env *model.Envelope) error {
	var rec model.DeadLetterRecord
	if err := decodePayload(env, &rec); err != nil {
		return err
	}
	if rec.OriginalStream == "" {
		return NewError(ErrCodeValidation, "dead-letter record without original stream")
	}

	existing, err := s.repo.FindBySource(ctx, rec.OriginalStream, rec.Partition, rec.Offset)
	if err == nil {
		s.logger.Debugf("Dead letter for %s/%d@%d already archived as %d",
			rec.OriginalStream, rec.Partition, rec.Offset, existing.ID)
		return nil
	}
	if !IsNoData(err) {
		return err
	}

	saved, err := s.repo.Save(ctx, model.NewDeadLetter(rec))
	if err != nil {
		return err
	}
	s.logger.Infof("Archived dead letter %d from %s (key=%s, attempts=%d)",
		saved.ID, rec.OriginalStream, rec.Key, rec.AttemptCount)
	return nil
}
