package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload encodings used on the dead-letter wire format.
const (
	PayloadEncodingJSON = "json"
	PayloadEncodingText = "text"
)

// DeadLetterSuffix is appended to a stream name when no shared dead-letter
// stream is configured.
const DeadLetterSuffix = "-dlq"

// DeadLetterRecord quarantines a message whose retry budget is exhausted.
// It is created exactly once per exhausted message and published to the
// dead-letter stream.
type DeadLetterRecord struct {
	OriginalStream string    // Stream the message was consumed from
	Partition      int32     // Partition hint, equal to the source partition
	Offset         int64     // Source offset
	Key            string    // Original message key
	Payload        []byte    // Original payload, byte for byte
	FailureReason  string    // Last handler error
	AttemptCount   int       // Attempts made before giving up
	DeadLetteredAt time.Time // When the record was created
}

// NewDeadLetterRecord builds the record for an exhausted envelope.
func NewDeadLetterRecord(env *Envelope, reason string) DeadLetterRecord {
	return DeadLetterRecord{
		OriginalStream: env.Stream,
		Partition:      env.Partition,
		Offset:         env.Offset,
		Key:            env.Key,
		Payload:        append([]byte(nil), env.Payload...),
		FailureReason:  reason,
		AttemptCount:   env.AttemptCount,
		DeadLetteredAt: time.Now().UTC(),
	}
}

// DeadLetterStream returns the stream a record from source should be sent to.
// A non-empty shared name wins; otherwise the name is derived as "<source>-dlq".
func DeadLetterStream(shared, source string) string {
	if shared != "" {
		return shared
	}
	return source + DeadLetterSuffix
}

type deadLetterWire struct {
	OriginalStream  string          `json:"originalStream"`
	Partition       int32           `json:"partition"`
	Offset          int64           `json:"offset"`
	Key             string          `json:"key"`
	Payload         json.RawMessage `json:"payload"`
	PayloadEncoding string          `json:"payloadEncoding"`
	FailureReason   string          `json:"failureReason"`
	AttemptCount    int             `json:"attemptCount"`
	DeadLetteredAt  time.Time       `json:"deadLetteredAt"`
}

// MarshalJSON embeds a JSON payload verbatim and falls back to a JSON string
// for payloads that are not valid JSON (the usual reason they were dead-lettered).
func (r DeadLetterRecord) MarshalJSON() ([]byte, error) {
	w := deadLetterWire{
		OriginalStream:  r.OriginalStream,
		Partition:       r.Partition,
		Offset:          r.Offset,
		Key:             r.Key,
		PayloadEncoding: PayloadEncodingJSON,
		FailureReason:   r.FailureReason,
		AttemptCount:    r.AttemptCount,
		DeadLetteredAt:  r.DeadLetteredAt,
	}
	if len(r.Payload) > 0 && isJSON(r.Payload) {
		w.Payload = r.Payload
	} else {
		text, err := json.Marshal(string(r.Payload))
		if err != nil {
			return nil, err
		}
		w.Payload = text
		w.PayloadEncoding = PayloadEncodingText
	}
	return json.Marshal(w)
}

func isJSON(data []byte) bool {
	return json.Valid(data)
}

// UnmarshalJSON restores the original payload bytes.
func (r *DeadLetterRecord) UnmarshalJSON(data []byte) error {
	var w deadLetterWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.OriginalStream = w.OriginalStream
	r.Partition = w.Partition
	r.Offset = w.Offset
	r.Key = w.Key
	r.FailureReason = w.FailureReason
	r.AttemptCount = w.AttemptCount
	r.DeadLetteredAt = w.DeadLetteredAt

	switch w.PayloadEncoding {
	case PayloadEncodingText:
		var text string
		if err := json.Unmarshal(w.Payload, &text); err != nil {
			return fmt.Errorf("decode text payload: %w", err)
		}
		r.Payload = []byte(text)
	default:
		r.Payload = append([]byte(nil), w.Payload...)
	}
	return nil
}
