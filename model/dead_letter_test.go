package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeadLetterRecord(t *testing.T) {
	env := NewEnvelope("users", "u1", 2, 41, []byte(`{"id":"u1"}`))
	env.AttemptCount = 3

	rec := NewDeadLetterRecord(env, "boom")

	assert.Equal(t, "users", rec.OriginalStream)
	assert.Equal(t, int32(2), rec.Partition)
	assert.Equal(t, int64(41), rec.Offset)
	assert.Equal(t, "u1", rec.Key)
	assert.Equal(t, []byte(`{"id":"u1"}`), rec.Payload)
	assert.Equal(t, "boom", rec.FailureReason)
	assert.Equal(t, 3, rec.AttemptCount)
	assert.WithinDuration(t, time.Now(), rec.DeadLetteredAt, time.Second)

	// The record owns its payload copy.
	env.Payload[0] = 'X'
	assert.Equal(t, byte('{'), rec.Payload[0])
}

func TestDeadLetterStream(t *testing.T) {
	assert.Equal(t, "deadletter-topic", DeadLetterStream("deadletter-topic", "users"))
	assert.Equal(t, "users-dlq", DeadLetterStream("", "users"))
}

func TestDeadLetterRecord_JSONPayloadEmbedded(t *testing.T) {
	rec := DeadLetterRecord{OriginalStream: "users", Key: "u1", Payload: []byte(`{"id":"u1"}`), AttemptCount: 3}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "users", wire["originalStream"])
	assert.Equal(t, map[string]interface{}{"id": "u1"}, wire["payload"])
	assert.Equal(t, PayloadEncodingJSON, wire["payloadEncoding"])

	var back DeadLetterRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.JSONEq(t, `{"id":"u1"}`, string(back.Payload))
	assert.Equal(t, 3, back.AttemptCount)
}

func TestDeadLetterRecord_TextPayloadPreserved(t *testing.T) {
	rec := DeadLetterRecord{OriginalStream: "orders", Payload: []byte(`{"id":`)}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"payloadEncoding":"text"`)

	var back DeadLetterRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []byte(`{"id":`), back.Payload)
}

func TestNewDeadLetter(t *testing.T) {
	at := time.Now().Add(-time.Hour)
	dl := NewDeadLetter(DeadLetterRecord{
		OriginalStream: "users",
		Partition:      1,
		Offset:         7,
		Key:            "u1",
		Payload:        []byte(`{"id":"u1"}`),
		FailureReason:  "boom",
		AttemptCount:   3,
		DeadLetteredAt: at,
	})

	assert.Equal(t, int64(0), dl.ID)
	assert.Equal(t, "dead_letters", dl.TableName())
	assert.Equal(t, "users", dl.OriginalStream)
	assert.Equal(t, int32(1), dl.PartitionHint)
	assert.Equal(t, int64(7), dl.SourceOffset)
	assert.Equal(t, `{"id":"u1"}`, dl.Payload)
	assert.Equal(t, PayloadEncodingJSON, dl.PayloadEncoding)
	assert.False(t, dl.IsResolved)
	assert.Nil(t, dl.ResolvedAt)
	assert.True(t, dl.IsOld(30*time.Minute))
	assert.False(t, dl.IsOld(2*time.Hour))
}

func TestDeadLetter_Resolve(t *testing.T) {
	dl := NewDeadLetter(DeadLetterRecord{OriginalStream: "users", Payload: []byte("not json")})
	assert.Equal(t, PayloadEncodingText, dl.PayloadEncoding)

	dl.Resolve("ops@example.com", "replayed manually")

	assert.True(t, dl.IsResolved)
	require.NotNil(t, dl.ResolvedAt)
	assert.WithinDuration(t, time.Now(), *dl.ResolvedAt, time.Second)
	assert.Equal(t, "ops@example.com", dl.ResolvedBy)
	assert.Equal(t, "replayed manually", dl.ResolutionNote)
}
