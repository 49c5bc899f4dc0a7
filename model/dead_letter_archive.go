package model

import (
	"time"
)

// DeadLetter is the archived form of a DeadLetterRecord, stored when the
// dead-letter stream is consumed back into the database.
//
// The archive serves as:
//   - Failure audit log with the original payload and last error
//   - Manual intervention queue for operators
//   - Source for failure statistics
//
// Items remain unresolved until an operator calls Resolve.
type DeadLetter struct {
	ID             int64  `json:"id" db:"id"`
	OriginalStream string `json:"originalStream" db:"original_stream"`
	PartitionHint  int32  `json:"partition" db:"partition_hint"`
	SourceOffset   int64  `json:"offset" db:"source_offset"`
	MessageKey     string `json:"key" db:"message_key"`

	// Failure information
	Payload         string `json:"payload" db:"payload"`
	PayloadEncoding string `json:"payloadEncoding" db:"payload_encoding"`
	FailureReason   string `json:"failureReason" db:"failure_reason"`
	AttemptCount    int    `json:"attemptCount" db:"attempt_count"`

	DeadLetteredAt time.Time `json:"deadLetteredAt" db:"dead_lettered_at"`

	// Lifecycle
	IsResolved     bool       `json:"isResolved" db:"is_resolved"`
	ResolvedAt     *time.Time `json:"resolvedAt" db:"resolved_at"`
	ResolvedBy     string     `json:"resolvedBy" db:"resolved_by"`
	ResolutionNote string     `json:"resolutionNote" db:"resolution_note"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for DeadLetter.
func (d DeadLetter) TableName() string {
	return "dead_letters"
}

// NewDeadLetter creates an unresolved archive entry from a dead-letter record.
func NewDeadLetter(rec DeadLetterRecord) DeadLetter {
	encoding := PayloadEncodingText
	if len(rec.Payload) > 0 && isJSON(rec.Payload) {
		encoding = PayloadEncodingJSON
	}
	return DeadLetter{
		OriginalStream:  rec.OriginalStream,
		PartitionHint:   rec.Partition,
		SourceOffset:    rec.Offset,
		MessageKey:      rec.Key,
		Payload:         string(rec.Payload),
		PayloadEncoding: encoding,
		FailureReason:   rec.FailureReason,
		AttemptCount:    rec.AttemptCount,
		DeadLetteredAt:  rec.DeadLetteredAt,
		CreatedAt:       time.Now(),
	}
}

// Resolve marks the item as handled by an operator, typically after a
// manual replay or after deciding the failure can be ignored.
func (d *DeadLetter) Resolve(resolvedBy, note string) {
	now := time.Now()
	d.IsResolved = true
	d.ResolvedAt = &now
	d.ResolvedBy = resolvedBy
	d.ResolutionNote = note
}

// GetAge returns how long ago the message was dead-lettered.
func (d *DeadLetter) GetAge() time.Duration {
	return time.Since(d.DeadLetteredAt)
}

// IsOld reports whether the item has waited longer than threshold.
func (d *DeadLetter) IsOld(threshold time.Duration) bool {
	return d.GetAge() > threshold
}

// DeadLetterStats represents aggregate statistics over the archive.
type DeadLetterStats struct {
	TotalItems      int            `json:"totalItems"`
	UnresolvedItems int            `json:"unresolvedItems"`
	ResolvedItems   int            `json:"resolvedItems"`
	ByStream        map[string]int `json:"byStream"`
	LastUpdated     time.Time      `json:"lastUpdated"`
}
