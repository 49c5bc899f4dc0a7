// Package model contains the message, dead-letter and entity types shared by
// the publisher, the dispatcher and the persistence adapters.
package model

import "time"

// Envelope is a single broker record travelling through the dispatch chain.
//
// The retry state lives here (AttemptCount) rather than in any shared structure,
// so concurrent partitions never see each other's counters. Key is taken from the
// record and never rewritten: every attempt of the same logical message carries
// the same key.
type Envelope struct {
	Stream       string            // Source stream (topic) name
	Key          string            // Message key, normally the domain id
	Partition    int32             // Source partition
	Offset       int64             // Offset inside the partition
	Payload      []byte            // Raw record value
	Headers      map[string]string // Record headers
	Timestamp    time.Time         // Broker timestamp (zero when unknown)
	AttemptCount int               // Attempts made so far, transient
}

// NewEnvelope creates an envelope with no attempts recorded.
func NewEnvelope(stream, key string, partition int32, offset int64, payload []byte) *Envelope {
	return &Envelope{
		Stream:    stream,
		Key:       key,
		Partition: partition,
		Offset:    offset,
		Payload:   payload,
		Headers:   map[string]string{},
	}
}

// RecordAttempt increments the attempt counter and returns the new value.
func (e *Envelope) RecordAttempt() int {
	e.AttemptCount++
	return e.AttemptCount
}

// Header returns the header value or "" when absent.
func (e *Envelope) Header(key string) string {
	if e.Headers == nil {
		return ""
	}
	return e.Headers[key]
}

// SetHeader stores a header value, allocating the map on first use.
func (e *Envelope) SetHeader(key, value string) {
	if e.Headers == nil {
		e.Headers = map[string]string{}
	}
	e.Headers[key] = value
}
