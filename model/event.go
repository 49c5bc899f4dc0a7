package model

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// EmptyPayloadJSON is stored when an event payload cannot be re-serialized.
const EmptyPayloadJSON = "{}"

// GenericEvent is an inbound event with a free-form payload.
type GenericEvent struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// Validate checks the message before it is published or stored.
func (e GenericEvent) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&e.Type, validation.Length(0, 128)),
	)
}

// ToRecord converts the event into its persisted form. The payload is
// re-serialized as JSON; if that fails the record keeps "{}" instead.
func (e GenericEvent) ToRecord() EventRecord {
	payload := EmptyPayloadJSON
	if e.Payload != nil {
		if data, err := json.Marshal(e.Payload); err == nil {
			payload = string(data)
		}
	}
	return EventRecord{ID: e.ID, Type: e.Type, PayloadJSON: payload}
}

// EventRecord is the persisted row of a GenericEvent.
type EventRecord struct {
	ID          string `json:"id" db:"id"`
	Type        string `json:"type" db:"type"`
	PayloadJSON string `json:"payloadJson" db:"payload_json"`
}

// TableName returns the database table name for EventRecord.
func (e EventRecord) TableName() string {
	return "events"
}
