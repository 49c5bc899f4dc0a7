package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Notification is both the inbound notification message and the persisted row.
// Level is free-form and stored as sent.
type Notification struct {
	ID      string `json:"id" db:"id"`
	Message string `json:"message" db:"message"`
	Level   string `json:"level" db:"level"`
}

// TableName returns the database table name for Notification.
func (n Notification) TableName() string {
	return "notifications"
}

// Validate checks the message before it is published or stored.
func (n Notification) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&n.Message, validation.Length(0, 1024)),
		validation.Field(&n.Level, validation.Length(0, 32)),
	)
}
