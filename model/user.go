package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// User is both the inbound user message and the persisted row.
type User struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

// TableName returns the database table name for User.
func (u User) TableName() string {
	return "users"
}

// Validate checks the message before it is published or stored.
// Only the key is mandatory; the remaining fields are stored as sent.
func (u User) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&u.Name, validation.Length(0, 255)),
		validation.Field(&u.Email, validation.Length(0, 255)),
	)
}
