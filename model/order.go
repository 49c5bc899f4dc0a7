package model

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// Order is both the inbound order message and the persisted row.
// Amount is carried as a decimal so that money never passes through float64.
type Order struct {
	ID      string          `json:"id" db:"id"`
	UserID  string          `json:"userId" db:"user_id"`
	Product string          `json:"product" db:"product"`
	Amount  decimal.Decimal `json:"amount" db:"amount"`
}

// TableName returns the database table name for Order.
func (o Order) TableName() string {
	return "orders"
}

// MarshalJSON writes Amount as a JSON number. Decoding accepts both a number
// and a quoted string.
func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	return json.Marshal(struct {
		plain
		Amount json.Number `json:"amount"`
	}{plain: plain(o), Amount: json.Number(o.Amount.String())})
}

// Validate checks the message before it is published or stored.
func (o Order) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&o.UserID, validation.Length(0, 64)),
		validation.Field(&o.Product, validation.Length(0, 255)),
	)
}
