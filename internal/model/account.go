package model

import "time"

// Account holds a customer's prepaid balance in cents.
type Account struct {
	ID        int64     `db:"id"         json:"id"`
	Email     string    `db:"email"      json:"email"`
	Balance   int64     `db:"balance"    json:"balance"`
	Suspended bool      `db:"suspended"  json:"suspended"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
