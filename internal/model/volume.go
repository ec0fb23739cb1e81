package model

import "time"

// Volume is a block-storage volume, optionally attached to a server.
type Volume struct {
	ID         int64     `db:"id"`
	AccountID  int64     `db:"account_id"`
	ServerID   *int64    `db:"server_id"` // nullable
	Name       string    `db:"name"`
	SizeGB     int64     `db:"size_gb"`
	ProviderID string    `db:"provider_id"`
	CreatedAt  time.Time `db:"created_at"`
}
