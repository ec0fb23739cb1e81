package model

import "time"

type ServerStatus string

const (
	ServerActive  ServerStatus = "active"
	ServerOff     ServerStatus = "off"
	ServerNew     ServerStatus = "new"
	ServerArchive ServerStatus = "archive"
)

func (s ServerStatus) String() string { return string(s) }

// Transitional reports statuses that are neither running nor powered off.
func (s ServerStatus) Transitional() bool {
	return s != ServerActive && s != ServerOff
}

// Server is a provisioned compute instance (droplet).
type Server struct {
	ID         int64        `db:"id"`
	AccountID  int64        `db:"account_id"`
	Name       string       `db:"name"`
	SizeSlug   string       `db:"size_slug"`
	Status     ServerStatus `db:"status"`
	ProviderID string       `db:"provider_id"` // cloud-side droplet id
	CreatedAt  time.Time    `db:"created_at"`
}

func (s Server) Active() bool { return s.Status == ServerActive }
