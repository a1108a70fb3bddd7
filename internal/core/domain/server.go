package domain

import "time"

type ServerID string

type ServerFlags struct {
	ExternalEmoji bool
	InviteOnly    bool
}

// Server is a tenant: a community grouping channels, roles and memberships.
type Server struct {
	ID        ServerID
	Name      string
	OwnerID   IdentityID
	IconRef   string
	Flags     ServerFlags
	CreatedAt time.Time
	UpdatedAt time.Time
}
