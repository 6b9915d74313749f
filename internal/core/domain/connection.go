package domain

import (
	"time"
)

type ConnectionID string
type StreamID string
type Identity string
type GuestID string

// Role tags a connection with its current part in a room.
type Role string

const (
	RoleNone        Role = "none"
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
	RoleGuest       Role = "guest"
)

// Connection is the ephemeral per-transport-session record. It is owned
// exclusively by the connection registry and never persisted.
type Connection struct {
	ID          ConnectionID
	Identity    Identity // empty until authenticated
	Room        StreamID // at most one viewing room per connection
	Role        Role
	ConnectedAt time.Time
}

// Authenticated reports whether the connection has a verified identity.
func (c *Connection) Authenticated() bool {
	return c.Identity != ""
}
