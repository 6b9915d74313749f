package ports

import (
	"tradecast/internal/core/domain"
)

// Sender is the outbound side of one client connection. Implementations
// must be safe for concurrent use and must preserve per-connection FIFO
// ordering. Send never blocks on network I/O.
type Sender interface {
	Send(ev domain.Event) error
}

// ConnectionRegistry tracks one live connection record per transport
// session. It is the only owner of Connection records; callers propagate
// cleanup to the stream registry themselves.
type ConnectionRegistry interface {
	// Register fails with domain.ErrDuplicateConnection when the id is
	// already present.
	Register(conn *domain.Connection, sender Sender) error

	// Unregister is idempotent: unknown ids return nil, not an error,
	// because disconnects race with explicit logouts. The removed record
	// is returned so callers can clean up from its last-known state.
	Unregister(id domain.ConnectionID) *domain.Connection

	// Lookup returns a copy of the record.
	Lookup(id domain.ConnectionID) (domain.Connection, bool)

	// Sender returns the transport handle for direct delivery.
	Sender(id domain.ConnectionID) (Sender, bool)

	SetIdentity(id domain.ConnectionID, identity domain.Identity) error
	SetRoom(id domain.ConnectionID, room domain.StreamID, role domain.Role) error

	ConnectionsForIdentity(identity domain.Identity) []domain.ConnectionID
	Contains(id domain.ConnectionID) bool
	All() []domain.ConnectionID
	Count() int
}

// StreamRegistry is the source of truth for live streams. Every mutation
// of one stream serializes through that stream's single mutation point;
// returned snapshots are taken under the lock so broadcast fan-out never
// observes torn state.
type StreamRegistry interface {
	// Start rejects with domain.ErrAlreadyLive unless the existing
	// entry's owner connection is confirmed absent. The liveness check
	// happens inside the registry's critical section.
	Start(stream *domain.Stream) (domain.StreamSnapshot, error)

	// Stop succeeds only for the owner connection, or unconditionally
	// when force is set (coordinator disconnect cleanup). Removal clears
	// guests and viewers atomically with the entry itself.
	Stop(streamID domain.StreamID, requestedBy domain.ConnectionID, force bool) (domain.StreamSnapshot, error)

	Get(streamID domain.StreamID) (domain.StreamSummary, bool)

	// ListLive returns a fresh snapshot each call, not a live cursor.
	ListLive() []domain.StreamSummary

	// StreamOwnedBy finds the live stream whose owner is the given
	// connection, if any.
	StreamOwnedBy(conn domain.ConnectionID) (domain.StreamID, bool)

	// UpdateMetadata is owner-only.
	UpdateMetadata(streamID domain.StreamID, requestedBy domain.ConnectionID, md domain.StreamMetadata) (domain.StreamSnapshot, error)

	AddViewer(streamID domain.StreamID, conn domain.ConnectionID) (domain.StreamSnapshot, error)

	// RemoveViewer reports whether the connection was actually a viewer,
	// so double leaves produce no duplicate broadcast.
	RemoveViewer(streamID domain.StreamID, conn domain.ConnectionID) (domain.StreamSnapshot, bool, error)

	// AddGuest installs a pending guest record. A guest id may live in at
	// most one stream; violations fail with domain.ErrGuestElsewhere.
	AddGuest(streamID domain.StreamID, rec *domain.GuestRecord) (domain.StreamSnapshot, error)

	// AdvanceGuest moves a guest forward (pending->accepted->connected).
	// Backward transitions fail with domain.ErrInvalidTransition.
	AdvanceGuest(streamID domain.StreamID, guestID domain.GuestID, to domain.GuestStatus) (domain.GuestRecord, domain.StreamSnapshot, error)

	// DeleteGuest removes the record from any status.
	DeleteGuest(streamID domain.StreamID, guestID domain.GuestID) (domain.GuestRecord, domain.StreamSnapshot, error)

	// GuestLocation finds the stream currently holding the guest id.
	GuestLocation(guestID domain.GuestID) (domain.StreamID, bool)

	// Members derives the current membership set live; used by chat
	// fan-out rather than any cached list.
	Members(streamID domain.StreamID) ([]domain.ConnectionID, error)
}
