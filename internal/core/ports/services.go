package ports

import (
	"context"
	"encoding/json"

	"tradecast/internal/core/domain"
)

// Presence runs room membership and the guest lifecycle. All broadcasts
// happen after registry locks are released, from snapshots.
type Presence interface {
	JoinRoom(ctx context.Context, conn domain.ConnectionID, streamID domain.StreamID) (domain.JoinedStreamData, error)

	// LeaveRoom is unconditional and idempotent; leaving with no room is
	// a no-op with no broadcast.
	LeaveRoom(ctx context.Context, conn domain.ConnectionID)

	RequestGuestSlot(ctx context.Context, conn domain.ConnectionID, streamID domain.StreamID, displayName string, capability domain.GuestCapability) (domain.GuestID, error)
	DecideGuest(ctx context.Context, streamID domain.StreamID, guestID domain.GuestID, decision domain.GuestDecision, decidedBy domain.ConnectionID) error
	MarkGuestConnected(ctx context.Context, streamID domain.StreamID, guestID domain.GuestID) error

	// RemoveGuest with force set skips the ownership check (guest's own
	// disconnect).
	RemoveGuest(ctx context.Context, streamID domain.StreamID, guestID domain.GuestID, removedBy domain.ConnectionID, force bool) error
}

// ChatService accepts a message from a room member and fans it out to the
// membership set derived live from the stream registry.
type ChatService interface {
	Send(ctx context.Context, conn domain.ConnectionID, streamID domain.StreamID, text string) (domain.ChatMessage, error)
}

// SignalRelay routes offer/answer/ICE payloads between connections without
// interpreting them. Fire-and-forget: no buffering, no retry.
type SignalRelay interface {
	Relay(ctx context.Context, kind domain.EventType, from, to domain.ConnectionID, payload json.RawMessage) error
}

// Coordinator is the single entry point for transport events.
type Coordinator interface {
	HandleConnect(ctx context.Context, conn domain.ConnectionID, sender Sender) error
	HandleEvent(ctx context.Context, conn domain.ConnectionID, evType domain.EventType, payload json.RawMessage)
	HandleDisconnect(ctx context.Context, conn domain.ConnectionID)
}

// AuthVerifier is an external collaborator; the coordinator never mints
// tokens, it only verifies them.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// StreamDirectory is the read-only surface exposed to the HTTP layer.
type StreamDirectory interface {
	ListActiveStreams(ctx context.Context) []domain.StreamSummary
	GetStreamByID(ctx context.Context, id domain.StreamID) (domain.StreamSummary, bool)
	IsIdentityOnline(ctx context.Context, identity domain.Identity) bool
}

// MetricsCollector observes coordinator activity. Implementations must be
// cheap and non-blocking; a nil-safe noop is provided by services.
type MetricsCollector interface {
	ConnectionOpened()
	ConnectionClosed()
	StreamStarted()
	StreamEnded(streamID domain.StreamID)
	ViewerCount(streamID domain.StreamID, count int)
	ChatMessageSent(streamID domain.StreamID)
	SignalRelayed(kind domain.EventType)
	PersistenceFailure(op string)
}
