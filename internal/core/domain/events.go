package domain

import "encoding/json"

// EventType names the logical verbs exchanged with clients. Inbound and
// outbound verbs share the same envelope shape.
type EventType string

// Inbound events, one per client action.
const (
	EventAuthenticate EventType = "authenticate"
	EventStartStream  EventType = "start-stream"
	EventStopStream   EventType = "stop-stream"
	EventUpdateStream EventType = "update-stream"
	EventJoinStream   EventType = "join-stream"
	EventLeaveStream  EventType = "leave-stream"
	EventRequestGuest EventType = "request-guest"
	EventAcceptGuest  EventType = "accept-guest"
	EventDeclineGuest EventType = "decline-guest"
	EventRemoveGuest  EventType = "remove-guest"
	EventChatMessage  EventType = "chat-message"
	EventOffer        EventType = "offer"
	EventAnswer       EventType = "answer"
	EventICECandidate EventType = "ice-candidate"
)

// Outbound events.
const (
	EventWelcome            EventType = "welcome"
	EventAuthenticated      EventType = "authenticated"
	EventStreamAdded        EventType = "stream-added"
	EventStreamRemoved      EventType = "stream-removed"
	EventStreamEnded        EventType = "stream-ended"
	EventStreamUpdated      EventType = "stream-updated"
	EventStreamStarted      EventType = "stream-started"
	EventJoinedStream       EventType = "joined-stream"
	EventViewerCountUpdated EventType = "viewer-count-updated"
	EventGuestRequest       EventType = "guest-request"
	EventGuestDecision      EventType = "guest-decision"
	EventGuestJoined        EventType = "guest-joined"
	EventGuestLeft          EventType = "guest-left"
	EventError              EventType = "error"
)

// Event is the wire envelope. Data is marshalled lazily by the transport.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Stream end reasons carried in StreamEndedData.
const (
	ReasonEnded        = "ended"
	ReasonDisconnected = "disconnected"
)

type WelcomeData struct {
	ConnectionID ConnectionID `json:"connection_id"`
}

type AuthenticatedData struct {
	Identity Identity `json:"identity"`
}

type StreamEndedData struct {
	StreamID StreamID `json:"stream_id"`
	Reason   string   `json:"reason"`
}

type StreamRemovedData struct {
	StreamID StreamID `json:"stream_id"`
}

type JoinedStreamData struct {
	Summary     StreamSummary `json:"stream"`
	ViewerCount int           `json:"viewer_count"`
}

type ViewerCountData struct {
	StreamID StreamID `json:"stream_id"`
	Count    int      `json:"count"`
}

type GuestRequestData struct {
	StreamID    StreamID        `json:"stream_id"`
	GuestID     GuestID         `json:"guest_id"`
	DisplayName string          `json:"display_name"`
	Capability  GuestCapability `json:"capability"`
}

type GuestDecisionData struct {
	StreamID StreamID      `json:"stream_id"`
	GuestID  GuestID       `json:"guest_id"`
	Decision GuestDecision `json:"decision"`
}

type GuestEventData struct {
	StreamID    StreamID    `json:"stream_id"`
	GuestID     GuestID     `json:"guest_id"`
	DisplayName string      `json:"display_name,omitempty"`
	Status      GuestStatus `json:"status,omitempty"`
}

// SignalData relays an opaque offer/answer/ICE payload. The payload is
// forwarded byte-for-byte, never parsed.
type SignalData struct {
	From    ConnectionID    `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type ErrorData struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StreamEvent is the durable lifecycle record mirrored to the persistence
// gateway, not a wire event.
type StreamEvent struct {
	Kind      string        `json:"kind"` // started, ended, updated
	Summary   StreamSummary `json:"summary"`
	Reason    string        `json:"reason,omitempty"`
	Timestamp int64         `json:"timestamp"`
}
