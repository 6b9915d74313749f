package domain

import "time"

// GuestStatus is one-directional: pending -> accepted -> connected.
// Removal (deletion) is reachable from any status; a removed guest never
// comes back under the same id.
type GuestStatus string

const (
	GuestPending   GuestStatus = "pending"
	GuestAccepted  GuestStatus = "accepted"
	GuestConnected GuestStatus = "connected"
)

// GuestCapability is what the guest asked to contribute.
type GuestCapability string

const (
	CapabilityAudio      GuestCapability = "audio"
	CapabilityAudioVideo GuestCapability = "audio_video"
)

// GuestRecord belongs to exactly one stream at a time. The guest id is the
// requesting connection id.
type GuestRecord struct {
	ID          GuestID         `json:"guest_id"`
	DisplayName string          `json:"display_name"`
	Capability  GuestCapability `json:"capability"`
	Status      GuestStatus     `json:"status"`
	RequestedAt time.Time       `json:"requested_at"`
}

// GuestDecision is the broadcaster's verdict on a pending request.
type GuestDecision string

const (
	DecisionAccept  GuestDecision = "accept"
	DecisionDecline GuestDecision = "decline"
)
