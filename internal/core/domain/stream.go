package domain

import (
	"time"
)

// StreamMetadata is an opaque blob attached at broadcast start. The
// coordinator never interprets it beyond carrying it in summaries.
type StreamMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// Stream is a live broadcast session. The viewer set is authoritative for
// the viewer count; a separately incremented counter is never kept.
type Stream struct {
	ID            StreamID
	OwnerConn     ConnectionID
	OwnerIdentity Identity
	Metadata      StreamMetadata
	StartedAt     time.Time
	Live          bool

	Viewers map[ConnectionID]struct{}
	Guests  map[GuestID]*GuestRecord
}

// StreamSummary is the read-only projection exposed to listings and
// platform-wide broadcasts.
type StreamSummary struct {
	ID            StreamID       `json:"stream_id"`
	OwnerIdentity Identity       `json:"owner"`
	Metadata      StreamMetadata `json:"metadata"`
	StartedAt     time.Time      `json:"started_at"`
	ViewerCount   int            `json:"viewer_count"`
	GuestCount    int            `json:"guest_count"`
}

// StreamSnapshot captures the full membership of a stream at one instant,
// taken under the stream's lock. Broadcast fan-out always works from a
// snapshot, never from the live maps.
type StreamSnapshot struct {
	Summary StreamSummary
	Owner   ConnectionID
	Members []ConnectionID
	Viewers []ConnectionID
	Guests  []GuestRecord
}

// Summary builds a summary from the live stream. Callers must hold the
// stream's lock.
func (s *Stream) Summary() StreamSummary {
	return StreamSummary{
		ID:            s.ID,
		OwnerIdentity: s.OwnerIdentity,
		Metadata:      s.Metadata,
		StartedAt:     s.StartedAt,
		ViewerCount:   len(s.Viewers),
		GuestCount:    len(s.Guests),
	}
}

// MemberSet returns owner + viewers + connected guests. Callers must hold
// the stream's lock.
func (s *Stream) MemberSet() []ConnectionID {
	members := make([]ConnectionID, 0, len(s.Viewers)+len(s.Guests)+1)
	members = append(members, s.OwnerConn)
	for id := range s.Viewers {
		members = append(members, id)
	}
	for _, g := range s.Guests {
		if g.Status != GuestConnected {
			continue
		}
		// A connected guest may also sit in the viewer set; one entry
		// per connection keeps fan-out single-delivery.
		if _, ok := s.Viewers[ConnectionID(g.ID)]; ok {
			continue
		}
		members = append(members, ConnectionID(g.ID))
	}
	return members
}

// IsMember reports whether the connection is the owner, a viewer or a
// connected guest of the stream. Callers must hold the stream's lock.
func (s *Stream) IsMember(id ConnectionID) bool {
	if id == s.OwnerConn {
		return true
	}
	if _, ok := s.Viewers[id]; ok {
		return true
	}
	if g, ok := s.Guests[GuestID(id)]; ok {
		return g.Status == GuestConnected
	}
	return false
}
