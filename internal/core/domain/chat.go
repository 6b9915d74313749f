package domain

import "time"

// ChatMessage is transient in the coordinator; the durable copy is the
// persistence gateway's concern. Message ids are time-sortable.
type ChatMessage struct {
	ID        string    `json:"message_id"`
	StreamID  StreamID  `json:"stream_id"`
	Author    Identity  `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
