package ident

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewConnectionID generates a transport-unique connection id.
func NewConnectionID() string {
	return "conn_" + uuid.NewString()
}

// NewStreamID generates a globally unique stream id.
func NewStreamID() string {
	return "stream_" + uuid.NewString()
}

// NewChatMessageID generates a time-sortable message id: messages sort by
// send time first, with a uuid fragment breaking ties.
func NewChatMessageID() string {
	return fmt.Sprintf("%020d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
}
