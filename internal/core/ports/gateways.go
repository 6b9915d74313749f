package ports

import (
	"context"

	"tradecast/internal/core/domain"
)

// PersistenceGateway is the best-effort durable mirror. Every call is
// fire-and-forget from the coordinator's point of view: failures are
// logged and swallowed, never propagated into in-memory delivery.
type PersistenceGateway interface {
	WriteStreamEvent(ctx context.Context, ev domain.StreamEvent) error
	WriteChatMessage(ctx context.Context, msg domain.ChatMessage) error
	MirrorViewerCount(ctx context.Context, streamID domain.StreamID, count int) error
}
