package persistence

import (
	"context"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
)

// NoopGateway is used when Redis is disabled; coordination stays fully
// in-memory and every durable write succeeds instantly.
type NoopGateway struct{}

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

var _ ports.PersistenceGateway = (*NoopGateway)(nil)

func (NoopGateway) WriteStreamEvent(ctx context.Context, ev domain.StreamEvent) error { return nil }

func (NoopGateway) WriteChatMessage(ctx context.Context, msg domain.ChatMessage) error { return nil }

func (NoopGateway) MirrorViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	return nil
}
