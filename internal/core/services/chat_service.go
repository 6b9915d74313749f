package services

import (
	"context"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
	"tradecast/pkg/ident"
	"tradecast/pkg/validation"

	"go.uber.org/zap"
)

// chatService fans a member's message out to the room and forwards it to
// the persistence gateway asynchronously. The membership set is derived
// live from the stream registry at send time, never cached.
type chatService struct {
	conns     ports.ConnectionRegistry
	streams   ports.StreamRegistry
	durable   *DurableWriter
	fan       *fanout
	maxLength int
	metrics   ports.MetricsCollector
	logger    *zap.SugaredLogger
}

func NewChatService(
	conns ports.ConnectionRegistry,
	streams ports.StreamRegistry,
	durable *DurableWriter,
	maxLength int,
	metrics ports.MetricsCollector,
	logger *zap.SugaredLogger,
) ports.ChatService {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &chatService{
		conns:     conns,
		streams:   streams,
		durable:   durable,
		fan:       newFanout(conns, logger),
		maxLength: maxLength,
		metrics:   metrics,
		logger:    logger,
	}
}

func (c *chatService) Send(ctx context.Context, conn domain.ConnectionID, streamID domain.StreamID, text string) (domain.ChatMessage, error) {
	record, ok := c.conns.Lookup(conn)
	if !ok {
		return domain.ChatMessage{}, domain.ErrConnectionNotFound
	}
	if !record.Authenticated() {
		return domain.ChatMessage{}, domain.ErrNotAuthenticated
	}

	// Lenient input policy: oversized text is truncated, empty text is
	// silently dropped.
	text, keep := validation.NormalizeChatText(text, c.maxLength)
	if !keep {
		return domain.ChatMessage{}, domain.ErrEmptyPayload
	}

	members, err := c.streams.Members(streamID)
	if err != nil {
		return domain.ChatMessage{}, domain.ErrStreamNotLive
	}
	if !containsConnection(members, conn) {
		return domain.ChatMessage{}, domain.ErrNotAMember
	}

	msg := domain.ChatMessage{
		ID:        ident.NewChatMessageID(),
		StreamID:  streamID,
		Author:    record.Identity,
		Text:      text,
		Timestamp: time.Now(),
	}

	c.fan.broadcast(members, domain.Event{Type: domain.EventChatMessage, Data: msg})
	c.durable.ChatMessage(msg)
	c.metrics.ChatMessageSent(streamID)
	return msg, nil
}

func containsConnection(members []domain.ConnectionID, conn domain.ConnectionID) bool {
	for _, m := range members {
		if m == conn {
			return true
		}
	}
	return false
}
