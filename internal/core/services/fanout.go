package services

import (
	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"

	"go.uber.org/zap"
)

// fanout delivers events to connections by id. Delivery is enqueue-only:
// senders never block on network I/O, and a full or dead connection is a
// logged drop, never an error for the room.
type fanout struct {
	conns  ports.ConnectionRegistry
	logger *zap.SugaredLogger
}

func newFanout(conns ports.ConnectionRegistry, logger *zap.SugaredLogger) *fanout {
	return &fanout{conns: conns, logger: logger}
}

// sendTo delivers one event to one connection.
func (f *fanout) sendTo(id domain.ConnectionID, ev domain.Event) error {
	sender, ok := f.conns.Sender(id)
	if !ok {
		return domain.ErrTargetUnreachable
	}
	if err := sender.Send(ev); err != nil {
		f.logger.Debugw("dropped outbound event", "connection_id", id, "event", ev.Type, "error", err)
	}
	return nil
}

// broadcast fans an event out to a membership snapshot.
func (f *fanout) broadcast(members []domain.ConnectionID, ev domain.Event) {
	for _, id := range members {
		if err := f.sendTo(id, ev); err != nil {
			f.logger.Debugw("broadcast target gone", "connection_id", id, "event", ev.Type)
		}
	}
}

// broadcastAll sends a platform-wide event to every connection, live
// listing pages included.
func (f *fanout) broadcastAll(ev domain.Event) {
	f.broadcast(f.conns.All(), ev)
}
