package services

import (
	"context"
	"encoding/json"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"

	"go.uber.org/zap"
)

// relayService routes offer/answer/ICE payloads between connections. The
// payload is opaque: validated for non-emptiness and nothing else. There
// is no buffering and no retry; lost signaling is superseded by the next
// renegotiation.
type relayService struct {
	conns   ports.ConnectionRegistry
	metrics ports.MetricsCollector
	logger  *zap.SugaredLogger
}

func NewSignalRelay(conns ports.ConnectionRegistry, metrics ports.MetricsCollector, logger *zap.SugaredLogger) ports.SignalRelay {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &relayService{conns: conns, metrics: metrics, logger: logger}
}

func (r *relayService) Relay(ctx context.Context, kind domain.EventType, from, to domain.ConnectionID, payload json.RawMessage) error {
	if len(payload) == 0 {
		return domain.ErrEmptyPayload
	}

	sender, ok := r.conns.Sender(to)
	if !ok {
		return domain.ErrTargetUnreachable
	}

	ev := domain.Event{
		Type: kind,
		Data: domain.SignalData{From: from, Payload: payload},
	}
	if err := sender.Send(ev); err != nil {
		// Fire-and-forget: a full outbound buffer is a drop, not a
		// relay failure surfaced to the sender.
		r.logger.Debugw("signal dropped on enqueue", "kind", kind, "from", from, "to", to, "error", err)
	}

	r.metrics.SignalRelayed(kind)
	r.logger.Debugw("signal relayed", "kind", kind, "from", from, "to", to, "payload_bytes", len(payload))
	return nil
}
