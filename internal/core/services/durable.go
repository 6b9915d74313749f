package services

import (
	"context"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"

	"go.uber.org/zap"
)

// DurableWriter funnels best-effort writes to the persistence gateway.
// Every write runs on its own goroutine with a short timeout; a timeout
// or gateway failure is a soft failure, logged and counted, never
// escalated into the in-memory path that already succeeded.
type DurableWriter struct {
	gateway ports.PersistenceGateway
	timeout time.Duration
	metrics ports.MetricsCollector
	logger  *zap.SugaredLogger
}

func NewDurableWriter(gateway ports.PersistenceGateway, timeout time.Duration, metrics ports.MetricsCollector, logger *zap.SugaredLogger) *DurableWriter {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &DurableWriter{gateway: gateway, timeout: timeout, metrics: metrics, logger: logger}
}

func (w *DurableWriter) StreamEvent(ev domain.StreamEvent) {
	w.async("stream_event", func(ctx context.Context) error {
		return w.gateway.WriteStreamEvent(ctx, ev)
	})
}

func (w *DurableWriter) ChatMessage(msg domain.ChatMessage) {
	w.async("chat_message", func(ctx context.Context) error {
		return w.gateway.WriteChatMessage(ctx, msg)
	})
}

// ViewerCount is the synchronous variant used by the sampled mirror's
// flush loop, which already runs off the hot path.
func (w *DurableWriter) ViewerCount(ctx context.Context, streamID domain.StreamID, count int) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.gateway.MirrorViewerCount(ctx, streamID, count); err != nil {
		w.metrics.PersistenceFailure("viewer_count")
		w.logger.Warnw("viewer count mirror failed", "stream_id", streamID, "error", err)
	}
}

func (w *DurableWriter) async(op string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			w.metrics.PersistenceFailure(op)
			w.logger.Warnw("durable write failed", "op", op, "error", err)
		}
	}()
}

// NoopMetrics satisfies ports.MetricsCollector for wiring without
// prometheus (tests, embedded use).
type NoopMetrics struct{}

func (NoopMetrics) ConnectionOpened()                                 {}
func (NoopMetrics) ConnectionClosed()                                 {}
func (NoopMetrics) StreamStarted()                                    {}
func (NoopMetrics) StreamEnded(domain.StreamID)                       {}
func (NoopMetrics) ViewerCount(domain.StreamID, int)                  {}
func (NoopMetrics) ChatMessageSent(domain.StreamID)                   {}
func (NoopMetrics) SignalRelayed(domain.EventType)                    {}
func (NoopMetrics) PersistenceFailure(string)                         {}
