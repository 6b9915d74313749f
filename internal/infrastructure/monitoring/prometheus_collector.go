package monitoring

import (
	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	connectionsActive   prometheus.Gauge
	connectionsTotal    prometheus.Counter
	streamsActive       prometheus.Gauge
	streamsStartedTotal prometheus.Counter

	streamViewerCount *prometheus.GaugeVec

	chatMessagesTotal        *prometheus.CounterVec
	signalsRelayedTotal      *prometheus.CounterVec
	persistenceFailuresTotal *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradecast_connections_active",
			Help: "Number of currently open client connections",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradecast_connections_total",
			Help: "Total number of client connections accepted",
		}),

		streamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradecast_streams_active",
			Help: "Number of currently live streams",
		}),

		streamsStartedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradecast_streams_started_total",
			Help: "Total number of streams started",
		}),

		streamViewerCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradecast_stream_viewer_count",
			Help: "Current viewer count per live stream",
		}, []string{"stream_id"}),

		chatMessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecast_chat_messages_total",
			Help: "Total chat messages fanned out per stream",
		}, []string{"stream_id"}),

		signalsRelayedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecast_signals_relayed_total",
			Help: "Total signaling messages relayed, by kind",
		}, []string{"kind"}),

		persistenceFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecast_persistence_failures_total",
			Help: "Total best-effort persistence writes that failed, by operation",
		}, []string{"op"}),
	}
}

var _ ports.MetricsCollector = (*PrometheusCollector)(nil)

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) StreamStarted() {
	p.streamsActive.Inc()
	p.streamsStartedTotal.Inc()
}

func (p *PrometheusCollector) StreamEnded(streamID domain.StreamID) {
	p.streamsActive.Dec()

	// Drop per-stream series so ended streams do not linger in scrape
	// output forever.
	p.streamViewerCount.DeleteLabelValues(string(streamID))
	p.chatMessagesTotal.DeleteLabelValues(string(streamID))
}

func (p *PrometheusCollector) ViewerCount(streamID domain.StreamID, count int) {
	p.streamViewerCount.WithLabelValues(string(streamID)).Set(float64(count))
}

func (p *PrometheusCollector) ChatMessageSent(streamID domain.StreamID) {
	p.chatMessagesTotal.WithLabelValues(string(streamID)).Inc()
}

func (p *PrometheusCollector) SignalRelayed(kind domain.EventType) {
	p.signalsRelayedTotal.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) PersistenceFailure(op string) {
	p.persistenceFailuresTotal.WithLabelValues(op).Inc()
}
