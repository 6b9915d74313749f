package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
	"tradecast/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCoordinator records transport callbacks and greets every
// connection the way the real coordinator does.
type stubCoordinator struct {
	mu          sync.Mutex
	connects    []domain.ConnectionID
	events      []domain.EventType
	disconnects []domain.ConnectionID
}

func (s *stubCoordinator) HandleConnect(ctx context.Context, conn domain.ConnectionID, sender ports.Sender) error {
	s.mu.Lock()
	s.connects = append(s.connects, conn)
	s.mu.Unlock()
	return sender.Send(domain.Event{Type: domain.EventWelcome, Data: domain.WelcomeData{ConnectionID: conn}})
}

func (s *stubCoordinator) HandleEvent(ctx context.Context, conn domain.ConnectionID, evType domain.EventType, payload json.RawMessage) {
	s.mu.Lock()
	s.events = append(s.events, evType)
	s.mu.Unlock()
}

func (s *stubCoordinator) HandleDisconnect(ctx context.Context, conn domain.ConnectionID) {
	s.mu.Lock()
	s.disconnects = append(s.disconnects, conn)
	s.mu.Unlock()
}

func (s *stubCoordinator) snapshot() (int, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connects), len(s.events), len(s.disconnects)
}

func testOptions() Options {
	return Options{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		SendBufferSize:    16,
		MaxMessageBytes:   64 * 1024,
		MessagesPerSecond: 100,
		MessageBurst:      100,
	}
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestServer_WelcomeOnConnect(t *testing.T) {
	coord := &stubCoordinator{}
	srv := NewServer(coord, testOptions(), logger.Nop())
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	defer ts.Close()

	conn := dial(t, ts)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type domain.EventType `json:"type"`
		Data domain.WelcomeData
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, domain.EventWelcome, ev.Type)
	assert.NotEmpty(t, ev.Data.ConnectionID)
}

func TestServer_DispatchesEventsToCoordinator(t *testing.T) {
	coord := &stubCoordinator{}
	srv := NewServer(coord, testOptions(), logger.Nop())
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	defer ts.Close()

	conn := dial(t, ts)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "join-stream",
		"data": map[string]string{"stream_id": "stream_a"},
	}))

	assert.Eventually(t, func() bool {
		_, events, _ := coord.snapshot()
		return events == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_MissingTypeGetsErrorEvent(t *testing.T) {
	coord := &stubCoordinator{}
	srv := NewServer(coord, testOptions(), logger.Nop())
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	defer ts.Close()

	conn := dial(t, ts)
	defer conn.Close()

	// Skip the welcome frame.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome json.RawMessage
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"data": map[string]string{}}))

	var ev struct {
		Type domain.EventType `json:"type"`
		Data domain.ErrorData
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, domain.EventError, ev.Type)
	assert.Equal(t, "PROTOCOL_ERROR", ev.Data.Code)

	// The malformed frame never reaches the coordinator.
	_, events, _ := coord.snapshot()
	assert.Zero(t, events)
}

func TestServer_DisconnectTriggersCleanup(t *testing.T) {
	coord := &stubCoordinator{}
	srv := NewServer(coord, testOptions(), logger.Nop())
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	defer ts.Close()

	conn := dial(t, ts)
	conn.Close()

	assert.Eventually(t, func() bool {
		connects, _, disconnects := coord.snapshot()
		return connects == 1 && disconnects == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_RateLimitedClientGetsErrorEvents(t *testing.T) {
	coord := &stubCoordinator{}
	opts := testOptions()
	opts.MessagesPerSecond = 1
	opts.MessageBurst = 1
	srv := NewServer(coord, opts, logger.Nop())
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	defer ts.Close()

	conn := dial(t, ts)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"type": "join-stream",
			"data": map[string]string{"stream_id": "stream_a"},
		}))
	}

	deadline := time.Now().Add(2 * time.Second)
	rateLimited := false
	for time.Now().Before(deadline) && !rateLimited {
		conn.SetReadDeadline(deadline)
		var ev struct {
			Type domain.EventType `json:"type"`
			Data domain.ErrorData
		}
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		if ev.Type == domain.EventError && ev.Data.Code == "RATE_LIMITED" {
			rateLimited = true
		}
	}
	assert.True(t, rateLimited)

	// Only the first message within the burst reached the coordinator.
	_, events, _ := coord.snapshot()
	assert.Equal(t, 1, events)
}
