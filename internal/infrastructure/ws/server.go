package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
	"tradecast/pkg/ident"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options carry the transport tunables from configuration.
type Options struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBufferSize    int
	MaxMessageBytes   int64
	MessagesPerSecond float64
	MessageBurst      int
}

// Server upgrades HTTP requests to websocket sessions and pumps events
// into the coordinator. Connection ids are minted server-side; clients
// never pick their own.
type Server struct {
	coordinator ports.Coordinator
	opts        Options
	logger      *zap.SugaredLogger
}

// envelope is the inbound wire shape, mirroring domain.Event.
type envelope struct {
	Type domain.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

func NewServer(coordinator ports.Coordinator, opts Options, logger *zap.SugaredLogger) *Server {
	return &Server{coordinator: coordinator, opts: opts, logger: logger}
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	connID := domain.ConnectionID(ident.NewConnectionID())
	cl := newClient(connID, conn, s.opts.SendBufferSize, s.opts.PingInterval, s.opts.WriteTimeout, s.logger)

	ctx := r.Context()
	if err := s.coordinator.HandleConnect(ctx, connID, cl); err != nil {
		s.logger.Errorw("connection rejected", "connection_id", connID, "error", err)
		conn.Close()
		return
	}

	go cl.writePump()
	s.readLoop(conn, connID, cl)
}

func (s *Server) readLoop(conn *websocket.Conn, connID domain.ConnectionID, cl *client) {
	defer func() {
		// Disconnect cleanup runs off a fresh context; the request
		// context is already dead at this point.
		s.coordinator.HandleDisconnect(context.Background(), connID)
		cl.close()
	}()

	conn.SetReadLimit(s.opts.MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.MessageBurst)

	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("websocket read failed", "connection_id", connID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if !limiter.Allow() {
			cl.Send(domain.Event{Type: domain.EventError, Data: domain.ErrorData{
				Op:      string(msg.Type),
				Code:    "RATE_LIMITED",
				Message: "message rate limit exceeded",
			}})
			continue
		}
		if msg.Type == "" {
			cl.Send(domain.Event{Type: domain.EventError, Data: domain.ErrorData{
				Code:    "PROTOCOL_ERROR",
				Message: "message type is required",
			}})
			continue
		}

		s.coordinator.HandleEvent(context.Background(), connID, msg.Type, msg.Data)
	}
}
