package ws

import (
	"errors"
	"sync"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errSendBufferFull = errors.New("send buffer full")

// client owns the outbound half of one websocket connection. Send only
// enqueues; the write pump is the single goroutine touching the socket
// for writes, which keeps per-connection FIFO ordering for free.
type client struct {
	id   domain.ConnectionID
	conn *websocket.Conn
	send chan domain.Event

	mu     sync.Mutex
	closed bool

	pingInterval time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

var _ ports.Sender = (*client)(nil)

func newClient(id domain.ConnectionID, conn *websocket.Conn, bufferSize int, pingInterval, writeTimeout time.Duration, logger *zap.SugaredLogger) *client {
	return &client{
		id:           id,
		conn:         conn,
		send:         make(chan domain.Event, bufferSize),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Send enqueues without blocking. A full buffer means the client cannot
// keep up; the event is dropped rather than stalling the broadcaster.
func (c *client) Send(ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectionNotFound
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return errSendBufferFull
	}
}

// close stops the write pump. Idempotent; safe to call from both the
// read loop exit and the write pump's own error path.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings. It exits when the queue is closed or a
// write fails, closing the socket either way so the read loop unblocks.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Debugw("websocket write failed", "connection_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugw("websocket ping failed", "connection_id", c.id, "error", err)
				return
			}
		}
	}
}
