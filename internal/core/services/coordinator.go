package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
	"tradecast/pkg/apperrors"
	"tradecast/pkg/ident"
	"tradecast/pkg/tracing"
	"tradecast/pkg/validation"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SessionCoordinator is the single entry point for transport events. It
// owns the cleanup-on-disconnect protocol; everything else it delegates
// to presence, chat and the relay.
type SessionCoordinator struct {
	conns    ports.ConnectionRegistry
	streams  ports.StreamRegistry
	presence *PresenceService
	chat     ports.ChatService
	relay    ports.SignalRelay
	auth     ports.AuthVerifier
	durable  *DurableWriter
	fan      *fanout
	metrics  ports.MetricsCollector
	logger   *zap.SugaredLogger
}

func NewSessionCoordinator(
	conns ports.ConnectionRegistry,
	streams ports.StreamRegistry,
	presence *PresenceService,
	chat ports.ChatService,
	relay ports.SignalRelay,
	auth ports.AuthVerifier,
	durable *DurableWriter,
	metrics ports.MetricsCollector,
	logger *zap.SugaredLogger,
) *SessionCoordinator {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &SessionCoordinator{
		conns:    conns,
		streams:  streams,
		presence: presence,
		chat:     chat,
		relay:    relay,
		auth:     auth,
		durable:  durable,
		fan:      newFanout(conns, logger),
		metrics:  metrics,
		logger:   logger,
	}
}

var _ ports.Coordinator = (*SessionCoordinator)(nil)

func (c *SessionCoordinator) HandleConnect(ctx context.Context, conn domain.ConnectionID, sender ports.Sender) error {
	record := &domain.Connection{ID: conn, Role: domain.RoleNone}
	if err := c.conns.Register(record, sender); err != nil {
		return err
	}
	c.metrics.ConnectionOpened()
	c.logger.Infow("connection opened", "connection_id", conn)

	sender.Send(domain.Event{Type: domain.EventWelcome, Data: domain.WelcomeData{ConnectionID: conn}})
	return nil
}

func (c *SessionCoordinator) HandleEvent(ctx context.Context, conn domain.ConnectionID, evType domain.EventType, payload json.RawMessage) {
	ctx, span := tracing.StartSpan(ctx, "coordinator.event",
		attribute.String("event", string(evType)),
		attribute.String("connection_id", string(conn)),
	)
	defer span.End()

	var err error
	switch evType {
	case domain.EventAuthenticate:
		err = c.handleAuthenticate(ctx, conn, payload)
	case domain.EventStartStream:
		err = c.handleStartStream(ctx, conn, payload)
	case domain.EventStopStream:
		err = c.handleStopStream(ctx, conn, payload)
	case domain.EventUpdateStream:
		err = c.handleUpdateStream(ctx, conn, payload)
	case domain.EventJoinStream:
		err = c.handleJoinStream(ctx, conn, payload)
	case domain.EventLeaveStream:
		c.presence.LeaveRoom(ctx, conn)
	case domain.EventRequestGuest:
		err = c.handleRequestGuest(ctx, conn, payload)
	case domain.EventAcceptGuest:
		err = c.handleGuestDecision(ctx, conn, payload, domain.DecisionAccept)
	case domain.EventDeclineGuest:
		err = c.handleGuestDecision(ctx, conn, payload, domain.DecisionDecline)
	case domain.EventRemoveGuest:
		err = c.handleRemoveGuest(ctx, conn, payload)
	case domain.EventChatMessage:
		err = c.handleChatMessage(ctx, conn, payload)
	case domain.EventOffer, domain.EventAnswer, domain.EventICECandidate:
		err = c.handleSignal(ctx, conn, evType, payload)
	default:
		err = &protocolError{message: "unknown event type: " + string(evType)}
	}

	if err != nil {
		// Empty chat text and similar silently-dropped input never
		// produce an error event.
		if errors.Is(err, domain.ErrEmptyPayload) && evType == domain.EventChatMessage {
			return
		}
		c.replyError(conn, string(evType), err)
	}
}

// HandleDisconnect runs the cleanup protocol. Its steps are independent:
// a failure in one (or in any durable mirror behind it) must never stop
// the in-memory broadcasts of the others.
func (c *SessionCoordinator) HandleDisconnect(ctx context.Context, conn domain.ConnectionID) {
	record := c.conns.Unregister(conn)
	if record == nil {
		// Disconnect raced an explicit logout; nothing left to clean.
		return
	}
	c.metrics.ConnectionClosed()
	c.logger.Infow("connection closed", "connection_id", conn, "identity", record.Identity, "role", record.Role)

	// Owned stream: stop, cascading guest and membership removal.
	if streamID, ok := c.streams.StreamOwnedBy(conn); ok {
		if snap, err := c.streams.Stop(streamID, conn, true); err == nil {
			c.endStream(snap, domain.ReasonDisconnected)
		} else {
			c.logger.Warnw("stream cleanup failed", "stream_id", streamID, "error", err)
		}
	}

	// Viewed room: leave from last-known state. The role is not checked;
	// RemoveViewer no-ops when the connection was never in the set.
	if record.Room != "" {
		c.presence.EvictViewer(ctx, conn, record.Room)
	}

	// Guest record anywhere: remove and announce.
	if guestStream, ok := c.streams.GuestLocation(domain.GuestID(conn)); ok {
		c.presence.RemoveGuest(ctx, guestStream, domain.GuestID(conn), conn, true)
	}
}

func (c *SessionCoordinator) handleAuthenticate(ctx context.Context, conn domain.ConnectionID, payload json.RawMessage) error {
	var p struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return &protocolError{message: "invalid authenticate payload", cause: err}
	}

	identity, err := c.auth.Verify(ctx, p.Token)
	if err != nil {
		return domain.ErrUnauthorized
	}
	if err := c.conns.SetIdentity(conn, identity); err != nil {
		return err
	}
	c.fan.sendTo(conn, domain.Event{Type: domain.EventAuthenticated, Data: domain.AuthenticatedData{Identity: identity}})
	c.logger.Infow("connection authenticated", "connection_id", conn, "identity", identity)
	return nil
}

func (c *SessionCoordinator) handleStartStream(ctx context.Context, conn domain.ConnectionID, payload json.RawMessage) error {
	record, ok := c.conns.Lookup(conn)
	if !ok {
		return domain.ErrConnectionNotFound
	}
	if !record.Authenticated() {
		return domain.ErrNotAuthenticated
	}

	var p struct {
		StreamID    string   `json:"stream_id,omitempty"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return &protocolError{message: "invalid start-stream payload", cause: err}
	}
	if err := validation.ValidateStreamTitle(p.Title); err != nil {
		return &protocolError{message: err.Error()}
	}

	// Clients resuming a broadcast after a drop may carry their previous
	// stream id; fresh broadcasts get a generated one.
	streamID := domain.StreamID(p.StreamID)
	if streamID == "" {
		streamID = domain.StreamID(ident.NewStreamID())
	} else if err := validation.ValidateID("stream_id", p.StreamID); err != nil {
		return &protocolError{message: err.Error()}
	}

	snap, err := c.streams.Start(&domain.Stream{
		ID:            streamID,
		OwnerConn:     conn,
		OwnerIdentity: record.Identity,
		Metadata: domain.StreamMetadata{
			Title:       p.Title,
			Description: p.Description,
			Tags:        p.Tags,
		},
	})
	if err != nil {
		return err
	}

	// Going live implies leaving any room watched as a viewer, same as
	// switching rooms; otherwise the old room keeps a ghost entry.
	c.presence.LeaveRoom(ctx, conn)

	c.conns.SetRoom(conn, streamID, domain.RoleBroadcaster)
	c.fan.sendTo(conn, domain.Event{Type: domain.EventStreamStarted, Data: snap.Summary})
	c.fan.broadcastAll(domain.Event{Type: domain.EventStreamAdded, Data: snap.Summary})
	c.durable.StreamEvent(domain.StreamEvent{Kind: "started", Summary: snap.Summary, Timestamp: snap.Summary.StartedAt.Unix()})
	c.metrics.StreamStarted()
	c.logger.Infow("stream started", "stream_id", streamID, "owner", record.Identity)
	return nil
}

func (c *SessionCoordinator) handleStopStream(ctx context.Context, conn domain.ConnectionID, payload json.RawMessage) error {
	streamID, ok := c.streams.StreamOwnedBy(conn)
	if !ok {
		return domain.ErrStreamNotFound
	}
	snap, err := c.streams.Stop(streamID, conn, false)
	if err != nil {
		return err
	}
	c.endStream(snap, domain.ReasonEnded)
	return nil
}

func (c *SessionCoordinator) handleUpdateStream(ctx context.Context, conn domain.ConnectionID, payload json.RawMessage) error {
	streamID, ok := c.streams.StreamOwnedBy(conn)
	if !ok {
		return domain.ErrNotOwner
	}

	var p struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return &protocolError{message: "invalid update-stream payload", cause: err}
	}
	if err := validation.ValidateStreamTitle(p.Title); err != nil {
		return &protocolError{message: err.Error()}
	}

	snap, err := c.streams.UpdateMetadata(streamID, conn, domain.StreamMetadata{
		Title:       p.Title,
		Description: p.Description,
		Tags:        p.Tags,
	})
	if err != nil {
		return err
	}

	c.fan.broadcastAll(domain.Event{Type: domain.EventStreamUpdated, Data: snap.Summary})
	c.durable.StreamEvent(domain.StreamEvent{Kind: "updated", Summary: snap.Summary, Timestamp: nowUnix()})
	return nil
}

func (c *SessionCoordinator) handleJoinStream(ctx context.Context, conn domain.ConnectionID, payload json.RawMessage) error {
	var p struct {
		StreamID string `json:"stream_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.StreamID == "" {
		return &protocolError{message: "invalid join-stream payload", cause: err}
	}

	joined, err := c.presence.JoinRoom(ctx, conn, domain.StreamID(p.StreamID))
	if err != nil {
		return err
	}
	c.fan.sendTo(conn, domain.Event{Type: domain.EventJoinedStream, Data: joined})
	return nil
}

func (c *SessionCoordinator) handleRequestGuest(ctx context.Context, conn domain.ConnectionID, payload json.RawMessage) error {
	var p struct {
		StreamID    string `json:"stream_id"`
		DisplayName string `json:"display_name"`
		Capability  string `json:"capability"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.StreamID == "" {
		return &protocolError{message: "invalid request-guest payload", cause: err}
	}

	_, err := c.presence.RequestGuestSlot(ctx, conn, domain.StreamID(p.StreamID), p.DisplayName, domain.GuestCapability(p.Capability))
	return err
}

func (c *SessionCoordinator) handleGuestDecision(ctx context.Context, conn domain.ConnectionID, payload json.RawMessage, decision domain.GuestDecision) error {
	var p struct {
		StreamID string `json:"stream_id,omitempty"`
		GuestID  string `json:"guest_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.GuestID == "" {
		return &protocolError{message: "invalid guest decision payload", cause: err}
	}

	streamID := domain.StreamID(p.StreamID)
	if streamID == "" {
		owned, ok := c.streams.StreamOwnedBy(conn)
		if !ok {
			return domain.ErrNotOwner
		}
		streamID = owned
	}
	return c.presence.DecideGuest(ctx, streamID, domain.GuestID(p.GuestID), decision, conn)
}

func (c *SessionCoordinator) handleRemoveGuest(ctx context.Context, conn domain.ConnectionID, payload json.RawMessage) error {
	var p struct {
		StreamID string `json:"stream_id,omitempty"`
		GuestID  string `json:"guest_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.GuestID == "" {
		return &protocolError{message: "invalid remove-guest payload", cause: err}
	}

	streamID := domain.StreamID(p.StreamID)
	if streamID == "" {
		located, ok := c.streams.GuestLocation(domain.GuestID(p.GuestID))
		if !ok {
			return nil // already gone, silent no-op
		}
		streamID = located
	}
	return c.presence.RemoveGuest(ctx, streamID, domain.GuestID(p.GuestID), conn, false)
}

func (c *SessionCoordinator) handleChatMessage(ctx context.Context, conn domain.ConnectionID, payload json.RawMessage) error {
	var p struct {
		StreamID string `json:"stream_id"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.StreamID == "" {
		return &protocolError{message: "invalid chat payload", cause: err}
	}

	_, err := c.chat.Send(ctx, conn, domain.StreamID(p.StreamID), p.Text)
	return err
}

func (c *SessionCoordinator) handleSignal(ctx context.Context, conn domain.ConnectionID, kind domain.EventType, payload json.RawMessage) error {
	var p struct {
		Target  string          `json:"target"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.Target == "" {
		return &protocolError{message: "invalid signaling payload", cause: err}
	}

	if err := c.relay.Relay(ctx, kind, conn, domain.ConnectionID(p.Target), p.Payload); err != nil {
		return err
	}

	// An accepted guest exchanging offer/answer means the peer
	// connection is coming up; flip the record to connected. The
	// transition is a no-op for anyone else.
	if kind != domain.EventICECandidate {
		if guestStream, ok := c.streams.GuestLocation(domain.GuestID(conn)); ok {
			c.presence.MarkGuestConnected(ctx, guestStream, domain.GuestID(conn))
		}
	}
	return nil
}

// endStream broadcasts the end of a stream, clears former viewers' room
// pointers and mirrors the lifecycle event.
func (c *SessionCoordinator) endStream(snap domain.StreamSnapshot, reason string) {
	streamID := snap.Summary.ID

	c.fan.broadcast(snap.Members, domain.Event{
		Type: domain.EventStreamEnded,
		Data: domain.StreamEndedData{StreamID: streamID, Reason: reason},
	})
	c.fan.broadcastAll(domain.Event{
		Type: domain.EventStreamRemoved,
		Data: domain.StreamRemovedData{StreamID: streamID},
	})

	for _, viewer := range snap.Viewers {
		c.clearRoom(viewer, streamID)
	}
	c.clearRoom(snap.Owner, streamID)

	c.presence.DropMirror(streamID)
	c.durable.StreamEvent(domain.StreamEvent{Kind: "ended", Summary: snap.Summary, Reason: reason, Timestamp: nowUnix()})
	c.metrics.StreamEnded(streamID)
	c.logger.Infow("stream ended", "stream_id", streamID, "reason", reason, "viewers", len(snap.Viewers), "guests", len(snap.Guests))
}

// clearRoom resets a connection's room pointer only while it still points
// at the given stream; the connection may have moved elsewhere already.
func (c *SessionCoordinator) clearRoom(conn domain.ConnectionID, streamID domain.StreamID) {
	if rec, ok := c.conns.Lookup(conn); ok && rec.Room == streamID {
		c.conns.SetRoom(conn, "", domain.RoleNone)
	}
}

func (c *SessionCoordinator) replyError(conn domain.ConnectionID, op string, err error) {
	data := classifyError(op, err)
	c.fan.sendTo(conn, domain.Event{Type: domain.EventError, Data: data})
	c.logger.Debugw("operation failed", "connection_id", conn, "op", op, "code", data.Code, "error", err)
}

// protocolError marks malformed inbound events; the connection stays
// open and only the sender hears about it.
type protocolError struct {
	message string
	cause   error
}

func (e *protocolError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func classifyError(op string, err error) domain.ErrorData {
	if appErr := apperrors.From(err); appErr != nil {
		return domain.ErrorData{Op: op, Code: string(appErr.Code), Message: appErr.Message}
	}

	var pErr *protocolError
	code := apperrors.CodeInternal
	switch {
	case errors.As(err, &pErr):
		code = apperrors.CodeProtocol
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrNotAuthenticated):
		code = apperrors.CodeUnauthorized
	case errors.Is(err, domain.ErrNotOwner), errors.Is(err, domain.ErrNotAMember):
		code = apperrors.CodeForbidden
	case errors.Is(err, domain.ErrStreamNotFound), errors.Is(err, domain.ErrStreamNotLive),
		errors.Is(err, domain.ErrGuestNotFound), errors.Is(err, domain.ErrTargetUnreachable),
		errors.Is(err, domain.ErrConnectionNotFound):
		code = apperrors.CodeNotFound
	case errors.Is(err, domain.ErrAlreadyLive), errors.Is(err, domain.ErrGuestElsewhere),
		errors.Is(err, domain.ErrDuplicateConnection), errors.Is(err, domain.ErrInvalidTransition):
		code = apperrors.CodeConflict
	}
	return domain.ErrorData{Op: op, Code: string(code), Message: err.Error()}
}

func nowUnix() int64 {
	return time.Now().Unix()
}
