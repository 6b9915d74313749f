package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/infrastructure/registry"
	"tradecast/pkg/logger"

	"github.com/stretchr/testify/require"
)

// capturingSender records every event enqueued for one connection.
type capturingSender struct {
	mu     sync.Mutex
	events []domain.Event
	fail   bool
}

func (s *capturingSender) Send(ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("buffer full")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *capturingSender) all() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *capturingSender) ofType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, ev := range s.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (s *capturingSender) last(t domain.EventType) (domain.Event, bool) {
	evs := s.ofType(t)
	if len(evs) == 0 {
		return domain.Event{}, false
	}
	return evs[len(evs)-1], true
}

func (s *capturingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// recordingGateway captures durable writes for assertions.
type recordingGateway struct {
	mu           sync.Mutex
	streamEvents []domain.StreamEvent
	chats        []domain.ChatMessage
	counts       map[domain.StreamID]int
	fail         bool
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{counts: make(map[domain.StreamID]int)}
}

func (g *recordingGateway) WriteStreamEvent(ctx context.Context, ev domain.StreamEvent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errors.New("gateway down")
	}
	g.streamEvents = append(g.streamEvents, ev)
	return nil
}

func (g *recordingGateway) WriteChatMessage(ctx context.Context, msg domain.ChatMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errors.New("gateway down")
	}
	g.chats = append(g.chats, msg)
	return nil
}

func (g *recordingGateway) MirrorViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errors.New("gateway down")
	}
	g.counts[streamID] = count
	return nil
}

func (g *recordingGateway) chatCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.chats)
}

func (g *recordingGateway) setFail(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = fail
}

// harness wires real registries with the services under test.
type harness struct {
	conns    *registry.ConnectionRegistry
	streams  *registry.StreamRegistry
	gateway  *recordingGateway
	durable  *DurableWriter
	presence *PresenceService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		conns:   registry.NewConnectionRegistry(),
		gateway: newRecordingGateway(),
	}
	h.streams = registry.NewStreamRegistry(h.conns.Contains)
	h.durable = NewDurableWriter(h.gateway, time.Second, nil, logger.Nop())
	// Long mirror interval: tests drive flushes explicitly via Close.
	h.presence = NewPresenceService(h.conns, h.streams, h.durable, time.Hour, nil, logger.Nop())
	t.Cleanup(h.presence.Close)
	return h
}

// connect registers a connection; identity may be empty for anonymous
// lurkers.
func (h *harness) connect(t *testing.T, id domain.ConnectionID, identity domain.Identity) *capturingSender {
	t.Helper()

	sender := &capturingSender{}
	require.NoError(t, h.conns.Register(&domain.Connection{ID: id}, sender))
	if identity != "" {
		require.NoError(t, h.conns.SetIdentity(id, identity))
	}
	return sender
}

// startStream registers a broadcaster and opens a stream for it.
func (h *harness) startStream(t *testing.T, streamID domain.StreamID, owner domain.ConnectionID) *capturingSender {
	t.Helper()

	sender := h.connect(t, owner, domain.Identity("identity-"+owner))
	_, err := h.streams.Start(&domain.Stream{
		ID:            streamID,
		OwnerConn:     owner,
		OwnerIdentity: domain.Identity("identity-" + owner),
		Metadata:      domain.StreamMetadata{Title: "market open"},
	})
	require.NoError(t, err)
	require.NoError(t, h.conns.SetRoom(owner, streamID, domain.RoleBroadcaster))
	return sender
}
