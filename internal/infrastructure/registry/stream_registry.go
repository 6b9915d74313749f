package registry

import (
	"sync"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
)

// streamEntry serializes every mutation of one stream through its own
// mutex, so concurrent joins/leaves/guest decisions on the same stream
// serialize while different streams proceed in parallel.
type streamEntry struct {
	mu sync.Mutex
	s  *domain.Stream
}

// StreamRegistry is the in-memory source of truth for live streams.
// The liveness probe is consulted inside the critical section of Start to
// settle duplicate-start races from flaky networks.
type StreamRegistry struct {
	alive func(domain.ConnectionID) bool

	mu      sync.RWMutex
	streams map[domain.StreamID]*streamEntry
	byOwner map[domain.ConnectionID]domain.StreamID

	guests guestIndex
}

// NewStreamRegistry builds a registry. alive reports whether a connection
// id is still present in the connection registry.
func NewStreamRegistry(alive func(domain.ConnectionID) bool) *StreamRegistry {
	return &StreamRegistry{
		alive:   alive,
		streams: make(map[domain.StreamID]*streamEntry),
		byOwner: make(map[domain.ConnectionID]domain.StreamID),
		guests:  guestIndex{m: make(map[domain.GuestID]domain.StreamID)},
	}
}

var _ ports.StreamRegistry = (*StreamRegistry)(nil)

func (r *StreamRegistry) Start(stream *domain.Stream) (domain.StreamSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// One broadcaster connection owns at most one live stream.
	if _, owns := r.byOwner[stream.OwnerConn]; owns {
		return domain.StreamSnapshot{}, domain.ErrAlreadyLive
	}

	if existing, ok := r.streams[stream.ID]; ok {
		existing.mu.Lock()
		prevOwner := existing.s.OwnerConn
		if existing.s.Live && r.alive(prevOwner) {
			existing.mu.Unlock()
			return domain.StreamSnapshot{}, domain.ErrAlreadyLive
		}
		// Previous owner confirmed dead: treat as reconnection, evicting
		// the stale entry with its guests.
		existing.s.Live = false
		staleGuests := make([]domain.GuestID, 0, len(existing.s.Guests))
		for gid := range existing.s.Guests {
			staleGuests = append(staleGuests, gid)
		}
		existing.s.Viewers = make(map[domain.ConnectionID]struct{})
		existing.s.Guests = make(map[domain.GuestID]*domain.GuestRecord)
		existing.mu.Unlock()

		delete(r.streams, stream.ID)
		delete(r.byOwner, prevOwner)
		r.guests.releaseAll(staleGuests, stream.ID)
	}

	s := *stream
	s.Live = true
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	if s.Viewers == nil {
		s.Viewers = make(map[domain.ConnectionID]struct{})
	}
	if s.Guests == nil {
		s.Guests = make(map[domain.GuestID]*domain.GuestRecord)
	}

	entry := &streamEntry{s: &s}
	r.streams[s.ID] = entry
	r.byOwner[s.OwnerConn] = s.ID

	return snapshot(&s), nil
}

func (r *StreamRegistry) Stop(streamID domain.StreamID, requestedBy domain.ConnectionID, force bool) (domain.StreamSnapshot, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return domain.StreamSnapshot{}, err
	}

	entry.mu.Lock()
	if !entry.s.Live {
		entry.mu.Unlock()
		return domain.StreamSnapshot{}, domain.ErrStreamNotFound
	}
	if !force && entry.s.OwnerConn != requestedBy {
		entry.mu.Unlock()
		return domain.StreamSnapshot{}, domain.ErrNotOwner
	}

	// Mark dead and clear membership under the stream lock so no partial
	// state (stream gone but viewers still "in" it) is observable.
	entry.s.Live = false
	snap := snapshot(entry.s)
	removedGuests := make([]domain.GuestID, 0, len(entry.s.Guests))
	for gid := range entry.s.Guests {
		removedGuests = append(removedGuests, gid)
	}
	entry.s.Viewers = make(map[domain.ConnectionID]struct{})
	entry.s.Guests = make(map[domain.GuestID]*domain.GuestRecord)
	entry.mu.Unlock()

	r.mu.Lock()
	if cur, ok := r.streams[streamID]; ok && cur == entry {
		delete(r.streams, streamID)
		delete(r.byOwner, snap.Owner)
	}
	r.mu.Unlock()

	r.guests.releaseAll(removedGuests, streamID)

	return snap, nil
}

func (r *StreamRegistry) Get(streamID domain.StreamID) (domain.StreamSummary, bool) {
	entry, err := r.entry(streamID)
	if err != nil {
		return domain.StreamSummary{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.s.Live {
		return domain.StreamSummary{}, false
	}
	return entry.s.Summary(), true
}

func (r *StreamRegistry) ListLive() []domain.StreamSummary {
	r.mu.RLock()
	entries := make([]*streamEntry, 0, len(r.streams))
	for _, e := range r.streams {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]domain.StreamSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.s.Live {
			out = append(out, e.s.Summary())
		}
		e.mu.Unlock()
	}
	return out
}

func (r *StreamRegistry) StreamOwnedBy(conn domain.ConnectionID) (domain.StreamID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byOwner[conn]
	return id, ok
}

func (r *StreamRegistry) UpdateMetadata(streamID domain.StreamID, requestedBy domain.ConnectionID, md domain.StreamMetadata) (domain.StreamSnapshot, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return domain.StreamSnapshot{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.s.Live {
		return domain.StreamSnapshot{}, domain.ErrStreamNotLive
	}
	if entry.s.OwnerConn != requestedBy {
		return domain.StreamSnapshot{}, domain.ErrNotOwner
	}
	entry.s.Metadata = md
	return snapshot(entry.s), nil
}

func (r *StreamRegistry) AddViewer(streamID domain.StreamID, conn domain.ConnectionID) (domain.StreamSnapshot, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return domain.StreamSnapshot{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.s.Live {
		return domain.StreamSnapshot{}, domain.ErrStreamNotLive
	}
	if conn != entry.s.OwnerConn {
		entry.s.Viewers[conn] = struct{}{}
	}
	return snapshot(entry.s), nil
}

func (r *StreamRegistry) RemoveViewer(streamID domain.StreamID, conn domain.ConnectionID) (domain.StreamSnapshot, bool, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return domain.StreamSnapshot{}, false, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.s.Live {
		return domain.StreamSnapshot{}, false, domain.ErrStreamNotLive
	}
	_, present := entry.s.Viewers[conn]
	if present {
		delete(entry.s.Viewers, conn)
	}
	return snapshot(entry.s), present, nil
}

func (r *StreamRegistry) AddGuest(streamID domain.StreamID, rec *domain.GuestRecord) (domain.StreamSnapshot, error) {
	if err := r.guests.claim(rec.ID, streamID); err != nil {
		return domain.StreamSnapshot{}, err
	}

	entry, err := r.entry(streamID)
	if err != nil {
		r.guests.release(rec.ID, streamID)
		return domain.StreamSnapshot{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.s.Live {
		r.guests.release(rec.ID, streamID)
		return domain.StreamSnapshot{}, domain.ErrStreamNotLive
	}

	g := *rec
	g.Status = domain.GuestPending
	if g.RequestedAt.IsZero() {
		g.RequestedAt = time.Now()
	}
	entry.s.Guests[g.ID] = &g
	return snapshot(entry.s), nil
}

func (r *StreamRegistry) AdvanceGuest(streamID domain.StreamID, guestID domain.GuestID, to domain.GuestStatus) (domain.GuestRecord, domain.StreamSnapshot, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return domain.GuestRecord{}, domain.StreamSnapshot{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.s.Live {
		return domain.GuestRecord{}, domain.StreamSnapshot{}, domain.ErrStreamNotLive
	}
	g, ok := entry.s.Guests[guestID]
	if !ok {
		return domain.GuestRecord{}, domain.StreamSnapshot{}, domain.ErrGuestNotFound
	}

	valid := (g.Status == domain.GuestPending && to == domain.GuestAccepted) ||
		(g.Status == domain.GuestAccepted && to == domain.GuestConnected)
	if !valid {
		return domain.GuestRecord{}, domain.StreamSnapshot{}, domain.ErrInvalidTransition
	}
	g.Status = to
	return *g, snapshot(entry.s), nil
}

func (r *StreamRegistry) DeleteGuest(streamID domain.StreamID, guestID domain.GuestID) (domain.GuestRecord, domain.StreamSnapshot, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return domain.GuestRecord{}, domain.StreamSnapshot{}, err
	}
	entry.mu.Lock()
	g, ok := entry.s.Guests[guestID]
	if !ok {
		entry.mu.Unlock()
		return domain.GuestRecord{}, domain.StreamSnapshot{}, domain.ErrGuestNotFound
	}
	removed := *g
	delete(entry.s.Guests, guestID)
	snap := snapshot(entry.s)
	entry.mu.Unlock()

	r.guests.release(guestID, streamID)
	return removed, snap, nil
}

func (r *StreamRegistry) GuestLocation(guestID domain.GuestID) (domain.StreamID, bool) {
	return r.guests.lookup(guestID)
}

func (r *StreamRegistry) Members(streamID domain.StreamID) ([]domain.ConnectionID, error) {
	entry, err := r.entry(streamID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.s.Live {
		return nil, domain.ErrStreamNotLive
	}
	return entry.s.MemberSet(), nil
}

func (r *StreamRegistry) entry(streamID domain.StreamID) (*streamEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.streams[streamID]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	return entry, nil
}

// snapshot copies stream state under the caller-held stream lock.
func snapshot(s *domain.Stream) domain.StreamSnapshot {
	snap := domain.StreamSnapshot{
		Summary: s.Summary(),
		Owner:   s.OwnerConn,
		Members: s.MemberSet(),
		Viewers: make([]domain.ConnectionID, 0, len(s.Viewers)),
		Guests:  make([]domain.GuestRecord, 0, len(s.Guests)),
	}
	for id := range s.Viewers {
		snap.Viewers = append(snap.Viewers, id)
	}
	for _, g := range s.Guests {
		snap.Guests = append(snap.Guests, *g)
	}
	return snap
}

// guestIndex enforces the invariant that a guest id lives in at most one
// stream's guest list at a time.
type guestIndex struct {
	mu sync.Mutex
	m  map[domain.GuestID]domain.StreamID
}

func (gi *guestIndex) claim(id domain.GuestID, streamID domain.StreamID) error {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	if _, exists := gi.m[id]; exists {
		return domain.ErrGuestElsewhere
	}
	gi.m[id] = streamID
	return nil
}

func (gi *guestIndex) release(id domain.GuestID, streamID domain.StreamID) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	if cur, exists := gi.m[id]; exists && cur == streamID {
		delete(gi.m, id)
	}
}

func (gi *guestIndex) releaseAll(ids []domain.GuestID, streamID domain.StreamID) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	for _, id := range ids {
		if cur, exists := gi.m[id]; exists && cur == streamID {
			delete(gi.m, id)
		}
	}
}

func (gi *guestIndex) lookup(id domain.GuestID) (domain.StreamID, bool) {
	gi.mu.Lock()
	defer gi.mu.Unlock()
	streamID, ok := gi.m[id]
	return streamID, ok
}
