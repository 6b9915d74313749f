package registry

import (
	"sync"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
)

type connEntry struct {
	conn   domain.Connection
	sender ports.Sender
}

// ConnectionRegistry is the in-memory implementation of
// ports.ConnectionRegistry. One identity may hold several simultaneous
// connections (multiple tabs), so the identity index is a set.
type ConnectionRegistry struct {
	mu         sync.RWMutex
	conns      map[domain.ConnectionID]*connEntry
	byIdentity map[domain.Identity]map[domain.ConnectionID]struct{}
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:      make(map[domain.ConnectionID]*connEntry),
		byIdentity: make(map[domain.Identity]map[domain.ConnectionID]struct{}),
	}
}

var _ ports.ConnectionRegistry = (*ConnectionRegistry)(nil)

func (r *ConnectionRegistry) Register(conn *domain.Connection, sender ports.Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID]; exists {
		return domain.ErrDuplicateConnection
	}

	c := *conn
	if c.ConnectedAt.IsZero() {
		c.ConnectedAt = time.Now()
	}
	if c.Role == "" {
		c.Role = domain.RoleNone
	}
	r.conns[conn.ID] = &connEntry{conn: c, sender: sender}
	if c.Identity != "" {
		r.indexIdentity(c.Identity, c.ID)
	}
	return nil
}

func (r *ConnectionRegistry) Unregister(id domain.ConnectionID) *domain.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.conns[id]
	if !exists {
		return nil
	}
	delete(r.conns, id)
	if entry.conn.Identity != "" {
		r.unindexIdentity(entry.conn.Identity, id)
	}
	removed := entry.conn
	return &removed
}

func (r *ConnectionRegistry) Lookup(id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.conns[id]
	if !exists {
		return domain.Connection{}, false
	}
	return entry.conn, true
}

func (r *ConnectionRegistry) Sender(id domain.ConnectionID) (ports.Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.conns[id]
	if !exists {
		return nil, false
	}
	return entry.sender, true
}

func (r *ConnectionRegistry) SetIdentity(id domain.ConnectionID, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.conns[id]
	if !exists {
		return domain.ErrConnectionNotFound
	}
	if entry.conn.Identity != "" {
		r.unindexIdentity(entry.conn.Identity, id)
	}
	entry.conn.Identity = identity
	if identity != "" {
		r.indexIdentity(identity, id)
	}
	return nil
}

func (r *ConnectionRegistry) SetRoom(id domain.ConnectionID, room domain.StreamID, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.conns[id]
	if !exists {
		return domain.ErrConnectionNotFound
	}
	entry.conn.Room = room
	entry.conn.Role = role
	return nil
}

func (r *ConnectionRegistry) ConnectionsForIdentity(identity domain.Identity) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, exists := r.byIdentity[identity]
	if !exists {
		return nil
	}
	ids := make([]domain.ConnectionID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func (r *ConnectionRegistry) Contains(id domain.ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.conns[id]
	return exists
}

func (r *ConnectionRegistry) All() []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ConnectionID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *ConnectionRegistry) indexIdentity(identity domain.Identity, id domain.ConnectionID) {
	set, exists := r.byIdentity[identity]
	if !exists {
		set = make(map[domain.ConnectionID]struct{})
		r.byIdentity[identity] = set
	}
	set[id] = struct{}{}
}

func (r *ConnectionRegistry) unindexIdentity(identity domain.Identity, id domain.ConnectionID) {
	set, exists := r.byIdentity[identity]
	if !exists {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.byIdentity, identity)
	}
}
