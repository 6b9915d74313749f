package services

import (
	"context"
	"time"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
	"tradecast/pkg/batch"
	"tradecast/pkg/validation"

	"go.uber.org/zap"
)

// PresenceService runs room membership and the guest lifecycle. Registry
// mutations return snapshots taken under the per-stream lock; every
// broadcast below works from such a snapshot after the lock is gone.
//
// The in-memory viewer count is always exact (len of the viewer set).
// Only the durable mirror is sampled: count changes land in a coalescer
// that flushes the latest value per stream on a fixed interval, bounding
// write amplification on busy rooms.
type PresenceService struct {
	conns   ports.ConnectionRegistry
	streams ports.StreamRegistry
	durable *DurableWriter
	counts  *batch.Coalescer
	fan     *fanout
	metrics ports.MetricsCollector
	logger  *zap.SugaredLogger
}

func NewPresenceService(
	conns ports.ConnectionRegistry,
	streams ports.StreamRegistry,
	durable *DurableWriter,
	mirrorInterval time.Duration,
	metrics ports.MetricsCollector,
	logger *zap.SugaredLogger,
) *PresenceService {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	p := &PresenceService{
		conns:   conns,
		streams: streams,
		durable: durable,
		fan:     newFanout(conns, logger),
		metrics: metrics,
		logger:  logger,
	}
	p.counts = batch.NewCoalescer(mirrorInterval, func(ctx context.Context, pending map[string]int) {
		for streamID, count := range pending {
			durable.ViewerCount(ctx, domain.StreamID(streamID), count)
		}
	})
	return p
}

var _ ports.Presence = (*PresenceService)(nil)

// Close flushes the sampled viewer-count mirror and stops its loop.
func (p *PresenceService) Close() {
	p.counts.Stop()
}

// DropMirror discards pending mirror writes for a stream that no longer
// exists, so a late flush cannot resurrect its count.
func (p *PresenceService) DropMirror(streamID domain.StreamID) {
	p.counts.Drop(string(streamID))
}

func (p *PresenceService) JoinRoom(ctx context.Context, conn domain.ConnectionID, streamID domain.StreamID) (domain.JoinedStreamData, error) {
	c, ok := p.conns.Lookup(conn)
	if !ok {
		return domain.JoinedStreamData{}, domain.ErrConnectionNotFound
	}

	// Rejoining the current room is a no-op with no duplicate broadcast.
	if c.Room == streamID && c.Role == domain.RoleViewer {
		summary, live := p.streams.Get(streamID)
		if !live {
			return domain.JoinedStreamData{}, domain.ErrStreamNotLive
		}
		return domain.JoinedStreamData{Summary: summary, ViewerCount: summary.ViewerCount}, nil
	}

	// Switching rooms implies an implicit leave of the previous one.
	p.LeaveRoom(ctx, conn)

	snap, err := p.streams.AddViewer(streamID, conn)
	if err != nil {
		if err == domain.ErrStreamNotFound {
			err = domain.ErrStreamNotLive
		}
		return domain.JoinedStreamData{}, err
	}

	if err := p.conns.SetRoom(conn, streamID, domain.RoleViewer); err != nil {
		// The connection vanished mid-join; undo the membership.
		p.streams.RemoveViewer(streamID, conn)
		return domain.JoinedStreamData{}, domain.ErrConnectionNotFound
	}

	p.publishViewerCount(snap)
	return domain.JoinedStreamData{Summary: snap.Summary, ViewerCount: snap.Summary.ViewerCount}, nil
}

func (p *PresenceService) LeaveRoom(ctx context.Context, conn domain.ConnectionID) {
	c, ok := p.conns.Lookup(conn)
	if !ok || c.Room == "" || c.Role != domain.RoleViewer {
		return
	}
	p.conns.SetRoom(conn, "", domain.RoleNone)
	p.evict(conn, c.Room)
}

// EvictViewer removes a viewer using last-known state, for disconnect
// cleanup after the connection record is already gone.
func (p *PresenceService) EvictViewer(ctx context.Context, conn domain.ConnectionID, room domain.StreamID) {
	p.evict(conn, room)
}

func (p *PresenceService) evict(conn domain.ConnectionID, room domain.StreamID) {
	snap, removed, err := p.streams.RemoveViewer(room, conn)
	if err != nil || !removed {
		// Already gone, or the stream ended first. Either way there is
		// nothing to broadcast.
		return
	}
	p.publishViewerCount(snap)
}

func (p *PresenceService) RequestGuestSlot(ctx context.Context, conn domain.ConnectionID, streamID domain.StreamID, displayName string, capability domain.GuestCapability) (domain.GuestID, error) {
	c, ok := p.conns.Lookup(conn)
	if !ok {
		return "", domain.ErrConnectionNotFound
	}
	if !c.Authenticated() {
		return "", domain.ErrNotAuthenticated
	}
	if err := validation.ValidateDisplayName(displayName); err != nil {
		return "", err
	}
	if capability != domain.CapabilityAudio && capability != domain.CapabilityAudioVideo {
		capability = domain.CapabilityAudio
	}

	rec := &domain.GuestRecord{
		ID:          domain.GuestID(conn),
		DisplayName: displayName,
		Capability:  capability,
	}
	snap, err := p.streams.AddGuest(streamID, rec)
	if err != nil {
		if err == domain.ErrStreamNotFound {
			err = domain.ErrStreamNotLive
		}
		return "", err
	}

	p.fan.sendTo(snap.Owner, domain.Event{
		Type: domain.EventGuestRequest,
		Data: domain.GuestRequestData{
			StreamID:    streamID,
			GuestID:     rec.ID,
			DisplayName: displayName,
			Capability:  capability,
		},
	})
	return rec.ID, nil
}

func (p *PresenceService) DecideGuest(ctx context.Context, streamID domain.StreamID, guestID domain.GuestID, decision domain.GuestDecision, decidedBy domain.ConnectionID) error {
	if owned, ok := p.streams.StreamOwnedBy(decidedBy); !ok || owned != streamID {
		return domain.ErrNotOwner
	}

	switch decision {
	case domain.DecisionAccept:
		rec, snap, err := p.streams.AdvanceGuest(streamID, guestID, domain.GuestAccepted)
		if err != nil {
			// A decision racing the guest's disconnect is expected; a
			// missing record is a silent no-op, not an error.
			if err == domain.ErrGuestNotFound {
				p.logger.Debugw("guest decision for removed guest", "stream_id", streamID, "guest_id", guestID)
				return nil
			}
			return err
		}
		p.fan.sendTo(domain.ConnectionID(guestID), domain.Event{
			Type: domain.EventGuestDecision,
			Data: domain.GuestDecisionData{StreamID: streamID, GuestID: guestID, Decision: decision},
		})
		p.fan.broadcast(snap.Members, domain.Event{
			Type: domain.EventGuestJoined,
			Data: domain.GuestEventData{StreamID: streamID, GuestID: guestID, DisplayName: rec.DisplayName, Status: rec.Status},
		})
		return nil

	case domain.DecisionDecline:
		if _, _, err := p.streams.DeleteGuest(streamID, guestID); err != nil {
			if err == domain.ErrGuestNotFound || err == domain.ErrStreamNotFound {
				return nil
			}
			return err
		}
		p.fan.sendTo(domain.ConnectionID(guestID), domain.Event{
			Type: domain.EventGuestDecision,
			Data: domain.GuestDecisionData{StreamID: streamID, GuestID: guestID, Decision: decision},
		})
		return nil

	default:
		return domain.ErrInvalidTransition
	}
}

func (p *PresenceService) MarkGuestConnected(ctx context.Context, streamID domain.StreamID, guestID domain.GuestID) error {
	rec, snap, err := p.streams.AdvanceGuest(streamID, guestID, domain.GuestConnected)
	if err != nil {
		// Duplicate signaling after the guest is already connected, or a
		// race with removal. Both are silent no-ops.
		return nil
	}
	p.fan.broadcast(snap.Members, domain.Event{
		Type: domain.EventGuestJoined,
		Data: domain.GuestEventData{StreamID: streamID, GuestID: guestID, DisplayName: rec.DisplayName, Status: rec.Status},
	})
	return nil
}

func (p *PresenceService) RemoveGuest(ctx context.Context, streamID domain.StreamID, guestID domain.GuestID, removedBy domain.ConnectionID, force bool) error {
	if !force {
		owned, ok := p.streams.StreamOwnedBy(removedBy)
		ownerActs := ok && owned == streamID
		selfActs := removedBy == domain.ConnectionID(guestID)
		if !ownerActs && !selfActs {
			return domain.ErrNotOwner
		}
	}

	rec, snap, err := p.streams.DeleteGuest(streamID, guestID)
	if err != nil {
		// Removal racing a disconnect or stream end is a silent no-op.
		return nil
	}

	p.fan.broadcast(snap.Members, domain.Event{
		Type: domain.EventGuestLeft,
		Data: domain.GuestEventData{StreamID: streamID, GuestID: guestID, DisplayName: rec.DisplayName},
	})
	// The guest itself is no longer in the member set; tell it directly.
	p.fan.sendTo(domain.ConnectionID(guestID), domain.Event{
		Type: domain.EventGuestLeft,
		Data: domain.GuestEventData{StreamID: streamID, GuestID: guestID},
	})
	return nil
}

func (p *PresenceService) publishViewerCount(snap domain.StreamSnapshot) {
	count := snap.Summary.ViewerCount
	p.fan.broadcast(snap.Members, domain.Event{
		Type: domain.EventViewerCountUpdated,
		Data: domain.ViewerCountData{StreamID: snap.Summary.ID, Count: count},
	})
	p.counts.Put(string(snap.Summary.ID), count)
	p.metrics.ViewerCount(snap.Summary.ID, count)
}
