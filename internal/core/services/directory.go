package services

import (
	"context"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"
)

// directory is the read-only view handed to the HTTP layer.
type directory struct {
	conns   ports.ConnectionRegistry
	streams ports.StreamRegistry
}

func NewStreamDirectory(conns ports.ConnectionRegistry, streams ports.StreamRegistry) ports.StreamDirectory {
	return &directory{conns: conns, streams: streams}
}

func (d *directory) ListActiveStreams(ctx context.Context) []domain.StreamSummary {
	return d.streams.ListLive()
}

func (d *directory) GetStreamByID(ctx context.Context, id domain.StreamID) (domain.StreamSummary, bool) {
	return d.streams.Get(id)
}

func (d *directory) IsIdentityOnline(ctx context.Context, identity domain.Identity) bool {
	return len(d.conns.ConnectionsForIdentity(identity)) > 0
}
