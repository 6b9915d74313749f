package services

import (
	"context"
	"testing"

	"tradecast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence_JoinRoomBroadcastsViewerCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ownerSender := h.startStream(t, "stream_a", "conn_owner")
	h.connect(t, "conn_v1", "")

	joined, err := h.presence.JoinRoom(ctx, "conn_v1", "stream_a")
	require.NoError(t, err)
	assert.Equal(t, 1, joined.ViewerCount)
	assert.Equal(t, "market open", joined.Summary.Metadata.Title)

	ev, ok := ownerSender.last(domain.EventViewerCountUpdated)
	require.True(t, ok)
	assert.Equal(t, 1, ev.Data.(domain.ViewerCountData).Count)

	rec, _ := h.conns.Lookup("conn_v1")
	assert.Equal(t, domain.StreamID("stream_a"), rec.Room)
	assert.Equal(t, domain.RoleViewer, rec.Role)
}

func TestPresence_JoinUnknownStream(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "conn_v1", "")

	_, err := h.presence.JoinRoom(context.Background(), "conn_v1", "stream_nope")
	assert.ErrorIs(t, err, domain.ErrStreamNotLive)
}

func TestPresence_RejoinSameRoomIsQuiet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ownerSender := h.startStream(t, "stream_a", "conn_owner")
	h.connect(t, "conn_v1", "")

	_, err := h.presence.JoinRoom(ctx, "conn_v1", "stream_a")
	require.NoError(t, err)
	ownerSender.reset()

	joined, err := h.presence.JoinRoom(ctx, "conn_v1", "stream_a")
	require.NoError(t, err)
	assert.Equal(t, 1, joined.ViewerCount)
	assert.Empty(t, ownerSender.ofType(domain.EventViewerCountUpdated))
}

func TestPresence_SwitchingRoomsLeavesThePreviousOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	senderA := h.startStream(t, "stream_a", "conn_owner_a")
	senderB := h.startStream(t, "stream_b", "conn_owner_b")
	h.connect(t, "conn_v1", "")

	_, err := h.presence.JoinRoom(ctx, "conn_v1", "stream_a")
	require.NoError(t, err)
	senderA.reset()

	_, err = h.presence.JoinRoom(ctx, "conn_v1", "stream_b")
	require.NoError(t, err)

	evA, ok := senderA.last(domain.EventViewerCountUpdated)
	require.True(t, ok)
	assert.Equal(t, 0, evA.Data.(domain.ViewerCountData).Count)

	evB, ok := senderB.last(domain.EventViewerCountUpdated)
	require.True(t, ok)
	assert.Equal(t, 1, evB.Data.(domain.ViewerCountData).Count)
}

func TestPresence_DoubleLeaveIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ownerSender := h.startStream(t, "stream_a", "conn_owner")
	h.connect(t, "conn_v1", "")

	_, err := h.presence.JoinRoom(ctx, "conn_v1", "stream_a")
	require.NoError(t, err)
	ownerSender.reset()

	h.presence.LeaveRoom(ctx, "conn_v1")
	h.presence.LeaveRoom(ctx, "conn_v1")

	assert.Len(t, ownerSender.ofType(domain.EventViewerCountUpdated), 1)
}

func TestPresence_LeaveWithoutRoomIsNoop(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "conn_v1", "")
	h.presence.LeaveRoom(context.Background(), "conn_v1")
}

func TestPresence_GuestRequestRequiresAuthentication(t *testing.T) {
	h := newHarness(t)
	h.startStream(t, "stream_a", "conn_owner")
	h.connect(t, "conn_g1", "")

	_, err := h.presence.RequestGuestSlot(context.Background(), "conn_g1", "stream_a", "Ana", domain.CapabilityAudio)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestPresence_GuestRequestNotifiesOwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ownerSender := h.startStream(t, "stream_a", "conn_owner")
	viewerSender := h.connect(t, "conn_v1", "")
	_, err := h.presence.JoinRoom(ctx, "conn_v1", "stream_a")
	require.NoError(t, err)

	h.connect(t, "conn_g1", "trader-ana")
	guestID, err := h.presence.RequestGuestSlot(ctx, "conn_g1", "stream_a", "Ana", domain.CapabilityAudioVideo)
	require.NoError(t, err)
	assert.Equal(t, domain.GuestID("conn_g1"), guestID)

	ev, ok := ownerSender.last(domain.EventGuestRequest)
	require.True(t, ok)
	data := ev.Data.(domain.GuestRequestData)
	assert.Equal(t, "Ana", data.DisplayName)
	assert.Equal(t, domain.CapabilityAudioVideo, data.Capability)

	assert.Empty(t, viewerSender.ofType(domain.EventGuestRequest))
}

func TestPresence_DecideGuestOwnerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.startStream(t, "stream_a", "conn_owner")
	h.connect(t, "conn_g1", "trader-ana")
	h.connect(t, "conn_rando", "trader-rando")

	_, err := h.presence.RequestGuestSlot(ctx, "conn_g1", "stream_a", "Ana", domain.CapabilityAudio)
	require.NoError(t, err)

	err = h.presence.DecideGuest(ctx, "stream_a", "conn_g1", domain.DecisionAccept, "conn_rando")
	assert.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestPresence_AcceptGuestNotifiesGuestAndRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.startStream(t, "stream_a", "conn_owner")
	viewerSender := h.connect(t, "conn_v1", "")
	_, err := h.presence.JoinRoom(ctx, "conn_v1", "stream_a")
	require.NoError(t, err)

	guestSender := h.connect(t, "conn_g1", "trader-ana")
	_, err = h.presence.RequestGuestSlot(ctx, "conn_g1", "stream_a", "Ana", domain.CapabilityAudio)
	require.NoError(t, err)

	err = h.presence.DecideGuest(ctx, "stream_a", "conn_g1", domain.DecisionAccept, "conn_owner")
	require.NoError(t, err)

	ev, ok := guestSender.last(domain.EventGuestDecision)
	require.True(t, ok)
	assert.Equal(t, domain.DecisionAccept, ev.Data.(domain.GuestDecisionData).Decision)

	roomEv, ok := viewerSender.last(domain.EventGuestJoined)
	require.True(t, ok)
	joined := roomEv.Data.(domain.GuestEventData)
	assert.Equal(t, "Ana", joined.DisplayName)
	assert.Equal(t, domain.GuestAccepted, joined.Status)
}

func TestPresence_DeclineRemovesTheRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.startStream(t, "stream_a", "conn_owner")
	guestSender := h.connect(t, "conn_g1", "trader-ana")
	_, err := h.presence.RequestGuestSlot(ctx, "conn_g1", "stream_a", "Ana", domain.CapabilityAudio)
	require.NoError(t, err)

	err = h.presence.DecideGuest(ctx, "stream_a", "conn_g1", domain.DecisionDecline, "conn_owner")
	require.NoError(t, err)

	ev, ok := guestSender.last(domain.EventGuestDecision)
	require.True(t, ok)
	assert.Equal(t, domain.DecisionDecline, ev.Data.(domain.GuestDecisionData).Decision)

	_, held := h.streams.GuestLocation("conn_g1")
	assert.False(t, held)

	// The declined guest can request again.
	_, err = h.presence.RequestGuestSlot(ctx, "conn_g1", "stream_a", "Ana", domain.CapabilityAudio)
	assert.NoError(t, err)
}

func TestPresence_DecisionForVanishedGuestIsSilent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.startStream(t, "stream_a", "conn_owner")

	err := h.presence.DecideGuest(ctx, "stream_a", "conn_ghost", domain.DecisionAccept, "conn_owner")
	assert.NoError(t, err)
	err = h.presence.DecideGuest(ctx, "stream_a", "conn_ghost", domain.DecisionDecline, "conn_owner")
	assert.NoError(t, err)
}

func TestPresence_MarkGuestConnectedBroadcasts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ownerSender := h.startStream(t, "stream_a", "conn_owner")
	h.connect(t, "conn_g1", "trader-ana")
	_, err := h.presence.RequestGuestSlot(ctx, "conn_g1", "stream_a", "Ana", domain.CapabilityAudio)
	require.NoError(t, err)
	require.NoError(t, h.presence.DecideGuest(ctx, "stream_a", "conn_g1", domain.DecisionAccept, "conn_owner"))
	ownerSender.reset()

	require.NoError(t, h.presence.MarkGuestConnected(ctx, "stream_a", "conn_g1"))

	ev, ok := ownerSender.last(domain.EventGuestJoined)
	require.True(t, ok)
	assert.Equal(t, domain.GuestConnected, ev.Data.(domain.GuestEventData).Status)

	// A second signal from the already-connected guest stays quiet.
	ownerSender.reset()
	require.NoError(t, h.presence.MarkGuestConnected(ctx, "stream_a", "conn_g1"))
	assert.Empty(t, ownerSender.ofType(domain.EventGuestJoined))
}

func TestPresence_MarkGuestConnectedSkipsPendingGuests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ownerSender := h.startStream(t, "stream_a", "conn_owner")
	h.connect(t, "conn_g1", "trader-ana")
	_, err := h.presence.RequestGuestSlot(ctx, "conn_g1", "stream_a", "Ana", domain.CapabilityAudio)
	require.NoError(t, err)
	ownerSender.reset()

	// Signaling from a guest that was never accepted must not promote it.
	require.NoError(t, h.presence.MarkGuestConnected(ctx, "stream_a", "conn_g1"))
	assert.Empty(t, ownerSender.ofType(domain.EventGuestJoined))
}

func TestPresence_RemoveGuestPermissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.startStream(t, "stream_a", "conn_owner")
	h.connect(t, "conn_g1", "trader-ana")
	h.connect(t, "conn_rando", "trader-rando")
	_, err := h.presence.RequestGuestSlot(ctx, "conn_g1", "stream_a", "Ana", domain.CapabilityAudio)
	require.NoError(t, err)

	// A stranger may not remove the guest.
	err = h.presence.RemoveGuest(ctx, "stream_a", "conn_g1", "conn_rando", false)
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	// The guest may remove itself.
	err = h.presence.RemoveGuest(ctx, "stream_a", "conn_g1", "conn_g1", false)
	assert.NoError(t, err)
	_, held := h.streams.GuestLocation("conn_g1")
	assert.False(t, held)
}

func TestPresence_RemoveGuestNotifiesRoomAndGuest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ownerSender := h.startStream(t, "stream_a", "conn_owner")
	guestSender := h.connect(t, "conn_g1", "trader-ana")
	_, err := h.presence.RequestGuestSlot(ctx, "conn_g1", "stream_a", "Ana", domain.CapabilityAudio)
	require.NoError(t, err)
	require.NoError(t, h.presence.DecideGuest(ctx, "stream_a", "conn_g1", domain.DecisionAccept, "conn_owner"))
	ownerSender.reset()

	require.NoError(t, h.presence.RemoveGuest(ctx, "stream_a", "conn_g1", "conn_owner", false))

	_, ok := ownerSender.last(domain.EventGuestLeft)
	assert.True(t, ok)
	_, ok = guestSender.last(domain.EventGuestLeft)
	assert.True(t, ok)
}

func TestPresence_EvictViewerUsesLastKnownRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ownerSender := h.startStream(t, "stream_a", "conn_owner")
	h.connect(t, "conn_v1", "")
	_, err := h.presence.JoinRoom(ctx, "conn_v1", "stream_a")
	require.NoError(t, err)

	// Connection record is gone before cleanup runs, as on disconnect.
	h.conns.Unregister("conn_v1")
	ownerSender.reset()

	h.presence.EvictViewer(ctx, "conn_v1", "stream_a")

	ev, ok := ownerSender.last(domain.EventViewerCountUpdated)
	require.True(t, ok)
	assert.Equal(t, 0, ev.Data.(domain.ViewerCountData).Count)

	// A second eviction finds nothing and stays quiet.
	ownerSender.reset()
	h.presence.EvictViewer(ctx, "conn_v1", "stream_a")
	assert.Empty(t, ownerSender.ofType(domain.EventViewerCountUpdated))
}

func TestPresence_ViewerCountMirrorFlushesLatestValue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.startStream(t, "stream_a", "conn_owner")
	for _, id := range []domain.ConnectionID{"conn_v1", "conn_v2", "conn_v3"} {
		h.connect(t, id, "")
		_, err := h.presence.JoinRoom(ctx, id, "stream_a")
		require.NoError(t, err)
	}
	h.presence.LeaveRoom(ctx, "conn_v3")

	// Close flushes the coalescer; only the final value lands in the
	// durable mirror regardless of how many changes occurred.
	h.presence.Close()

	h.gateway.mu.Lock()
	defer h.gateway.mu.Unlock()
	assert.Equal(t, 2, h.gateway.counts["stream_a"])
}

func TestPresence_DropMirrorPreventsLateWrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.startStream(t, "stream_a", "conn_owner")
	h.connect(t, "conn_v1", "")
	_, err := h.presence.JoinRoom(ctx, "conn_v1", "stream_a")
	require.NoError(t, err)

	h.presence.DropMirror("stream_a")
	h.presence.Close()

	h.gateway.mu.Lock()
	defer h.gateway.mu.Unlock()
	_, written := h.gateway.counts["stream_a"]
	assert.False(t, written)
}
