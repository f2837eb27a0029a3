package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDenormalizeRoundTrip(t *testing.T) {
	const w, h = 1280.0, 720.0
	px, py := 342.0, 517.0

	p := Normalize(px, py, w, h)
	gotX, gotY := Denormalize(p, w, h, 100)

	assert.InDelta(t, px, gotX, 1e-9)
	assert.InDelta(t, py, gotY, 1e-9)
}

func TestDenormalizeAppliesViewerZoom(t *testing.T) {
	p := Normalize(100, 50, 1000, 500)

	// another viewer at 50% zoom sees the cursor at half the pixel offset
	gotX, gotY := Denormalize(p, 1000, 500, 50)

	assert.InDelta(t, 50.0, gotX, 1e-9)
	assert.InDelta(t, 25.0, gotY, 1e-9)
}

func TestNormalizedCoordinatesAreZoomIndependent(t *testing.T) {
	// the same physical point in two differently sized containers
	a := Normalize(200, 100, 800, 400)
	b := Normalize(400, 200, 1600, 800)

	assert.InDelta(t, a.X, b.X, 1e-9)
	assert.InDelta(t, a.Y, b.Y, 1e-9)
}

func TestSentinelDetection(t *testing.T) {
	assert.True(t, Sentinel.IsSentinel())
	assert.False(t, Point{X: 0, Y: 0}.IsSentinel())
	assert.False(t, Point{X: 0.5, Y: 0.99}.IsSentinel())
}

func newTestHub() *Hub {
	return NewHub("deck-1", nil, zerolog.Nop())
}

func cursorMsg(clientID string, seq uint64, pos Point) Message {
	return Message{
		Kind:     KindCursor,
		ClientID: clientID,
		UserID:   7,
		Seq:      seq,
		Pos:      pos,
		Zoom:     100,
	}
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	hub := newTestHub()
	_, ch := hub.Subscribe()

	msg := cursorMsg("c1", 1, Point{X: 0.5, Y: 0.5})

	// same message arriving via both delivery paths
	hub.Apply(msg)
	hub.Apply(msg)

	assert.Len(t, ch, 1)
	assert.Len(t, hub.Peers(), 1)
}

func TestStaleSequenceIsDropped(t *testing.T) {
	hub := newTestHub()

	hub.Apply(cursorMsg("c1", 5, Point{X: 0.2, Y: 0.2}))
	hub.Apply(cursorMsg("c1", 3, Point{X: 0.9, Y: 0.9}))

	peers := hub.Peers()
	require.Len(t, peers, 1)
	assert.InDelta(t, 0.2, peers[0].Pos.X, 1e-9)
}

func TestSentinelHidesPeer(t *testing.T) {
	hub := newTestHub()

	hub.Apply(cursorMsg("c1", 1, Point{X: 0.4, Y: 0.4}))
	require.Len(t, hub.Peers(), 1)

	hub.Apply(cursorMsg("c1", 2, Sentinel))
	assert.Empty(t, hub.Peers())
}

func TestLateDuplicateAfterDepartureStaysDropped(t *testing.T) {
	hub := newTestHub()

	hub.Apply(cursorMsg("c1", 5, Point{X: 0.5, Y: 0.5}))
	hub.Apply(cursorMsg("c1", 6, Sentinel))
	require.Empty(t, hub.Peers())

	// the redis-channel copy of an older message arrives after the
	// direct-path sentinel; it must not resurrect the departed peer
	hub.Apply(cursorMsg("c1", 5, Point{X: 0.5, Y: 0.5}))
	assert.Empty(t, hub.Peers())
}

func TestPeerCanRejoinAfterDeparture(t *testing.T) {
	hub := newTestHub()

	hub.Apply(cursorMsg("c1", 5, Point{X: 0.5, Y: 0.5}))
	hub.Apply(cursorMsg("c1", 6, Sentinel))

	hub.Apply(cursorMsg("c1", 7, Point{X: 0.1, Y: 0.1}))
	peers := hub.Peers()
	require.Len(t, peers, 1)
	assert.InDelta(t, 0.1, peers[0].Pos.X, 1e-9)
}

func TestDepartureTombstoneIsEvicted(t *testing.T) {
	hub := newTestHub()
	current := time.Now()
	hub.now = func() time.Time { return current }

	hub.Apply(cursorMsg("c1", 5, Point{X: 0.5, Y: 0.5}))
	hub.Apply(cursorMsg("c1", 6, Sentinel))

	hub.mu.Lock()
	_, held := hub.peers["c1"]
	hub.mu.Unlock()
	require.True(t, held)

	current = current.Add(tombstoneTTL + time.Second)
	hub.Apply(cursorMsg("c2", 1, Point{X: 0.3, Y: 0.3}))

	hub.mu.Lock()
	_, held = hub.peers["c1"]
	hub.mu.Unlock()
	assert.False(t, held)
}

func TestCursorBroadcastIsThrottled(t *testing.T) {
	hub := newTestHub()
	current := time.Now()
	hub.now = func() time.Time { return current }

	hub.Broadcast(context.Background(), cursorMsg("c1", 1, Point{X: 0.1, Y: 0.1}))
	// 5ms later, inside the 16ms window
	current = current.Add(5 * time.Millisecond)
	hub.Broadcast(context.Background(), cursorMsg("c1", 2, Point{X: 0.2, Y: 0.2}))

	peers := hub.Peers()
	require.Len(t, peers, 1)
	assert.InDelta(t, 0.1, peers[0].Pos.X, 1e-9)

	// past the window the next update goes through
	current = current.Add(20 * time.Millisecond)
	hub.Broadcast(context.Background(), cursorMsg("c1", 3, Point{X: 0.3, Y: 0.3}))
	peers = hub.Peers()
	require.Len(t, peers, 1)
	assert.InDelta(t, 0.3, peers[0].Pos.X, 1e-9)
}

func TestSentinelBypassesThrottle(t *testing.T) {
	hub := newTestHub()
	current := time.Now()
	hub.now = func() time.Time { return current }

	hub.Broadcast(context.Background(), cursorMsg("c1", 1, Point{X: 0.1, Y: 0.1}))
	current = current.Add(time.Millisecond)
	hub.Broadcast(context.Background(), cursorMsg("c1", 2, Sentinel))

	assert.Empty(t, hub.Peers())
}

func TestSelectionIsScopedToSlide(t *testing.T) {
	hub := newTestHub()

	hub.Apply(Message{
		Kind:         KindSelection,
		ClientID:     "c1",
		Seq:          1,
		SlideID:      "slide-3",
		ComponentIDs: []string{"a", "b"},
	})

	peers := hub.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "slide-3", peers[0].SlideID)
	assert.Equal(t, []string{"a", "b"}, peers[0].ComponentIDs)
}

func TestMessageCodecRoundTrip(t *testing.T) {
	msg := Message{
		Kind:         KindSelection,
		ClientID:     "client-9",
		UserID:       42,
		Name:         "Ada",
		Color:        "#ff8800",
		Seq:          17,
		Pos:          Point{X: 0.25, Y: 0.75},
		Zoom:         125,
		SlideID:      "slide-1",
		ComponentIDs: []string{"c1", "c2"},
	}

	raw, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestRedisChannelDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sender := NewHub("deck-1", rdb, zerolog.Nop())
	receiver := NewHub("deck-1", rdb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Run(ctx)

	// give the subscription a moment to establish
	time.Sleep(50 * time.Millisecond)

	sender.Broadcast(ctx, cursorMsg("c1", 1, Point{X: 0.6, Y: 0.6}))

	assert.Eventually(t, func() bool {
		peers := receiver.Peers()
		return len(peers) == 1 && peers[0].ClientID == "c1"
	}, time.Second, 10*time.Millisecond)
}
