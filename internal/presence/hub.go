package presence

import (
	"collaborative-deck-editor/internal/metrics"
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// minimum spacing between cursor updates per client, ~60Hz
const cursorThrottle = 16 * time.Millisecond

// how long a departed peer's sequence is remembered, so a late duplicate of
// an older message taking the slower delivery path is still dropped
const tombstoneTTL = 30 * time.Second

// CursorState is the last observed presence of a remote peer.
type CursorState struct {
	ClientID string  `json:"client_id"`
	UserID   uint64  `json:"user_id"`
	Name     string  `json:"name"`
	Color    string  `json:"color"`
	Pos      Point   `json:"position"`
	Zoom     float64 `json:"zoom"`

	SlideID      string   `json:"slide_id,omitempty"`
	ComponentIDs []string `json:"component_ids,omitempty"`
}

type peerState struct {
	state    CursorState
	lastSeq  uint64
	departed bool
	leftAt   time.Time
}

// Hub relays cursor and selection broadcasts between the peers of one deck.
// Delivery is dual-path: the direct in-process fan-out, plus a redis pub/sub
// channel shared with other server instances. Duplicate arrivals are dropped
// by the (ClientID, Seq) check, so applying a message is idempotent.
type Hub struct {
	deckUUID string

	mu          sync.Mutex
	peers       map[string]*peerState
	subscribers map[uint64]chan Message
	nextSubID   uint64
	lastSent    map[string]time.Time

	rdb *redis.Client
	now func() time.Time
	log zerolog.Logger
}

func NewHub(deckUUID string, rdb *redis.Client, log zerolog.Logger) *Hub {
	return &Hub{
		deckUUID:    deckUUID,
		peers:       make(map[string]*peerState),
		subscribers: make(map[uint64]chan Message),
		lastSent:    make(map[string]time.Time),
		rdb:         rdb,
		now:         time.Now,
		log:         log.With().Str("component", "presence-hub").Str("deck", deckUUID).Logger(),
	}
}

func (h *Hub) channel() string {
	return "presence:deck:" + h.deckUUID
}

// Broadcast takes a message from the local client and delivers it along both
// paths. Cursor moves are throttled per client; the mouse-leave sentinel
// always goes through so a cursor never lingers after its owner left.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	h.mu.Lock()
	if msg.Kind == KindCursor && !msg.Pos.IsSentinel() {
		if last, ok := h.lastSent[msg.ClientID]; ok && h.now().Sub(last) < cursorThrottle {
			h.mu.Unlock()
			return
		}
		h.lastSent[msg.ClientID] = h.now()
	}
	h.mu.Unlock()

	// primary path: shared awareness channel
	if h.rdb != nil {
		raw, err := EncodeMessage(msg)
		if err != nil {
			h.log.Warn().Err(err).Msg("failed to encode presence message")
		} else if err := h.rdb.Publish(ctx, h.channel(), raw).Err(); err != nil {
			h.log.Warn().Err(err).Msg("presence publish failed")
		}
	}

	// secondary path: direct delivery, redundant with the channel above.
	// Apply de-duplicates whichever copy arrives second.
	h.Apply(msg)
}

// Apply folds a received message into peer state and fans it out to local
// subscribers. Duplicates and stale sequences are dropped.
func (h *Hub) Apply(msg Message) {
	h.mu.Lock()

	peer, known := h.peers[msg.ClientID]
	if known && msg.Seq <= peer.lastSeq {
		h.mu.Unlock()
		metrics.PresenceMessagesDropped.Inc()
		return
	}

	if !known {
		peer = &peerState{}
		h.peers[msg.ClientID] = peer
	}
	peer.lastSeq = msg.Seq

	if msg.Kind == KindCursor && msg.Pos.IsSentinel() {
		// peer departure: keep a tombstone carrying the departure sequence,
		// so a late duplicate of an older cursor message can't resurrect the
		// peer. Tombstones are evicted after tombstoneTTL.
		peer.departed = true
		peer.leftAt = h.now()
		delete(h.lastSent, msg.ClientID)
	} else {
		peer.departed = false
		applyToState(&peer.state, msg)
	}
	h.evictDeparted()

	recipients := make([]chan Message, 0, len(h.subscribers))
	for _, ch := range h.subscribers {
		recipients = append(recipients, ch)
	}
	h.mu.Unlock()

	for _, ch := range recipients {
		select {
		case ch <- msg:
			metrics.PresenceMessagesDelivered.Inc()
		default:
			// a slow subscriber misses an update and catches up on the next one
			metrics.PresenceMessagesDropped.Inc()
		}
	}
}

func applyToState(state *CursorState, msg Message) {
	state.ClientID = msg.ClientID
	state.UserID = msg.UserID
	if msg.Name != "" {
		state.Name = msg.Name
	}
	if msg.Color != "" {
		state.Color = msg.Color
	}

	switch msg.Kind {
	case KindCursor:
		state.Pos = msg.Pos
		state.Zoom = msg.Zoom
	case KindSelection:
		state.SlideID = msg.SlideID
		state.ComponentIDs = msg.ComponentIDs
	}
}

// evictDeparted drops tombstones past their TTL. Callers hold h.mu.
func (h *Hub) evictDeparted() {
	for id, p := range h.peers {
		if p.departed && h.now().Sub(p.leftAt) >= tombstoneTTL {
			delete(h.peers, id)
		}
	}
}

// Peers returns the last observed state of every visible peer.
func (h *Hub) Peers() []CursorState {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]CursorState, 0, len(h.peers))
	for _, p := range h.peers {
		if p.departed {
			continue
		}
		out = append(out, p.state)
	}
	return out
}

// Subscribe registers a local listener (typically an SSE connection).
func (h *Hub) Subscribe() (uint64, <-chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSubID++
	ch := make(chan Message, 64)
	h.subscribers[h.nextSubID] = ch
	return h.nextSubID, ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Run consumes the redis awareness channel until ctx is cancelled. Messages
// published by this instance come back through here; the Apply dedupe makes
// that harmless.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		return
	}

	sub := h.rdb.Subscribe(ctx, h.channel())
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			msg, err := DecodeMessage([]byte(redisMsg.Payload))
			if err != nil {
				h.log.Warn().Err(err).Msg("dropping malformed presence message")
				continue
			}
			h.Apply(msg)
		}
	}
}
