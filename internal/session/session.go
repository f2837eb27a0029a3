package session

import (
	"context"
	"sync"
	"time"

	"collaborative-deck-editor/internal/deck"
	"collaborative-deck-editor/internal/draft"
	"collaborative-deck-editor/internal/errors"
	"collaborative-deck-editor/internal/events"
	"collaborative-deck-editor/internal/generation"
	"collaborative-deck-editor/internal/history"
	"collaborative-deck-editor/internal/presence"
	"collaborative-deck-editor/internal/reconcile"
	"collaborative-deck-editor/internal/upstream"
	"collaborative-deck-editor/internal/worker"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// how often the reconciler polls the upstream while a session is open; the
// reconciler's own throttle bounds the actual fetch rate
const syncInterval = 5 * time.Second

// EditorSession holds all live state for one open deck: the deck store,
// per-slide drafts and history, the generation tracker, the reconciler and
// the presence hub. Sessions are shared: every client editing the same deck
// gets the same session.
type EditorSession struct {
	DeckUUID string

	Store      *deck.Store
	Drafts     *draft.Store
	History    *history.Store
	Bus        *events.Bus
	Tracker    *generation.Tracker
	Reconciler *reconcile.Reconciler
	Hub        *presence.Hub

	client *upstream.Client
	// ctx lives as long as the session; generation streams are tied to it,
	// not to the request that started them
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	refs       int
	generating bool

	log zerolog.Logger
}

// StartGeneration subscribes to the upstream generation event stream and
// feeds it into the tracker. A second start while one is running is rejected.
func (s *EditorSession) StartGeneration() error {
	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return errors.Conflict("Generation already in progress", nil)
	}
	s.generating = true
	s.mu.Unlock()

	ch, err := s.client.StreamGenerationEvents(s.ctx, s.DeckUUID)
	if err != nil {
		s.mu.Lock()
		s.generating = false
		s.mu.Unlock()
		return errors.Internal(err)
	}

	go func() {
		s.Tracker.Run(s.ctx, ch)
		s.mu.Lock()
		s.generating = false
		s.mu.Unlock()
	}()
	return nil
}

func (s *EditorSession) StopGeneration() {
	s.Tracker.StopGeneration()
}

// Registry tracks open editor sessions by deck UUID. Sessions are reference
// counted: the last Close tears down the session's background loops and
// flushes pending writes.
type Registry struct {
	decks  deck.Service
	client *upstream.Client
	rdb    *goredis.Client
	pool   *worker.WorkerPool

	mu       sync.Mutex
	sessions map[string]*EditorSession

	log zerolog.Logger
}

func NewRegistry(decks deck.Service, client *upstream.Client, rdb *goredis.Client, pool *worker.WorkerPool, log zerolog.Logger) *Registry {
	return &Registry{
		decks:    decks,
		client:   client,
		rdb:      rdb,
		pool:     pool,
		sessions: make(map[string]*EditorSession),
		log:      log.With().Str("component", "session-registry").Logger(),
	}
}

// Open returns the live session for the deck, creating it on first open.
// The caller's role on the deck is checked by the deck service.
func (r *Registry) Open(ctx context.Context, deckUUID string, userID uint64) (*EditorSession, error) {
	r.mu.Lock()
	if existing, ok := r.sessions[deckUUID]; ok {
		existing.mu.Lock()
		existing.refs++
		existing.mu.Unlock()
		r.mu.Unlock()

		// still verify the caller may see this deck
		role, err := r.decks.FetchUserRole(ctx, deckUUID, userID)
		if err != nil {
			r.Close(deckUUID)
			return nil, err
		}
		if role == "none" {
			r.Close(deckUUID)
			return nil, errors.Forbidden("You're not a collaborator on this deck", nil)
		}
		return existing, nil
	}
	r.mu.Unlock()

	loaded, err := r.decks.GetDeck(ctx, deckUUID, userID)
	if err != nil {
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	log := r.log.With().Str("deck", deckUUID).Logger()

	var store *deck.Store
	persist := func(snapshot deck.Deck) {
		r.pool.Submit(func(ctx context.Context) error {
			if err := r.decks.PersistSnapshot(ctx, snapshot); err != nil {
				return err
			}
			store.MarkClean(snapshot.Version)
			return nil
		})
	}

	store = deck.NewStore(*loaded, persist, log)
	bus := events.NewBus()

	s := &EditorSession{
		DeckUUID:   deckUUID,
		Store:      store,
		Drafts:     draft.NewStore(),
		History:    history.NewStore(),
		Bus:        bus,
		Tracker:    generation.NewTracker(deckUUID, store, bus, log),
		Reconciler: reconcile.New(deckUUID, store, r.client, log),
		Hub:        presence.NewHub(deckUUID, r.rdb, log),
		client:     r.client,
		ctx:        sessionCtx,
		cancel:     cancel,
		refs:       1,
		log:        log,
	}

	go s.Hub.Run(sessionCtx)
	go s.Reconciler.Start(sessionCtx, syncInterval)

	r.mu.Lock()
	// lost the race: someone created the session while we were loading
	if winner, ok := r.sessions[deckUUID]; ok {
		r.mu.Unlock()
		cancel()
		winner.mu.Lock()
		winner.refs++
		winner.mu.Unlock()
		return winner, nil
	}
	r.sessions[deckUUID] = s
	r.mu.Unlock()

	log.Info().Msg("editor session opened")
	return s, nil
}

// Get returns the open session for a deck without bumping the refcount.
func (r *Registry) Get(deckUUID string) (*EditorSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[deckUUID]
	if !ok {
		return nil, errors.NotFound("No open session for deck", nil)
	}
	return s, nil
}

// Close releases one reference to the deck's session. When the last client
// leaves, background loops are stopped and pending writes flushed.
func (r *Registry) Close(deckUUID string) {
	r.mu.Lock()
	s, ok := r.sessions[deckUUID]
	if !ok {
		r.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.refs--
	last := s.refs <= 0
	s.mu.Unlock()

	if last {
		delete(r.sessions, deckUUID)
	}
	r.mu.Unlock()

	if last {
		s.cancel()
		s.Store.Flush()
		s.log.Info().Msg("editor session closed")
	}
}

// Shutdown closes every session, flushing pending writes.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*EditorSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*EditorSession)
	r.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
		s.Store.Flush()
	}
}
