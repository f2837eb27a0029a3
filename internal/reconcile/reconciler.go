package reconcile

import (
	"collaborative-deck-editor/internal/deck"
	"collaborative-deck-editor/internal/metrics"
	"collaborative-deck-editor/internal/upstream"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// at most one upstream fetch per window, to bound backend load
	defaultMinFetchInterval = 2 * time.Second
	// fixed delay before the single retry on a 5xx
	defaultRetryDelay = 2 * time.Second
)

// Fetcher retrieves the authoritative deck snapshot.
type Fetcher interface {
	FetchDeck(ctx context.Context, deckUUID string) (*upstream.DeckSnapshot, error)
}

// Reconciler periodically fetches the upstream deck state and merges it into
// the local store without regressing progress or discarding streamed content.
// There is no global sequence number from the upstream; out-of-order responses
// are handled by the content-based guards below.
type Reconciler struct {
	deckUUID string
	store    *deck.Store
	fetcher  Fetcher

	mu            sync.Mutex
	lastFetchTime time.Time
	lastSignature string
	failed        bool

	minFetchInterval time.Duration
	retryDelay       time.Duration
	now              func() time.Time

	log zerolog.Logger
}

func New(deckUUID string, store *deck.Store, fetcher Fetcher, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		deckUUID:         deckUUID,
		store:            store,
		fetcher:          fetcher,
		minFetchInterval: defaultMinFetchInterval,
		retryDelay:       defaultRetryDelay,
		now:              time.Now,
		log:              log.With().Str("component", "reconciler").Str("deck", deckUUID).Logger(),
	}
}

// Start polls the upstream until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sync(ctx)
		}
	}
}

// Failed reports whether the reconciler is in the persistent error state.
func (r *Reconciler) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Sync fetches the upstream snapshot and merges it. Calls within the throttle
// window are dropped without a network request.
func (r *Reconciler) Sync(ctx context.Context) {
	r.mu.Lock()
	if r.now().Sub(r.lastFetchTime) < r.minFetchInterval {
		r.mu.Unlock()
		return
	}
	r.lastFetchTime = r.now()
	r.mu.Unlock()

	snapshot, err := r.fetchWithRetry(ctx)
	if err != nil {
		r.mu.Lock()
		r.failed = true
		r.mu.Unlock()
		metrics.SyncFetchErrors.Inc()
		r.log.Error().Err(err).Msg("upstream fetch failed after retry")
		// persistent user-visible error state, no endless retry loop
		r.store.SetStatus(deck.GenerationStatus{
			State:   deck.StateError,
			Message: "Lost connection to the content service",
			Error:   err.Error(),
		})
		return
	}

	r.mu.Lock()
	r.failed = false
	r.mu.Unlock()
	r.Apply(snapshot)
}

// fetchWithRetry retries exactly once, after a fixed delay, on transport
// errors and 5xx responses. 4xx responses are not retried.
func (r *Reconciler) fetchWithRetry(ctx context.Context) (*upstream.DeckSnapshot, error) {
	snapshot, err := r.fetcher.FetchDeck(ctx, r.deckUUID)
	if err == nil {
		return snapshot, nil
	}
	if httpErr, ok := err.(*upstream.HTTPError); ok && httpErr.Status < 500 {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.retryDelay):
	}

	return r.fetcher.FetchDeck(ctx, r.deckUUID)
}

// Apply merges an upstream snapshot into the local store. Returns true when
// any change was applied.
func (r *Reconciler) Apply(snapshot *upstream.DeckSnapshot) bool {
	if snapshot == nil {
		return false
	}

	local := r.store.Snapshot()

	// likely-stale payload: refuse wholesale shrinking
	if len(local.Slides) > 4 && len(snapshot.Slides) < (len(local.Slides)+1)/2 {
		metrics.SyncUpdatesRejected.Inc()
		r.log.Warn().
			Int("local_slides", len(local.Slides)).
			Int("incoming_slides", len(snapshot.Slides)).
			Msg("rejected upstream update: slide count regression")
		return false
	}

	signature := payloadSignature(snapshot.Slides)
	r.mu.Lock()
	if signature == r.lastSignature {
		r.mu.Unlock()
		metrics.SyncUpdatesDeduped.Inc()
		return false
	}
	r.mu.Unlock()

	changed := false
	backendOpts := deck.UpdateOptions{SkipBackend: true}

	if snapshot.Title != "" && snapshot.Title != local.Title {
		r.store.UpdateDeckData(deck.DeckPatch{Title: &snapshot.Title}, backendOpts)
		changed = true
	}

	incoming := make([]deck.Slide, len(snapshot.Slides))
	for i := range snapshot.Slides {
		in := snapshot.Slides[i]
		in.DeckUUID = r.deckUUID
		if in.Status == "" {
			in.Status = deriveStatus(&in)
		}
		incoming[i] = in
	}

	// merge per slide by index, under the store lock: generation fills the
	// deck progressively, so incoming slides beyond the local tail are
	// appended and local slides past the incoming tail are kept. A merely
	// shorter payload must not destroy streamed content.
	if r.store.MergeSlides(incoming, shouldReplace, backendOpts) {
		changed = true
	}

	if changed {
		// recorded only after a successful apply, so a payload that was
		// rejected in full is not deduped when it becomes applicable later
		r.mu.Lock()
		r.lastSignature = signature
		r.mu.Unlock()
		metrics.SyncUpdatesApplied.Inc()
	}
	return changed
}

// shouldReplace decides whether an incoming slide overwrites the aligned
// local one. Called by the store with the live local slide.
func shouldReplace(local, incoming *deck.Slide) bool {
	// anti-regression: a completed slide with content is never replaced by an
	// emptier payload, whatever its status claims
	if local.Status == deck.SlideCompleted && local.HasContent() && !incoming.HasContent() {
		return false
	}

	overwrite := !local.HasContent() ||
		incoming.HasContent() ||
		incoming.Status != local.Status

	if !overwrite {
		return false
	}
	return !slidesEqual(local, incoming)
}

// deriveStatus infers a slide status for payloads that omit it.
func deriveStatus(s *deck.Slide) deck.SlideStatus {
	if s.HasContent() {
		return deck.SlideCompleted
	}
	return deck.SlidePending
}

// payloadSignature compacts a slides payload into a comparable key:
// slide id, component count and title per slide.
func payloadSignature(slides []deck.Slide) string {
	var b strings.Builder
	for i := range slides {
		fmt.Fprintf(&b, "%s:%d:%s;", slides[i].ID, len(slides[i].Components), slides[i].Title)
	}
	return b.String()
}

func slidesEqual(a, b *deck.Slide) bool {
	if a.ID != b.ID || a.Title != b.Title || a.Status != b.Status {
		return false
	}
	if len(a.Components) != len(b.Components) {
		return false
	}
	for i := range a.Components {
		ac, bc := &a.Components[i], &b.Components[i]
		if ac.ID != bc.ID || ac.Type != bc.Type || string(ac.Props) != string(bc.Props) {
			return false
		}
	}
	return true
}
