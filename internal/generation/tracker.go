package generation

import (
	"collaborative-deck-editor/internal/deck"
	"collaborative-deck-editor/internal/events"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type EventType string

const (
	EventSlideStarted   EventType = "slide_started"
	EventSlideCompleted EventType = "slide_completed"
	EventDeckComplete   EventType = "deck_complete"
	EventError          EventType = "error"
	EventStatus         EventType = "status"
)

// Event is a single progress event from the upstream generation stream.
type Event struct {
	Type        EventType `json:"type"`
	SlideIndex  int       `json:"slide_index"`
	SlideTitle  string    `json:"slide_title,omitempty"`
	TotalSlides int       `json:"total_slides,omitempty"`
	Progress    int       `json:"progress,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Tracker normalizes the heterogeneous generation event stream into a
// consistent status shape and republishes it to observers. Progress is
// monotonic non-decreasing while the state is not error.
type Tracker struct {
	mu        sync.Mutex
	deckUUID  string
	status    deck.GenerationStatus
	slides    []deck.SlideStatus // shadow per-index status array
	observers map[uint64]func(deck.GenerationStatus)
	nextID    uint64
	cancel    context.CancelFunc

	store *deck.Store
	bus   *events.Bus
	log   zerolog.Logger
}

// NewTracker creates a tracker bound to a deck store and event bus. Both may
// be nil in tests.
func NewTracker(deckUUID string, store *deck.Store, bus *events.Bus, log zerolog.Logger) *Tracker {
	return &Tracker{
		deckUUID:  deckUUID,
		status:    deck.GenerationStatus{State: deck.StatePending, Message: "Processing…"},
		observers: make(map[uint64]func(deck.GenerationStatus)),
		store:     store,
		bus:       bus,
		log:       log.With().Str("component", "generation-tracker").Str("deck", deckUUID).Logger(),
	}
}

// On registers an observer and returns its subscription id.
func (t *Tracker) On(fn func(deck.GenerationStatus)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.observers[t.nextID] = fn
	return t.nextID
}

// Off removes an observer.
func (t *Tracker) Off(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.observers, id)
}

// Status returns the last published status.
func (t *Tracker) Status() deck.GenerationStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Run consumes events until the channel closes or ctx is cancelled.
// StopGeneration cancels the derived context; an in-flight event is allowed
// to finish and its result is simply discarded downstream.
func (t *Tracker) Run(ctx context.Context, ch <-chan Event) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			t.Handle(ev)
		}
	}
}

// StopGeneration tears down the stream subscription.
func (t *Tracker) StopGeneration() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Handle folds one event into the normalized status and notifies observers.
func (t *Tracker) Handle(ev Event) {
	t.mu.Lock()

	if ev.TotalSlides > 0 && ev.TotalSlides != t.status.TotalSlides {
		t.status.TotalSlides = ev.TotalSlides
		t.resizeShadow(ev.TotalSlides)
	}

	switch ev.Type {
	case EventSlideStarted:
		t.transition(deck.StateGenerating)
		t.markShadow(ev.SlideIndex, deck.SlideGenerating)
		t.status.CurrentSlide = ev.SlideIndex + 1
		t.status.Message = fmt.Sprintf("Generating slide %d…", ev.SlideIndex+1)
		t.setSlideStatus(ev.SlideIndex, deck.SlideGenerating)
		t.publishBus(events.SlideStarted, events.SlideGenerationPayload{
			DeckUUID:   t.deckUUID,
			SlideIndex: ev.SlideIndex,
			SlideTitle: ev.SlideTitle,
		})

	case EventSlideCompleted:
		t.transition(deck.StateGenerating)
		t.markShadow(ev.SlideIndex, deck.SlideCompleted)
		t.status.CurrentSlide = ev.SlideIndex + 1
		if ev.SlideTitle != "" {
			t.status.Message = fmt.Sprintf("Completed slide %d: %s", ev.SlideIndex+1, ev.SlideTitle)
		} else {
			t.status.Message = fmt.Sprintf("Completed slide %d", ev.SlideIndex+1)
		}
		t.setSlideStatus(ev.SlideIndex, deck.SlideCompleted)
		t.publishBus(events.SlideCompleted, events.SlideGenerationPayload{
			DeckUUID:   t.deckUUID,
			SlideIndex: ev.SlideIndex,
			SlideTitle: ev.SlideTitle,
		})

	case EventDeckComplete:
		t.transition(deck.StateCompleted)
		for i := range t.slides {
			t.slides[i] = deck.SlideCompleted
		}
		t.status.Progress = 100
		t.status.Message = "Deck generation complete"
		if t.bus != nil {
			events.DeckGenerationComplete.Publish(t.bus, events.DeckGenerationPayload{
				DeckUUID: t.deckUUID,
				Message:  t.status.Message,
			})
		}

	case EventError:
		t.status.State = deck.StateError
		t.status.Error = ev.Error
		if ev.Error != "" {
			t.status.Message = ev.Error
		}
		if t.bus != nil {
			events.DeckGenerationError.Publish(t.bus, events.DeckGenerationPayload{
				DeckUUID: t.deckUUID,
				Message:  ev.Error,
			})
		}

	case EventStatus:
		if t.status.State == deck.StatePending {
			t.transition(deck.StateCreating)
		}
		if ev.Message != "" {
			t.status.Message = ParseStatusMessage(ev.Message)
		}

	default:
		t.log.Debug().Str("type", string(ev.Type)).Msg("unknown generation event")
	}

	t.bumpProgress(ev.Progress)

	status := t.status
	observers := make([]func(deck.GenerationStatus), 0, len(t.observers))
	for _, fn := range t.observers {
		observers = append(observers, fn)
	}
	t.mu.Unlock()

	if t.store != nil {
		t.store.SetStatus(status)
	}
	for _, fn := range observers {
		fn(status)
	}
}

// transition enforces pending -> creating -> generating -> completed; error is
// terminal and entered from any state.
func (t *Tracker) transition(target deck.GenerationState) {
	if t.status.State == deck.StateError {
		return
	}
	order := map[deck.GenerationState]int{
		deck.StatePending:    0,
		deck.StateCreating:   1,
		deck.StateGenerating: 2,
		deck.StateCompleted:  3,
	}
	if order[target] > order[t.status.State] {
		t.status.State = target
	}
}

// bumpProgress keeps progress monotonic: an explicit progress value or the
// completed-slide fraction only ever raises it.
func (t *Tracker) bumpProgress(explicit int) {
	if t.status.State == deck.StateError {
		return
	}

	candidate := explicit
	if total := len(t.slides); total > 0 {
		completed := 0
		for _, s := range t.slides {
			if s == deck.SlideCompleted {
				completed++
			}
		}
		if derived := completed * 100 / total; derived > candidate {
			candidate = derived
		}
	}
	if t.status.State == deck.StateCompleted {
		candidate = 100
	}
	if candidate > t.status.Progress {
		t.status.Progress = candidate
	}
}

func (t *Tracker) resizeShadow(total int) {
	if total <= len(t.slides) {
		return
	}
	grown := make([]deck.SlideStatus, total)
	copy(grown, t.slides)
	for i := len(t.slides); i < total; i++ {
		grown[i] = deck.SlidePending
	}
	t.slides = grown
}

func (t *Tracker) markShadow(idx int, status deck.SlideStatus) {
	if idx < 0 {
		return
	}
	if idx >= len(t.slides) {
		t.resizeShadow(idx + 1)
	}
	t.slides[idx] = status
}

func (t *Tracker) setSlideStatus(idx int, status deck.SlideStatus) {
	if t.store == nil {
		return
	}
	// backend-originated change, never echo it back
	if err := t.store.SetSlideStatusAt(idx, status, deck.UpdateOptions{SkipBackend: true}); err != nil {
		t.log.Debug().Int("index", idx).Msg("generation event for unknown slide index")
	}
}

func (t *Tracker) publishBus(topic events.Topic[events.SlideGenerationPayload], payload events.SlideGenerationPayload) {
	if t.bus != nil {
		topic.Publish(t.bus, payload)
	}
}

// legacy status payloads arrive as JSON encoded into the message string
type legacyStatusMessage struct {
	Type       string `json:"type"`
	SlideIndex int    `json:"slide_index"`
	SlideTitle string `json:"slide_title"`
	Message    string `json:"message"`
	Error      string `json:"error"`
}

// ParseStatusMessage re-derives a human-readable message from a raw status
// string. Some upstream versions send JSON encoded as the message text; users
// should never see raw JSON. Unparseable input is passed through unchanged.
func ParseStatusMessage(raw string) string {
	var parsed legacyStatusMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}

	switch parsed.Type {
	case string(EventSlideCompleted):
		if parsed.SlideTitle != "" {
			return fmt.Sprintf("Completed slide %d: %s", parsed.SlideIndex+1, parsed.SlideTitle)
		}
		return fmt.Sprintf("Completed slide %d", parsed.SlideIndex+1)
	case string(EventError):
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
		return "Generation failed"
	default:
		return "Processing…"
	}
}
