package generation

import (
	"collaborative-deck-editor/internal/deck"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestTracker() *Tracker {
	return NewTracker("deck-1", nil, nil, zerolog.Nop())
}

func TestProgressIsMonotonicThroughFullRun(t *testing.T) {
	tracker := newTestTracker()

	var observed []int
	tracker.On(func(s deck.GenerationStatus) {
		observed = append(observed, s.Progress)
	})

	tracker.Handle(Event{Type: EventStatus, Message: "queued", TotalSlides: 4})
	tracker.Handle(Event{Type: EventSlideStarted, SlideIndex: 0})
	tracker.Handle(Event{Type: EventSlideCompleted, SlideIndex: 0, Progress: 10})
	tracker.Handle(Event{Type: EventSlideStarted, SlideIndex: 1})
	tracker.Handle(Event{Type: EventSlideCompleted, SlideIndex: 1, Progress: 60})
	tracker.Handle(Event{Type: EventDeckComplete})

	for i := 1; i < len(observed); i++ {
		assert.GreaterOrEqual(t, observed[i], observed[i-1], "progress regressed at event %d", i)
	}

	final := tracker.Status()
	assert.Equal(t, deck.StateCompleted, final.State)
	assert.Equal(t, 100, final.Progress)
}

func TestStateTransitionsFollowLifecycle(t *testing.T) {
	tracker := newTestTracker()

	assert.Equal(t, deck.StatePending, tracker.Status().State)

	tracker.Handle(Event{Type: EventStatus, Message: "creating outline"})
	assert.Equal(t, deck.StateCreating, tracker.Status().State)

	tracker.Handle(Event{Type: EventSlideStarted, SlideIndex: 0, TotalSlides: 2})
	assert.Equal(t, deck.StateGenerating, tracker.Status().State)

	// a late status event must not regress the state
	tracker.Handle(Event{Type: EventStatus, Message: "still working"})
	assert.Equal(t, deck.StateGenerating, tracker.Status().State)

	tracker.Handle(Event{Type: EventDeckComplete})
	assert.Equal(t, deck.StateCompleted, tracker.Status().State)
}

func TestErrorIsTerminal(t *testing.T) {
	tracker := newTestTracker()

	tracker.Handle(Event{Type: EventSlideStarted, SlideIndex: 0, TotalSlides: 3})
	tracker.Handle(Event{Type: EventError, Error: "model overloaded"})

	status := tracker.Status()
	assert.Equal(t, deck.StateError, status.State)
	assert.Equal(t, "model overloaded", status.Error)

	// later events must not resurrect the run
	tracker.Handle(Event{Type: EventSlideCompleted, SlideIndex: 0})
	assert.Equal(t, deck.StateError, tracker.Status().State)
}

func TestSlideCompletedMessageNamesTheSlide(t *testing.T) {
	tracker := newTestTracker()

	tracker.Handle(Event{Type: EventSlideCompleted, SlideIndex: 2, SlideTitle: "Market Overview", TotalSlides: 5})

	assert.Equal(t, "Completed slide 3: Market Overview", tracker.Status().Message)
}

func TestObserverOff(t *testing.T) {
	tracker := newTestTracker()

	calls := 0
	id := tracker.On(func(deck.GenerationStatus) { calls++ })

	tracker.Handle(Event{Type: EventSlideStarted, SlideIndex: 0})
	tracker.Off(id)
	tracker.Handle(Event{Type: EventSlideCompleted, SlideIndex: 0})

	assert.Equal(t, 1, calls)
}

func TestTrackerUpdatesStoreSlideStatuses(t *testing.T) {
	store := deck.NewStore(deck.Deck{
		UUID: "deck-1",
		Slides: []deck.Slide{
			{ID: "s1", Status: deck.SlidePending},
			{ID: "s2", Status: deck.SlidePending},
		},
	}, nil, zerolog.Nop())
	tracker := NewTracker("deck-1", store, nil, zerolog.Nop())

	tracker.Handle(Event{Type: EventSlideStarted, SlideIndex: 1, TotalSlides: 2})
	assert.Equal(t, deck.SlideGenerating, store.Snapshot().Slides[1].Status)

	tracker.Handle(Event{Type: EventSlideCompleted, SlideIndex: 1})
	assert.Equal(t, deck.SlideCompleted, store.Snapshot().Slides[1].Status)
	assert.Equal(t, deck.StateGenerating, store.Snapshot().Status.State)
}

func TestParseStatusMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "slide completed json",
			raw:  `{"type":"slide_completed","slide_index":1,"slide_title":"Intro"}`,
			want: "Completed slide 2: Intro",
		},
		{
			name: "error json",
			raw:  `{"type":"error","error":"quota exceeded"}`,
			want: "quota exceeded",
		},
		{
			name: "unknown json type",
			raw:  `{"type":"heartbeat"}`,
			want: "Processing…",
		},
		{
			name: "plain text passes through",
			raw:  "Laying out slide 3",
			want: "Laying out slide 3",
		},
		{
			name: "malformed json passes through",
			raw:  `{"type":`,
			want: `{"type":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatusMessage(tt.raw))
		})
	}
}
