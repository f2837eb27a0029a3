package deck

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func testDeck(slideCount int) Deck {
	slides := make([]Slide, slideCount)
	for i := range slides {
		slides[i] = Slide{
			ID:     string(rune('a' + i)),
			Title:  "Slide " + string(rune('A'+i)),
			Order:  i,
			Status: SlideCompleted,
		}
	}
	return Deck{UUID: "deck-1", Title: "Test Deck", Slides: slides}
}

func newTestStore(d Deck) *Store {
	return NewStore(d, nil, zerolog.Nop())
}

func TestRemoveLastSlideIsRejected(t *testing.T) {
	store := newTestStore(testDeck(1))

	err := store.RemoveSlide("a", UpdateOptions{})

	assert.Error(t, err)
	assert.Len(t, store.Snapshot().Slides, 1)
}

func TestRemoveSlideAdjustsCurrentIndex(t *testing.T) {
	store := newTestStore(testDeck(3))
	store.SetCurrentIndex(2)

	err := store.RemoveSlide("a", UpdateOptions{})

	assert.NoError(t, err)
	assert.Equal(t, 1, store.CurrentIndex())
	assert.Len(t, store.Snapshot().Slides, 2)
}

func TestReorderKeepsCurrentSlideIdentity(t *testing.T) {
	store := newTestStore(testDeck(6))
	store.SetCurrentIndex(2)
	currentID := store.Snapshot().Slides[2].ID

	// move slide 0 to index 3, crossing the current slide
	err := store.ReorderSlides(0, 3, UpdateOptions{})

	assert.NoError(t, err)
	assert.Equal(t, 1, store.CurrentIndex())
	assert.Equal(t, currentID, store.Snapshot().Slides[store.CurrentIndex()].ID)
}

func TestReorderMovesCurrentSlideItself(t *testing.T) {
	store := newTestStore(testDeck(4))
	store.SetCurrentIndex(1)
	currentID := store.Snapshot().Slides[1].ID

	err := store.ReorderSlides(1, 3, UpdateOptions{})

	assert.NoError(t, err)
	assert.Equal(t, 3, store.CurrentIndex())
	assert.Equal(t, currentID, store.Snapshot().Slides[3].ID)
}

func TestReorderRenumbersSlides(t *testing.T) {
	store := newTestStore(testDeck(3))

	err := store.ReorderSlides(2, 0, UpdateOptions{})

	assert.NoError(t, err)
	for i, slide := range store.Snapshot().Slides {
		assert.Equal(t, i, slide.Order)
	}
}

func TestDuplicateSlideGetsFreshIDs(t *testing.T) {
	d := testDeck(2)
	d.Slides[0].Components = []Component{
		{ID: "c1", Type: ComponentShape},
		{ID: "c2", Type: ComponentGroup, Children: []string{"c1"}},
	}
	store := newTestStore(d)

	dup, err := store.DuplicateSlide("a", UpdateOptions{})

	assert.NoError(t, err)
	assert.NotEqual(t, "a", dup.ID)
	snapshot := store.Snapshot()
	assert.Len(t, snapshot.Slides, 3)
	// the copy sits right after the source
	assert.Equal(t, dup.ID, snapshot.Slides[1].ID)

	copied := snapshot.Slides[1].Components
	assert.NotEqual(t, "c1", copied[0].ID)
	assert.NotEqual(t, "c2", copied[1].ID)
	// group children were remapped to the fresh ids
	assert.Equal(t, []string{copied[0].ID}, copied[1].Children)
}

func TestSecondBackgroundComponentIsRejected(t *testing.T) {
	store := newTestStore(testDeck(1))

	_, err := store.AddComponent("a", Component{Type: ComponentBackground}, UpdateOptions{})
	assert.NoError(t, err)

	_, err = store.AddComponent("a", Component{Type: ComponentBackground}, UpdateOptions{})
	assert.Error(t, err)
}

func TestBackgroundComponentCannotBeRemoved(t *testing.T) {
	store := newTestStore(testDeck(1))

	bg, err := store.AddComponent("a", Component{Type: ComponentBackground}, UpdateOptions{})
	assert.NoError(t, err)

	err = store.RemoveComponent("a", bg.ID, UpdateOptions{})
	assert.Error(t, err)
	assert.Len(t, store.Snapshot().Slides[0].Components, 1)
}

func TestSkipBackendSuppressesPersistence(t *testing.T) {
	var mu sync.Mutex
	persisted := 0
	store := NewStore(testDeck(2), func(Deck) {
		mu.Lock()
		persisted++
		mu.Unlock()
	}, zerolog.Nop())

	title := "from backend"
	store.UpdateDeckData(DeckPatch{Title: &title}, UpdateOptions{SkipBackend: true})

	time.Sleep(2 * persistDebounce)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, persisted)
	assert.False(t, store.Dirty())
}

func TestMutationsAreDebouncedIntoOnePersist(t *testing.T) {
	var mu sync.Mutex
	persisted := 0
	store := NewStore(testDeck(2), func(Deck) {
		mu.Lock()
		persisted++
		mu.Unlock()
	}, zerolog.Nop())

	for _, title := range []string{"one", "two", "three"} {
		tt := title
		store.UpdateDeckData(DeckPatch{Title: &tt}, UpdateOptions{})
	}

	time.Sleep(2 * persistDebounce)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, persisted)
}

func TestVersionIsMonotonic(t *testing.T) {
	store := newTestStore(testDeck(2))
	v0 := store.Version()

	title := "renamed"
	store.UpdateDeckData(DeckPatch{Title: &title}, UpdateOptions{})
	v1 := store.Version()
	store.UpdateDeckData(DeckPatch{Title: &title}, UpdateOptions{SkipBackend: true})
	v2 := store.Version()

	assert.Greater(t, v1, v0)
	assert.Greater(t, v2, v1)
}

func TestMergeSlidesReplacesAndAppends(t *testing.T) {
	store := newTestStore(testDeck(2))

	incoming := []Slide{
		{ID: "a", Title: "Slide A v2", Status: SlideCompleted},
		{ID: "b", Title: "Slide B", Status: SlideCompleted},
		{ID: "c", Title: "Slide C", Status: SlideCompleted},
	}
	changed := store.MergeSlides(incoming, func(local, in *Slide) bool {
		return local.Title != in.Title
	}, UpdateOptions{SkipBackend: true})

	assert.True(t, changed)
	snapshot := store.Snapshot()
	assert.Len(t, snapshot.Slides, 3)
	assert.Equal(t, "Slide A v2", snapshot.Slides[0].Title)
	// rejected by the decision func, left untouched
	assert.Equal(t, "Slide B", snapshot.Slides[1].Title)
	// past the local tail, appended
	assert.Equal(t, "Slide C", snapshot.Slides[2].Title)
	for i, slide := range snapshot.Slides {
		assert.Equal(t, i, slide.Order)
	}
}

func TestMergeSlidesKeepsLocalTail(t *testing.T) {
	store := newTestStore(testDeck(3))

	incoming := []Slide{{ID: "a", Title: "Slide A v2", Status: SlideCompleted}}
	store.MergeSlides(incoming, func(local, in *Slide) bool { return true }, UpdateOptions{SkipBackend: true})

	assert.Len(t, store.Snapshot().Slides, 3)
}

func TestMergeSlidesDecidesAgainstLiveSlides(t *testing.T) {
	store := newTestStore(testDeck(3))
	// the deck mutates after the payload was fetched: slide "a" is gone and
	// index 0 now holds slide "b"
	assert.NoError(t, store.RemoveSlide("a", UpdateOptions{}))

	var seen []string
	incoming := []Slide{{ID: "a", Title: "stale", Status: SlideCompleted}}
	store.MergeSlides(incoming, func(local, in *Slide) bool {
		seen = append(seen, local.ID)
		return false
	}, UpdateOptions{SkipBackend: true})

	// the decision ran against the slide actually at index 0 now
	assert.Equal(t, []string{"b"}, seen)
	assert.Equal(t, "Slide B", store.Snapshot().Slides[0].Title)
}

func TestMergeSlidesNoChangeIsNotAMutation(t *testing.T) {
	store := newTestStore(testDeck(2))
	v0 := store.Version()

	incoming := []Slide{{ID: "a", Title: "Slide A", Status: SlideCompleted}}
	changed := store.MergeSlides(incoming, func(local, in *Slide) bool { return false }, UpdateOptions{SkipBackend: true})

	assert.False(t, changed)
	assert.Equal(t, v0, store.Version())
}

func TestMarkCleanSkipsFlush(t *testing.T) {
	var mu sync.Mutex
	persisted := 0
	store := NewStore(testDeck(2), func(Deck) {
		mu.Lock()
		persisted++
		mu.Unlock()
	}, zerolog.Nop())

	title := "renamed"
	store.UpdateDeckData(DeckPatch{Title: &title}, UpdateOptions{})
	store.MarkClean(store.Version())

	assert.False(t, store.Dirty())
	store.Flush()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, persisted)
}

func TestMarkCleanIgnoresStaleVersion(t *testing.T) {
	store := newTestStore(testDeck(2))

	one := "one"
	store.UpdateDeckData(DeckPatch{Title: &one}, UpdateOptions{})
	persistedVersion := store.Version()

	two := "two"
	store.UpdateDeckData(DeckPatch{Title: &two}, UpdateOptions{})

	// a persist of the older snapshot completes; newer state is still dirty
	store.MarkClean(persistedVersion)
	assert.True(t, store.Dirty())
}

func TestSetCurrentIndexClamps(t *testing.T) {
	store := newTestStore(testDeck(3))

	store.SetCurrentIndex(99)
	assert.Equal(t, 2, store.CurrentIndex())

	store.SetCurrentIndex(-5)
	assert.Equal(t, 0, store.CurrentIndex())
}
