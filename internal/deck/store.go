package deck

import (
	"collaborative-deck-editor/internal/errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// how long mutations are coalesced before the persist func fires
const persistDebounce = 500 * time.Millisecond

// UpdateOptions controls how a mutation is applied.
// SkipBackend marks updates that originated from the backend (reconciler,
// generation stream): they are applied to in-memory state only, so the change
// is not echoed back as a write. IsRealtimeUpdate marks peer edits relayed by
// the presence layer.
type UpdateOptions struct {
	SkipBackend      bool
	IsRealtimeUpdate bool
}

// DeckPatch is a partial deck update; nil fields are left untouched.
type DeckPatch struct {
	Title   *string
	Slides  []Slide
	Outline []byte
	Notes   []byte
	Status  *GenerationStatus
}

// SlidePatch is a partial slide update; nil fields are left untouched.
type SlidePatch struct {
	Title      *string
	Status     *SlideStatus
	Components []Component
}

// Store is the single source of truth for the deck being edited. All mutation
// paths (local edit commit, realtime peer update, reconciler fetch, generation
// tracker) funnel through it.
type Store struct {
	mu      sync.RWMutex
	deck    Deck
	current int // index of the visually active slide, clamped to valid range
	dirty   bool

	persist      func(Deck)
	persistTimer *time.Timer

	log zerolog.Logger
}

// NewStore wraps a loaded deck. persist is invoked (debounced) with a snapshot
// of the deck after every mutation that is not marked SkipBackend.
func NewStore(d Deck, persist func(Deck), log zerolog.Logger) *Store {
	if persist == nil {
		persist = func(Deck) {}
	}
	return &Store{
		deck:    d,
		persist: persist,
		log:     log.With().Str("component", "deck-store").Str("deck", d.UUID).Logger(),
	}
}

// Snapshot returns a deep copy of the current deck.
func (s *Store) Snapshot() Deck {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDeck(s.deck)
}

// Version returns the deck's monotonic mutation counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deck.Version
}

func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// CurrentIndex returns the index of the active slide.
func (s *Store) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrentIndex clamps idx into the valid slide range.
func (s *Store) SetCurrentIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = clamp(idx, 0, len(s.deck.Slides)-1)
}

// UpdateDeckData applies a partial deck update.
func (s *Store) UpdateDeckData(patch DeckPatch, opts UpdateOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.Title != nil {
		s.deck.Title = *patch.Title
	}
	if patch.Slides != nil {
		s.deck.Slides = cloneSlides(patch.Slides)
		s.current = clamp(s.current, 0, len(s.deck.Slides)-1)
	}
	if patch.Outline != nil {
		s.deck.Outline = append([]byte(nil), patch.Outline...)
	}
	if patch.Notes != nil {
		s.deck.Notes = append([]byte(nil), patch.Notes...)
	}
	if patch.Status != nil {
		s.deck.Status = *patch.Status
	}

	s.applied(opts)
}

// UpdateSlide applies a partial update to the slide with the given id.
func (s *Store) UpdateSlide(slideID string, patch SlidePatch, opts UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(slideID)
	if idx < 0 {
		return errors.NotFound("Slide not found", nil)
	}

	slide := &s.deck.Slides[idx]
	if patch.Title != nil {
		slide.Title = *patch.Title
	}
	if patch.Status != nil {
		slide.Status = *patch.Status
	}
	if patch.Components != nil {
		slide.Components = cloneComponents(patch.Components)
	}
	slide.UpdatedAt = time.Now().UTC()

	s.applied(opts)
	return nil
}

// MergeSlides reconciles an incoming slides payload against the deck, per
// index, in one critical section: the merge decision and the write happen
// under the same lock, so a concurrent remove or reorder can't shift indices
// between them. accept is called with the live local slide and decides
// whether the aligned incoming slide replaces it. Incoming slides past the
// local tail are appended; local slides past the incoming tail are kept.
// Returns true when anything changed.
func (s *Store) MergeSlides(incoming []Slide, accept func(local, incoming *Slide) bool, opts UpdateOptions) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for i := range incoming {
		if i >= len(s.deck.Slides) {
			in := cloneSlide(incoming[i])
			if in.ID == "" {
				in.ID = uuid.NewString()
			}
			in.Order = len(s.deck.Slides)
			s.deck.Slides = append(s.deck.Slides, in)
			changed = true
			continue
		}
		if !accept(&s.deck.Slides[i], &incoming[i]) {
			continue
		}
		in := cloneSlide(incoming[i])
		in.Order = i
		s.deck.Slides[i] = in
		changed = true
	}

	if changed {
		s.applied(opts)
	}
	return changed
}

// AppendSlide adds a slide at the end of the deck, assigning an id when empty.
func (s *Store) AppendSlide(slide Slide, opts UpdateOptions) Slide {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slide.ID == "" {
		slide.ID = uuid.NewString()
	}
	slide.Order = len(s.deck.Slides)
	s.deck.Slides = append(s.deck.Slides, cloneSlide(slide))

	s.applied(opts)
	return slide
}

// AddSlideAfter inserts a new slide right after the slide with the given id.
func (s *Store) AddSlideAfter(afterID string, slide Slide, opts UpdateOptions) (Slide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(afterID)
	if idx < 0 {
		return Slide{}, errors.NotFound("Slide not found", nil)
	}

	if slide.ID == "" {
		slide.ID = uuid.NewString()
	}
	s.insertAt(idx+1, cloneSlide(slide))

	s.applied(opts)
	return slide, nil
}

// RemoveSlide deletes a slide. A deck must retain at least one slide; removing
// the last one is rejected.
func (s *Store) RemoveSlide(slideID string, opts UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.deck.Slides) <= 1 {
		return errors.UnprocessableEntity("Can't remove the last slide", nil)
	}

	idx := s.indexOf(slideID)
	if idx < 0 {
		return errors.NotFound("Slide not found", nil)
	}

	s.deck.Slides = append(s.deck.Slides[:idx], s.deck.Slides[idx+1:]...)
	s.renumber()
	if idx < s.current || s.current >= len(s.deck.Slides) {
		s.current = clamp(s.current-1, 0, len(s.deck.Slides)-1)
	}

	s.applied(opts)
	return nil
}

// DuplicateSlide copies a slide (with fresh component ids) and inserts the
// copy right after the source.
func (s *Store) DuplicateSlide(slideID string, opts UpdateOptions) (Slide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(slideID)
	if idx < 0 {
		return Slide{}, errors.NotFound("Slide not found", nil)
	}

	dup := cloneSlide(s.deck.Slides[idx])
	dup.ID = uuid.NewString()
	remapped := make(map[string]string, len(dup.Components))
	for i := range dup.Components {
		fresh := uuid.NewString()
		remapped[dup.Components[i].ID] = fresh
		dup.Components[i].ID = fresh
	}
	// group children point at component ids, keep them consistent
	for i := range dup.Components {
		for j, child := range dup.Components[i].Children {
			if fresh, ok := remapped[child]; ok {
				dup.Components[i].Children[j] = fresh
			}
		}
	}
	s.insertAt(idx+1, dup)

	s.applied(opts)
	return dup, nil
}

// ReorderSlides moves the slide at index from to index to. When the move
// crosses the current slide the current index is shifted by one, so the
// visibly active slide keeps its identity mid-drag.
func (s *Store) ReorderSlides(from, to int, opts UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.deck.Slides)
	if from < 0 || from >= n || to < 0 || to >= n {
		return errors.UnprocessableEntity("Reorder index out of range", nil)
	}
	if from == to {
		return nil
	}

	moved := s.deck.Slides[from]
	s.deck.Slides = append(s.deck.Slides[:from], s.deck.Slides[from+1:]...)
	rest := append([]Slide{}, s.deck.Slides[to:]...)
	s.deck.Slides = append(append(s.deck.Slides[:to:to], moved), rest...)
	s.renumber()

	switch {
	case from == s.current:
		s.current = to
	case from < s.current && to >= s.current:
		s.current--
	case from > s.current && to <= s.current:
		s.current++
	}

	s.applied(opts)
	return nil
}

// AddComponent appends a component to a slide. A slide holds at most one
// Background component.
func (s *Store) AddComponent(slideID string, comp Component, opts UpdateOptions) (Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(slideID)
	if idx < 0 {
		return Component{}, errors.NotFound("Slide not found", nil)
	}

	if comp.Type == ComponentBackground {
		for _, existing := range s.deck.Slides[idx].Components {
			if existing.Type == ComponentBackground {
				return Component{}, errors.UnprocessableEntity("Slide already has a background", nil)
			}
		}
	}

	if comp.ID == "" {
		comp.ID = uuid.NewString()
	}
	s.deck.Slides[idx].Components = append(s.deck.Slides[idx].Components, cloneComponent(comp))
	s.deck.Slides[idx].UpdatedAt = time.Now().UTC()

	s.applied(opts)
	return comp, nil
}

// RemoveComponent deletes a component from a slide. Background components
// can't be removed, only replaced.
func (s *Store) RemoveComponent(slideID, componentID string, opts UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(slideID)
	if idx < 0 {
		return errors.NotFound("Slide not found", nil)
	}

	comps := s.deck.Slides[idx].Components
	for i, comp := range comps {
		if comp.ID != componentID {
			continue
		}
		if comp.Type == ComponentBackground {
			return errors.UnprocessableEntity("Can't delete the background component", nil)
		}
		s.deck.Slides[idx].Components = append(comps[:i], comps[i+1:]...)
		s.deck.Slides[idx].UpdatedAt = time.Now().UTC()
		s.applied(opts)
		return nil
	}

	return errors.NotFound("Component not found", nil)
}

// SetSlideStatusAt updates the status of the slide at index idx. Generation
// events address slides by index, not id.
func (s *Store) SetSlideStatusAt(idx int, status SlideStatus, opts UpdateOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.deck.Slides) {
		return errors.NotFound("Slide index out of range", nil)
	}
	s.deck.Slides[idx].Status = status
	s.deck.Slides[idx].UpdatedAt = time.Now().UTC()

	s.applied(opts)
	return nil
}

// SetStatus replaces the transient generation status. Status changes never
// write to the backend.
func (s *Store) SetStatus(status GenerationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deck.Status = status
}

// MarkClean clears the dirty flag after a successful persist of the snapshot
// carrying the given version. When the deck mutated again in the meantime the
// flag stays set, so Flush still writes the newer state.
func (s *Store) MarkClean(version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deck.Version == version {
		s.dirty = false
	}
}

// Flush fires any pending debounced persist immediately.
func (s *Store) Flush() {
	s.mu.Lock()
	if s.persistTimer != nil {
		s.persistTimer.Stop()
		s.persistTimer = nil
	}
	snapshot := cloneDeck(s.deck)
	dirty := s.dirty
	s.mu.Unlock()

	if dirty {
		s.persist(snapshot)
	}
}

// applied is called with the lock held after every successful mutation.
func (s *Store) applied(opts UpdateOptions) {
	s.deck.Version++
	s.deck.LastModified = time.Now().UTC()

	if opts.SkipBackend {
		return
	}

	s.dirty = true
	snapshot := cloneDeck(s.deck)
	if s.persistTimer != nil {
		s.persistTimer.Stop()
	}
	s.persistTimer = time.AfterFunc(persistDebounce, func() {
		s.persist(snapshot)
	})
}

func (s *Store) indexOf(slideID string) int {
	for i := range s.deck.Slides {
		if s.deck.Slides[i].ID == slideID {
			return i
		}
	}
	return -1
}

func (s *Store) insertAt(idx int, slide Slide) {
	s.deck.Slides = append(s.deck.Slides, Slide{})
	copy(s.deck.Slides[idx+1:], s.deck.Slides[idx:])
	s.deck.Slides[idx] = slide
	s.renumber()
	if idx <= s.current && len(s.deck.Slides) > 1 {
		s.current++
	}
}

func (s *Store) renumber() {
	for i := range s.deck.Slides {
		s.deck.Slides[i].Order = i
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func cloneDeck(d Deck) Deck {
	out := d
	out.Slides = cloneSlides(d.Slides)
	out.Outline = append([]byte(nil), d.Outline...)
	out.Notes = append([]byte(nil), d.Notes...)
	out.Collaborators = append([]DeckCollaborator(nil), d.Collaborators...)
	return out
}

func cloneSlides(slides []Slide) []Slide {
	out := make([]Slide, len(slides))
	for i := range slides {
		out[i] = cloneSlide(slides[i])
	}
	return out
}

func cloneSlide(s Slide) Slide {
	out := s
	out.Components = cloneComponents(s.Components)
	return out
}

func cloneComponents(comps []Component) []Component {
	out := make([]Component, len(comps))
	for i := range comps {
		out[i] = cloneComponent(comps[i])
	}
	return out
}

func cloneComponent(c Component) Component {
	out := c
	out.Props = append([]byte(nil), c.Props...)
	out.Children = append([]string(nil), c.Children...)
	return out
}
