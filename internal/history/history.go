package history

import (
	"collaborative-deck-editor/internal/deck"
	"sync"
)

// defaultLimit caps how many undo snapshots are retained per slide. The
// oldest snapshot is evicted when a push would exceed the cap.
const defaultLimit = 50

type slideHistory struct {
	undo [][]deck.Component
	redo [][]deck.Component
}

// Store keeps bounded per-slide undo/redo stacks of component snapshots.
// Snapshots are per slide, never per deck: undoing on one slide does not
// touch another slide's history.
type Store struct {
	mu     sync.Mutex
	limit  int
	slides map[string]*slideHistory
}

func NewStore() *Store {
	return &Store{
		limit:  defaultLimit,
		slides: make(map[string]*slideHistory),
	}
}

// Push records the slide's components as an undo point and clears the redo
// stack, since a new edit forks away from any undone states.
func (s *Store) Push(slideID string, components []deck.Component) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history(slideID)
	h.undo = append(h.undo, cloneComponents(components))
	if len(h.undo) > s.limit {
		h.undo = h.undo[1:]
	}
	h.redo = nil
}

// Undo pops the newest undo snapshot and returns it. The caller passes the
// slide's current components so they can be re-applied via Redo.
func (s *Store) Undo(slideID string, current []deck.Component) ([]deck.Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history(slideID)
	if len(h.undo) == 0 {
		return nil, false
	}
	snapshot := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, cloneComponents(current))
	return snapshot, true
}

// Redo re-applies the most recently undone state.
func (s *Store) Redo(slideID string, current []deck.Component) ([]deck.Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history(slideID)
	if len(h.redo) == 0 {
		return nil, false
	}
	snapshot := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, cloneComponents(current))
	return snapshot, true
}

func (s *Store) CanUndo(slideID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.slides[slideID]
	return ok && len(h.undo) > 0
}

func (s *Store) CanRedo(slideID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.slides[slideID]
	return ok && len(h.redo) > 0
}

// Clear drops all history for a slide, used when the slide is deleted or
// replaced wholesale by a sync update.
func (s *Store) Clear(slideID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slides, slideID)
}

func (s *Store) history(slideID string) *slideHistory {
	h, ok := s.slides[slideID]
	if !ok {
		h = &slideHistory{}
		s.slides[slideID] = h
	}
	return h
}

func cloneComponents(comps []deck.Component) []deck.Component {
	out := make([]deck.Component, len(comps))
	for i, c := range comps {
		out[i] = c
		out[i].Props = append([]byte(nil), c.Props...)
		out[i].Children = append([]string(nil), c.Children...)
	}
	return out
}
