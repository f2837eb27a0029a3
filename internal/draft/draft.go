package draft

import (
	"collaborative-deck-editor/internal/deck"
	"collaborative-deck-editor/internal/errors"
	"sync"
)

type draftEntry struct {
	components []deck.Component
	dirty      bool
}

// Store holds the in-editing copy of slide components, separate from the
// committed deck. Draft edits exist only while a slide is in edit mode: on
// exit they are either committed into the slide or discarded.
type Store struct {
	mu     sync.Mutex
	drafts map[string]*draftEntry
}

func NewStore() *Store {
	return &Store{drafts: make(map[string]*draftEntry)}
}

// BeginEdit opens a draft for the slide, copying its current components.
// Re-entering edit mode on an already-open draft keeps the existing draft.
func (s *Store) BeginEdit(slide deck.Slide) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.drafts[slide.ID]; open {
		return
	}
	s.drafts[slide.ID] = &draftEntry{
		components: cloneComponents(slide.Components),
	}
}

// Stage replaces the draft's component tree and marks it dirty.
func (s *Store) Stage(slideID string, components []deck.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, open := s.drafts[slideID]
	if !open {
		return errors.UnprocessableEntity("Slide is not in edit mode", nil)
	}
	entry.components = cloneComponents(components)
	entry.dirty = true
	return nil
}

// Components returns the drafted component tree, if a draft is open.
func (s *Store) Components(slideID string) ([]deck.Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, open := s.drafts[slideID]
	if !open {
		return nil, false
	}
	return cloneComponents(entry.components), true
}

// Dirty reports whether the slide has unsaved draft edits, for
// unsaved-changes prompts.
func (s *Store) Dirty(slideID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, open := s.drafts[slideID]
	return open && entry.dirty
}

// AnyDirty reports whether any open draft has unsaved edits.
func (s *Store) AnyDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.drafts {
		if entry.dirty {
			return true
		}
	}
	return false
}

// Commit closes the draft and returns the drafted components for merging
// into the slide.
func (s *Store) Commit(slideID string) ([]deck.Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, open := s.drafts[slideID]
	if !open {
		return nil, errors.UnprocessableEntity("Slide is not in edit mode", nil)
	}
	delete(s.drafts, slideID)
	return entry.components, nil
}

// Discard drops the draft without applying it.
func (s *Store) Discard(slideID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, slideID)
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
