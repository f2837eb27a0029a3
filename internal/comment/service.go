package comment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"collaborative-deck-editor/internal/deck"
	"collaborative-deck-editor/internal/errors"
	"collaborative-deck-editor/internal/events"
	"collaborative-deck-editor/redis"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const mentionCacheTTL = time.Hour

type Service interface {
	ListThreads(ctx context.Context, deckUUID string) ([]Thread, error)
	CreateThread(ctx context.Context, deckUUID string, authorID uint64, anchor Anchor, body string) (*Thread, error)
	Reply(ctx context.Context, deckUUID string, threadID string, authorID uint64, body string) (*Comment, error)
	Resolve(ctx context.Context, deckUUID string, threadID string, resolved bool) ([]Thread, error)
	DeleteThread(ctx context.Context, deckUUID string, threadID string) error
	MentionDirectory(ctx context.Context, deckUUID string, requesterID uint64) ([]Mention, error)
}

// CollaboratorLister is the slice of the deck service the mention directory
// needs.
type CollaboratorLister interface {
	ListCollaborators(ctx context.Context, deckUUID string, requesterID uint64) ([]deck.DeckCollaboratorDTO, error)
}

type DefaultService struct {
	repository    ThreadRepository
	collaborators CollaboratorLister
	cache         *redis.Cache
	bus           *events.Bus

	// mu guards the per-deck thread snapshots that back optimistic updates.
	mu      sync.Mutex
	threads map[string][]Thread
}

func NewService(repository ThreadRepository, collaborators CollaboratorLister, cache *redis.Cache, bus *events.Bus) *DefaultService {
	return &DefaultService{
		repository:    repository,
		collaborators: collaborators,
		cache:         cache,
		bus:           bus,
		threads:       make(map[string][]Thread),
	}
}

func (s *DefaultService) ListThreads(ctx context.Context, deckUUID string) ([]Thread, error) {
	s.mu.Lock()
	cached, ok := s.threads[deckUUID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}
	return s.refresh(ctx, deckUUID)
}

func (s *DefaultService) CreateThread(ctx context.Context, deckUUID string, authorID uint64, anchor Anchor, body string) (*Thread, error) {
	if err := validateAnchor(anchor); err != nil {
		return nil, err
	}

	thread := &Thread{
		ID:       uuid.NewString(),
		DeckUUID: deckUUID,
		Anchor:   anchor,
		Comments: []Comment{
			{
				ID:       uuid.NewString(),
				AuthorID: authorID,
				Body:     body,
				Mentions: extractMentions(body),
			},
		},
	}
	if err := s.repository.CreateThread(ctx, thread); err != nil {
		return nil, errors.Internal(err)
	}
	if _, err := s.refresh(ctx, deckUUID); err != nil {
		return nil, err
	}

	events.CommentAdded.Publish(s.bus, events.CommentPayload{
		DeckUUID: deckUUID,
		ThreadID: thread.ID,
	})
	return thread, nil
}

// Reply appends a comment to an existing thread. Unlike Resolve there is no
// optimistic step: the comment only appears after the write is confirmed.
func (s *DefaultService) Reply(ctx context.Context, deckUUID string, threadID string, authorID uint64, body string) (*Comment, error) {
	comment := &Comment{
		ID:       uuid.NewString(),
		ThreadID: threadID,
		AuthorID: authorID,
		Body:     body,
		Mentions: extractMentions(body),
	}
	if err := s.repository.AddComment(ctx, comment); err != nil {
		return nil, errors.Internal(err)
	}
	if _, err := s.refresh(ctx, deckUUID); err != nil {
		return nil, err
	}

	events.CommentAdded.Publish(s.bus, events.CommentPayload{
		DeckUUID: deckUUID,
		ThreadID: threadID,
	})
	return comment, nil
}

// Resolve flips the thread's resolved flag optimistically, then persists. If
// the write fails, the compensating action re-fetches the authoritative
// thread list instead of trying to reconstruct the prior state.
func (s *DefaultService) Resolve(ctx context.Context, deckUUID string, threadID string, resolved bool) ([]Thread, error) {
	apply := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.threads[deckUUID] {
			if s.threads[deckUUID][i].ID == threadID {
				s.threads[deckUUID][i].Resolved = resolved
				return true
			}
		}
		return false
	}
	persist := func() error {
		return s.repository.SetResolved(ctx, threadID, resolved)
	}
	compensate := func() ([]Thread, error) {
		return s.refresh(ctx, deckUUID)
	}

	apply()
	if err := persist(); err != nil {
		if rolled, rerr := compensate(); rerr == nil {
			if err == gorm.ErrRecordNotFound {
				return rolled, errors.NotFound("Thread not found", err)
			}
			return rolled, errors.Internal(err)
		}
		return nil, errors.Internal(err)
	}

	events.CommentResolved.Publish(s.bus, events.CommentPayload{
		DeckUUID: deckUUID,
		ThreadID: threadID,
		Resolved: resolved,
	})

	s.mu.Lock()
	current := s.threads[deckUUID]
	s.mu.Unlock()
	return current, nil
}

func (s *DefaultService) DeleteThread(ctx context.Context, deckUUID string, threadID string) error {
	if err := s.repository.DeleteThread(ctx, threadID); err != nil {
		return errors.Internal(err)
	}
	_, err := s.refresh(ctx, deckUUID)
	return err
}

// MentionDirectory returns the deck's collaborators for @-mention
// autocomplete. The directory is fetched once and cached; membership changes
// show up after the TTL.
func (s *DefaultService) MentionDirectory(ctx context.Context, deckUUID string, requesterID uint64) ([]Mention, error) {
	cacheKey := fmt.Sprintf("deck:%s:mentions", deckUUID)

	var mentions []Mention
	if found, err := s.cache.Get(ctx, cacheKey, &mentions); err == nil && found {
		return mentions, nil
	}

	collaborators, err := s.collaborators.ListCollaborators(ctx, deckUUID, requesterID)
	if err != nil {
		return nil, err
	}
	mentions = make([]Mention, 0, len(collaborators))
	for _, c := range collaborators {
		mentions = append(mentions, Mention{UserID: c.User.ID, Name: c.User.Name, Email: c.User.Email})
	}

	if err := s.cache.Set(ctx, cacheKey, mentions, mentionCacheTTL); err == nil {
		return mentions, nil
	}
	return mentions, nil
}

func (s *DefaultService) refresh(ctx context.Context, deckUUID string) ([]Thread, error) {
	threads, err := s.repository.ListByDeck(ctx, deckUUID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	s.mu.Lock()
	s.threads[deckUUID] = threads
	s.mu.Unlock()
	return threads, nil
}

func validateAnchor(anchor Anchor) error {
	if anchor.SlideID == "" {
		return errors.BadRequest("Anchor requires a slide id", nil)
	}
	switch anchor.Type {
	case AnchorComponent:
		if len(anchor.ComponentIDs) != 1 {
			return errors.BadRequest("Component anchor requires exactly one component id", nil)
		}
	case AnchorComponentGroup:
		if len(anchor.ComponentIDs) < 2 {
			return errors.BadRequest("Group anchor requires at least two component ids", nil)
		}
	case AnchorRegion:
		if len(anchor.Region) == 0 {
			return errors.BadRequest("Region anchor requires a rect", nil)
		}
	default:
		return errors.BadRequest("Unknown anchor type", nil)
	}
	return nil
}

// extractMentions pulls "@<id>" tokens out of the comment body. The client
// inserts mentions in this canonical form after autocompleting against the
// directory.
func extractMentions(body string) []uint64 {
	var ids []uint64
	for _, field := range strings.Fields(body) {
		if !strings.HasPrefix(field, "@<") || !strings.HasSuffix(field, ">") {
			continue
		}
		var id uint64
		if _, err := fmt.Sscanf(field, "@<%d>", &id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
