package deck

import (
	"collaborative-deck-editor/internal/errors"
	"collaborative-deck-editor/redis"
	"context"
	defError "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Service interface {
	CreateDeck(ctx context.Context, userID uint64, deck *Deck) error
	RenameDeck(ctx context.Context, deckUUID string, userID uint64, title string) (*Deck, error)
	GetDeck(ctx context.Context, deckUUID string, userID uint64) (*Deck, error)
	GetUserDecks(ctx context.Context, userID uint64, page, pageSize int) (*PaginatedDecks, error)
	PersistSnapshot(ctx context.Context, deck Deck) error
	FetchUserRole(ctx context.Context, deckUUID string, userID uint64) (string, error)
	GetDeckState(ctx context.Context, deckUUID string) (*Deck, error)
	ListCollaborators(ctx context.Context, deckUUID string, requesterID uint64) ([]DeckCollaboratorDTO, error)
	AddCollaborator(ctx context.Context, deckUUID string, requesterID uint64, targetUserID uint64, role string) (*DeckCollaboratorDTO, error)
	ChangeCollaboratorRole(ctx context.Context, deckUUID string, requesterID uint64, targetUserID uint64, newRole string) (*DeckCollaboratorDTO, error)
	RemoveCollaborator(ctx context.Context, deckUUID string, requesterID uint64, targetUserID uint64) error
	DeleteDeck(ctx context.Context, deckUUID string, userID uint64) error
}

type UserProvider interface {
	GetUserInfo(ctx context.Context, id uint64) (name string, email string, err error)
}

// UpstreamNotifier tells the upstream content service about lifecycle changes.
type UpstreamNotifier interface {
	RemoveDeck(ctx context.Context, deckUUID string) error
}

type DefaultService struct {
	repository   DeckRepository
	userProvider UserProvider
	upstream     UpstreamNotifier
	cache        *redis.Cache
}

func NewService(
	repository DeckRepository,
	userProvider UserProvider,
	upstream UpstreamNotifier,
	cache *redis.Cache,
) Service {
	return &DefaultService{
		repository:   repository,
		userProvider: userProvider,
		upstream:     upstream,
		cache:        cache,
	}
}

func (s *DefaultService) CreateDeck(ctx context.Context, userID uint64, deck *Deck) error {
	if deck.UUID == "" {
		deck.UUID = uuid.NewString()
	}
	// a deck is never empty, it starts with one blank slide
	if len(deck.Slides) == 0 {
		deck.Slides = []Slide{{
			ID:       uuid.NewString(),
			DeckUUID: deck.UUID,
			Status:   SlidePending,
		}}
	}

	err := s.repository.Create(ctx, userID, deck)
	if err == nil {
		// increase cache key, so any new fetch will get new version
		versionKey := fmt.Sprintf("user:%d:decks:version", userID)
		s.cache.IncrementVersion(ctx, versionKey)
	}
	return err
}

func (s *DefaultService) RenameDeck(ctx context.Context, deckUUID string, userID uint64, title string) (*Deck, error) {
	if title == "" {
		return nil, errors.BadRequest("Title cannot be empty", nil)
	}

	role, err := s.repository.GetUserRole(ctx, deckUUID, userID)
	if err != nil {
		return nil, err
	}
	if role == "viewer" || role == "none" {
		return nil, errors.Forbidden("Viewer can't rename deck!", nil)
	}

	if err := s.repository.UpdateTitle(ctx, deckUUID, title); err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Deck not found", err)
		}
		return nil, err
	}
	// increase cache key, so any new fetch will get new version
	versionKey := fmt.Sprintf("user:%d:decks:version", userID)
	s.cache.IncrementVersion(ctx, versionKey)

	return s.repository.FindByUUID(ctx, deckUUID)
}

func (s *DefaultService) GetDeck(ctx context.Context, deckUUID string, userID uint64) (*Deck, error) {
	role, err := s.repository.GetUserRole(ctx, deckUUID, userID)
	if err != nil {
		return nil, err
	}
	if role == "none" {
		return nil, errors.Forbidden("You're not a collaborator on this deck", nil)
	}

	d, err := s.repository.FindByUUID(ctx, deckUUID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Deck not found", err)
		}
		return nil, err
	}
	return d, nil
}

type PaginatedDecks struct {
	Data []Deck    `json:"data"`
	Meta DecksMeta `json:"meta"`
}

func (s *DefaultService) GetUserDecks(ctx context.Context, userID uint64, page, pageSize int) (*PaginatedDecks, error) {
	// Get the current data version for this user's decks
	versionKey := fmt.Sprintf("user:%d:decks:version", userID)
	v := s.cache.GetVersion(ctx, versionKey)

	cacheKey := fmt.Sprintf("decks:u:%d:v:%d:p:%d:ps:%d", userID, v, page, pageSize)

	var result PaginatedDecks
	// get data from cache
	found, _ := s.cache.Get(ctx, cacheKey, &result)
	if found {
		return &result, nil
	}

	decks, meta, err := s.repository.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	result = PaginatedDecks{Data: decks, Meta: meta}
	// set value to cache
	go s.cache.Set(context.Background(), cacheKey, result, 24*time.Hour)

	return &result, nil
}

// PersistSnapshot is the sink for the deck store's debounced persistence.
func (s *DefaultService) PersistSnapshot(ctx context.Context, deck Deck) error {
	return s.repository.Save(ctx, &deck)
}

func (s *DefaultService) FetchUserRole(ctx context.Context, deckUUID string, userID uint64) (string, error) {
	return s.repository.GetUserRole(ctx, deckUUID, userID)
}

// GetDeckState serves the latest persisted deck without a role check, for
// trusted internal callers only.
func (s *DefaultService) GetDeckState(ctx context.Context, deckUUID string) (*Deck, error) {
	d, err := s.repository.FindByUUID(ctx, deckUUID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Deck not found", err)
		}
		return nil, err
	}
	return d, nil
}

type UserDTO struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type DeckCollaboratorDTO struct {
	User UserDTO `json:"user"`
	Role string  `json:"role"`
}

func (s *DefaultService) ListCollaborators(ctx context.Context, deckUUID string, requesterID uint64) ([]DeckCollaboratorDTO, error) {
	// viewer not allowed to
	role, err := s.FetchUserRole(ctx, deckUUID, requesterID)
	if err != nil {
		return nil, err
	}
	if role == "none" {
		return nil, errors.Forbidden("You're not a collaborator on this deck", nil)
	}

	rows, err := s.repository.ListCollaborators(ctx, deckUUID)
	if err != nil {
		return nil, err
	}

	// Map to API DTO
	result := make([]DeckCollaboratorDTO, 0, len(rows))
	for _, r := range rows {
		result = append(result, DeckCollaboratorDTO{
			User: UserDTO{
				ID:    r.UserID,
				Name:  r.Name,
				Email: r.Email,
			},
			Role: r.Role,
		})
	}

	return result, nil
}

func (s *DefaultService) AddCollaborator(
	ctx context.Context,
	deckUUID string,
	requesterID uint64,
	targetUserID uint64,
	role string,
) (*DeckCollaboratorDTO, error) {
	// only owner can add
	requesterRole, err := s.repository.GetUserRole(ctx, deckUUID, requesterID)
	if err != nil {
		return nil, err
	}
	if requesterRole != "owner" {
		return nil, errors.Forbidden("Only owner can add new collaborator!", nil)
	}

	// Prevent self-add
	if requesterID == targetUserID {
		return nil, errors.UnprocessableEntity("Can't add yourself!", nil)
	}

	// Ensure target user exists
	name, email, err := s.userProvider.GetUserInfo(ctx, targetUserID)
	if err != nil {
		return nil, errors.UnprocessableEntity("Can't find user!", err)
	}

	if err := s.repository.AddCollaborator(ctx, deckUUID, targetUserID, role); err != nil {
		if defError.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Conflict("User already added!", err)
		}
		return nil, err
	}

	return &DeckCollaboratorDTO{
		User: UserDTO{
			ID:    targetUserID,
			Name:  name,
			Email: email,
		},
		Role: role,
	}, nil
}

func (s *DefaultService) ChangeCollaboratorRole(
	ctx context.Context,
	deckUUID string,
	requesterID uint64,
	targetUserID uint64,
	newRole string,
) (*DeckCollaboratorDTO, error) {
	// must be owner
	requesterRole, err := s.repository.GetUserRole(ctx, deckUUID, requesterID)
	if err != nil {
		return nil, err
	}

	if requesterRole != "owner" {
		return nil, errors.Forbidden("Only owner can change role!", nil)
	}

	// Prevent self-demotion
	if requesterID == targetUserID {
		return nil, errors.UnprocessableEntity("Can't change your own role!", nil)
	}

	// Ensure target collaborator exists
	currentRole, err := s.repository.GetUserRole(ctx, deckUUID, targetUserID)
	if err != nil || currentRole == "none" {
		return nil, errors.UnprocessableEntity("Can't find user!", err)
	}

	//  No-op check
	if currentRole == newRole {
		return nil, errors.UnprocessableEntity("User role already match", nil)
	}

	if err := s.repository.UpdateCollaboratorRole(
		ctx,
		deckUUID,
		targetUserID,
		newRole,
	); err != nil {
		return nil, err
	}

	name, email, err := s.userProvider.GetUserInfo(ctx, targetUserID)
	if err != nil {
		return nil, err
	}

	return &DeckCollaboratorDTO{
		User: UserDTO{
			ID:    targetUserID,
			Name:  name,
			Email: email,
		},
		Role: newRole,
	}, nil
}

func (s *DefaultService) RemoveCollaborator(
	ctx context.Context,
	deckUUID string,
	requesterID uint64,
	targetUserID uint64,
) error {
	// must be owner
	requesterRole, err := s.repository.GetUserRole(ctx, deckUUID, requesterID)
	if err != nil {
		return err
	}
	if requesterRole != "owner" {
		return errors.Forbidden("Only owner can remove collaborator", nil)
	}

	// Prevent owner removing themselves
	if requesterID == targetUserID {
		return errors.UnprocessableEntity("Can't remove yourself", nil)
	}

	// Ensure target exists
	role, err := s.repository.GetUserRole(ctx, deckUUID, targetUserID)
	if err != nil || role == "none" {
		return errors.UnprocessableEntity("Can't find user", err)
	}

	return s.repository.RemoveCollaborator(ctx, deckUUID, targetUserID)
}

func (s *DefaultService) DeleteDeck(ctx context.Context, deckUUID string, userID uint64) error {
	role, err := s.repository.GetUserRole(ctx, deckUUID, userID)
	if err != nil {
		return errors.UnprocessableEntity("You're not collaborator", err)
	}

	if role != "owner" {
		return errors.Forbidden("Only owner can delete deck", nil)
	}

	err = s.repository.Delete(ctx, deckUUID)
	if err != nil {
		return err
	}
	// increase cache key, so any new fetch will get new version
	versionKey := fmt.Sprintf("user:%d:decks:version", userID)
	s.cache.IncrementVersion(ctx, versionKey)

	// notify upstream content service
	go func(id string) {
		// context with 5s timeout
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.upstream.RemoveDeck(bgCtx, id); err != nil {
			log.Error().Err(err).Str("deck", id).Msg("Failed to notify upstream that deck is deleted")
		}
	}(deckUUID)

	return nil
}
