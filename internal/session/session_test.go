package session

import (
	"context"
	"testing"
	"time"

	"collaborative-deck-editor/internal/deck"
	"collaborative-deck-editor/internal/upstream"
	"collaborative-deck-editor/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockDeckService struct {
	mock.Mock
}

func (m *MockDeckService) CreateDeck(ctx context.Context, userID uint64, d *deck.Deck) error {
	return m.Called(ctx, userID, d).Error(0)
}

func (m *MockDeckService) RenameDeck(ctx context.Context, deckUUID string, userID uint64, title string) (*deck.Deck, error) {
	args := m.Called(ctx, deckUUID, userID, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deck.Deck), args.Error(1)
}

func (m *MockDeckService) GetDeck(ctx context.Context, deckUUID string, userID uint64) (*deck.Deck, error) {
	args := m.Called(ctx, deckUUID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deck.Deck), args.Error(1)
}

func (m *MockDeckService) GetUserDecks(ctx context.Context, userID uint64, page, pageSize int) (*deck.PaginatedDecks, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deck.PaginatedDecks), args.Error(1)
}

func (m *MockDeckService) PersistSnapshot(ctx context.Context, d deck.Deck) error {
	return m.Called(ctx, d).Error(0)
}

func (m *MockDeckService) FetchUserRole(ctx context.Context, deckUUID string, userID uint64) (string, error) {
	args := m.Called(ctx, deckUUID, userID)
	return args.String(0), args.Error(1)
}

func (m *MockDeckService) GetDeckState(ctx context.Context, deckUUID string) (*deck.Deck, error) {
	args := m.Called(ctx, deckUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deck.Deck), args.Error(1)
}

func (m *MockDeckService) ListCollaborators(ctx context.Context, deckUUID string, requesterID uint64) ([]deck.DeckCollaboratorDTO, error) {
	args := m.Called(ctx, deckUUID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]deck.DeckCollaboratorDTO), args.Error(1)
}

func (m *MockDeckService) AddCollaborator(ctx context.Context, deckUUID string, requesterID uint64, targetUserID uint64, role string) (*deck.DeckCollaboratorDTO, error) {
	args := m.Called(ctx, deckUUID, requesterID, targetUserID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deck.DeckCollaboratorDTO), args.Error(1)
}

func (m *MockDeckService) ChangeCollaboratorRole(ctx context.Context, deckUUID string, requesterID uint64, targetUserID uint64, newRole string) (*deck.DeckCollaboratorDTO, error) {
	args := m.Called(ctx, deckUUID, requesterID, targetUserID, newRole)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deck.DeckCollaboratorDTO), args.Error(1)
}

func (m *MockDeckService) RemoveCollaborator(ctx context.Context, deckUUID string, requesterID uint64, targetUserID uint64) error {
	return m.Called(ctx, deckUUID, requesterID, targetUserID).Error(0)
}

func (m *MockDeckService) DeleteDeck(ctx context.Context, deckUUID string, userID uint64) error {
	return m.Called(ctx, deckUUID, userID).Error(0)
}

func testDeck(uuid string) *deck.Deck {
	return &deck.Deck{
		UUID:  uuid,
		Title: "Quarterly Review",
		Slides: []deck.Slide{
			{ID: "s1", Title: "Intro", Status: deck.SlideCompleted},
		},
	}
}

func newTestRegistry(decks deck.Service) *Registry {
	client := upstream.NewClient("http://127.0.0.1:0", "secret")
	pool := worker.NewWorkerPool(1)
	return NewRegistry(decks, client, nil, pool, zerolog.Nop())
}

func TestOpenCreatesSessionOnce(t *testing.T) {
	decks := new(MockDeckService)
	registry := newTestRegistry(decks)

	decks.On("GetDeck", mock.Anything, "deck-1", uint64(7)).Return(testDeck("deck-1"), nil).Once()
	decks.On("FetchUserRole", mock.Anything, "deck-1", uint64(9)).Return("editor", nil)

	first, err := registry.Open(context.Background(), "deck-1", 7)
	assert.NoError(t, err)
	assert.Equal(t, "deck-1", first.DeckUUID)

	second, err := registry.Open(context.Background(), "deck-1", 9)
	assert.NoError(t, err)
	assert.Same(t, first, second, "both clients must share one session")

	decks.AssertNumberOfCalls(t, "GetDeck", 1)
}

func TestOpenDeniedWhenDeckInaccessible(t *testing.T) {
	decks := new(MockDeckService)
	registry := newTestRegistry(decks)

	decks.On("GetDeck", mock.Anything, "deck-1", uint64(7)).
		Return(nil, assert.AnError)

	_, err := registry.Open(context.Background(), "deck-1", 7)

	assert.Error(t, err)
	_, err = registry.Get("deck-1")
	assert.Error(t, err, "failed open must not leave a session behind")
}

func TestCloseLastReferenceTearsDown(t *testing.T) {
	decks := new(MockDeckService)
	registry := newTestRegistry(decks)

	decks.On("GetDeck", mock.Anything, "deck-1", uint64(7)).Return(testDeck("deck-1"), nil)
	decks.On("FetchUserRole", mock.Anything, "deck-1", uint64(9)).Return("viewer", nil)

	_, err := registry.Open(context.Background(), "deck-1", 7)
	assert.NoError(t, err)
	_, err = registry.Open(context.Background(), "deck-1", 9)
	assert.NoError(t, err)

	registry.Close("deck-1")
	_, err = registry.Get("deck-1")
	assert.NoError(t, err, "session must survive while a client remains")

	registry.Close("deck-1")
	_, err = registry.Get("deck-1")
	assert.Error(t, err)
}

func TestCloseFlushesPendingWrites(t *testing.T) {
	decks := new(MockDeckService)
	registry := newTestRegistry(decks)

	decks.On("GetDeck", mock.Anything, "deck-1", uint64(7)).Return(testDeck("deck-1"), nil)

	persisted := make(chan deck.Deck, 1)
	decks.On("PersistSnapshot", mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			select {
			case persisted <- args.Get(1).(deck.Deck):
			default:
			}
		})

	s, err := registry.Open(context.Background(), "deck-1", 7)
	assert.NoError(t, err)

	title := "Renamed"
	s.Store.UpdateDeckData(deck.DeckPatch{Title: &title}, deck.UpdateOptions{})

	// close before the debounce window elapses; Flush must persist anyway
	registry.Close("deck-1")

	select {
	case snapshot := <-persisted:
		assert.Equal(t, "Renamed", snapshot.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("expected flush to persist the pending snapshot")
	}
}

func TestSecondGenerationStartRejected(t *testing.T) {
	decks := new(MockDeckService)
	registry := newTestRegistry(decks)

	decks.On("GetDeck", mock.Anything, "deck-1", uint64(7)).Return(testDeck("deck-1"), nil)

	s, err := registry.Open(context.Background(), "deck-1", 7)
	assert.NoError(t, err)

	s.mu.Lock()
	s.generating = true
	s.mu.Unlock()

	assert.Error(t, s.StartGeneration())
}
