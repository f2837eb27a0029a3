package user

import (
	"context"
	"fmt"
	"time"

	"collaborative-deck-editor/internal/errors"
	"collaborative-deck-editor/redis"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	searchLimit = 10
	sessionTTL  = 72 * time.Hour
)

// Service defines the interface for user business logic
type Service interface {
	Register(ctx context.Context, user *User) error
	Login(ctx context.Context, email, password string) (*User, error)
	Logout(ctx context.Context, userID uint64) error
	GetUserByID(ctx context.Context, id uint64) (*User, error)
	GetUserInfo(ctx context.Context, id uint64) (string, string, error)
	SearchUsers(ctx context.Context, query string) ([]SafeUser, error)
	StoreSession(ctx context.Context, userID uint64, token string) error
	DeactivateUser(ctx context.Context, id uint64) error
}

type DefaultService struct {
	repository UserRepository
	cache      *redis.Cache
}

// NewService creates a new user service
func NewService(repository UserRepository, cache *redis.Cache) Service {
	return &DefaultService{repository: repository, cache: cache}
}

// Register registers a new user
func (s *DefaultService) Register(ctx context.Context, user *User) error {
	_, err := s.repository.FindByEmail(ctx, user.Email)
	if err != nil && err != gorm.ErrRecordNotFound {
		return errors.Internal(err)
	}
	if err == nil {
		return errors.UnprocessableEntity("User already registered", nil)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.UnprocessableEntity("Failed to hash password", err)
	}
	user.PasswordHash = string(hashedPassword)
	user.IsActive = true

	return s.repository.Create(ctx, user)
}

// Login authenticates a user
func (s *DefaultService) Login(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repository.FindByEmail(ctx, email)
	if err != nil {
		return nil, errors.Unauthorized("User not found", err)
	}

	if !user.IsActive {
		return nil, errors.Unauthorized("User is not active", nil)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return nil, errors.UnprocessableEntity("Wrong password", err)
	}

	return user, nil
}

// StoreSession records the issued token so Logout can revoke it.
func (s *DefaultService) StoreSession(ctx context.Context, userID uint64, token string) error {
	return s.cache.Set(ctx, sessionKey(userID), token, sessionTTL)
}

func (s *DefaultService) Logout(ctx context.Context, userID uint64) error {
	return s.cache.Delete(ctx, sessionKey(userID))
}

func (s *DefaultService) GetUserByID(ctx context.Context, id uint64) (*User, error) {
	user, err := s.repository.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("User not found", err)
		}
		return nil, errors.Internal(err)
	}
	return user, nil
}

// GetUserInfo returns the user's display name and email, for collaborator
// listings and upstream notifications.
func (s *DefaultService) GetUserInfo(ctx context.Context, id uint64) (string, string, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	return user.Name, user.Email, nil
}

// SearchUsers looks up users for the collaborator picker. Empty queries
// return nothing rather than the whole table.
func (s *DefaultService) SearchUsers(ctx context.Context, query string) ([]SafeUser, error) {
	if query == "" {
		return []SafeUser{}, nil
	}

	users, err := s.repository.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, errors.Internal(err)
	}

	safe := make([]SafeUser, 0, len(users))
	for i := range users {
		safe = append(safe, users[i].ToSafeUser())
	}
	return safe, nil
}

func (s *DefaultService) DeactivateUser(ctx context.Context, id uint64) error {
	if err := s.repository.Deactivate(ctx, id); err != nil {
		return errors.Internal(err)
	}
	return s.Logout(ctx, id)
}

func sessionKey(userID uint64) string {
	return fmt.Sprintf("session:user:%d", userID)
}
