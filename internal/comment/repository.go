package comment

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ThreadRepository interface {
	ListByDeck(ctx context.Context, deckUUID string) ([]Thread, error)
	CreateThread(ctx context.Context, thread *Thread) error
	AddComment(ctx context.Context, comment *Comment) error
	SetResolved(ctx context.Context, threadID string, resolved bool) error
	DeleteThread(ctx context.Context, threadID string) error
}

type ThreadRepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) ThreadRepository {
	return &ThreadRepositoryImpl{db: db}
}

func (r *ThreadRepositoryImpl) ListByDeck(ctx context.Context, deckUUID string) ([]Thread, error) {
	var threads []Thread
	err := r.db.WithContext(ctx).
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("deck_uuid = ?", deckUUID).
		Order("created_at ASC").
		Find(&threads).Error
	if err != nil {
		return nil, err
	}
	return threads, nil
}

func (r *ThreadRepositoryImpl) CreateThread(ctx context.Context, thread *Thread) error {
	thread.CreatedAt = time.Now().UTC()
	for i := range thread.Comments {
		thread.Comments[i].ThreadID = thread.ID
		thread.Comments[i].CreatedAt = thread.CreatedAt
	}
	return r.db.WithContext(ctx).Create(thread).Error
}

func (r *ThreadRepositoryImpl) AddComment(ctx context.Context, comment *Comment) error {
	comment.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *ThreadRepositoryImpl) SetResolved(ctx context.Context, threadID string, resolved bool) error {
	result := r.db.WithContext(ctx).
		Model(&Thread{}).
		Where("id = ?", threadID).
		Update("resolved", resolved)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ThreadRepositoryImpl) DeleteThread(ctx context.Context, threadID string) error {
	return r.db.WithContext(ctx).
		Select("Comments").
		Delete(&Thread{ID: threadID}).Error
}
