package deck

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CollaboratorRow struct {
	UserID uint64
	Name   string
	Email  string
	Role   string
}

type DeckRepository interface {
	Create(ctx context.Context, userID uint64, deck *Deck) error
	FindByUUID(ctx context.Context, uuid string) (*Deck, error)
	Save(ctx context.Context, deck *Deck) error
	UpdateTitle(ctx context.Context, uuid string, title string) error
	Delete(ctx context.Context, uuid string) error
	ListByUserID(ctx context.Context, userID uint64, page, pageSize int) ([]Deck, DecksMeta, error)
	GetUserRole(ctx context.Context, uuid string, userID uint64) (string, error)
	ListCollaborators(ctx context.Context, uuid string) ([]CollaboratorRow, error)
	AddCollaborator(ctx context.Context, uuid string, userID uint64, role string) error
	UpdateCollaboratorRole(ctx context.Context, uuid string, userID uint64, role string) error
	RemoveCollaborator(ctx context.Context, uuid string, userID uint64) error
}

type DeckRepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new deck repository
func NewRepository(db *gorm.DB) DeckRepository {
	return &DeckRepositoryImpl{db: db}
}

func (r *DeckRepositoryImpl) Create(ctx context.Context, userID uint64, deck *Deck) error {
	now := time.Now().UTC()
	deck.UserID = userID
	deck.CreatedAt = now
	deck.LastModified = now
	deck.Collaborators = []DeckCollaborator{
		{
			DeckUUID: deck.UUID,
			UserID:   userID,
			Role:     "owner",
			AddedAt:  now,
		},
	}
	return r.db.WithContext(ctx).Create(deck).Error
}

func (r *DeckRepositoryImpl) FindByUUID(ctx context.Context, uuid string) (*Deck, error) {
	var d Deck
	err := r.db.WithContext(ctx).
		Preload("Slides", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&d, "uuid = ?", uuid).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Save persists the full deck snapshot: the deck row is upserted, slides are
// upserted by id and slides no longer present are deleted.
func (r *DeckRepositoryImpl) Save(ctx context.Context, deck *Deck) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "uuid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "outline", "notes", "version", "last_modified",
			}),
		}).Omit("Slides", "Collaborators").Create(deck).Error; err != nil {
			return err
		}

		keep := make([]string, 0, len(deck.Slides))
		for i := range deck.Slides {
			slide := deck.Slides[i]
			slide.DeckUUID = deck.UUID
			slide.Order = i
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"title", "position", "status", "components", "updated_at",
				}),
			}).Create(&slide).Error; err != nil {
				return err
			}
			keep = append(keep, slide.ID)
		}

		// slides removed in memory are removed from storage as well
		q := tx.Where("deck_uuid = ?", deck.UUID)
		if len(keep) > 0 {
			q = q.Where("id NOT IN ?", keep)
		}
		return q.Delete(&Slide{}).Error
	})
}

func (r *DeckRepositoryImpl) UpdateTitle(ctx context.Context, uuid string, title string) error {
	return r.db.WithContext(ctx).Model(&Deck{}).
		Where("uuid = ?", uuid).
		Updates(map[string]any{
			"title":         title,
			"last_modified": time.Now().UTC(),
		}).Error
}

func (r *DeckRepositoryImpl) Delete(ctx context.Context, uuid string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("deck_uuid = ?", uuid).Delete(&Slide{}).Error; err != nil {
			return err
		}
		if err := tx.Where("deck_uuid = ?", uuid).Delete(&DeckCollaborator{}).Error; err != nil {
			return err
		}
		return tx.Where("uuid = ?", uuid).Delete(&Deck{}).Error
	})
}

type DecksMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

func (r *DeckRepositoryImpl) ListByUserID(ctx context.Context, userID uint64, page, pageSize int) ([]Deck, DecksMeta, error) {
	var decks []Deck
	var totalRecords int64

	// Count total records
	if err := r.db.WithContext(ctx).Model(&Deck{}).Where("user_id = ?", userID).Count(&totalRecords).Error; err != nil {
		return decks, DecksMeta{}, err
	}

	offset := (page - 1) * pageSize
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("last_modified DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&decks).Error

	totalPages := int((totalRecords + int64(pageSize) - 1) / int64(pageSize))

	return decks, DecksMeta{
		Total:       totalRecords,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, err
}

func (r *DeckRepositoryImpl) GetUserRole(ctx context.Context, uuid string, userID uint64) (string, error) {
	var role string
	err := r.db.WithContext(ctx).Model(&DeckCollaborator{}).
		Where("deck_uuid = ? AND user_id = ?", uuid, userID).
		Select("role").
		Scan(&role).Error
	if err != nil || role == "" {
		return "none", err
	}

	return role, nil
}

func (r *DeckRepositoryImpl) ListCollaborators(ctx context.Context, uuid string) ([]CollaboratorRow, error) {
	var rows []CollaboratorRow
	err := r.db.WithContext(ctx).Model(&DeckCollaborator{}).
		Select("deck_collaborators.user_id, users.name, users.email, deck_collaborators.role").
		Joins("JOIN users ON users.id = deck_collaborators.user_id").
		Where("deck_collaborators.deck_uuid = ?", uuid).
		Scan(&rows).Error
	return rows, err
}

func (r *DeckRepositoryImpl) AddCollaborator(ctx context.Context, uuid string, userID uint64, role string) error {
	return r.db.WithContext(ctx).Create(&DeckCollaborator{
		DeckUUID: uuid,
		UserID:   userID,
		Role:     role,
		AddedAt:  time.Now().UTC(),
	}).Error
}

func (r *DeckRepositoryImpl) UpdateCollaboratorRole(ctx context.Context, uuid string, userID uint64, role string) error {
	return r.db.WithContext(ctx).Model(&DeckCollaborator{}).
		Where("deck_uuid = ? AND user_id = ?", uuid, userID).
		Update("role", role).Error
}

func (r *DeckRepositoryImpl) RemoveCollaborator(ctx context.Context, uuid string, userID uint64) error {
	return r.db.WithContext(ctx).
		Where("deck_uuid = ? AND user_id = ?", uuid, userID).
		Delete(&DeckCollaborator{}).Error
}
