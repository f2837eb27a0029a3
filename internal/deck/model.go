package deck

import (
	"time"

	"gorm.io/datatypes"
)

// Component types used by the editor. Props are loosely schematized per type,
// the backend treats them as opaque JSON.
const (
	ComponentBackground = "Background"
	ComponentTextBlock  = "TiptapTextBlock"
	ComponentShape      = "Shape"
	ComponentImage      = "Image"
	ComponentChart      = "Chart"
	ComponentTable      = "Table"
	ComponentLines      = "Lines"
	ComponentGroup      = "Group"
)

// Slide lifecycle while a deck is being generated.
type SlideStatus string

const (
	SlidePending    SlideStatus = "pending"
	SlideGenerating SlideStatus = "generating"
	SlideStreaming  SlideStatus = "streaming"
	SlideCompleted  SlideStatus = "completed"
)

// GenerationState is the overall deck generation lifecycle. Transitions only
// pending -> creating -> generating -> completed, or any -> error.
type GenerationState string

const (
	StatePending    GenerationState = "pending"
	StateCreating   GenerationState = "creating"
	StateGenerating GenerationState = "generating"
	StateCompleted  GenerationState = "completed"
	StateError      GenerationState = "error"
)

// GenerationStatus is transient per editing session, never persisted.
// Progress is monotonic non-decreasing while State != error.
type GenerationStatus struct {
	State        GenerationState `json:"state"`
	Progress     int             `json:"progress"`
	CurrentSlide int             `json:"current_slide"`
	TotalSlides  int             `json:"total_slides"`
	Message      string          `json:"message"`
	Error        string          `json:"error,omitempty"`
}

type Component struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Props datatypes.JSON `json:"props"`
	// Group components reference child component ids (non-owning)
	Children []string `json:"children,omitempty"`
}

type Slide struct {
	ID         string         `json:"id" gorm:"primaryKey"`
	DeckUUID   string         `json:"-" gorm:"index"`
	Title      string         `json:"title"`
	Order      int            `json:"order" gorm:"column:position"`
	Status     SlideStatus    `json:"status"`
	Components []Component    `json:"components" gorm:"serializer:json"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// HasContent reports whether the slide carries any components. The reconciler
// uses this to decide whether an incoming slide may overwrite a local one.
func (s *Slide) HasContent() bool {
	return len(s.Components) > 0
}

type Deck struct {
	UUID         string         `json:"uuid" gorm:"primaryKey"`
	Title        string         `json:"name"`
	UserID       uint64         `json:"owner_id" gorm:"index"`
	Outline      datatypes.JSON `json:"outline,omitempty"`
	Notes        datatypes.JSON `json:"notes,omitempty"`
	Version      uint64         `json:"version"`
	LastModified time.Time      `json:"last_modified"`
	CreatedAt    time.Time      `json:"created_at"`
	Slides       []Slide        `json:"slides" gorm:"foreignKey:DeckUUID;references:UUID"`

	// transient, owned by the generation tracker / reconciler
	Status GenerationStatus `json:"status" gorm:"-"`

	Collaborators []DeckCollaborator `json:"-" gorm:"foreignKey:DeckUUID;references:UUID"`
}

type DeckCollaborator struct {
	ID       uint64    `json:"id"`
	DeckUUID string    `json:"deck_uuid" gorm:"uniqueIndex:idx_deck_user"`
	UserID   uint64    `json:"user_id" gorm:"uniqueIndex:idx_deck_user"`
	Role     string    `json:"role"`
	AddedAt  time.Time `json:"added_at"`
}
