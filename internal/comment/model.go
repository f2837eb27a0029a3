package comment

import (
	"time"

	"gorm.io/datatypes"
)

type AnchorType string

const (
	AnchorComponent      AnchorType = "component"
	AnchorComponentGroup AnchorType = "component_group"
	AnchorRegion         AnchorType = "region"
)

// Anchor ties a thread to a spot on a slide. Region anchors use a rect in
// normalized slide coordinates so they survive viewport changes; component
// anchors follow the component.
type Anchor struct {
	Type         AnchorType     `json:"type"`
	SlideID      string         `json:"slide_id"`
	ComponentIDs []string       `json:"component_ids,omitempty"`
	Region       datatypes.JSON `json:"region,omitempty"`
}

type Comment struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	ThreadID  string    `json:"-" gorm:"index"`
	AuthorID  uint64    `json:"author_id"`
	Body      string    `json:"body"`
	Mentions  []uint64  `json:"mentions,omitempty" gorm:"serializer:json"`
	CreatedAt time.Time `json:"created_at"`
}

type Thread struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	DeckUUID  string    `json:"-" gorm:"index"`
	Anchor    Anchor    `json:"anchor" gorm:"serializer:json"`
	Resolved  bool      `json:"resolved"`
	Comments  []Comment `json:"comments" gorm:"foreignKey:ThreadID;references:ID"`
	CreatedAt time.Time `json:"created_at"`
}

// Mention is a collaborator entry the client autocompletes @-mentions against.
type Mention struct {
	UserID uint64 `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}
