package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Stage names the credit-gated steps of the progressive workflow. They double
// as reservation labels and metric values.
type Stage string

const (
	StageFrontView      Stage = "front_view"
	StageRemainingViews Stage = "remaining_views"
	StageCloseups       Stage = "closeups"
	StageComponents     Stage = "components"
	StageSketches       Stage = "sketches"
)

// ViewKind classifies a generated image.
type ViewKind string

const (
	ViewKindFront     ViewKind = "front"
	ViewKindBack      ViewKind = "back"
	ViewKindSide      ViewKind = "side"
	ViewKindTop       ViewKind = "top"
	ViewKindCloseup   ViewKind = "closeup"
	ViewKindComponent ViewKind = "component"
	ViewKindSketch    ViewKind = "sketch"
)

// ProductView is one generated image. Revision counts regenerations of the
// same kind; the highest revision is the current one.
type ProductView struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	ProductID snowflake.ID   `gorm:"not null;index" json:"product_id"`
	Kind      ViewKind       `gorm:"type:text;not null" json:"kind"`
	Label     string         `gorm:"type:text;not null;default:''" json:"label"`
	ImageURL  string         `gorm:"type:text;not null;default:''" json:"image_url"`
	Prompt    string         `gorm:"type:text;not null;default:''" json:"prompt"`
	Revision  int            `gorm:"not null;default:1" json:"revision"`
	Metadata  datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ProductView) TableName() string { return "product_views" }
