package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// State is the product's position in the progressive generation workflow.
// Only the generation service moves it forward.
type State string

const (
	StateNoFrontView     State = "no_front_view"
	StatePendingApproval State = "pending_approval"
	StateApproved        State = "approved"
	StateBaseViewsReady  State = "base_views_ready"
	StateEnriched        State = "enriched"
)

// Product is a registered design project owned by a creator.
type Product struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID `gorm:"not null;index;uniqueIndex:ux_products_user_slug" json:"user_id"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Slug        string       `gorm:"type:text;not null;uniqueIndex:ux_products_user_slug" json:"slug"`
	Category    string       `gorm:"type:text;not null;default:''" json:"category"`
	Description string       `gorm:"type:text;not null;default:''" json:"description"`
	State       State        `gorm:"type:text;not null;default:no_front_view" json:"state"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }
