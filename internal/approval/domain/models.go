package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRevisionRequested Status = "revision_requested"
)

var (
	ErrNotFound        = errors.New("approval_not_found")
	ErrAlreadyApproved = errors.New("approval_already_approved")
	ErrInvalidDecision = errors.New("invalid_decision")
)

// ApprovalRecord tracks the creator's verdict on a product's front view. At
// most one record exists per product; revisions reuse it rather than stacking
// new pending records.
type ApprovalRecord struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ProductID    snowflake.ID `gorm:"not null;uniqueIndex:ux_approvals_product" json:"product_id"`
	FrontViewURL string       `gorm:"type:text;not null;default:''" json:"front_view_url"`
	Status       Status       `gorm:"type:text;not null;default:pending" json:"status"`
	Feedback     string       `gorm:"type:text;not null;default:''" json:"feedback"`
	DecidedAt    *time.Time   `json:"decided_at,omitempty"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ApprovalRecord) TableName() string { return "approvals" }

// Store abstracts approval persistence. The durable implementation is the
// default; the in-memory one serves local development and tests.
type Store interface {
	// Save inserts the record or, when the product already has one, overwrites
	// it in place. The per-product uniqueness invariant lives here.
	Save(ctx context.Context, record *ApprovalRecord) error

	FindByID(ctx context.Context, id snowflake.ID) (*ApprovalRecord, error)
	FindByProduct(ctx context.Context, productID snowflake.ID) (*ApprovalRecord, error)
}
