package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	ErrNotFound = errors.New("techpack_not_found")
	ErrInvalid  = errors.New("invalid_techpack")
)

// TechPack is the manufacturing spec sheet for a product. One per product;
// creating again replaces the content.
type TechPack struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	ProductID snowflake.ID   `gorm:"not null;uniqueIndex:ux_techpacks_product" json:"product_id"`
	Summary   string         `gorm:"type:text;not null;default:''" json:"summary"`
	Details   datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TechPack) TableName() string { return "techpacks" }

// Details is the structured content stored in the JSON column.
type Details struct {
	Materials    []Material    `json:"materials,omitempty"`
	Measurements []Measurement `json:"measurements,omitempty"`
	Construction []string      `json:"construction,omitempty"`
}

type Material struct {
	Name     string `json:"name"`
	Content  string `json:"content,omitempty"`
	Supplier string `json:"supplier,omitempty"`
}

type Measurement struct {
	Point string `json:"point"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

type UpsertTechPackRequest struct {
	ProductID string  `json:"product_id"`
	Summary   string  `json:"summary"`
	Details   Details `json:"details"`
}

type Service interface {
	Upsert(ctx context.Context, req UpsertTechPackRequest) (TechPack, error)
	GetByProduct(ctx context.Context, productID string) (TechPack, error)

	// RenderPDF flattens the tech pack plus the product's generated views
	// into a printable document.
	RenderPDF(ctx context.Context, productID string) (io.Reader, error)
}
