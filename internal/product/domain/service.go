package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/genpire/genpire/pkg/db/pagination"
)

var (
	ErrNotFound      = errors.New("product_not_found")
	ErrInvalidName   = errors.New("invalid_product_name")
	ErrDuplicateSlug = errors.New("duplicate_product_slug")
	ErrInvalidUser   = errors.New("invalid_user")
)

type CreateProductRequest struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type GetProductRequest struct {
	ID string `json:"id"`
}

type ListProductRequest struct {
	PageToken string `json:"page_token"`
	PageSize  int32  `json:"page_size"`
}

type ListProductResponse struct {
	Products []Product           `json:"products"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(ctx context.Context, req CreateProductRequest) (Product, error)
	GetByID(ctx context.Context, req GetProductRequest) (Product, error)
	List(ctx context.Context, req ListProductRequest) (ListProductResponse, error)

	// SetState is the generation service's hook for workflow transitions.
	SetState(ctx context.Context, productID snowflake.ID, state State) error
}
