package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrFrontViewExists      = errors.New("front_view_exists")
	ErrNotPendingApproval   = errors.New("not_pending_approval")
	ErrFrontViewNotApproved = errors.New("front_view_not_approved")
	ErrBaseViewsNotReady    = errors.New("base_views_not_ready")
	ErrBaseViewsExist       = errors.New("base_views_exist")
	ErrProductBusy          = errors.New("generation_in_progress")
	ErrRateLimited          = errors.New("rate_limited")
	ErrGenerationFailed     = errors.New("generation_failed")
)

// Decision values accepted by Decide.
const (
	DecisionApproved          = "approved"
	DecisionRevisionRequested = "revision_requested"
)

type GenerateFrontViewRequest struct {
	ProductID string `json:"product_id"`
	Prompt    string `json:"prompt"`
	SketchURL string `json:"sketch_url"`
	LogoURL   string `json:"logo_url"`
}

type ReviseFrontViewRequest struct {
	ProductID string `json:"product_id"`
	Feedback  string `json:"feedback"`
}

type DecideRequest struct {
	ApprovalID string `json:"approval_id"`
	Decision   string `json:"decision"`
	Feedback   string `json:"feedback"`
}

type StageRequest struct {
	ProductID string `json:"product_id"`
}

type StageResult struct {
	Stage        Stage         `json:"stage"`
	CreditsSpent int64         `json:"credits_spent"`
	Views        []ProductView `json:"views"`
}

type Service interface {
	// GenerateFrontView runs the first paid stage and opens the approval gate.
	GenerateFrontView(ctx context.Context, req GenerateFrontViewRequest) (*StageResult, error)

	// ReviseFrontView regenerates the front view with creator feedback while
	// the product sits in pending_approval. Reuses the approval record.
	ReviseFrontView(ctx context.Context, req ReviseFrontViewRequest) (*StageResult, error)

	// Decide records the creator's verdict on the pending front view. Costs
	// nothing; approval unlocks the remaining views.
	Decide(ctx context.Context, req DecideRequest) error

	// GenerateRemainingViews produces the back/side/top batch. Requires an
	// approved front view; the whole batch is one reservation.
	GenerateRemainingViews(ctx context.Context, req StageRequest) (*StageResult, error)

	GenerateCloseups(ctx context.Context, req StageRequest) (*StageResult, error)
	GenerateComponents(ctx context.Context, req StageRequest) (*StageResult, error)
	GenerateSketches(ctx context.Context, req StageRequest) (*StageResult, error)

	ListViews(ctx context.Context, productID snowflake.ID) ([]ProductView, error)
}
