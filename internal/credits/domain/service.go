package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrBalanceNotFound     = errors.New("balance_not_found")
	ErrReservationNotFound = errors.New("reservation_not_found")
	ErrInvalidAmount       = errors.New("invalid_amount")
)

// GrantRequest adds credits to a balance, idempotently by external event id.
type GrantRequest struct {
	UserID          snowflake.ID
	Amount          int64
	Source          string
	ExternalEventID string
}

type Service interface {
	// Balance returns the creator's current balance.
	Balance(ctx context.Context, userID snowflake.ID) (*CreditBalance, error)

	// Reserve atomically deducts amount when the balance covers it and records
	// a reserved hold. Returns ErrInsufficientCredits without side effects when
	// it does not. Database errors fail closed.
	Reserve(ctx context.Context, userID snowflake.ID, stage string, amount int64) (*CreditReservation, error)

	// Commit resolves a reserved hold as spent. Resolving twice is a no-op.
	Commit(ctx context.Context, reservationID snowflake.ID) error

	// Refund re-credits a reserved hold. Safe to call more than once; only the
	// first call that wins the reserved->refunded transition moves the balance.
	Refund(ctx context.Context, reservationID snowflake.ID, reason string) error

	// Grant adds credits (purchase, promo). Duplicate external event ids no-op.
	Grant(ctx context.Context, req GrantRequest) error

	// WithReservation runs fn under a hold on amount credits: commit on
	// success, refund on error or panic. The refund is best-effort and never
	// masks fn's error.
	WithReservation(ctx context.Context, userID snowflake.ID, stage string, amount int64, fn func(ctx context.Context) error) error

	// SweepExpired refunds reserved holds created before cutoff, at most limit
	// of them, and reports how many were refunded. Holds that resolve
	// concurrently are skipped.
	SweepExpired(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
