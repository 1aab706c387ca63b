package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/genpire/genpire/internal/cache"
	"github.com/genpire/genpire/internal/clock"
	"github.com/genpire/genpire/internal/credits/domain"
	obsmetrics "github.com/genpire/genpire/internal/observability/metrics"
	pkgdb "github.com/genpire/genpire/pkg/db"
)

const refundReasonRollback = "rollback"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Balances *cache.BalanceCache `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	balances *cache.BalanceCache
	metrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("credits.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		balances: p.Balances,
		metrics:  p.Metrics,
	}
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (*domain.CreditBalance, error) {
	if userID == 0 {
		return nil, domain.ErrBalanceNotFound
	}
	if cached, ok := s.balances.Get(userID); ok {
		return cached, nil
	}

	var balance domain.CreditBalance
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBalanceNotFound
	}
	if err != nil {
		return nil, err
	}

	s.balances.Put(balance)
	return &balance, nil
}

// Reserve deducts amount inside a single transaction. The balance row is
// guarded by the WHERE clause, so two concurrent reservations can never drive
// credits below zero: one of them sees zero rows updated and is rejected.
func (s *Service) Reserve(ctx context.Context, userID snowflake.ID, stage string, amount int64) (*domain.CreditReservation, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if userID == 0 {
		return nil, domain.ErrBalanceNotFound
	}

	now := s.clock.Now()
	reservation := domain.CreditReservation{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Amount:    amount,
		Stage:     strings.TrimSpace(stage),
		Status:    domain.ReservationStatusReserved,
		CreatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.CreditBalance{}).
			Where("user_id = ? AND credits >= ? AND status = ?", userID, amount, domain.BalanceStatusActive).
			Updates(map[string]any{
				"credits":    gorm.Expr("credits - ?", amount),
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&domain.CreditBalance{}).
				Where("user_id = ?", userID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrBalanceNotFound
			}
			return domain.ErrInsufficientCredits
		}
		return tx.Create(&reservation).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			s.metrics.RecordInsufficientCredits(ctx, reservation.Stage)
		}
		return nil, err
	}

	s.balances.Invalidate(userID)
	s.metrics.RecordCreditReservation(ctx, reservation.Stage)
	s.log.Debug("credits reserved",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("stage", reservation.Stage),
		zap.Int64("amount", amount),
	)
	return &reservation, nil
}

func (s *Service) Commit(ctx context.Context, reservationID snowflake.ID) error {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).Model(&domain.CreditReservation{}).
		Where("id = ? AND status = ?", reservationID, domain.ReservationStatusReserved).
		Updates(map[string]any{
			"status":      domain.ReservationStatusCommitted,
			"resolved_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Already resolved, or unknown. Distinguish so callers with a typo'd
		// id do not silently succeed.
		var count int64
		if err := s.db.WithContext(ctx).Model(&domain.CreditReservation{}).
			Where("id = ?", reservationID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrReservationNotFound
		}
	}
	return nil
}

// Refund re-credits a hold. The reserved->refunded transition is a guarded
// UPDATE, so redelivered or racing refunds move the balance exactly once.
func (s *Service) Refund(ctx context.Context, reservationID snowflake.ID, reason string) error {
	now := s.clock.Now()

	var refunded *domain.CreditReservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reservation domain.CreditReservation
		if err := tx.Where("id = ?", reservationID).First(&reservation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrReservationNotFound
			}
			return err
		}

		result := tx.Model(&domain.CreditReservation{}).
			Where("id = ? AND status = ?", reservationID, domain.ReservationStatusReserved).
			Updates(map[string]any{
				"status":      domain.ReservationStatusRefunded,
				"reason":      strings.TrimSpace(reason),
				"resolved_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Already committed or refunded. Idempotent no-op.
			return nil
		}

		if err := tx.Model(&domain.CreditBalance{}).
			Where("user_id = ?", reservation.UserID).
			Updates(map[string]any{
				"credits":    gorm.Expr("credits + ?", reservation.Amount),
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		refunded = &reservation
		return nil
	})
	if err != nil {
		return err
	}

	if refunded != nil {
		s.balances.Invalidate(refunded.UserID)
		s.metrics.RecordCreditRefund(ctx, refunded.Stage, strings.TrimSpace(reason))
		s.log.Info("credits refunded",
			zap.String("reservation_id", reservationID.String()),
			zap.String("user_id", refunded.UserID.String()),
			zap.String("stage", refunded.Stage),
			zap.Int64("amount", refunded.Amount),
			zap.String("reason", strings.TrimSpace(reason)),
		)
	}
	return nil
}

func (s *Service) Grant(ctx context.Context, req domain.GrantRequest) error {
	if req.UserID == 0 {
		return domain.ErrBalanceNotFound
	}
	if req.Amount <= 0 {
		return domain.ErrInvalidAmount
	}

	eventID := strings.TrimSpace(req.ExternalEventID)
	if eventID == "" {
		// Manual grants carry no upstream event. Synthesize one so the
		// uniqueness guard never collides on the empty string.
		eventID = ulid.Make().String()
	}

	now := s.clock.Now()
	grant := domain.CreditGrant{
		ID:              s.genID.Generate(),
		UserID:          req.UserID,
		Amount:          req.Amount,
		Source:          strings.TrimSpace(req.Source),
		ExternalEventID: eventID,
		CreatedAt:       now,
	}

	duplicate := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&grant).Error; err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				duplicate = true
				return nil
			}
			return err
		}

		result := tx.Model(&domain.CreditBalance{}).
			Where("user_id = ?", req.UserID).
			Updates(map[string]any{
				"credits":    gorm.Expr("credits + ?", req.Amount),
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			balance := domain.CreditBalance{
				UserID:     req.UserID,
				Credits:    req.Amount,
				Status:     domain.BalanceStatusActive,
				Membership: domain.MembershipFree,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.Create(&balance).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if duplicate {
		s.log.Info("duplicate credit grant ignored",
			zap.String("user_id", req.UserID.String()),
			zap.String("external_event_id", eventID),
		)
		return nil
	}

	s.balances.Invalidate(req.UserID)
	s.log.Info("credits granted",
		zap.String("user_id", req.UserID.String()),
		zap.Int64("amount", req.Amount),
		zap.String("source", grant.Source),
	)
	return nil
}

func (s *Service) WithReservation(ctx context.Context, userID snowflake.ID, stage string, amount int64, fn func(ctx context.Context) error) (err error) {
	reservation, err := s.Reserve(ctx, userID, stage, amount)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Runs on error and on panic. The request context may already be
		// cancelled, so the refund gets its own deadline.
		refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if rerr := s.Refund(refundCtx, reservation.ID, refundReasonRollback); rerr != nil {
			s.log.Error("refund failed, reservation left for reconciler",
				zap.String("reservation_id", reservation.ID.String()),
				zap.String("user_id", userID.String()),
				zap.Error(rerr),
			)
		}
	}()

	if err = fn(ctx); err != nil {
		return err
	}
	if err = s.Commit(ctx, reservation.ID); err != nil {
		return fmt.Errorf("commit reservation %s: %w", reservation.ID, err)
	}
	committed = true
	return nil
}

// SweepExpired is the reconciler entry point. It refunds reserved holds older
// than cutoff one by one; each refund re-checks status, so a hold that commits
// between the list and the refund is left alone.
func (s *Service) SweepExpired(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	var stale []domain.CreditReservation
	if err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.ReservationStatusReserved, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&stale).Error; err != nil {
		return 0, err
	}

	refunded := 0
	for _, reservation := range stale {
		if err := ctx.Err(); err != nil {
			return refunded, err
		}
		if err := s.Refund(ctx, reservation.ID, "reconciler_timeout"); err != nil {
			s.log.Warn("stale reservation refund failed",
				zap.String("reservation_id", reservation.ID.String()),
				zap.Error(err),
			)
			continue
		}
		refunded++
	}
	return refunded, nil
}
