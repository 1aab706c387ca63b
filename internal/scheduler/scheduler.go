package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/genpire/genpire/internal/clock"
	creditsdomain "github.com/genpire/genpire/internal/credits/domain"
	"github.com/genpire/genpire/internal/ratelimit"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	CreditsSvc creditsdomain.Service
	Limiter    *ratelimit.GenerationLimiter `optional:"true"`
	Config     Config                       `optional:"true"`
}

// Scheduler reconciles credit reservations that never resolved: a crash or
// timeout between Reserve and Commit/Refund leaves a reserved hold behind,
// and the sweep refunds it once it is older than the reservation TTL.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	creditsSvc creditsdomain.Service
	limiter    *ratelimit.GenerationLimiter
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.CreditsSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		creditsSvc: p.CreditsSvc,
		limiter:    p.Limiter,
	}, nil
}

// RunOnce executes a single reconciliation pass. Only one instance sweeps at
// a time: the redis guard elects a leader, and without redis the guard
// trivially grants the run.
func (s *Scheduler) RunOnce(parent context.Context) error {
	token, acquired, err := s.limiter.TryGuard(parent)
	if err != nil {
		// Guard infra failure must not stop reconciliation; worst case two
		// instances sweep and the refund status guard deduplicates.
		s.log.Warn("scheduler guard unavailable, sweeping anyway", zap.Error(err))
	} else if !acquired {
		s.log.Debug("scheduler guard held elsewhere, skipping run")
		return nil
	}
	if token != "" {
		defer func() {
			if err := s.limiter.ReleaseGuard(parent, token); err != nil {
				s.log.Warn("scheduler guard release failed", zap.Error(err))
			}
		}()
	}

	return s.runJob(parent, "reservation_sweep", s.cfg.JobTimeout, s.SweepReservationsJob)
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) (err error) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
			s.log.Error("scheduler job panicked",
				zap.String("job", name),
				zap.Any("panic", r),
			)
		}
	}()

	err = fn(ctx)
	duration := time.Since(start)

	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("scheduler job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// SweepReservationsJob refunds reserved holds older than the reservation TTL.
// Loops until a pass refunds nothing so a backlog drains in one run.
func (s *Scheduler) SweepReservationsJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.ReservationTTL)
	total := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		refunded, err := s.creditsSvc.SweepExpired(ctx, cutoff, s.cfg.SweepLimit)
		total += refunded
		if err != nil {
			if total > 0 {
				s.log.Warn("reservation sweep aborted mid-backlog",
					zap.Int("refunded", total),
					zap.Error(err),
				)
			}
			return err
		}
		if refunded < s.cfg.SweepLimit {
			break
		}
	}

	if total > 0 {
		s.log.Info("reservation sweep refunded stale holds",
			zap.Int("refunded", total),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
