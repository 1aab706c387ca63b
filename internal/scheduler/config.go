package scheduler

import (
	"errors"
	"time"

	appconfig "github.com/genpire/genpire/internal/config"
)

var ErrInvalidConfig = errors.New("invalid scheduler config")

// Config controls the reconciler's cadence and sweep bounds.
type Config struct {
	RunInterval    time.Duration
	ReservationTTL time.Duration
	SweepLimit     int
	JobTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		ReservationTTL: 10 * time.Minute,
		SweepLimit:     100,
		JobTimeout:     30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.ReservationTTL <= 0 {
		c.ReservationTTL = defaults.ReservationTTL
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = defaults.SweepLimit
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig(cfg appconfig.Config) Config {
	return Config{
		RunInterval:    cfg.Scheduler.Interval,
		ReservationTTL: cfg.Scheduler.ReservationTTL,
		SweepLimit:     cfg.Scheduler.SweepLimit,
	}.withDefaults()
}
