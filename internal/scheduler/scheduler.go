package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PassFunc is invoked once per scheduled interval.
type PassFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives repeated watch passes for deployments without cron. A pass
// error is logged and the loop continues; only context cancellation stops it.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the pass at each interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, pass PassFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleepCtx(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := s.nextFire(time.Now())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextFire(time.Now())
			delay = time.Until(next)
		}

		s.logger.Debug().Time("next_pass", next).Msg("waiting for next pass")
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}

		at := next
		s.logger.Info().Time("at", at).Msg("executing scheduled pass")
		if err := pass(ctx, at); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("pass failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) nextFire(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	fire := now.Truncate(s.opts.Interval)
	if !fire.After(now) {
		fire = fire.Add(s.opts.Interval)
	}
	return fire
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
