package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State is the scheduler's position in the ingestion cycle.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateUpdating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateUpdating:
		return "updating"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CommitFunc applies the result of a successful poll.
type CommitFunc func(ctx context.Context) error

// PollFunc fetches data for the tick at time at and returns how to commit it.
type PollFunc func(ctx context.Context, at time.Time) (CommitFunc, error)

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// PollOnStart fires the first cycle without waiting a full interval.
	PollOnStart bool
}

// Scheduler drives fixed-interval ingestion cycles.
//
// Shutdown is only observed while idle. A cycle that has started always runs
// its poll and commit to completion under a context that ignores
// cancellation, so a shutdown never leaves a fetched snapshot half applied.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	state  atomic.Int32
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// State reports the current cycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run blocks, running one cycle per tick until ctx is cancelled.
// It returns ctx.Err() once shutdown has been honored.
func (s *Scheduler) Run(ctx context.Context, poll PollFunc) error {
	defer s.state.Store(int32(StateStopped))
	s.state.Store(int32(StateIdle))

	s.logger.Info().Dur("interval", s.opts.Interval).Msg("fee polling started")

	if s.opts.StartupDelay > 0 {
		if err := s.wait(ctx, time.Now().Add(s.opts.StartupDelay)); err != nil {
			return err
		}
	}

	var next time.Time
	if s.opts.PollOnStart {
		next = time.Now()
	} else {
		next = s.nextTick(time.Now().UTC())
	}

	for {
		if err := s.wait(ctx, next); err != nil {
			s.logger.Info().Msg("shutdown signal received, fee polling stopped")
			return err
		}

		bucket := s.bucketStart(next)
		s.cycle(ctx, poll, bucket)

		next = next.Add(s.opts.Interval)
		if now := time.Now(); next.Before(now) {
			// A slow cycle overran one or more ticks; skip them.
			next = s.nextTick(now.UTC())
		}
	}
}

// wait blocks in the idle state until deadline or shutdown, whichever is
// observed first. An already-cancelled ctx always wins.
func (s *Scheduler) wait(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	delay := time.Until(deadline)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	s.logger.Debug().Time("next_tick", deadline).Msg("waiting for next tick")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cycle runs one poll and, on success, its commit. Cancellation of ctx is
// deliberately not propagated: the cycle is non-preemptive.
func (s *Scheduler) cycle(ctx context.Context, poll PollFunc, bucket time.Time) {
	cycleCtx := context.WithoutCancel(ctx)
	defer s.state.Store(int32(StateIdle))

	s.state.Store(int32(StatePolling))
	s.logger.Debug().Time("tick", bucket).Msg("executing scheduled tick")

	commit, err := poll(cycleCtx, bucket)
	if err != nil {
		s.logger.Error().Err(err).Time("tick", bucket).Msg("fee polling error")
		return
	}
	if commit == nil {
		return
	}

	s.state.Store(int32(StateUpdating))
	if err := commit(cycleCtx); err != nil {
		s.logger.Error().Err(err).Time("tick", bucket).Msg("commit failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t.UTC()
	}
	return t.UTC().Truncate(s.opts.Interval)
}
