package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fee-tracker/internal/fees"
	"fee-tracker/internal/fetcher"
	"fee-tracker/internal/history"
	"fee-tracker/internal/insights"
	"fee-tracker/internal/metrics"
	"fee-tracker/internal/scheduler"
	"fee-tracker/internal/storage"
)

// DefaultArchiveTimeout bounds an archive insert when none is configured.
const DefaultArchiveTimeout = 5 * time.Second

// InsightsObserver reacts to freshly computed insights.
type InsightsObserver interface {
	Observe(ctx context.Context, ins insights.Insights) error
}

// PollStatus summarises recent ingestion outcomes.
type PollStatus struct {
	LastPollAt          time.Time `json:"last_poll_at,omitzero"`
	LastSuccessAt       time.Time `json:"last_success_at,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalPolls          uint64    `json:"total_polls"`
	TotalFailures       uint64    `json:"total_failures"`
	LastFetchSeconds    float64   `json:"last_fetch_seconds"`
}

// Service orchestrates fetching, history updates, recomputation, and the
// optional archive and alerting sinks. It is the only writer of the store
// and the engine.
type Service struct {
	scheduler *scheduler.Scheduler
	fetcher   fetcher.FeeStatsFetcher
	store     *history.Store
	engine    *insights.Engine
	archive   storage.SnapshotArchive
	observer  InsightsObserver
	logger    zerolog.Logger
	now       func() time.Time

	archiveTimeout time.Duration

	mu     sync.RWMutex
	status PollStatus
}

// New constructs the ingestion service. archive and observer may be nil.
func New(sched *scheduler.Scheduler, fetch fetcher.FeeStatsFetcher, store *history.Store, engine *insights.Engine, archive storage.SnapshotArchive, observer InsightsObserver, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		fetcher:   fetch,
		store:     store,
		engine:    engine,
		archive:   archive,
		observer:  observer,
		logger:    logger.With().Str("component", "service").Logger(),
		now:       time.Now,

		archiveTimeout: DefaultArchiveTimeout,
	}
}

// SetArchiveTimeout changes the per-insert deadline. Non-positive values are ignored.
func (s *Service) SetArchiveTimeout(d time.Duration) {
	if d > 0 {
		s.archiveTimeout = d
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Poll)
}

// SchedulerState reports the polling loop's state.
func (s *Service) SchedulerState() scheduler.State {
	if s.scheduler == nil {
		return scheduler.StateStopped
	}
	return s.scheduler.State()
}

// Status returns a copy of the ingestion status.
func (s *Service) Status() PollStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Poll fetches one snapshot and returns the commit that applies it.
// A failed fetch leaves the store and engine untouched.
func (s *Service) Poll(ctx context.Context, at time.Time) (scheduler.CommitFunc, error) {
	start := s.now()
	snap, err := s.fetcher.FetchFeeStats(ctx)
	elapsed := s.now().Sub(start)
	metrics.PollDuration.Observe(elapsed.Seconds())
	s.mu.Lock()
	s.status.LastFetchSeconds = elapsed.Seconds()
	s.mu.Unlock()
	if err != nil {
		s.recordFailure(err)
		return nil, fmt.Errorf("fetch fee stats: %w", err)
	}

	snap.CapturedAt = s.now().UTC()
	s.logger.Info().
		Str("base_fee", snap.BaseFee).
		Str("min", snap.Charged.Min).
		Str("max", snap.Charged.Max).
		Str("avg", snap.Charged.Avg).
		Str("p50", snap.Charged.P50).
		Msg("polled fee stats")

	return func(ctx context.Context) error {
		return s.commit(ctx, snap)
	}, nil
}

// commit pushes snap and then recomputes insights from the updated history.
func (s *Service) commit(ctx context.Context, snap fees.Snapshot) error {
	s.store.Push(snap)
	metrics.HistorySize.Set(float64(s.store.Len()))

	ins, err := s.engine.Recompute(s.store.Snapshot())
	s.recordSuccess(snap.CapturedAt)

	switch {
	case errors.Is(err, insights.ErrDegraded):
		metrics.InsightsDegraded.Inc()
		s.logger.Warn().Err(err).Msg("insights degraded; keeping last good result")
	case err != nil:
		s.logger.Error().Err(err).Msg("insights recompute failed")
	default:
		s.logger.Debug().
			Str("moving_average", ins.MovingAverage.String()).
			Str("trend", string(ins.Trend)).
			Bool("volatile", ins.Volatile).
			Str("tier", string(ins.RecommendedTier)).
			Msg("insights recomputed")
	}

	if s.archive != nil {
		s.archiveSnapshot(ctx, snap)
	}

	if err == nil && s.observer != nil {
		if alertErr := s.observer.Observe(ctx, ins); alertErr != nil {
			s.logger.Error().Err(alertErr).Msg("failed to evaluate alerts")
		}
	}

	return nil
}

// archiveSnapshot writes snap under its own deadline. The cycle context
// ignores shutdown, so a stalled database must not hold the cycle open.
func (s *Service) archiveSnapshot(ctx context.Context, snap fees.Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, s.archiveTimeout)
	defer cancel()

	if err := s.archive.InsertSnapshot(ctx, snap); err != nil {
		metrics.ArchiveErrors.Inc()
		s.logger.Error().Err(err).Time("captured_at", snap.CapturedAt).Msg("failed to archive snapshot")
	}
}

func (s *Service) recordFailure(err error) {
	result := metrics.ResultError
	switch {
	case errors.Is(err, fetcher.ErrNetwork):
		result = metrics.ResultNetworkError
	case errors.Is(err, fetcher.ErrParse):
		result = metrics.ResultParseError
	}
	metrics.PollsTotal.WithLabelValues(result).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastPollAt = s.now().UTC()
	s.status.LastError = err.Error()
	s.status.ConsecutiveFailures++
	s.status.TotalPolls++
	s.status.TotalFailures++
}

func (s *Service) recordSuccess(at time.Time) {
	metrics.PollsTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastPollAt = at
	s.status.LastSuccessAt = at
	s.status.LastError = ""
	s.status.ConsecutiveFailures = 0
	s.status.TotalPolls++
}
