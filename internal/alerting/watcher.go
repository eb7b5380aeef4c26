package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fee-tracker/internal/insights"
)

// Watcher turns successive insights into notifications. A condition fires
// when it becomes true, and at most once per cooldown while it stays true.
type Watcher struct {
	notifier Notifier
	cooldown time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu sync.Mutex
	// sentAt holds the last delivery for conditions that are currently raised.
	sentAt map[Condition]time.Time
}

// NewWatcher wraps notifier with transition tracking.
func NewWatcher(notifier Notifier, cooldown time.Duration, logger zerolog.Logger) *Watcher {
	return &Watcher{
		notifier: notifier,
		cooldown: cooldown,
		logger:   logger.With().Str("component", "alert_watcher").Logger(),
		now:      time.Now,
		sentAt:   make(map[Condition]time.Time),
	}
}

// Observe evaluates ins and notifies for every newly raised condition.
func (w *Watcher) Observe(ctx context.Context, ins insights.Insights) error {
	conditions := map[Condition]bool{
		ConditionVolatile: ins.Volatile,
		ConditionHighTier: ins.RecommendedTier == insights.TierHigh,
	}

	var firstErr error
	for _, cond := range []Condition{ConditionVolatile, ConditionHighTier} {
		if !w.shouldFire(cond, conditions[cond]) {
			continue
		}
		note := Notification{
			Condition:     cond,
			AsOf:          ins.AsOf,
			MovingAverage: ins.MovingAverage,
			Spread:        ins.Spread,
			LatestP50:     ins.LatestP50,
			Trend:         string(ins.Trend),
			Tier:          string(ins.RecommendedTier),
		}
		if err := w.notifier.Notify(ctx, note); err != nil {
			w.logger.Error().Err(err).Str("condition", string(cond)).Msg("failed to dispatch alert")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		w.markSent(cond)
	}
	return firstErr
}

// shouldFire reports whether cond needs a notification. A raised condition
// whose alert was never delivered stays eligible on every observation.
func (w *Watcher) shouldFire(cond Condition, raised bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !raised {
		delete(w.sentAt, cond)
		return false
	}
	last, sent := w.sentAt[cond]
	if !sent {
		return true
	}
	return w.cooldown > 0 && w.now().Sub(last) >= w.cooldown
}

func (w *Watcher) markSent(cond Condition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sentAt[cond] = w.now()
}
