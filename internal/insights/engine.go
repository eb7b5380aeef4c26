package insights

import (
	"errors"
	"sync"
	"time"

	"fee-tracker/internal/fees"
)

var (
	// ErrDegraded marks a recompute that could not interpret its inputs.
	ErrDegraded = errors.New("insights: computation degraded")
	// ErrNoData is returned when there is no history to compute from.
	ErrNoData = errors.New("insights: no data")
)

// Status describes the health of the last recompute.
type Status struct {
	// Degraded is true while the served insights are last-known-good.
	Degraded      bool      `json:"degraded"`
	LastError     string    `json:"last_error,omitempty"`
	DegradedAt    time.Time `json:"degraded_at,omitzero"`
	DegradedCount uint64    `json:"degraded_count"`
}

// Engine caches the insights derived from the most recent history.
// Recompute is the only mutator; reads never block on a computation.
type Engine struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	current Insights
	ready   bool
	status  Status
}

// New constructs an engine after validating cfg.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, now: time.Now}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Recompute derives fresh insights from history, oldest first.
// On failure the previous insights are kept and the error is recorded.
func (e *Engine) Recompute(history []fees.Snapshot) (Insights, error) {
	if len(history) == 0 {
		return Insights{}, ErrNoData
	}

	result, err := e.cfg.compute(history)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.status.Degraded = true
		e.status.LastError = err.Error()
		e.status.DegradedAt = e.now().UTC()
		e.status.DegradedCount++
		return Insights{}, err
	}
	e.current = result
	e.ready = true
	e.status.Degraded = false
	return result, nil
}

// Current returns the last successfully computed insights.
// ok is false until the first successful recompute.
func (e *Engine) Current() (Insights, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current, e.ready
}

// Status returns the degraded-computation record.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}
