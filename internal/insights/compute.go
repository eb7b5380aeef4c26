package insights

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fee-tracker/internal/fees"
)

// Trend is the direction of the moving average across the window.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Tier is the recommended fee level for a new transaction.
type Tier string

const (
	TierLow    Tier = "low"
	TierNormal Tier = "normal"
	TierHigh   Tier = "high"
)

// Insights are the analytics derived from one history window.
type Insights struct {
	MovingAverage   decimal.Decimal `json:"moving_average"`
	Trend           Trend           `json:"trend"`
	Spread          decimal.Decimal `json:"spread"`
	Volatile        bool            `json:"volatile"`
	LatestP50       decimal.Decimal `json:"latest_p50"`
	RecommendedTier Tier            `json:"recommended_tier"`
	Window          int             `json:"window"`
	Samples         int             `json:"samples"`
	AsOf            time.Time       `json:"as_of"`
}

type parsedSnapshot struct {
	min, max, avg decimal.Decimal
}

var one = decimal.NewFromInt(1)

// compute derives insights from the newest Window entries of history.
// history must be non-empty and ordered oldest first.
func (c Config) compute(history []fees.Snapshot) (Insights, error) {
	n := c.Window
	if n > len(history) {
		n = len(history)
	}
	window := history[len(history)-n:]

	parsed := make([]parsedSnapshot, n)
	for i, snap := range window {
		p, err := parseSnapshot(snap)
		if err != nil {
			return Insights{}, err
		}
		parsed[i] = p
	}

	latest := window[n-1]
	p50, err := parseField(latest, "p50", latest.Charged.P50)
	if err != nil {
		return Insights{}, err
	}

	ma := meanAvg(parsed)

	lo, hi := parsed[0].min, parsed[0].max
	for _, p := range parsed[1:] {
		if p.min.LessThan(lo) {
			lo = p.min
		}
		if p.max.GreaterThan(hi) {
			hi = p.max
		}
	}
	spread := hi.Sub(lo)

	return Insights{
		MovingAverage:   ma,
		Trend:           c.trend(parsed),
		Spread:          spread,
		Volatile:        c.volatile(spread, ma),
		LatestP50:       p50,
		RecommendedTier: c.tier(p50, ma),
		Window:          c.Window,
		Samples:         n,
		AsOf:            latest.CapturedAt,
	}, nil
}

func (c Config) trend(parsed []parsedSnapshot) Trend {
	if len(parsed) < 2 {
		return TrendStable
	}
	half := len(parsed) / 2
	older := meanAvg(parsed[:half])
	newer := meanAvg(parsed[half:])

	if older.IsZero() {
		if newer.IsPositive() {
			return TrendRising
		}
		return TrendStable
	}

	rel := newer.Sub(older).Div(older)
	if rel.Abs().LessThan(decimal.NewFromFloat(c.TrendSensitivity)) {
		return TrendStable
	}
	if rel.IsPositive() {
		return TrendRising
	}
	return TrendFalling
}

func (c Config) volatile(spread, ma decimal.Decimal) bool {
	if ma.IsZero() {
		return spread.IsPositive()
	}
	return spread.Div(ma).GreaterThan(decimal.NewFromFloat(c.VolatilityThreshold))
}

func (c Config) tier(p50, ma decimal.Decimal) Tier {
	band := decimal.NewFromFloat(c.TierBand)
	switch {
	case p50.GreaterThan(ma.Mul(one.Add(band))):
		return TierHigh
	case p50.LessThan(ma.Mul(one.Sub(band))):
		return TierLow
	default:
		return TierNormal
	}
}

func meanAvg(parsed []parsedSnapshot) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range parsed {
		sum = sum.Add(p.avg)
	}
	return sum.Div(decimal.NewFromInt(int64(len(parsed))))
}

func parseSnapshot(snap fees.Snapshot) (parsedSnapshot, error) {
	var (
		p   parsedSnapshot
		err error
	)
	if p.min, err = parseField(snap, "min", snap.Charged.Min); err != nil {
		return p, err
	}
	if p.max, err = parseField(snap, "max", snap.Charged.Max); err != nil {
		return p, err
	}
	if p.avg, err = parseField(snap, "avg", snap.Charged.Avg); err != nil {
		return p, err
	}
	return p, nil
}

func parseField(snap fees.Snapshot, name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: snapshot at %s field %s=%q: %w",
			ErrDegraded, snap.CapturedAt.UTC().Format(time.RFC3339), name, value, err)
	}
	return d, nil
}
