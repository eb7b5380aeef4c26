package insights

import (
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config tunes the analytics. It is immutable once handed to New.
type Config struct {
	// Window is the number of most recent snapshots considered.
	Window int `mapstructure:"window" default:"10" validate:"min=1"`
	// VolatilityThreshold bounds (max-min)/moving-average before the window is flagged volatile.
	VolatilityThreshold float64 `mapstructure:"volatility_threshold" default:"5.0" validate:"gte=0"`
	// TrendSensitivity is the minimum relative change between window halves to report a trend.
	TrendSensitivity float64 `mapstructure:"trend_sensitivity" default:"0.05" validate:"gte=0"`
	// TierBand is the relative distance from the moving average that separates tiers.
	TierBand float64 `mapstructure:"tier_band" default:"0.10" validate:"gte=0,lt=1"`
}

// DefaultConfig returns the configuration used when nothing is supplied.
func DefaultConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic("insights: invalid default tags: " + err.Error())
	}
	return cfg
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("insights config: %w", err)
	}
	fe := fieldErrs[0]
	return fmt.Errorf("insights.%s must satisfy %s=%s", configKey(fe.Field()), fe.Tag(), fe.Param())
}

func configKey(field string) string {
	switch field {
	case "Window":
		return "window"
	case "VolatilityThreshold":
		return "volatility_threshold"
	case "TrendSensitivity":
		return "trend_sensitivity"
	case "TierBand":
		return "tier_band"
	default:
		return field
	}
}
