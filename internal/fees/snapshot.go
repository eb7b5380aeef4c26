package fees

import (
	"fmt"
	"time"
)

// Charged holds the fee-charged distribution reported for the last ledgers.
// Values are opaque decimal strings in stroops.
type Charged struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P10 string `json:"p10"`
	P25 string `json:"p25"`
	P50 string `json:"p50"`
	P75 string `json:"p75"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
}

// Snapshot is one immutable fee-statistics reading.
type Snapshot struct {
	BaseFee    string    `json:"base_fee"`
	Charged    Charged   `json:"charged"`
	CapturedAt time.Time `json:"captured_at"`
}

// Validate reports the first empty fee field, if any.
func (s Snapshot) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"base_fee", s.BaseFee},
		{"min", s.Charged.Min},
		{"max", s.Charged.Max},
		{"avg", s.Charged.Avg},
		{"p10", s.Charged.P10},
		{"p25", s.Charged.P25},
		{"p50", s.Charged.P50},
		{"p75", s.Charged.P75},
		{"p90", s.Charged.P90},
		{"p95", s.Charged.P95},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("fee field %s is empty", f.name)
		}
	}
	return nil
}
