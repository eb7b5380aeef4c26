package fetcher

import (
	"context"
	"errors"

	"fee-tracker/internal/fees"
)

var (
	// ErrNetwork covers transport failures and non-success upstream statuses.
	ErrNetwork = errors.New("network error")
	// ErrParse covers payloads that do not match the expected shape.
	ErrParse = errors.New("parse error")
)

// FeeStatsFetcher retrieves current fee statistics. Every call is a fresh
// upstream request; implementations neither cache nor retry.
type FeeStatsFetcher interface {
	FetchFeeStats(ctx context.Context) (fees.Snapshot, error)
}
