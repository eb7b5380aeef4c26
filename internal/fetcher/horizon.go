package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fee-tracker/internal/fees"
)

const (
	feeStatsPath     = "/fee_stats"
	transactionsPath = "/transactions"

	defaultHorizonURL = "https://horizon.stellar.org"
	maxErrorBody      = 512
)

// HorizonOptions parameterise the Horizon client.
type HorizonOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Horizon talks to a Stellar Horizon server.
type Horizon struct {
	opts    HorizonOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHorizon constructs a Horizon client.
func NewHorizon(opts HorizonOptions, logger zerolog.Logger) *Horizon {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultHorizonURL
	}

	return &Horizon{
		opts:    opts,
		logger:  logger.With().Str("component", "horizon_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// BaseURL returns the normalised Horizon address.
func (h *Horizon) BaseURL() string {
	return h.baseURL
}

// FetchFeeStats calls GET /fee_stats. CapturedAt is left zero; the caller
// stamps it when the fetch completes.
func (h *Horizon) FetchFeeStats(ctx context.Context) (fees.Snapshot, error) {
	var stats feeStatsResponse
	if err := h.getJSON(ctx, feeStatsPath, &stats); err != nil {
		return fees.Snapshot{}, err
	}

	snap := fees.Snapshot{
		BaseFee: stats.LastLedgerBaseFee,
		Charged: fees.Charged(stats.FeeCharged),
	}
	if err := snap.Validate(); err != nil {
		return fees.Snapshot{}, fmt.Errorf("%w: fee_stats: %w", ErrParse, err)
	}

	h.logger.Debug().
		Str("base_fee", snap.BaseFee).
		Str("min", snap.Charged.Min).
		Str("max", snap.Charged.Max).
		Str("avg", snap.Charged.Avg).
		Msg("fetched fee stats")
	return snap, nil
}

// Transaction is the subset of a Horizon transaction record we use.
type Transaction struct {
	Hash           string `json:"hash"`
	Successful     bool   `json:"successful"`
	FeeCharged     string `json:"fee_charged"`
	Ledger         int64  `json:"ledger"`
	CreatedAt      string `json:"created_at"`
	OperationCount int    `json:"operation_count"`
}

// Operation is the subset of a Horizon operation record we use.
type Operation struct {
	Type        string  `json:"type"`
	From        *string `json:"from"`
	To          *string `json:"to"`
	AssetType   *string `json:"asset_type"`
	AssetCode   *string `json:"asset_code"`
	AssetIssuer *string `json:"asset_issuer"`
	Amount      *string `json:"amount"`
}

// FetchLatestTransaction returns the most recent transaction on the network.
func (h *Horizon) FetchLatestTransaction(ctx context.Context) (Transaction, error) {
	var page struct {
		Embedded struct {
			Records []Transaction `json:"records"`
		} `json:"_embedded"`
	}
	if err := h.getJSON(ctx, transactionsPath+"?order=desc&limit=1", &page); err != nil {
		return Transaction{}, err
	}
	if len(page.Embedded.Records) == 0 {
		return Transaction{}, fmt.Errorf("%w: horizon returned empty transaction records", ErrParse)
	}
	return page.Embedded.Records[0], nil
}

// FetchOperations returns every operation of a transaction. The list may be empty.
func (h *Horizon) FetchOperations(ctx context.Context, txHash string) ([]Operation, error) {
	if strings.TrimSpace(txHash) == "" {
		return nil, fmt.Errorf("transaction hash required")
	}
	var page struct {
		Embedded struct {
			Records []Operation `json:"records"`
		} `json:"_embedded"`
	}
	path := transactionsPath + "/" + url.PathEscape(txHash) + "/operations"
	if err := h.getJSON(ctx, path, &page); err != nil {
		return nil, err
	}
	if page.Embedded.Records == nil {
		return []Operation{}, nil
	}
	return page.Embedded.Records, nil
}

func (h *Horizon) getJSON(ctx context.Context, path string, out any) error {
	endpoint := h.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "fee-tracker/1.0")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrParse, path, err)
	}
	return nil
}

type feeStatsResponse struct {
	LastLedgerBaseFee string `json:"last_ledger_base_fee"`
	FeeCharged        struct {
		Min string `json:"min"`
		Max string `json:"max"`
		Avg string `json:"avg"`
		P10 string `json:"p10"`
		P25 string `json:"p25"`
		P50 string `json:"p50"`
		P75 string `json:"p75"`
		P90 string `json:"p90"`
		P95 string `json:"p95"`
	} `json:"fee_charged"`
}

// problemResponse is Horizon's RFC 7807 error body.
type problemResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func parseHTTPError(status int, payload []byte) error {
	var problem problemResponse
	if err := json.Unmarshal(payload, &problem); err == nil {
		if problem.Detail != "" {
			return fmt.Errorf("%w: horizon returned HTTP %d: %s", ErrNetwork, status, problem.Detail)
		}
		if problem.Title != "" {
			return fmt.Errorf("%w: horizon returned HTTP %d: %s", ErrNetwork, status, problem.Title)
		}
	}
	body := strings.TrimSpace(string(payload))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	if body != "" {
		return fmt.Errorf("%w: horizon returned HTTP %d: %s", ErrNetwork, status, body)
	}
	return fmt.Errorf("%w: horizon returned HTTP %d", ErrNetwork, status)
}

var _ FeeStatsFetcher = (*Horizon)(nil)
