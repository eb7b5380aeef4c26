package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"fee-tracker/internal/fees"
	"fee-tracker/internal/insights"
	"fee-tracker/internal/scheduler"
	"fee-tracker/internal/service"
)

const tierDisclaimer = "recommended_tier is a heuristic derived from recent fee history, not a guarantee of inclusion"

// HistoryReader is the read side of the history store.
type HistoryReader interface {
	Recent(n int) []fees.Snapshot
	Latest() (fees.Snapshot, bool)
	Len() int
	Capacity() int
}

// InsightsReader is the read side of the insights engine.
type InsightsReader interface {
	Current() (insights.Insights, bool)
	Status() insights.Status
}

// IngestionStatus reports the polling loop's progress.
type IngestionStatus interface {
	SchedulerState() scheduler.State
	Status() service.PollStatus
}

// Deps groups the read-only views the handlers query.
type Deps struct {
	History   HistoryReader
	Insights  InsightsReader
	Ingestion IngestionStatus
}

type handler struct {
	deps    Deps
	started time.Time
}

func newHandler(deps Deps) *handler {
	return &handler{deps: deps, started: time.Now()}
}

func (h *handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.health)
	e.GET("/fees/current", h.currentFees)
	e.GET("/fees/history", h.feeHistory)
	e.GET("/insights", h.currentInsights)
	e.GET("/status", h.status)
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

// PercentileFees mirrors the charged-fee percentiles.
type PercentileFees struct {
	P10 string `json:"p10"`
	P25 string `json:"p25"`
	P50 string `json:"p50"`
	P75 string `json:"p75"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
}

// CurrentFeeResponse is the latest ingested snapshot.
type CurrentFeeResponse struct {
	BaseFee     string         `json:"base_fee"`
	MinFee      string         `json:"min_fee"`
	MaxFee      string         `json:"max_fee"`
	AvgFee      string         `json:"avg_fee"`
	Percentiles PercentileFees `json:"percentiles"`
	CapturedAt  time.Time      `json:"captured_at"`
}

func newCurrentFeeResponse(s fees.Snapshot) CurrentFeeResponse {
	return CurrentFeeResponse{
		BaseFee: s.BaseFee,
		MinFee:  s.Charged.Min,
		MaxFee:  s.Charged.Max,
		AvgFee:  s.Charged.Avg,
		Percentiles: PercentileFees{
			P10: s.Charged.P10,
			P25: s.Charged.P25,
			P50: s.Charged.P50,
			P75: s.Charged.P75,
			P90: s.Charged.P90,
			P95: s.Charged.P95,
		},
		CapturedAt: s.CapturedAt,
	}
}

func (h *handler) currentFees(c echo.Context) error {
	snap, ok := h.deps.History.Latest()
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "fee data not available yet"})
	}
	return c.JSON(http.StatusOK, newCurrentFeeResponse(snap))
}

// HistoryRequest selects a slice of the retained history.
type HistoryRequest struct {
	Limit int    `query:"limit" default:"100" validate:"min=1,max=100000"`
	Order string `query:"order" default:"asc" validate:"oneof=asc desc"`
}

// HistoryResponse lists retained snapshots.
type HistoryResponse struct {
	Capacity  int                  `json:"capacity"`
	Count     int                  `json:"count"`
	Snapshots []CurrentFeeResponse `json:"snapshots"`
}

func (h *handler) feeHistory(c echo.Context) error {
	req := &HistoryRequest{}
	if verrs := bindQuery(c, req); verrs != nil {
		return c.JSON(http.StatusBadRequest, validationBody{Error: "invalid query", Details: verrs})
	}

	recent := h.deps.History.Recent(req.Limit)
	out := make([]CurrentFeeResponse, 0, len(recent))
	for _, s := range recent {
		out = append(out, newCurrentFeeResponse(s))
	}
	if req.Order == "desc" {
		slices.Reverse(out)
	}

	return c.JSON(http.StatusOK, HistoryResponse{
		Capacity:  h.deps.History.Capacity(),
		Count:     len(out),
		Snapshots: out,
	})
}

// InsightsResponse wraps the latest insights with engine health.
type InsightsResponse struct {
	Available  bool               `json:"available"`
	Insights   *insights.Insights `json:"insights,omitempty"`
	Degraded   bool               `json:"degraded"`
	LastError  string             `json:"last_error,omitempty"`
	Disclaimer string             `json:"disclaimer"`
}

func (h *handler) currentInsights(c echo.Context) error {
	st := h.deps.Insights.Status()
	resp := InsightsResponse{
		Degraded:   st.Degraded,
		LastError:  st.LastError,
		Disclaimer: tierDisclaimer,
	}
	if ins, ok := h.deps.Insights.Current(); ok {
		resp.Available = true
		resp.Insights = &ins
	}
	return c.JSON(http.StatusOK, resp)
}

// StatusResponse summarises the running service.
type StatusResponse struct {
	Scheduler       string             `json:"scheduler"`
	UptimeSeconds   int64              `json:"uptime_seconds"`
	HistoryLen      int                `json:"history_len"`
	HistoryCapacity int                `json:"history_capacity"`
	Polling         service.PollStatus `json:"polling"`
	Insights        insights.Status    `json:"insights"`
}

func (h *handler) status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Scheduler:       h.deps.Ingestion.SchedulerState().String(),
		UptimeSeconds:   int64(time.Since(h.started).Seconds()),
		HistoryLen:      h.deps.History.Len(),
		HistoryCapacity: h.deps.History.Capacity(),
		Polling:         h.deps.Ingestion.Status(),
		Insights:        h.deps.Insights.Status(),
	})
}
