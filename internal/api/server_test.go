package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fee-tracker/internal/config"
	"fee-tracker/internal/fees"
	"fee-tracker/internal/history"
	"fee-tracker/internal/insights"
	"fee-tracker/internal/scheduler"
	"fee-tracker/internal/service"
)

type fakeInsights struct {
	current insights.Insights
	ok      bool
	status  insights.Status
}

func (f fakeInsights) Current() (insights.Insights, bool) { return f.current, f.ok }
func (f fakeInsights) Status() insights.Status            { return f.status }

type fakeIngestion struct {
	state  scheduler.State
	status service.PollStatus
}

func (f fakeIngestion) SchedulerState() scheduler.State { return f.state }
func (f fakeIngestion) Status() service.PollStatus      { return f.status }

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            8080,
		AllowedOrigins:  []string{"http://localhost:3000"},
		ShutdownTimeout: time.Second,
	}
}

func snapshot(p50 string, at time.Time) fees.Snapshot {
	return fees.Snapshot{
		BaseFee: "100",
		Charged: fees.Charged{
			Min: "100", Max: "5000", Avg: "213",
			P10: "100", P25: "100", P50: p50, P75: "300", P90: "500", P95: "800",
		},
		CapturedAt: at,
	}
}

func newTestServer(t *testing.T, cfg config.ServerConfig, store *history.Store, ins fakeInsights) *Server {
	t.Helper()
	if store == nil {
		var err error
		store, err = history.New(3)
		require.NoError(t, err)
	}
	return NewServer(cfg, Deps{
		History:   store,
		Insights:  ins,
		Ingestion: fakeIngestion{state: scheduler.StateIdle},
	}, zerolog.Nop())
}

func do(t *testing.T, s *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthIsIndependentOfState(t *testing.T) {
	s := newTestServer(t, testServerConfig(), nil, fakeInsights{})
	rec := do(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestCurrentFeesBeforeFirstIngestion(t *testing.T) {
	s := newTestServer(t, testServerConfig(), nil, fakeInsights{})
	rec := do(t, s, http.MethodGet, "/fees/current", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "fee data not available yet", decode(t, rec)["error"])
}

func TestCurrentFeesReturnsLatestSnapshot(t *testing.T) {
	store, err := history.New(3)
	require.NoError(t, err)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Push(snapshot("120", at.Add(-time.Minute)))
	store.Push(snapshot("150", at))

	s := newTestServer(t, testServerConfig(), store, fakeInsights{})
	rec := do(t, s, http.MethodGet, "/fees/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "100", body["base_fee"])
	assert.Equal(t, "5000", body["max_fee"])
	assert.Equal(t, "213", body["avg_fee"])
	assert.Equal(t, "2025-03-01T12:00:00Z", body["captured_at"])
	percentiles := body["percentiles"].(map[string]any)
	for field, want := range map[string]string{"p10": "100", "p50": "150", "p95": "800"} {
		assert.Equal(t, want, percentiles[field], field)
	}
	assert.Len(t, percentiles, 6)
}

func TestFeeHistoryLimitAndOrder(t *testing.T) {
	store, err := history.New(3)
	require.NoError(t, err)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, p50 := range []string{"100", "150", "200", "250"} {
		store.Push(snapshot(p50, base.Add(time.Duration(i)*time.Second)))
	}
	s := newTestServer(t, testServerConfig(), store, fakeInsights{})

	var resp HistoryResponse
	rec := do(t, s, http.MethodGet, "/fees/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Capacity)
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, "150", resp.Snapshots[0].Percentiles.P50)
	assert.Equal(t, "250", resp.Snapshots[2].Percentiles.P50)

	rec = do(t, s, http.MethodGet, "/fees/history?limit=2&order=desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "250", resp.Snapshots[0].Percentiles.P50)
	assert.Equal(t, "200", resp.Snapshots[1].Percentiles.P50)
}

func TestFeeHistoryRejectsInvalidQuery(t *testing.T) {
	s := newTestServer(t, testServerConfig(), nil, fakeInsights{})

	for _, target := range []string{
		"/fees/history?limit=0",
		"/fees/history?limit=abc",
		"/fees/history?order=sideways",
	} {
		rec := do(t, s, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.NotEmpty(t, decode(t, rec)["details"], target)
	}
}

func TestInsightsUnavailableBeforeFirstRecompute(t *testing.T) {
	s := newTestServer(t, testServerConfig(), nil, fakeInsights{})
	rec := do(t, s, http.MethodGet, "/insights", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["available"])
	assert.NotContains(t, body, "insights")
	assert.NotEmpty(t, body["disclaimer"])
}

func TestInsightsReportsDegradedWithLastGoodResult(t *testing.T) {
	ins := fakeInsights{
		ok: true,
		current: insights.Insights{
			MovingAverage:   decimal.NewFromInt(250),
			Trend:           insights.TrendRising,
			Spread:          decimal.NewFromInt(4900),
			Volatile:        true,
			LatestP50:       decimal.NewFromInt(150),
			RecommendedTier: insights.TierLow,
			Window:          2,
			Samples:         2,
		},
		status: insights.Status{Degraded: true, LastError: "parse charged.avg"},
	}
	s := newTestServer(t, testServerConfig(), nil, ins)
	rec := do(t, s, http.MethodGet, "/insights", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["available"])
	assert.Equal(t, true, body["degraded"])
	assert.Equal(t, "parse charged.avg", body["last_error"])
	got := body["insights"].(map[string]any)
	assert.Equal(t, "250", got["moving_average"])
	assert.Equal(t, "rising", got["trend"])
	assert.Equal(t, "low", got["recommended_tier"])
}

func TestStatusReportsSchedulerAndHistory(t *testing.T) {
	s := newTestServer(t, testServerConfig(), nil, fakeInsights{})
	rec := do(t, s, http.MethodGet, "/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "idle", body["scheduler"])
	assert.EqualValues(t, 0, body["history_len"])
	assert.EqualValues(t, 3, body["history_capacity"])
}

func TestUnknownRouteUsesErrorBody(t *testing.T) {
	s := newTestServer(t, testServerConfig(), nil, fakeInsights{})
	rec := do(t, s, http.MethodGet, "/nope", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["error"])
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	s := newTestServer(t, testServerConfig(), nil, fakeInsights{})

	rec := do(t, s, http.MethodGet, "/health", http.Header{"Origin": {"http://localhost:3000"}})
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, s, http.MethodGet, "/health", http.Header{"Origin": {"http://evil.example"}})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterRejectsBurstOverflow(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 2
	s := newTestServer(t, cfg, nil, fakeInsights{})

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodGet, "/insights", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/insights", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is never rate limited")
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	cfg := testServerConfig()
	cfg.Port = 0
	s := newTestServer(t, cfg, nil, fakeInsights{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunReturnsBindError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testServerConfig()
	cfg.Port = taken.Addr().(*net.TCPAddr).Port
	s := newTestServer(t, cfg, nil, fakeInsights{})

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}
