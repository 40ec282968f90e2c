package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trend-core/internal/engine"
	"trend-core/internal/monitor"
	"trend-core/internal/state"
	"trend-core/internal/strategy"
	"trend-core/pkg/db"
	"trend-core/pkg/exchanges/common"
)

type fakeService struct {
	health    engine.Health
	stats     engine.StatsView
	positions []state.Position
	markets   []strategy.Summary
}

func (f fakeService) Health() engine.Health       { return f.health }
func (f fakeService) Stats() engine.StatsView     { return f.stats }
func (f fakeService) Positions() []state.Position { return f.positions }
func (f fakeService) Markets() []strategy.Summary { return f.markets }

func newTestServer(t *testing.T, svc engine.Service, secret string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewServer(svc, nil, monitor.NewMetrics(), secret, nil)
}

func doRequest(t *testing.T, s *Server, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestHealthStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		health engine.Health
		want   int
	}{
		{"running", engine.Health{Status: "running", Lifecycle: "running"}, http.StatusOK},
		{"emergency", engine.Health{Status: "unhealthy", Lifecycle: "emergency_stop", EmergencyStop: true}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, fakeService{health: tt.health}, "")
			w := doRequest(t, s, "/health", "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			var body engine.Health
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Lifecycle != tt.health.Lifecycle || body.EmergencyStop != tt.health.EmergencyStop {
				t.Fatalf("body = %+v", body)
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Fatalf("missing request id header")
			}
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, fakeService{}, "")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}

func TestStatsAndPositions(t *testing.T) {
	svc := fakeService{
		stats: engine.StatsView{TradesExecuted: 3, WinningTrades: 2, LosingTrades: 1, PnL: 120, ActivePositions: 1},
		positions: []state.Position{{
			Symbol: "BTC/USD", OrderID: "O1", Side: common.SideBuy, EntryPrice: 100, Size: 2,
			EntryTime: time.Unix(0, 0).UTC(),
		}},
	}
	s := newTestServer(t, svc, "")

	w := doRequest(t, s, "/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	var stats engine.StatsView
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TradesExecuted != 3 || stats.PnL != 120 {
		t.Fatalf("stats = %+v", stats)
	}

	w = doRequest(t, s, "/positions", "")
	var body struct {
		Positions []state.Position `json:"positions"`
		Count     int              `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode positions: %v", err)
	}
	if body.Count != 1 || len(body.Positions) != 1 || body.Positions[0].OrderID != "O1" {
		t.Fatalf("positions = %+v", body)
	}
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	const secret = "test-secret"
	s := newTestServer(t, fakeService{health: engine.Health{Status: "running"}}, secret)

	valid, err := IssueToken("operator", secret, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	expired, err := IssueToken("operator", secret, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	foreign, err := IssueToken("operator", "other-secret", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"health stays open", "/health", "", http.StatusOK},
		{"metrics stay open", "/metrics", "", http.StatusOK},
		{"stats without token", "/stats", "", http.StatusUnauthorized},
		{"stats with token", "/stats", valid, http.StatusOK},
		{"positions with token", "/positions", valid, http.StatusOK},
		{"expired token", "/stats", expired, http.StatusUnauthorized},
		{"wrong secret", "/positions", foreign, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doRequest(t, s, tt.path, tt.token); w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMalformedAuthHeader(t *testing.T) {
	s := newTestServer(t, fakeService{}, "secret")
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "INVALID_AUTH_HEADER") {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpointExposesRegistry(t *testing.T) {
	metrics := monitor.NewMetrics()
	metrics.Signal("BTC/USD", "BUY")
	gin.SetMode(gin.TestMode)
	s := NewServer(fakeService{}, nil, metrics, "", nil)

	srv := httptest.NewServer(s.Router)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "trend_core_signals_total") {
		t.Fatalf("metrics output missing signal counter:\n%s", body)
	}
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewIPRateLimiter(0.001, 2).Middleware(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestMarkets(t *testing.T) {
	svc := fakeService{markets: []strategy.Summary{{Symbol: "BTC/USD", Trend: "bullish", Momentum: "neutral", SignalReady: true}}}
	s := newTestServer(t, svc, "")

	w := doRequest(t, s, "/markets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Markets []strategy.Summary `json:"markets"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Markets) != 1 || body.Markets[0].Trend != "bullish" || !body.Markets[0].SignalReady {
		t.Fatalf("markets = %+v", body.Markets)
	}
}

func TestTradesFromJournal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	database, err := db.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer database.Close()
	journal := database.Journal()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, sym := range []string{"BTC/USD", "ETH/USD", "BTC/USD"} {
		err := journal.LogTrade(ctx, db.Trade{
			OrderID: fmt.Sprintf("O%d", i), Symbol: sym, Side: "buy",
			Amount: 1, Price: 100, Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("LogTrade: %v", err)
		}
	}
	s := NewServer(fakeService{}, journal, monitor.NewMetrics(), "", nil)

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantCount int
		wantFirst string
	}{
		{"all", "/trades", http.StatusOK, 3, "O2"},
		{"by symbol", "/trades?symbol=BTC/USD", http.StatusOK, 2, "O2"},
		{"limited", "/trades?limit=1", http.StatusOK, 1, "O2"},
		{"bad limit", "/trades?limit=abc", http.StatusBadRequest, 0, ""},
		{"limit too large", "/trades?limit=5000", http.StatusBadRequest, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, tt.path, "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Trades []db.Trade `json:"trades"`
				Count  int        `json:"count"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Count != tt.wantCount || body.Trades[0].OrderID != tt.wantFirst {
				t.Fatalf("trades = %+v", body)
			}
		})
	}
}

func TestTradesWithoutJournal(t *testing.T) {
	s := newTestServer(t, fakeService{}, "")
	if w := doRequest(t, s, "/trades", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
