package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/internal/modules/portfolio"
	"github.com/aristath/hybrid-trader/internal/modules/trading"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	trades   []domain.TradeRecord
	lastCall string
}

func (f *fakeLedger) GetHistory(limit int) ([]domain.TradeRecord, error) {
	f.lastCall = "history"
	if limit < len(f.trades) {
		return f.trades[:limit], nil
	}
	return f.trades, nil
}

func (f *fakeLedger) GetByRun(runID string) ([]domain.TradeRecord, error) {
	f.lastCall = "run:" + runID
	return nil, nil
}

func (f *fakeLedger) GetByInstrument(instrument string, limit int) ([]domain.TradeRecord, error) {
	f.lastCall = "instrument:" + instrument
	return nil, nil
}

type switchClock struct{ open bool }

func (c *switchClock) IsMarketOpen(time.Time) bool { return c.open }

func newRouter(h *TradingHandlers) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

func TestHandleGetTrades(t *testing.T) {
	ledger := &fakeLedger{trades: []domain.TradeRecord{
		{ID: "a", Instrument: "AAPL", Action: domain.ActionBuy, Quantity: 1, Price: 10},
		{ID: "b", Instrument: "MSFT", Action: domain.ActionSell, Quantity: 2, Price: 20},
	}}
	router := newRouter(NewTradingHandlers(ledger, nil, zerolog.Nop()))

	tests := []struct {
		name      string
		query     string
		wantCall  string
		wantCount float64
	}{
		{name: "history", query: "", wantCall: "history", wantCount: 2},
		{name: "history with limit", query: "?limit=1", wantCall: "history", wantCount: 1},
		{name: "by run", query: "?run_id=r1", wantCall: "run:r1", wantCount: 0},
		{name: "by instrument", query: "?instrument=AAPL", wantCall: "instrument:AAPL", wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/trades"+tt.query, nil))

			require.Equal(t, http.StatusOK, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCount, body["count"])
			assert.NotNil(t, body["trades"])
			assert.Equal(t, tt.wantCall, ledger.lastCall)
		})
	}
}

func TestHandlePendingOrders(t *testing.T) {
	clock := &switchClock{}
	acct := portfolio.NewAccount(10000, zerolog.Nop())
	exec := trading.NewExecutor(
		portfolio.NewPaperBroker(acct, nil, 0, zerolog.Nop()),
		clock,
		trading.Sizer{PositionFraction: 0.02, MaxInvestmentPartition: 0.1},
		nil, nil, trading.ModePaper, zerolog.Nop(),
	)
	h := NewTradingHandlers(&fakeLedger{}, exec, zerolog.Nop())
	router := newRouter(h)

	decision := domain.AggregatedDecision{Instrument: "X", Action: domain.ActionBuy, Timestamp: time.Now()}
	outcome, err := exec.Execute(context.Background(), "", decision, 50)
	require.NoError(t, err)
	require.True(t, outcome.Pending)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/pending", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var pending map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Equal(t, float64(1), pending["count"])

	// closed session leaves the queue untouched
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/orders/flush", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var flushed map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flushed))
	assert.Equal(t, float64(0), flushed["processed"])
	assert.Equal(t, float64(1), flushed["remaining"])

	clock.open = true
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/orders/flush", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flushed))
	assert.Equal(t, float64(1), flushed["filled"])
	assert.Equal(t, float64(0), flushed["remaining"])
	assert.InDelta(t, 9800, acct.Cash(), 1e-9)
}

func TestHandlePendingWithoutExecutor(t *testing.T) {
	router := newRouter(NewTradingHandlers(&fakeLedger{}, nil, zerolog.Nop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/pending", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
