// Package handlers provides HTTP handlers for the trade ledger and pending orders.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/internal/modules/trading"
	"github.com/rs/zerolog"
)

// TradeReader reads the trade ledger
type TradeReader interface {
	GetHistory(limit int) ([]domain.TradeRecord, error)
	GetByRun(runID string) ([]domain.TradeRecord, error)
	GetByInstrument(instrument string, limit int) ([]domain.TradeRecord, error)
}

// TradingHandlers contains HTTP handlers for the trading API
type TradingHandlers struct {
	tradeRepo TradeReader
	executor  *trading.Executor
	now       func() time.Time
	log       zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(tradeRepo TradeReader, executor *trading.Executor, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		tradeRepo: tradeRepo,
		executor:  executor,
		now:       time.Now,
		log:       log.With().Str("handler", "trading").Logger(),
	}
}

// HandleGetTrades handles GET /api/trades
// Query parameters: limit (default 50), run_id, instrument
func (h *TradingHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var (
		trades []domain.TradeRecord
		err    error
	)
	switch {
	case r.URL.Query().Get("run_id") != "":
		trades, err = h.tradeRepo.GetByRun(r.URL.Query().Get("run_id"))
	case r.URL.Query().Get("instrument") != "":
		trades, err = h.tradeRepo.GetByInstrument(r.URL.Query().Get("instrument"), limit)
	default:
		trades, err = h.tradeRepo.GetHistory(limit)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get trade history")
		h.writeError(w, http.StatusInternalServerError, "Failed to get trade history")
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
	})
}

// HandleGetPending handles GET /api/orders/pending
func (h *TradingHandlers) HandleGetPending(w http.ResponseWriter, r *http.Request) {
	if h.executor == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Executor not available")
		return
	}

	orders := h.executor.Pending()
	if orders == nil {
		orders = []domain.Order{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

// HandleFlushPending handles POST /api/orders/flush
// Pending orders are submitted only if the market session is open now.
func (h *TradingHandlers) HandleFlushPending(w http.ResponseWriter, r *http.Request) {
	if h.executor == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Executor not available")
		return
	}

	outcomes, err := h.executor.FlushPending(r.Context(), h.now())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to flush pending orders")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filled := 0
	for _, o := range outcomes {
		if o.Trade != nil {
			filled++
		}
	}
	if outcomes == nil {
		outcomes = []domain.ExecutionOutcome{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcomes":  outcomes,
		"processed": len(outcomes),
		"filled":    filled,
		"remaining": len(h.executor.Pending()),
	})
}

func (h *TradingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *TradingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
