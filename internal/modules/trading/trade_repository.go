package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/rs/zerolog"
)

// TradeRepository is the append-only trade ledger (ledger.db)
type TradeRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// tradesColumns is the list of columns for the trades table.
// Column order must match scanTrade.
const tradesColumns = `id, run_id, instrument, action, quantity, price, commission, portfolio_value, mode, reason, executed_at`

// NewTradeRepository creates a new trade repository
func NewTradeRepository(ledgerDB *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "trade").Logger(),
	}
}

// Create appends a trade record. Records with an existing ID are skipped.
func (r *TradeRepository) Create(trade domain.TradeRecord) error {
	if err := validateTrade(trade); err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	exists, err := r.Exists(trade.ID)
	if err != nil {
		return fmt.Errorf("failed to check for existing trade: %w", err)
	}
	if exists {
		r.log.Debug().Str("trade_id", trade.ID).Msg("Trade already recorded, skipping duplicate")
		return nil
	}

	_, err = r.ledgerDB.Exec(`
		INSERT INTO trades
		(id, run_id, instrument, action, quantity, price, commission,
		 portfolio_value, mode, reason, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.ID,
		nullString(trade.RunID),
		strings.ToUpper(strings.TrimSpace(trade.Instrument)),
		string(trade.Action),
		trade.Quantity,
		trade.Price,
		trade.Commission,
		trade.PortfolioValue,
		trade.Mode,
		nullString(trade.Reason),
		trade.Timestamp.UnixMilli(),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}

	r.log.Info().
		Str("instrument", trade.Instrument).
		Str("action", string(trade.Action)).
		Int64("quantity", trade.Quantity).
		Str("mode", trade.Mode).
		Msg("Trade created")

	return nil
}

// Exists checks if a trade with the given ID is recorded
func (r *TradeRepository) Exists(id string) (bool, error) {
	var one int
	err := r.ledgerDB.QueryRow("SELECT 1 FROM trades WHERE id = ? LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check trade existence: %w", err)
	}
	return true, nil
}

// GetByID returns a trade, or nil when it does not exist
func (r *TradeRepository) GetByID(id string) (*domain.TradeRecord, error) {
	row := r.ledgerDB.QueryRow("SELECT "+tradesColumns+" FROM trades WHERE id = ?", id)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return &trade, nil
}

// GetHistory returns the most recent trades, newest first
func (r *TradeRepository) GetHistory(limit int) ([]domain.TradeRecord, error) {
	return r.query("SELECT "+tradesColumns+" FROM trades ORDER BY executed_at DESC LIMIT ?", limit)
}

// GetByRun returns a run's trades in execution order
func (r *TradeRepository) GetByRun(runID string) ([]domain.TradeRecord, error) {
	return r.query("SELECT "+tradesColumns+" FROM trades WHERE run_id = ? ORDER BY executed_at ASC, rowid ASC", runID)
}

// GetByInstrument returns an instrument's trades in execution order
func (r *TradeRepository) GetByInstrument(instrument string, limit int) ([]domain.TradeRecord, error) {
	return r.query(`
		SELECT `+tradesColumns+` FROM trades
		WHERE instrument = ?
		ORDER BY executed_at ASC, rowid ASC
		LIMIT ?
	`, strings.ToUpper(strings.TrimSpace(instrument)), limit)
}

// GetByInstrumentAndMode returns an instrument's trades of one mode in execution order
func (r *TradeRepository) GetByInstrumentAndMode(instrument, mode string, limit int) ([]domain.TradeRecord, error) {
	return r.query(`
		SELECT `+tradesColumns+` FROM trades
		WHERE instrument = ? AND mode = ?
		ORDER BY executed_at ASC, rowid ASC
		LIMIT ?
	`, strings.ToUpper(strings.TrimSpace(instrument)), mode, limit)
}

func (r *TradeRepository) query(query string, args ...interface{}) ([]domain.TradeRecord, error) {
	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (domain.TradeRecord, error) {
	var (
		trade      domain.TradeRecord
		runID      sql.NullString
		reason     sql.NullString
		action     string
		executedAt int64
	)
	err := s.Scan(
		&trade.ID,
		&runID,
		&trade.Instrument,
		&action,
		&trade.Quantity,
		&trade.Price,
		&trade.Commission,
		&trade.PortfolioValue,
		&trade.Mode,
		&reason,
		&executedAt,
	)
	if err != nil {
		return trade, err
	}
	trade.RunID = runID.String
	trade.Reason = reason.String
	trade.Action = domain.Action(action)
	trade.Timestamp = time.UnixMilli(executedAt).UTC()
	return trade, nil
}

func validateTrade(t domain.TradeRecord) error {
	switch {
	case t.ID == "":
		return fmt.Errorf("id is required")
	case strings.TrimSpace(t.Instrument) == "":
		return fmt.Errorf("instrument is required")
	case t.Action != domain.ActionBuy && t.Action != domain.ActionSell:
		return fmt.Errorf("action must be Buy or Sell")
	case t.Quantity <= 0:
		return fmt.Errorf("quantity must be positive")
	case t.Price <= 0:
		return fmt.Errorf("price must be positive")
	case t.Timestamp.IsZero():
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
