package trading

import (
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/hybrid-trader/internal/database"
	"github.com/aristath/hybrid-trader/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedgerDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	schema, err := database.Schema("ledger")
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func sampleTrade(id, instrument string, at time.Time) domain.TradeRecord {
	return domain.TradeRecord{
		ID:             id,
		RunID:          "run-1",
		Instrument:     instrument,
		Action:         domain.ActionBuy,
		Quantity:       4,
		Price:          50,
		Commission:     0.2,
		Timestamp:      at,
		PortfolioValue: 10000,
		Mode:           ModePaper,
	}
}

func TestTradeRepository_CreateAndGet(t *testing.T) {
	repo := NewTradeRepository(setupLedgerDB(t), zerolog.Nop())
	at := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(sampleTrade("t1", "aapl", at)))

	got, err := repo.GetByID("t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Instrument)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, int64(4), got.Quantity)
	assert.Equal(t, domain.ActionBuy, got.Action)
	assert.True(t, at.Equal(got.Timestamp))
	assert.Empty(t, got.Reason)

	missing, err := repo.GetByID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTradeRepository_CreateSkipsDuplicates(t *testing.T) {
	repo := NewTradeRepository(setupLedgerDB(t), zerolog.Nop())
	at := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(sampleTrade("t1", "AAPL", at)))
	require.NoError(t, repo.Create(sampleTrade("t1", "AAPL", at.Add(time.Hour))))

	history, err := repo.GetHistory(10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTradeRepository_CreateValidates(t *testing.T) {
	repo := NewTradeRepository(setupLedgerDB(t), zerolog.Nop())
	at := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*domain.TradeRecord)
	}{
		{name: "missing id", mutate: func(tr *domain.TradeRecord) { tr.ID = "" }},
		{name: "hold action", mutate: func(tr *domain.TradeRecord) { tr.Action = domain.ActionHold }},
		{name: "zero quantity", mutate: func(tr *domain.TradeRecord) { tr.Quantity = 0 }},
		{name: "zero price", mutate: func(tr *domain.TradeRecord) { tr.Price = 0 }},
		{name: "zero timestamp", mutate: func(tr *domain.TradeRecord) { tr.Timestamp = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := sampleTrade("bad", "AAPL", at)
			tt.mutate(&trade)
			assert.Error(t, repo.Create(trade))
		})
	}
}

func TestTradeRepository_Queries(t *testing.T) {
	repo := NewTradeRepository(setupLedgerDB(t), zerolog.Nop())
	base := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(sampleTrade("t1", "AAPL", base)))
	require.NoError(t, repo.Create(sampleTrade("t2", "MSFT", base.Add(time.Minute))))
	other := sampleTrade("t3", "AAPL", base.Add(2*time.Minute))
	other.RunID = "run-2"
	require.NoError(t, repo.Create(other))

	history, err := repo.GetHistory(2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "t3", history[0].ID)
	assert.Equal(t, "t2", history[1].ID)

	byRun, err := repo.GetByRun("run-1")
	require.NoError(t, err)
	require.Len(t, byRun, 2)
	assert.Equal(t, "t1", byRun[0].ID)

	byInstrument, err := repo.GetByInstrument("aapl", 10)
	require.NoError(t, err)
	require.Len(t, byInstrument, 2)
	assert.Equal(t, []string{"t1", "t3"}, []string{byInstrument[0].ID, byInstrument[1].ID})

	exists, err := repo.Exists("t2")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestTradeRepository_GetByInstrumentAndMode(t *testing.T) {
	repo := NewTradeRepository(setupLedgerDB(t), zerolog.Nop())
	at := time.Date(2024, 5, 6, 15, 0, 0, 0, time.UTC)

	simulated := sampleTrade("t2", "AAPL", at.Add(time.Hour))
	simulated.Mode = ModeBacktest
	require.NoError(t, repo.Create(sampleTrade("t1", "AAPL", at)))
	require.NoError(t, repo.Create(simulated))
	require.NoError(t, repo.Create(sampleTrade("t3", "aapl", at.Add(2*time.Hour))))
	require.NoError(t, repo.Create(sampleTrade("t4", "MSFT", at)))

	tests := []struct {
		mode    string
		wantIDs []string
	}{
		{ModePaper, []string{"t1", "t3"}},
		{ModeBacktest, []string{"t2"}},
		{ModeLive, nil},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			trades, err := repo.GetByInstrumentAndMode("aapl", tt.mode, -1)
			require.NoError(t, err)

			var ids []string
			for _, trade := range trades {
				ids = append(ids, trade.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}
