package pipeline

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/rs/zerolog"
)

// ResultRepository persists runs and per-instrument results to the results database
type ResultRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewResultRepository creates a new result repository
func NewResultRepository(resultsDB *sql.DB, log zerolog.Logger) *ResultRepository {
	return &ResultRepository{
		db:  resultsDB,
		log: log.With().Str("repo", "results").Logger(),
	}
}

// CreateRun inserts a new run record
func (r *ResultRepository) CreateRun(run Run) error {
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal run config: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO runs (id, kind, status, config, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		string(run.Kind),
		string(run.Status),
		string(cfgJSON),
		nullString(run.Error),
		run.StartedAt.UnixMilli(),
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun sets the terminal status of a run
func (r *ResultRepository) FinishRun(id string, status RunStatus, runErr string, finishedAt time.Time) error {
	res, err := r.db.Exec(
		"UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
		string(status), nullString(runErr), finishedAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// SaveResult upserts one instrument's result for a run
func (r *ResultRepository) SaveResult(runID string, result InstrumentResult) error {
	decision, err := marshalNullable(result.Decision)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	trades, err := json.Marshal(result.Trades)
	if err != nil {
		return fmt.Errorf("failed to marshal trades: %w", err)
	}
	metrics, err := marshalNullable(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	extra, err := json.Marshal(resultExtra{Pending: result.Pending, Held: result.Held, EndingValue: result.EndingValue})
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	updatedAt := result.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = r.db.Exec(`
		INSERT OR REPLACE INTO run_results
		(run_id, instrument, status, failed_stage, error, decision, trades, metrics, extra, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		result.Instrument,
		string(result.State),
		nullString(string(result.FailedStage)),
		nullString(result.Error),
		decision,
		string(trades),
		metrics,
		string(extra),
		updatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save result for %s: %w", result.Instrument, err)
	}
	return nil
}

// GetRun returns a run, or nil when it does not exist
func (r *ResultRepository) GetRun(id string) (*Run, error) {
	row := r.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first
func (r *ResultRepository) ListRuns(limit int) ([]Run, error) {
	rows, err := r.db.Query("SELECT "+runColumns+" FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetResults returns every instrument result of a run, ordered by instrument
func (r *ResultRepository) GetResults(runID string) ([]InstrumentResult, error) {
	rows, err := r.db.Query(`
		SELECT instrument, status, failed_stage, error, decision, trades, metrics, extra, updated_at
		FROM run_results WHERE run_id = ? ORDER BY instrument
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	results := []InstrumentResult{}
	for rows.Next() {
		var (
			res                      InstrumentResult
			state                    string
			failedStage, errMsg      sql.NullString
			decision, metrics, extra sql.NullString
			trades                   string
			updatedAt                int64
		)
		if err := rows.Scan(&res.Instrument, &state, &failedStage, &errMsg, &decision, &trades, &metrics, &extra, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.State = State(state)
		res.FailedStage = Stage(failedStage.String)
		res.Error = errMsg.String
		res.UpdatedAt = time.UnixMilli(updatedAt).UTC()

		if decision.Valid {
			res.Decision = &domain.AggregatedDecision{}
			if err := json.Unmarshal([]byte(decision.String), res.Decision); err != nil {
				return nil, fmt.Errorf("failed to unmarshal decision for %s: %w", res.Instrument, err)
			}
		}
		if err := json.Unmarshal([]byte(trades), &res.Trades); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trades for %s: %w", res.Instrument, err)
		}
		if metrics.Valid {
			res.Metrics = &domain.PerformanceMetrics{}
			if err := json.Unmarshal([]byte(metrics.String), res.Metrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metrics for %s: %w", res.Instrument, err)
			}
		}
		if extra.Valid {
			var ex resultExtra
			if err := json.Unmarshal([]byte(extra.String), &ex); err != nil {
				return nil, fmt.Errorf("failed to unmarshal result for %s: %w", res.Instrument, err)
			}
			res.Pending = ex.Pending
			res.Held = ex.Held
			res.EndingValue = ex.EndingValue
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

// resultExtra holds the result fields without their own column
type resultExtra struct {
	Pending     []domain.Order `json:"pending,omitempty"`
	Held        string         `json:"held,omitempty"`
	EndingValue float64        `json:"ending_value,omitempty"`
}

const runColumns = `id, kind, status, config, error, started_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run        Run
		kind       string
		status     string
		cfgJSON    string
		runErr     sql.NullString
		startedAt  int64
		finishedAt sql.NullInt64
	)
	if err := s.Scan(&run.ID, &kind, &status, &cfgJSON, &runErr, &startedAt, &finishedAt); err != nil {
		return run, err
	}
	run.Kind = RunKind(kind)
	run.Status = RunStatus(status)
	run.Error = runErr.String
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		run.FinishedAt = &t
	}
	run.Config = config.RunConfig{}
	if err := json.Unmarshal([]byte(cfgJSON), &run.Config); err != nil {
		return run, fmt.Errorf("failed to unmarshal run config: %w", err)
	}
	return run, nil
}

func marshalNullable(v interface{}) (sql.NullString, error) {
	switch x := v.(type) {
	case *domain.AggregatedDecision:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *domain.PerformanceMetrics:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
