package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/internal/events"
	"github.com/aristath/hybrid-trader/internal/pipeline"
)

const defaultRunListLimit = 20

// RunService starts and cancels runs
type RunService interface {
	Prepare(kind pipeline.RunKind, cfg config.RunConfig) (pipeline.Run, error)
	Execute(ctx context.Context, run pipeline.Run) (*pipeline.RunResult, error)
	Cancel(runID string) bool
	Active() []string
}

// RunStore reads persisted runs and results
type RunStore interface {
	GetRun(id string) (*pipeline.Run, error)
	ListRuns(limit int) ([]pipeline.Run, error)
	GetResults(runID string) ([]pipeline.InstrumentResult, error)
}

// RunHandlers serves the run and backtest API.
// Runs started without ?wait=true execute in the background until they
// finish or Stop is called.
type RunHandlers struct {
	runs     RunService
	store    RunStore
	bus      *events.Bus
	defaults []byte // JSON of the default run config
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	launched map[string]struct{} // prepared but not yet returned from Execute
}

// NewRunHandlers creates run handlers. Request bodies are applied over defaults.
func NewRunHandlers(runs RunService, store RunStore, bus *events.Bus, defaults config.RunConfig, log zerolog.Logger) *RunHandlers {
	raw, err := json.Marshal(defaults)
	if err != nil {
		// RunConfig only holds JSON-safe values
		panic(fmt.Sprintf("failed to encode default run config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RunHandlers{
		runs:     runs,
		store:    store,
		bus:      bus,
		defaults: raw,
		log:      log.With().Str("handler", "runs").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		launched: make(map[string]struct{}),
	}
}

// RegisterRoutes registers the run routes
func (h *RunHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.HandleStartRun)
		r.Get("/", h.HandleListRuns)
		r.Get("/{id}", h.HandleGetRun)
		r.Delete("/{id}", h.HandleCancelRun)
		r.Get("/{id}/results", h.HandleGetResults)
	})
	r.Post("/backtests", h.HandleStartBacktest)
}

// Stop cancels background runs and waits for them to finish
func (h *RunHandlers) Stop() {
	h.cancel()
	h.wg.Wait()
}

// HandleStartRun starts a live run
// POST /api/runs
func (h *RunHandlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, pipeline.KindLive)
}

// HandleStartBacktest starts a backtest
// POST /api/backtests
func (h *RunHandlers) HandleStartBacktest(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, pipeline.KindBacktest)
}

func (h *RunHandlers) start(w http.ResponseWriter, r *http.Request, kind pipeline.RunKind) {
	cfg, err := h.decodeConfig(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), h.log)
		return
	}

	run, err := h.runs.Prepare(kind, cfg)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfiguration) {
			writeError(w, http.StatusBadRequest, err.Error(), h.log)
			return
		}
		h.log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to prepare run")
		writeError(w, http.StatusInternalServerError, "failed to prepare run", h.log)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		result, err := h.runs.Execute(r.Context(), run)
		if err != nil {
			h.log.Error().Err(err).Str("run_id", run.ID).Msg("Run failed")
			writeError(w, http.StatusInternalServerError, err.Error(), h.log)
			return
		}
		writeJSON(w, http.StatusOK, result, h.log)
		return
	}

	h.launch(run)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": run.ID,
		"kind":   run.Kind,
		"status": pipeline.RunRunning,
	}, h.log)
}

// decodeConfig applies a JSON body over the default run config.
// An empty body yields the defaults.
func (h *RunHandlers) decodeConfig(body io.Reader) (config.RunConfig, error) {
	var cfg config.RunConfig
	if err := json.Unmarshal(h.defaults, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode defaults: %w", err)
	}
	if body == nil {
		return cfg, nil
	}

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("invalid run config: %w", err)
	}
	return cfg, nil
}

func (h *RunHandlers) launch(run pipeline.Run) {
	h.mu.Lock()
	h.launched[run.ID] = struct{}{}
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			delete(h.launched, run.ID)
			h.mu.Unlock()
		}()

		if _, err := h.runs.Execute(h.ctx, run); err != nil {
			h.log.Error().Err(err).Str("run_id", run.ID).Msg("Background run failed")
		}
	}()
}

func (h *RunHandlers) isLaunched(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.launched[id]
	return ok
}

// HandleListRuns returns recent runs, newest first
// GET /api/runs?limit=N
func (h *RunHandlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", h.log)
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs", h.log)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"active": h.runs.Active(),
	}, h.log)
}

// HandleGetRun returns one run
// GET /api/runs/{id}
func (h *RunHandlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run, h.log)
}

// HandleGetResults returns the run with its per-instrument results
// GET /api/runs/{id}/results
func (h *RunHandlers) HandleGetResults(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	results, err := h.store.GetResults(run.ID)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to get results")
		writeError(w, http.StatusInternalServerError, "failed to get results", h.log)
		return
	}

	writeJSON(w, http.StatusOK, pipeline.RunResult{Run: *run, Results: results}, h.log)
}

// HandleCancelRun cancels an active run
// DELETE /api/runs/{id}
func (h *RunHandlers) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.runs.Cancel(id) {
		h.log.Info().Str("run_id", id).Msg("Run cancellation requested")
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"run_id": id, "cancelled": true}, h.log)
		return
	}

	run, ok := h.lookup(w, id)
	if !ok {
		return
	}
	writeError(w, http.StatusConflict, fmt.Sprintf("run %s is %s", run.ID, run.Status), h.log)
}

// lookup loads a run or writes the error response
func (h *RunHandlers) lookup(w http.ResponseWriter, id string) (*pipeline.Run, bool) {
	run, err := h.store.GetRun(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		writeError(w, http.StatusInternalServerError, "failed to get run", h.log)
		return nil, false
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found", h.log)
		return nil, false
	}
	return run, true
}

// HandleRunSocket streams one run's events over a websocket and closes the
// connection once the run completes.
// GET /api/runs/{id}/ws
func (h *RunHandlers) HandleRunSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Subscribe before reading the run so its completion cannot be missed
	sub := subscribe(h.bus, events.AllTypes, id, h.log)
	defer sub.Close()

	run, err := h.store.GetRun(id)
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		writeError(w, http.StatusInternalServerError, "failed to get run", h.log)
		return
	}
	if run == nil && !h.isLaunched(id) {
		writeError(w, http.StatusNotFound, "run not found", h.log)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Str("run_id", id).Msg("Websocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead cancels ctx when they go away
	ctx := conn.CloseRead(r.Context())

	if run != nil && run.Status != pipeline.RunRunning {
		_ = wsjson.Write(ctx, conn, map[string]interface{}{"type": "run_finished", "run": run})
		conn.Close(websocket.StatusNormalClosure, "run finished")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub.ch:
			if err := wsjson.Write(ctx, conn, eventMessage(event)); err != nil {
				h.log.Debug().Err(err).Str("run_id", id).Msg("Websocket write failed")
				return
			}
			if event.Type == events.RunCompleted {
				conn.Close(websocket.StatusNormalClosure, "run finished")
				return
			}
		}
	}
}
