package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/hybrid-trader/internal/config"
	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/internal/events"
	"github.com/aristath/hybrid-trader/internal/pipeline"
)

type fakeRunService struct {
	mu        sync.Mutex
	prepared  []pipeline.Run
	executed  chan pipeline.Run
	active    map[string]bool
	cancelled []string
}

func newFakeRunService() *fakeRunService {
	return &fakeRunService{
		executed: make(chan pipeline.Run, 10),
		active:   make(map[string]bool),
	}
}

func (f *fakeRunService) Prepare(kind pipeline.RunKind, cfg config.RunConfig) (pipeline.Run, error) {
	if len(cfg.Instruments) == 0 {
		return pipeline.Run{}, domain.InvalidConfigf("no instruments requested")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	run := pipeline.Run{
		ID:        fmt.Sprintf("run-%d", len(f.prepared)+1),
		Kind:      kind,
		Status:    pipeline.RunRunning,
		Config:    cfg,
		StartedAt: time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
	}
	f.prepared = append(f.prepared, run)
	return run, nil
}

func (f *fakeRunService) Execute(ctx context.Context, run pipeline.Run) (*pipeline.RunResult, error) {
	f.executed <- run
	run.Status = pipeline.RunCompleted
	results := make([]pipeline.InstrumentResult, 0, len(run.Config.Instruments))
	for _, instrument := range run.Config.Instruments {
		results = append(results, pipeline.InstrumentResult{Instrument: instrument, State: pipeline.StateDone})
	}
	return &pipeline.RunResult{Run: run, Results: results}, nil
}

func (f *fakeRunService) Cancel(runID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active[runID] {
		return false
	}
	f.cancelled = append(f.cancelled, runID)
	return true
}

func (f *fakeRunService) Active() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []string{}
	for id := range f.active {
		ids = append(ids, id)
	}
	return ids
}

type fakeRunStore struct {
	runs    map[string]pipeline.Run
	results map[string][]pipeline.InstrumentResult
	limit   int
}

func (f *fakeRunStore) GetRun(id string) (*pipeline.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (f *fakeRunStore) ListRuns(limit int) ([]pipeline.Run, error) {
	f.limit = limit
	out := []pipeline.Run{}
	for _, run := range f.runs {
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeRunStore) GetResults(runID string) ([]pipeline.InstrumentResult, error) {
	return f.results[runID], nil
}

type runFixture struct {
	service  *fakeRunService
	store    *fakeRunStore
	bus      *events.Bus
	handlers *RunHandlers
	router   http.Handler
}

func newRunFixture(t *testing.T) *runFixture {
	t.Helper()

	service := newFakeRunService()
	store := &fakeRunStore{
		runs:    make(map[string]pipeline.Run),
		results: make(map[string][]pipeline.InstrumentResult),
	}
	bus := events.NewBus(zerolog.Nop())

	defaults := config.DefaultRunConfig()
	handlers := NewRunHandlers(service, store, bus, defaults, zerolog.Nop())
	t.Cleanup(handlers.Stop)

	r := chi.NewRouter()
	r.Get("/api/runs/{id}/ws", handlers.HandleRunSocket)
	r.Route("/api", handlers.RegisterRoutes)

	return &runFixture{service: service, store: store, bus: bus, handlers: handlers, router: r}
}

func (f *runFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleStartRun(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantKind   pipeline.RunKind
	}{
		{"live run", "/api/runs", `{"instruments":["AAPL","MSFT"]}`, http.StatusAccepted, pipeline.KindLive},
		{"backtest", "/api/backtests", `{"instruments":["AAPL"],"start_date":"2024-01-01","end_date":"2024-06-30"}`, http.StatusAccepted, pipeline.KindBacktest},
		{"defaults without instruments", "/api/runs", ``, http.StatusBadRequest, ""},
		{"unknown field", "/api/runs", `{"instrumnets":["AAPL"]}`, http.StatusBadRequest, ""},
		{"malformed body", "/api/runs", `{"instruments":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRunFixture(t)

			rec := f.do(http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus != http.StatusAccepted {
				assert.Empty(t, f.service.executed)
				return
			}

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "run-1", body["run_id"])
			assert.Equal(t, string(tt.wantKind), body["kind"])
			assert.Equal(t, "running", body["status"])

			select {
			case run := <-f.service.executed:
				assert.Equal(t, "run-1", run.ID)
				assert.Equal(t, tt.wantKind, run.Kind)
			case <-time.After(2 * time.Second):
				t.Fatal("run was not executed")
			}
		})
	}
}

func TestHandleStartRunAppliesBodyOverDefaults(t *testing.T) {
	f := newRunFixture(t)

	rec := f.do(http.MethodPost, "/api/runs", `{"instruments":["AAPL"],"worker_limit":2,"retry_timeout":"5s"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	run := <-f.service.executed
	defaults := config.DefaultRunConfig()
	assert.Equal(t, []string{"AAPL"}, run.Config.Instruments)
	assert.Equal(t, 2, run.Config.WorkerLimit)
	assert.Equal(t, config.Duration(5*time.Second), run.Config.RetryTimeout)
	assert.Equal(t, defaults.PositionFraction, run.Config.PositionFraction)
	assert.Equal(t, defaults.Blacklist, run.Config.Blacklist)

	// A second request starts from untouched defaults
	rec = f.do(http.MethodPost, "/api/runs", `{"instruments":["MSFT"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	run = <-f.service.executed
	assert.Equal(t, defaults.WorkerLimit, run.Config.WorkerLimit)
}

func TestHandleStartRunWait(t *testing.T) {
	f := newRunFixture(t)

	rec := f.do(http.MethodPost, "/api/runs?wait=true", `{"instruments":["AAPL","MSFT"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result pipeline.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "run-1", result.Run.ID)
	assert.Equal(t, pipeline.RunCompleted, result.Run.Status)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "AAPL", result.Results[0].Instrument)
}

func TestHandleListRuns(t *testing.T) {
	f := newRunFixture(t)
	f.store.runs["a"] = pipeline.Run{ID: "a", Status: pipeline.RunCompleted}
	f.service.active["b"] = true

	rec := f.do(http.MethodGet, "/api/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, f.store.limit)

	var body struct {
		Runs   []pipeline.Run `json:"runs"`
		Active []string       `json:"active"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "a", body.Runs[0].ID)
	assert.Equal(t, []string{"b"}, body.Active)

	rec = f.do(http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultRunListLimit, f.store.limit)

	rec = f.do(http.MethodGet, "/api/runs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetRunAndResults(t *testing.T) {
	f := newRunFixture(t)
	f.store.runs["a"] = pipeline.Run{ID: "a", Kind: pipeline.KindLive, Status: pipeline.RunCompleted}
	f.store.results["a"] = []pipeline.InstrumentResult{
		{Instrument: "AAPL", State: pipeline.StateDone, Held: "decision is Hold"},
		{Instrument: "MSFT", State: pipeline.StateFailed, FailedStage: pipeline.StageFetch, Error: "fetch failed"},
	}

	rec := f.do(http.MethodGet, "/api/runs/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run pipeline.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, pipeline.RunCompleted, run.Status)

	rec = f.do(http.MethodGet, "/api/runs/a/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result pipeline.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[1].Failed())
	assert.Equal(t, pipeline.StageFetch, result.Results[1].FailedStage)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/runs/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/runs/missing/results", "").Code)
}

func TestHandleCancelRun(t *testing.T) {
	f := newRunFixture(t)
	f.service.active["live"] = true
	f.store.runs["done"] = pipeline.Run{ID: "done", Status: pipeline.RunCompleted}

	tests := []struct {
		id         string
		wantStatus int
	}{
		{"live", http.StatusAccepted},
		{"done", http.StatusConflict},
		{"missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			rec := f.do(http.MethodDelete, "/api/runs/"+tt.id, "")
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, []string{"live"}, f.service.cancelled)
}

func dialRun(t *testing.T, srv *httptest.Server, runID string) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/" + runID + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

func TestHandleRunSocketStreamsUntilCompletion(t *testing.T) {
	f := newRunFixture(t)
	f.store.runs["run-9"] = pipeline.Run{ID: "run-9", Status: pipeline.RunRunning}

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, ctx := dialRun(t, srv, "run-9")

	f.bus.Emit(events.RunProgress, "pipeline", map[string]interface{}{"run_id": "other", "progress": 10.0})
	f.bus.Emit(events.RunProgress, "pipeline", map[string]interface{}{"run_id": "run-9", "progress": 50.0})
	f.bus.Emit(events.RunCompleted, "pipeline", map[string]interface{}{"run_id": "run-9", "status": "completed"})

	var msg map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, string(events.RunProgress), msg["type"])
	assert.Equal(t, 50.0, msg["data"].(map[string]interface{})["progress"])

	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, string(events.RunCompleted), msg["type"])

	err := wsjson.Read(ctx, conn, &msg)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandleRunSocketFinishedRun(t *testing.T) {
	f := newRunFixture(t)
	f.store.runs["done"] = pipeline.Run{ID: "done", Status: pipeline.RunCancelled}

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, ctx := dialRun(t, srv, "done")

	var msg map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "run_finished", msg["type"])
	assert.Equal(t, "cancelled", msg["run"].(map[string]interface{})["status"])

	err := wsjson.Read(ctx, conn, &msg)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandleRunSocketUnknownRun(t *testing.T) {
	f := newRunFixture(t)

	rec := f.do(http.MethodGet, "/api/runs/missing/ws", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
