package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/hybrid-trader/internal/database"
	"github.com/aristath/hybrid-trader/internal/domain"
	"github.com/aristath/hybrid-trader/internal/scheduler"
)

// ActiveRuns lists in-flight run IDs
type ActiveRuns interface {
	Active() []string
}

// PendingOrders lists queued orders
type PendingOrders interface {
	Pending() []domain.Order
}

// JobRunner runs a job outside its schedule
type JobRunner interface {
	RunNow(job scheduler.Job) error
}

// SystemDeps are the collaborators of SystemHandlers
type SystemDeps struct {
	DataDir       string
	Databases     map[string]*database.DB
	Runs          ActiveRuns
	Pending       PendingOrders
	Jobs          map[string]scheduler.Job
	Runner        JobRunner
	ExportEnabled bool
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	deps        SystemDeps
	startupTime time.Time
	sampleCPU   func() (cpuPercent, ramPercent float64)
	log         zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(deps SystemDeps, log zerolog.Logger) *SystemHandlers {
	h := &SystemHandlers{
		deps:        deps,
		startupTime: time.Now(),
		log:         log.With().Str("handler", "system").Logger(),
	}
	h.sampleCPU = h.getSystemStats
	return h
}

// RegisterRoutes registers the system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/databases", h.HandleDatabaseStats)
	})
	r.Get("/jobs", h.HandleListJobs)
	r.Post("/jobs/{name}", h.HandleTriggerJob)
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string   `json:"status"`
	UptimeHours   float64  `json:"uptime_hours"`
	CPUPercent    float64  `json:"cpu_percent"`
	RAMPercent    float64  `json:"ram_percent"`
	DataDirMB     float64  `json:"data_dir_mb"`
	ActiveRuns    []string `json:"active_runs"`
	PendingOrders int      `json:"pending_orders"`
	ExportEnabled bool     `json:"export_enabled"`
	LastChecked   string   `json:"last_checked"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	FreelistCount int64   `json:"freelist_count"`
	Error         string  `json:"error,omitempty"`
}

// DatabaseStatsResponse is the body of GET /api/system/databases
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// HandleSystemStatus returns process and trading status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.sampleCPU()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeHours:   time.Since(h.startupTime).Hours(),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		DataDirMB:     h.getDirSize(h.deps.DataDir),
		ActiveRuns:    []string{},
		ExportEnabled: h.deps.ExportEnabled,
		LastChecked:   time.Now().Format(time.RFC3339),
	}
	if h.deps.Runs != nil {
		response.ActiveRuns = h.deps.Runs.Active()
	}
	if h.deps.Pending != nil {
		response.PendingOrders = len(h.deps.Pending.Pending())
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

// HandleDatabaseStats returns database statistics
// GET /api/system/databases
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	response := DatabaseStatsResponse{
		Databases:   []DBInfo{},
		LastChecked: time.Now().Format(time.RFC3339),
	}

	names := make([]string, 0, len(h.deps.Databases))
	for name := range h.deps.Databases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		db := h.deps.Databases[name]
		info := DBInfo{Name: name, Path: db.Path()}

		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			info.Error = err.Error()
		} else {
			info.SizeMB = bytesToMB(stats.SizeBytes)
			info.WALSizeMB = bytesToMB(stats.WALSizeBytes)
			info.PageCount = stats.PageCount
			info.FreelistCount = stats.FreelistCount
			response.TotalSizeMB += info.SizeMB + info.WALSizeMB
		}
		response.Databases = append(response.Databases, info)
	}

	writeJSON(w, http.StatusOK, response, h.log)
}

// HandleListJobs lists the scheduled jobs
// GET /api/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.deps.Jobs))
	for name := range h.deps.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": names}, h.log)
}

// HandleTriggerJob runs a scheduled job immediately in the background
// POST /api/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	job, ok := h.deps.Jobs[name]
	if !ok || h.deps.Runner == nil {
		writeError(w, http.StatusNotFound, "unknown job: "+name, h.log)
		return
	}

	go func() {
		if err := h.deps.Runner.RunNow(job); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job":     name,
		"status":  "triggered",
		"message": "Job started",
	}, h.log)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}

	var totalSize int64
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return bytesToMB(totalSize)
}

// getSystemStats calculates CPU and RAM usage percentages over a short window
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func bytesToMB(n int64) float64 {
	return float64(n) / 1024 / 1024
}
