package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/madfolio/internal/database"
	"github.com/aristath/madfolio/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves process and host status
type SystemHandlers struct {
	log       zerolog.Logger
	jobs      JobReporter
	databases []*database.DB
	startedAt time.Time
}

// JobReporter exposes background job outcomes.
// Implemented by scheduler.Scheduler.
type JobReporter interface {
	Status() []scheduler.JobStatus
}

// DatabaseStatus reports one SQLite database
type DatabaseStatus struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	SizeBytes int64  `json:"size_bytes"`
	Error     string `json:"error,omitempty"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string                `json:"status"`
	CPUPercent    float64               `json:"cpu_percent"`
	MemoryPercent float64               `json:"memory_percent"`
	Goroutines    int                   `json:"goroutines"`
	HeapMB        float64               `json:"heap_mb"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Databases     []DatabaseStatus      `json:"databases"`
	Jobs          []scheduler.JobStatus `json:"jobs"`
}

// NewSystemHandlers creates system handlers. A nil job reporter and nil
// databases are ignored.
func NewSystemHandlers(log zerolog.Logger, jobs JobReporter, databases ...*database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		jobs:      jobs,
		databases: databases,
		startedAt: time.Now(),
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	response := SystemStatusResponse{
		Status:        "ok",
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		HeapMB:        float64(ms.HeapAlloc) / 1024 / 1024,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Databases:     []DatabaseStatus{},
		Jobs:          []scheduler.JobStatus{},
	}
	if h.jobs != nil {
		response.Jobs = h.jobs.Status()
	}

	for _, db := range h.databases {
		if db == nil {
			continue
		}
		status := DatabaseStatus{Name: db.Name(), Healthy: true}
		if err := db.QuickCheck(r.Context()); err != nil {
			status.Healthy = false
			status.Error = err.Error()
			response.Status = "degraded"
		} else if stats, err := db.GetStats(); err == nil {
			status.SizeBytes = stats.SizeBytes
		}
		response.Databases = append(response.Databases, status)
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

// getSystemStats calculates CPU and RAM usage percentages.
// The 100ms CPU sample keeps the endpoint responsive.
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

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
