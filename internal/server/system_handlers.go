package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/finz/cashflow-risk/internal/database"
	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/modules/artifacts"
	"github.com/finz/cashflow-risk/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// LedgerCounter reports ledger size
type LedgerCounter interface {
	Count(ctx context.Context) (int64, error)
	ListBusinessIDs(ctx context.Context) ([]string, error)
}

// RunLister lists recent training runs
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]artifacts.TrainingRun, error)
}

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	ledgerDB    *database.DB // nil when the ledger is in PostgreSQL
	modelsDB    *database.DB
	ledger      LedgerCounter
	store       artifacts.Store
	runs        RunLister
	scheduler   *scheduler.Scheduler
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	ledgerDB, modelsDB *database.DB,
	ledger LedgerCounter,
	store artifacts.Store,
	runs RunLister,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		ledgerDB:    ledgerDB,
		modelsDB:    modelsDB,
		ledger:      ledger,
		store:       store,
		runs:        runs,
		scheduler:   sched,
	}
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status         string                   `json:"status"`
	UptimeSeconds  int64                    `json:"uptime_seconds"`
	CPUPercent     float64                  `json:"cpu_percent"`
	RAMPercent     float64                  `json:"ram_percent"`
	DiskPercent    float64                  `json:"disk_percent"`
	Transactions   int64                    `json:"transactions"`
	Businesses     int                      `json:"businesses"`
	ModelVersion   string                   `json:"model_version,omitempty"`
	ModelType      string                   `json:"model_type,omitempty"`
	ModelTrainedAt *time.Time               `json:"model_trained_at,omitempty"`
	Databases      map[string]DatabaseStats `json:"databases"`
	Warnings       []string                 `json:"warnings,omitempty"`
}

// DatabaseStats is the JSON view of database.Stats
type DatabaseStats struct {
	SizeBytes    int64 `json:"size_bytes"`
	WALSizeBytes int64 `json:"wal_size_bytes"`
	PageCount    int64 `json:"page_count"`
	FreePages    int64 `json:"free_pages"`
}

// GetSystemStatusSnapshot collects the status; partial failures become warnings
func (h *SystemHandlers) GetSystemStatusSnapshot(ctx context.Context) SystemStatusResponse {
	resp := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		Databases:     make(map[string]DatabaseStats),
	}
	warn := func(msg string, err error) {
		h.log.Warn().Err(err).Msg(msg)
		resp.Warnings = append(resp.Warnings, msg+": "+err.Error())
	}

	resp.CPUPercent, resp.RAMPercent = h.getSystemStats()
	if usage, err := disk.UsageWithContext(ctx, h.dataDir); err == nil {
		resp.DiskPercent = usage.UsedPercent
	} else {
		warn("disk usage unavailable", err)
	}

	if h.ledger != nil {
		if n, err := h.ledger.Count(ctx); err == nil {
			resp.Transactions = n
		} else {
			resp.Status = "degraded"
			warn("failed to count transactions", err)
		}
		if ids, err := h.ledger.ListBusinessIDs(ctx); err == nil {
			resp.Businesses = len(ids)
		} else {
			warn("failed to list businesses", err)
		}
	}

	if h.store != nil {
		artifact, err := h.store.LoadLatest(ctx)
		switch {
		case err == nil:
			resp.ModelVersion = artifact.Version
			resp.ModelType = string(artifact.Metadata.ModelType)
			trainedAt := artifact.Metadata.TrainedAt
			resp.ModelTrainedAt = &trainedAt
		case errors.Is(err, domain.ErrNotFound):
			// no model trained yet
		default:
			resp.Status = "degraded"
			warn("failed to load latest model", err)
		}
	}

	for name, db := range map[string]*database.DB{"ledger": h.ledgerDB, "models": h.modelsDB} {
		if db == nil {
			continue
		}
		stats, err := db.GetStats()
		if err != nil {
			warn("failed to read "+name+" database stats", err)
			continue
		}
		resp.Databases[name] = DatabaseStats{
			SizeBytes:    stats.SizeBytes,
			WALSizeBytes: stats.WALSizeBytes,
			PageCount:    stats.PageCount,
			FreePages:    stats.FreelistCount,
		}
	}

	return resp
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")
	h.writeJSON(w, http.StatusOK, h.GetSystemStatusSnapshot(r.Context()))
}

// HandleJobsStatus handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.scheduler != nil {
		jobs = h.scheduler.Jobs()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// HandleTrainingRuns handles GET /api/system/runs?limit=N
func (h *SystemHandlers) HandleTrainingRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs := []artifacts.TrainingRun{}
	if h.runs != nil {
		recent, err := h.runs.Recent(r.Context(), limit)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to list training runs")
			http.Error(w, "Failed to list training runs", http.StatusInternalServerError)
			return
		}
		runs = append(runs, recent...)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) so the endpoint does not block for long
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

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
