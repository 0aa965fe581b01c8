package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/argusml/argus/internal/database"
	"github.com/argusml/argus/internal/reliability"
	"github.com/argusml/argus/internal/scheduler"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log          zerolog.Logger
	dataDir      string
	startupTime  time.Time
	monitoringDB *database.DB
	cacheDB      *database.DB
	cycleRepo    *scheduler.CycleRepository
	cycle        *scheduler.MonitoringCycle
	// backups is nil when object storage is not configured
	backups *reliability.BackupService
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	monitoringDB, cacheDB *database.DB,
	cycleRepo *scheduler.CycleRepository,
	cycle *scheduler.MonitoringCycle,
	backups *reliability.BackupService,
) *SystemHandlers {
	return &SystemHandlers{
		log:          log.With().Str("component", "system_handlers").Logger(),
		dataDir:      dataDir,
		startupTime:  time.Now(),
		monitoringDB: monitoringDB,
		cacheDB:      cacheDB,
		cycleRepo:    cycleRepo,
		cycle:        cycle,
		backups:      backups,
	}
}

// HandleHealth is the liveness probe
// GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"})
}

// HandleSystemHealth reports process and database health
// GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.getSystemStats()

	databases := map[string]string{}
	healthy := true
	for _, db := range []*database.DB{h.monitoringDB, h.cacheDB} {
		if err := db.QuickCheck(r.Context()); err != nil {
			databases[db.Name()] = err.Error()
			healthy = false
		} else {
			databases[db.Name()] = "ok"
		}
	}

	status := "ok"
	if !healthy {
		status = "degraded"
	}

	h.writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{
			"status":         status,
			"uptime_seconds": int64(time.Since(h.startupTime).Seconds()),
			"cpu_percent":    cpuPct,
			"memory_percent": memPct,
			"databases":      databases,
		},
	})
}

// HandleDatabaseStats reports size and page statistics per database
// GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{}
	for _, db := range []*database.DB{h.monitoringDB, h.cacheDB} {
		s, err := db.GetStats()
		if err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		stats[db.Name()] = map[string]interface{}{
			"size_bytes":     s.SizeBytes,
			"wal_size_bytes": s.WALSizeBytes,
			"page_count":     s.PageCount,
			"page_size":      s.PageSize,
			"freelist_count": s.FreelistCount,
		}
	}
	h.writeJSON(w, map[string]interface{}{"data": stats})
}

// HandleListCycles lists recent monitoring cycle summaries
// GET /api/system/cycles?ticker=&limit=
func (h *SystemHandlers) HandleListCycles(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	cycles, err := h.cycleRepo.GetRecent(r.Context(), ticker, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list cycles")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"data": cycles,
		"metadata": map[string]interface{}{
			"count": len(cycles),
		},
	})
}

// HandleRunCycle triggers a monitoring cycle for one ticker immediately
// POST /api/system/cycles/run?ticker=
func (h *SystemHandlers) HandleRunCycle(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker parameter is required", http.StatusBadRequest)
		return
	}

	h.log.Info().Str("ticker", ticker).Msg("Manual monitoring cycle triggered")

	summary, err := h.cycle.RunCycle(r.Context(), ticker)
	if err != nil {
		// The partial summary is still useful to the caller
		h.writeJSONStatus(w, http.StatusInternalServerError, map[string]interface{}{
			"data":  summary,
			"error": err.Error(),
		})
		return
	}

	h.writeJSON(w, map[string]interface{}{"data": summary})
}

// HandleListBackups lists backup archives in object storage
// GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		http.Error(w, "backups not configured", http.StatusNotImplemented)
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"data": backups,
		"metadata": map[string]interface{}{
			"count": len(backups),
		},
	})
}

// HandleRunBackup triggers a backup immediately
// POST /api/system/backups/run
func (h *SystemHandlers) HandleRunBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		http.Error(w, "backups not configured", http.StatusNotImplemented)
		return
	}

	h.log.Info().Msg("Manual backup triggered")

	archive, err := h.backups.CreateAndUploadBackup(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual backup failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"data": map[string]string{"archive": archive},
	})
}

// getSystemStats returns CPU and RAM usage percentages. The CPU sample
// interval is short so the endpoint stays responsive.
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

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *SystemHandlers) writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
