package handler

import (
	"net/http"
	"runtime"
	"time"

	"stockledger-api/internal/guard"
	"stockledger-api/internal/service"
	"stockledger-api/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	ledger    *service.LedgerService
	guard     *guard.Guard
	reporting *service.ReportingScheduler
	dbType    string // sqlite, postgres, pgx, mysql, mongodb, redis
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. reporting may be nil.
func NewAdminHandler(
	ledger *service.LedgerService,
	g *guard.Guard,
	reporting *service.ReportingScheduler,
	dbType string,
) *AdminHandler {
	return &AdminHandler{
		ledger:    ledger,
		guard:     g,
		reporting: reporting,
		dbType:    dbType,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":  float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":         memStats.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}

	if h.ledger != nil {
		inv, err := h.ledger.Stats(ctx)
		if err == nil {
			stats["inventory"] = map[string]interface{}{
				"status": "connected",
				"stats":  inv,
			}
		} else {
			stats["inventory"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	if h.guard != nil {
		stats["product_service"] = h.guard.Snapshot()
	} else {
		stats["product_service"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	if h.reporting != nil {
		if last, at := h.reporting.Last(); last != nil {
			stats["last_report"] = map[string]interface{}{
				"taken_at": at.UTC().Format(time.RFC3339),
				"stats":    last,
			}
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// GetHealth handles GET /api/v1/admin/health
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	state := "not_configured"
	if h.guard != nil {
		state = h.guard.Breaker().State().String()
	}
	response.OK(w, map[string]string{
		"status":          "healthy",
		"product_service": state,
		"time":            time.Now().Format(time.RFC3339),
	})
}
