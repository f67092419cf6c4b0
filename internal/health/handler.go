package health

import (
	"net/http"
	"runtime"
	"time"

	"ms-lectures/internal/logger"
	"ms-lectures/internal/utils"
)

type Handler struct {
	Aggregator *Aggregator
	Production bool
	Log        *logger.Logger

	startedAt time.Time
}

func NewHandler(agg *Aggregator, production bool, log *logger.Logger) *Handler {
	return &Handler{
		Aggregator: agg,
		Production: production,
		Log:        log,
		startedAt:  time.Now(),
	}
}

func statusCode(v Verdict) int {
	switch v {
	case VerdictReady:
		return http.StatusOK
	case VerdictTimedOut:
		return http.StatusRequestTimeout
	default:
		return http.StatusServiceUnavailable
	}
}

// Ready answers whether this instance can serve traffic: 200 when every
// hard dependency is up, 503 when one failed, 408 when the global deadline
// fired before all probes finished.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	report := h.Aggregator.Check(r.Context())
	utils.WriteJSON(w, statusCode(report.Status), report)
}

type verboseReport struct {
	Report
	Runtime runtimeDetail `json:"runtime"`
}

type runtimeDetail struct {
	GoVersion     string `json:"go_version"`
	Goroutines    int    `json:"goroutines"`
	HeapAllocMB   uint64 `json:"heap_alloc_mb"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadyVerbose adds internal runtime detail to the report. Refused in
// production; a policy guard, not a correctness concern.
func (h *Handler) ReadyVerbose(w http.ResponseWriter, r *http.Request) {
	if h.Production {
		utils.WriteJSON(w, http.StatusForbidden,
			utils.ErrorResponse("Forbidden", "verbose readiness is disabled in production"))
		return
	}

	report := h.Aggregator.Check(r.Context())

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	verbose := verboseReport{
		Report: report,
		Runtime: runtimeDetail{
			GoVersion:     runtime.Version(),
			Goroutines:    runtime.NumGoroutine(),
			HeapAllocMB:   memStats.HeapAlloc / 1024 / 1024,
			UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		},
	}
	utils.WriteJSON(w, statusCode(report.Status), verbose)
}
