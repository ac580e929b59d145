package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/neurocloudstack/neurocloud-heal/internal/detector"
	"github.com/neurocloudstack/neurocloud-heal/internal/healing"
	"github.com/neurocloudstack/neurocloud-heal/internal/models"
	"github.com/neurocloudstack/neurocloud-heal/internal/monitor"
	"github.com/neurocloudstack/neurocloud-heal/internal/simulator"
	"github.com/neurocloudstack/neurocloud-heal/internal/store"
)

// Handlers exposes the engine over HTTP JSON. Every payload carries a
// "success" flag; failures add an "error" message.
type Handlers struct {
	logger     *slog.Logger
	mon        *monitor.Monitor
	orch       *healing.Orchestrator
	history    *simulator.History
	blobs      store.Store
	thresholds healing.Thresholds
	restart    RestartPolicy
}

// RestartPolicy mirrors the configured auto-restart settings on the
// status endpoint. Parsed and surfaced, not enforced by the engine.
type RestartPolicy struct {
	AutoRestart        bool `json:"auto_restart"`
	MaxRestartAttempts int  `json:"max_restart_attempts"`
}

// NewHandlers wires the HTTP surface to its collaborators.
func NewHandlers(
	logger *slog.Logger,
	mon *monitor.Monitor,
	orch *healing.Orchestrator,
	history *simulator.History,
	blobs store.Store,
	thresholds healing.Thresholds,
	restart RestartPolicy,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		logger:     logger.With(slog.String("component", "api")),
		mon:        mon,
		orch:       orch,
		history:    history,
		blobs:      blobs,
		thresholds: thresholds,
		restart:    restart,
	}
}

// Register attaches all routes to the router.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/api/metrics/current", h.currentMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/metrics/history", h.metricsHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/metrics/stream", h.stream).Methods(http.MethodGet)
	r.HandleFunc("/api/logs", h.logs).Methods(http.MethodGet)
	r.HandleFunc("/api/healing/history", h.healingHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/monitoring/toggle", h.toggleMonitoring).Methods(http.MethodPost)
	r.HandleFunc("/api/anomaly/inject", h.injectAnomaly).Methods(http.MethodPost)
	r.HandleFunc("/api/model/train", h.trainModel).Methods(http.MethodPost)
	r.HandleFunc("/api/sample", h.evaluateSample).Methods(http.MethodPost)
}

// pinger is implemented by store backends that hold a live connection.
type pinger interface {
	Ping(ctx context.Context) error
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.blobs.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.Error("store ping", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"error":  err.Error(),
				"time":   time.Now().Format(time.RFC3339),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	state := "healthy"
	if latest, ok := h.mon.Latest(); ok {
		cpu := latest.Get(models.MetricCPUUsage)
		mem := latest.Get(models.MetricMemoryUsage)
		rt := latest.Get(models.MetricResponseTime)
		switch {
		case cpu > h.thresholds.CPUCritical ||
			mem > h.thresholds.MemoryCritical ||
			rt > h.thresholds.ResponseTimeCritical:
			state = "critical"
		case cpu > 70 || mem > 70:
			state = "warning"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"status":               state,
		"monitoring":           h.mon.Enabled(),
		"model_trained":        h.orch.Trained(),
		"auto_restart":         h.restart.AutoRestart,
		"max_restart_attempts": h.restart.MaxRestartAttempts,
		"evaluation_p95_ms":    h.mon.EvaluationP95().Milliseconds(),
	})
}

func (h *Handlers) currentMetrics(w http.ResponseWriter, _ *http.Request) {
	latest, ok := h.mon.Latest()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": latest})
}

func (h *Handlers) metricsHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    h.history.Recent(100),
	})
}

func (h *Handlers) logs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    h.mon.Events(50),
	})
}

func (h *Handlers) healingHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    h.orch.History(),
		"stats":   h.orch.Stats(),
	})
}

func (h *Handlers) toggleMonitoring(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"monitoring": h.mon.Toggle(),
	})
}

func (h *Handlers) injectAnomaly(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means default
	}
	if req.Type == "" {
		req.Type = string(simulator.AnomalyCPU)
	}
	kind := simulator.AnomalyKind(req.Type)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown anomaly type: "+req.Type)
		return
	}

	sample, verdict, err := h.mon.InjectAnomaly(r.Context(), kind)
	if err != nil {
		h.logger.Error("inject anomaly", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"metrics": sample,
		"verdict": verdict,
	})
}

func (h *Handlers) trainModel(w http.ResponseWriter, r *http.Request) {
	corpus := h.history.Recent(0)
	if err := h.orch.Train(corpus); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, detector.ErrInsufficientData) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	if blob, err := h.orch.SnapshotModel(); err == nil {
		if err := h.blobs.Save(r.Context(), store.KeyModelSnapshot, blob); err != nil {
			h.logger.Warn("persist model snapshot", slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"samples": len(corpus),
	})
}

func (h *Handlers) evaluateSample(w http.ResponseWriter, r *http.Request) {
	var sample models.MetricSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sample payload: "+err.Error())
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	verdict, err := h.mon.Process(r.Context(), sample)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, detector.ErrNotTrained) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"verdict": verdict,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}
