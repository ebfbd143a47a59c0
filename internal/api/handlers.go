package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/maintstack/maint-opt/internal/models"
	"github.com/maintstack/maint-opt/internal/repo"
	"github.com/maintstack/maint-opt/internal/scheduler"
)

// OptimizationService produces recommendations on demand.
type OptimizationService interface {
	Optimize(ctx context.Context, componentID int64, lookBackDays int, method models.AnalysisMethod) (models.Recommendation, error)
}

// AdjustmentService applies persisted recommendations and manual overrides.
type AdjustmentService interface {
	ApplyResult(ctx context.Context, analysisID int64, actedBy *int64) (models.ApplicationReport, error)
	AdjustInterval(ctx context.Context, actionID int64, hours float64, days int, reason string, actedBy *int64) (models.IntervalAdjustment, error)
}

// AutomationService runs batches, validation and reporting.
type AutomationService interface {
	RunScheduledOptimizations(ctx context.Context, method models.AnalysisMethod) (models.BatchReport, error)
	ValidateEffectiveness(ctx context.Context, days int) (models.ValidationReport, error)
	FailureRate(ctx context.Context, componentID int64, days int) (models.FailureRateSummary, error)
}

// RegenerationService creates work orders for recent adjustments.
type RegenerationService interface {
	Regenerate(ctx context.Context) (models.RegenerationReport, error)
}

// SchedulerControl exposes the background scheduler to the API.
type SchedulerControl interface {
	Start(ctx context.Context) error
	Stop()
	Status() scheduler.Status
}

// Handlers is the REST surface over the optimization services.
type Handlers struct {
	optimizer    OptimizationService
	applier      AdjustmentService
	automation   AutomationService
	generator    RegenerationService
	scheduler    SchedulerControl
	lookBackDays int
	// baseCtx outlives requests; scheduler restarts are bound to it, not to
	// the triggering request.
	baseCtx context.Context
	logger  *slog.Logger
}

func NewHandlers(baseCtx context.Context, optimizer OptimizationService, applier AdjustmentService, automation AutomationService, generator RegenerationService, sched SchedulerControl, lookBackDays int, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Handlers{
		optimizer:    optimizer,
		applier:      applier,
		automation:   automation,
		generator:    generator,
		scheduler:    sched,
		lookBackDays: lookBackDays,
		baseCtx:      baseCtx,
		logger:       logger,
	}
}

// Router assembles the chi route tree.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/components/{id}/analyze", h.analyze)
		r.Get("/components/{id}/failure-rate", h.failureRate)
		r.Post("/optimizations/{id}/apply", h.apply)
		r.Post("/optimizations/run", h.runBatch)
		r.Get("/optimizations/effectiveness", h.effectiveness)
		r.Put("/maintenance/{id}/interval", h.adjustInterval)
		r.Post("/work-orders/regenerate", h.regenerate)
		r.Post("/scheduler/start", h.startScheduler)
		r.Post("/scheduler/stop", h.stopScheduler)
		r.Get("/scheduler/status", h.schedulerStatus)
	})
	return r
}

type analyzeRequest struct {
	LookBackDays int    `json:"look_back_days"`
	Method       string `json:"method"`
}

func (h *Handlers) analyze(w http.ResponseWriter, r *http.Request) {
	componentID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req analyzeRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	lookBack := req.LookBackDays
	if lookBack <= 0 {
		lookBack = h.lookBackDays
	}
	var method models.AnalysisMethod
	if req.Method != "" {
		method = models.ParseMethod(req.Method)
	}

	rec, err := h.optimizer.Optimize(r.Context(), componentID, lookBack, method)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

type applyRequest struct {
	UserID *int64 `json:"user_id"`
}

func (h *Handlers) apply(w http.ResponseWriter, r *http.Request) {
	analysisID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req applyRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	report, err := h.applier.ApplyResult(r.Context(), analysisID, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

type runBatchRequest struct {
	Method string `json:"method"`
}

func (h *Handlers) runBatch(w http.ResponseWriter, r *http.Request) {
	var req runBatchRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	report, err := h.automation.RunScheduledOptimizations(r.Context(), models.ParseMethod(req.Method))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) effectiveness(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 90)
	if days <= 0 {
		h.badRequest(w, "days must be positive")
		return
	}
	report, err := h.automation.ValidateEffectiveness(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) failureRate(w http.ResponseWriter, r *http.Request) {
	componentID, ok := pathID(w, r)
	if !ok {
		return
	}
	days := queryInt(r, "days", h.lookBackDays)
	if days <= 0 {
		h.badRequest(w, "days must be positive")
		return
	}
	summary, err := h.automation.FailureRate(r.Context(), componentID, days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

type adjustIntervalRequest struct {
	IntervalHours float64 `json:"interval_hours"`
	IntervalDays  int     `json:"interval_days"`
	Reason        string  `json:"reason"`
	UserID        *int64  `json:"user_id"`
}

func (h *Handlers) adjustInterval(w http.ResponseWriter, r *http.Request) {
	actionID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req adjustIntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	adjustment, err := h.applier.AdjustInterval(r.Context(), actionID, req.IntervalHours, req.IntervalDays, req.Reason, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, adjustment)
}

func (h *Handlers) regenerate(w http.ResponseWriter, r *http.Request) {
	report, err := h.generator.Regenerate(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) startScheduler(w http.ResponseWriter, _ *http.Request) {
	if err := h.scheduler.Start(h.baseCtx); err != nil {
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handlers) stopScheduler(w http.ResponseWriter, _ *http.Request) {
	h.scheduler.Stop()
	h.writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handlers) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONRaw(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}

// decodeOptionalBody tolerates an empty body; anything present must be valid
// JSON.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONRaw(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (h *Handlers) badRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repo.ErrAlreadyApplied):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", slog.Any("error", err))
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSONRaw(w, status, payload)
}

func writeJSONRaw(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
