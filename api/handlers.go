/*
handlers.go - HTTP API handlers for the reconciliation service

PURPOSE:
  Exposes the reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine.

ENDPOINTS:
  Reconciliation:
    POST   /api/reconciliations        Audit one extracted labor batch

  Rate schedule:
    GET    /api/rates                  List the MSA schedule
    GET    /api/rates/{type}           List schedule entries for one type
    PUT    /api/rates/{type}/{location} Upsert one schedule record

  Health:
    GET    /api/health                 Liveness probe

REQUEST FLOW:
  1. Parse HTTP request
  2. Coerce untrusted extraction payload (per-line: a malformed line is
     logged and skipped, never fatal to the batch)
  3. Call the coordinator
  4. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Empty/invalid payload
  - 500: Rate store faults and other internal errors
  Anomaly-tier failures never reach this layer; the engine degrades
  internally.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - recon/coordinator.go: The engine behind these handlers
*/
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/auditworks/recon-engine/recon"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Rates       recon.RateCatalogStore
	Coordinator *recon.Coordinator

	cfg recon.Config
	log *zap.Logger
}

// NewHandler wires the engine behind the HTTP surface. scorer may be nil,
// which disables the remote anomaly tier.
func NewHandler(rates recon.RateCatalogStore, scorer recon.Scorer, cfg recon.Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Rates:       rates,
		Coordinator: recon.NewCoordinator(rates, scorer, cfg, log),
		cfg:         cfg,
		log:         log,
	}
}

// =============================================================================
// RECONCILIATION ENDPOINT
// =============================================================================

// reconcileRequest keeps lines raw so one malformed line cannot abort the
// batch.
type reconcileRequest struct {
	Labor []json.RawMessage `json:"labor"`
}

// CreateReconciliation audits one extracted labor batch.
// POST /api/reconciliations
func (h *Handler) CreateReconciliation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lines := make([]recon.LaborLineItem, 0, len(req.Labor))
	for i, raw := range req.Labor {
		var line LaborLineRequest
		if err := json.Unmarshal(raw, &line); err != nil {
			h.log.Warn("skipping unparseable labor line",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		lines = append(lines, line.toLine(i))
	}

	result, err := h.Coordinator.Reconcile(ctx, lines)
	if err != nil {
		if recon.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "No labor data to reconcile", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, newReconcileResponse(result))
}

// =============================================================================
// RATE SCHEDULE ENDPOINTS
// =============================================================================

// ListRates returns the full schedule at the configured effective date.
// GET /api/rates
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.Rates.ListRates(ctx, h.effectiveDate(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rates", err)
		return
	}

	dtos := make([]RateDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, newRateDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListRatesForType returns the schedule entries for one labor type.
// GET /api/rates/{type}
func (h *Handler) ListRatesForType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	laborType := strings.ToUpper(chi.URLParam(r, "type"))

	records, err := h.Rates.ListRates(ctx, h.effectiveDate(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rates", err)
		return
	}

	dtos := []RateDTO{}
	for _, rec := range records {
		if string(rec.LaborType) == laborType {
			dtos = append(dtos, newRateDTO(rec))
		}
	}
	if len(dtos) == 0 {
		writeError(w, http.StatusNotFound, "No rates for labor type "+laborType, nil)
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertRate creates or replaces one schedule record.
// PUT /api/rates/{type}/{location}
func (h *Handler) UpsertRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	laborType := strings.ToUpper(chi.URLParam(r, "type"))
	location := chi.URLParam(r, "location")

	var req UpsertRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec := recon.RateRecord{
		LaborType:     recon.LaborType(laborType),
		Location:      location,
		EffectiveDate: req.EffectiveDate,
		StandardRate:  req.StandardRate.Decimal,
		Description:   req.Description,
	}
	if rec.EffectiveDate == "" {
		rec.EffectiveDate = h.cfg.EffectiveDate
	}
	if req.WeeklyThreshold != nil {
		v := req.WeeklyThreshold.Decimal
		rec.WeeklyThreshold = &v
	}
	if req.MaxRatio != nil {
		v := req.MaxRatio.Decimal
		rec.MaxRatio = &v
	}

	if err := h.Rates.PutRate(ctx, rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store rate", err)
		return
	}
	writeJSON(w, http.StatusOK, newRateDTO(rec))
}

// Health is the liveness probe.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// effectiveDate lets callers pin a schedule revision per request.
func (h *Handler) effectiveDate(r *http.Request) string {
	if d := r.URL.Query().Get("effective_date"); d != "" {
		return d
	}
	return h.cfg.EffectiveDate
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
