package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-comics/modsvc/config"
	"github.com/inkwell-comics/modsvc/internal/rbac"
	"github.com/inkwell-comics/modsvc/internal/services"
	"github.com/inkwell-comics/modsvc/types"
)

// ReportHandler serves report filing and the report queues.
type ReportHandler struct {
	reports *services.ReportService
	limiter *keyedLimiter
}

func NewReportHandler(reports *services.ReportService, limits config.RateLimitConfig) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		limiter: newKeyedLimiter(limits.ReportsPerMinute, limits.ReportBurst),
	}
}

func ReportRouter(
	r chi.Router,
	reports *services.ReportService,
	limits config.RateLimitConfig,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewReportHandler(reports, limits)

	r.Use(authMiddleware)
	r.With(RequirePermission(rbac.PermFileReport)).Post("/", handler.Create)
	r.Get("/queue", handler.Queue)
	r.Route("/{reportID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Post("/process", handler.Process)
		r.Post("/reject", handler.Reject)
	})
}

type CreateReportRequest struct {
	TargetID    int    `json:"target_id" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type ProcessReportRequest struct {
	Action string `json:"action" validate:"required,oneof=warning ban remove_role dismiss"`
	Note   string `json:"note" validate:"max=1000"`
}

type RejectReportRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	reporterID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.limiter.Allow(reporterID) {
		writeError(w, http.StatusTooManyRequests, "too many reports, try again later")
		return
	}

	var req CreateReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reports.CreateReport(r.Context(), reporterID, req.TargetID, req.Reason, req.Description)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// Queue lists the Pending reports the caller's role handles.
func (h *ReportHandler) Queue(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reports, total, err := h.reports.Queue(r.Context(), roleFromContext(r.Context()), offset, limit)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Report]{Items: reports, Page: page, Limit: limit, Total: total})
}

// Get returns a report to its reporter or to a role that handles it.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "reportID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.reports.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	userID, _ := userIDFromContext(r.Context())
	perm, ok := rbac.ReportPermission(report.TargetRole)
	if report.ReporterID != userID && (!ok || !rbac.HasPermission(roleFromContext(r.Context()), perm)) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "reportID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	processorID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProcessReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	action, err := types.ParseEnforcementAction(strings.TrimSpace(req.Action))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid action")
		return
	}

	report, err := h.reports.ProcessReport(r.Context(), id, processorID, roleFromContext(r.Context()), action, req.Note)
	if err != nil {
		writeReportError(w, err, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "reportID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	processorID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RejectReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reports.RejectReport(r.Context(), id, processorID, roleFromContext(r.Context()), req.Note)
	if err != nil {
		writeReportError(w, err, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeReportError(w http.ResponseWriter, err error, report types.Report) {
	var current any
	if report.ID != 0 && !errors.Is(err, services.ErrForbidden) {
		current = report
	}
	writeServiceError(w, err, current)
}
