package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-comics/modsvc/internal/rbac"
	"github.com/inkwell-comics/modsvc/internal/services"
	"github.com/inkwell-comics/modsvc/types"
)

// ModerationHandler serves the comic review queue.
type ModerationHandler struct {
	moderation *services.ModerationService
}

func NewModerationHandler(moderation *services.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderation: moderation}
}

// ModerationRouter registers moderation routes. Every route needs a
// reviewer role.
func ModerationRouter(r chi.Router, moderation *services.ModerationService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewModerationHandler(moderation)

	r.Use(authMiddleware, RequirePermission(rbac.PermReviewComics))
	r.Get("/pending", handler.ListPending)
	r.Get("/history", handler.History)
	r.Get("/counts", handler.Counts)
	r.Route("/{recordID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Post("/approve", handler.Approve)
		r.Post("/reject", handler.Reject)
		r.Post("/hide", handler.Hide)
	})
}

type DecisionRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *ModerationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, total, err := h.moderation.ListPending(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list pending records")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.ModerationRecord]{Items: records, Page: page, Limit: limit, Total: total})
}

func (h *ModerationHandler) History(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, total, err := h.moderation.History(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.ModerationRecord]{Items: records, Page: page, Limit: limit, Total: total})
}

func (h *ModerationHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.moderation.Counts(r.Context(), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count records")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *ModerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "recordID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := h.moderation.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ModerationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false, func(recordID, reviewerID int, _ string) (types.ModerationRecord, error) {
		return h.moderation.Approve(r.Context(), recordID, reviewerID)
	})
}

func (h *ModerationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true, func(recordID, reviewerID int, reason string) (types.ModerationRecord, error) {
		return h.moderation.Reject(r.Context(), recordID, reviewerID, reason)
	})
}

func (h *ModerationHandler) Hide(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true, func(recordID, reviewerID int, reason string) (types.ModerationRecord, error) {
		return h.moderation.Hide(r.Context(), recordID, reviewerID, reason)
	})
}

func (h *ModerationHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	withReason bool,
	apply func(recordID, reviewerID int, reason string) (types.ModerationRecord, error),
) {
	recordID, err := parseID(r, "recordID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reviewerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DecisionRequest
	if withReason {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	rec, err := apply(recordID, reviewerID, req.Reason)
	if err != nil {
		var current any
		if rec.ID != 0 {
			current = rec
		}
		writeServiceError(w, err, current)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
