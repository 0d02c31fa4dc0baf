package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-comics/modsvc/internal/rbac"
	"github.com/inkwell-comics/modsvc/internal/services"
	"github.com/inkwell-comics/modsvc/types"
)

type ComicHandler struct {
	moderation *services.ModerationService
}

func NewComicHandler(moderation *services.ModerationService) *ComicHandler {
	return &ComicHandler{moderation: moderation}
}

func ComicRouter(r chi.Router, moderation *services.ModerationService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewComicHandler(moderation)

	r.Use(authMiddleware)
	r.With(RequirePermission(rbac.PermSubmitComic)).Post("/", handler.Create)
	r.Get("/{comicID}", handler.Get)
	r.With(RequirePermission(rbac.PermSubmitComic)).Post("/{comicID}/resubmit", handler.Resubmit)
}

type CreateComicRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

type SubmissionResponse struct {
	Comic      types.Comic            `json:"comic"`
	Moderation types.ModerationRecord `json:"moderation"`
}

func (h *ComicHandler) Create(w http.ResponseWriter, r *http.Request) {
	authorID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req CreateComicRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	comic, rec, err := h.moderation.SubmitComic(r.Context(), authorID, req.Title, req.Description)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, SubmissionResponse{Comic: comic, Moderation: rec})
}

// Get returns a comic. Unpublished comics are visible only to their author
// and to reviewers.
func (h *ComicHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "comicID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	comic, err := h.moderation.GetComic(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}

	if !comic.PublicStatus.Visible() {
		userID, _ := userIDFromContext(r.Context())
		if userID != comic.AuthorID && !rbac.HasPermission(roleFromContext(r.Context()), rbac.PermReviewComics) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, comic)
}

func (h *ComicHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "comicID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	authorID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rec, err := h.moderation.Submit(r.Context(), id, authorID)
	if err != nil {
		var current any
		if rec.ID != 0 {
			current = rec
		}
		writeServiceError(w, err, current)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}
