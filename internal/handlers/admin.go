package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-comics/modsvc/internal/presence"
	"github.com/inkwell-comics/modsvc/internal/rbac"
	"github.com/inkwell-comics/modsvc/internal/services"
	"github.com/inkwell-comics/modsvc/types"
)

// AdminHandler serves moderator management, the audit trail and presence.
type AdminHandler struct {
	admin    *services.AdminAccountService
	registry *presence.Registry
}

func NewAdminHandler(admin *services.AdminAccountService, registry *presence.Registry) *AdminHandler {
	return &AdminHandler{admin: admin, registry: registry}
}

func AdminRouter(
	r chi.Router,
	admin *services.AdminAccountService,
	registry *presence.Registry,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewAdminHandler(admin, registry)

	r.Use(authMiddleware)
	r.Route("/moderators", func(r chi.Router) {
		r.Use(RequirePermission(rbac.PermManageModerators))
		r.Get("/", handler.ListModerators)
		r.Post("/", handler.CreateModerator)
		r.Post("/{userID}/ban", handler.Ban)
		r.Post("/{userID}/unban", handler.Unban)
	})
	r.With(RequirePermission(rbac.PermViewAudit)).Get("/audit", handler.Audit)
	r.With(RequirePermission(rbac.PermViewPresence)).Get("/presence", handler.Presence)
}

type CreateModeratorRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8"`
}

type PresenceResponse struct {
	OnlineUserIDs []int `json:"online_user_ids"`
	Connections   int   `json:"connections"`
}

func (h *AdminHandler) ListModerators(w http.ResponseWriter, r *http.Request) {
	mods, err := h.admin.ListModerators(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list moderators")
		return
	}
	writeJSON(w, http.StatusOK, mods)
}

func (h *AdminHandler) CreateModerator(w http.ResponseWriter, r *http.Request) {
	var req CreateModeratorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mod, err := h.admin.CreateModerator(r.Context(), req.Username, req.Email, req.Name, req.Password)
	if err != nil {
		writeServiceError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, mod)
}

func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.admin.BanModerator)
}

func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.admin.UnbanModerator)
}

func (h *AdminHandler) changeStatus(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, adminID, userID int) (types.User, error),
) {
	userID, err := parseID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	adminID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := apply(r.Context(), adminID, userID)
	if err != nil {
		var current any
		if user.ID != 0 {
			current = user
		}
		writeServiceError(w, err, current)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, total, err := h.admin.ListAudit(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.AuditEntry]{Items: entries, Page: page, Limit: limit, Total: total})
}

func (h *AdminHandler) Presence(w http.ResponseWriter, r *http.Request) {
	_, connections := h.registry.Stats()
	writeJSON(w, http.StatusOK, PresenceResponse{
		OnlineUserIDs: h.registry.OnlineUsers(),
		Connections:   connections,
	})
}
