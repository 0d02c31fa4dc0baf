package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/inkwell-comics/modsvc/internal/rbac"
	"github.com/inkwell-comics/modsvc/internal/services"
	"github.com/inkwell-comics/modsvc/types"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type contextKey string

const (
	contextSubjectKey contextKey = "sub"
	contextRoleKey    contextKey = "role"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func userIDFromContext(ctx context.Context) (int, error) {
	subject, ok := ctx.Value(contextSubjectKey).(int)
	if !ok {
		return 0, errors.New("missing subject")
	}
	if subject < 1 {
		return 0, errors.New("invalid subject")
	}
	return subject, nil
}

func roleFromContext(ctx context.Context) types.Role {
	role, ok := ctx.Value(contextRoleKey).(types.Role)
	if !ok {
		return types.RoleUser
	}
	return role
}

func withIdentity(ctx context.Context, user types.User) context.Context {
	ctx = context.WithValue(ctx, contextSubjectKey, user.ID)
	return context.WithValue(ctx, contextRoleKey, user.Role)
}

// RequirePermission rejects requests whose role lacks perm. It must run
// after RequireAuth.
func RequirePermission(perm rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := rbac.Require(roleFromContext(r.Context()), perm); err != nil {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Current any    `json:"current,omitempty"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps service errors onto status codes. current, when
// not nil, is the unmodified record the client should redisplay.
func writeServiceError(w http.ResponseWriter, err error, current any) {
	status, message := statusForError(err)
	writeJSON(w, status, ErrorResponse{Error: message, Current: current})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, services.ErrForbidden), errors.Is(err, rbac.ErrPermissionDenied):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, "the record was changed by someone else"
	case errors.Is(err, services.ErrDuplicateReport),
		errors.Is(err, services.ErrDuplicateAccount):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrSelfReport),
		errors.Is(err, services.ErrInvalidInput):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// decodeJSON decodes the body into dst and validates its struct tags. An
// empty body leaves dst at its zero value.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid request")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New("invalid field " + strings.ToLower(verrs[0].Field()) + ": " + verrs[0].Tag())
		}
		return errors.New("invalid request")
	}
	return nil
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func parseID(r *http.Request, param string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, param))
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + param)
	}
	return id, nil
}
