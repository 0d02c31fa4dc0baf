package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/inkwell-comics/modsvc/internal/services"
	"github.com/inkwell-comics/modsvc/internal/store"
	"github.com/inkwell-comics/modsvc/types"
)

const defaultTokenTTL = 24 * time.Hour

var errUnauthorized = errors.New("unauthorized")

// Authenticator resolves bearer tokens to current accounts.
type Authenticator struct {
	users  *services.UserService
	secret []byte
}

func NewAuthenticator(users *services.UserService, jwtSecret string) *Authenticator {
	return &Authenticator{users: users, secret: []byte(jwtSecret)}
}

// Authenticate validates the token and loads the account it names. The role
// comes from the store, not the token, so demotions apply immediately.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (types.User, error) {
	subject, err := parseTokenSubject(token, a.secret)
	if err != nil {
		return types.User{}, errUnauthorized
	}
	userID, err := strconv.Atoi(subject)
	if err != nil || userID < 1 {
		return types.User{}, errUnauthorized
	}

	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, errUnauthorized
		}
		return types.User{}, err
	}
	if user.Status == types.StatusBanned {
		return user, services.ErrAccountBanned
	}
	return user, nil
}

// RequireAuth enforces JWT authentication and injects the subject and role
// into the request context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := a.Authenticate(r.Context(), token)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), user)))
	})
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, services.ErrAccountBanned):
		writeError(w, http.StatusForbidden, "account banned")
	default:
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
	}
}

// AuthHandler provides JWT authentication endpoints.
type AuthHandler struct {
	auth        *Authenticator
	userService *services.UserService
	tokenTTL    time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(auth *Authenticator, userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		userService: userService,
		tokenTTL:    defaultTokenTTL,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, auth *Authenticator, userService *services.UserService) {
	handler := NewAuthHandler(auth, userService)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(auth.RequireAuth).Get("/me", handler.Me)
}

// Register creates a new user account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Register(r.Context(), req.Username, req.Email, req.Name, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateAccount):
			writeError(w, http.StatusConflict, "username or email already exists")
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to create user")
		}
		return
	}

	token, err := issueToken(user.ID, user.Role, h.auth.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

// Login verifies credentials and returns a JWT. Banned accounts are refused.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, services.ErrAccountBanned):
			writeError(w, http.StatusForbidden, "account banned")
		default:
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
		}
		return
	}

	token, err := issueToken(user.ID, user.Role, h.auth.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func issueToken(userID int, role types.Role, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role: role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
