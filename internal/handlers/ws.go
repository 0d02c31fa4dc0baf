package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/inkwell-comics/modsvc/internal/realtime"
)

// WebsocketHandler upgrades authenticated requests onto the realtime hub.
// Browsers cannot set headers on websocket requests, so the token travels
// in the query string.
func WebsocketHandler(auth *Authenticator, hub *realtime.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			var err error
			if token, err = bearerToken(r); err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}

		user, err := auth.Authenticate(r.Context(), token)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		if err := hub.Serve(w, r, realtime.Identity{UserID: user.ID, Role: user.Role}); err != nil {
			logger.Debug("websocket upgrade failed", "user_id", user.ID, "err", err)
		}
	}
}
