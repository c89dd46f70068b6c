package handler

import (
	"net/http"

	"github.com/YannKr/markbot/internal/auth"
)

// RequireToken checks the bearer token against the configured bcrypt hash.
// With no hash configured every request passes.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Cfg.AccessTokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := auth.BearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="markbot"`)
			jsonError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if !auth.CheckPassword(h.Cfg.AccessTokenHash, token) {
			jsonError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
