package auth

import (
	"errors"
	"net/http"

	httperrors "github.com/pewcal/pewcal/internal/http/errors"
	"github.com/pewcal/pewcal/internal/store"
)

// RequireUser loads the signed-in user into the request context.
func (s *Service) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.sessions.Get(r, CookieUserID)
		if !ok {
			httperrors.Status(w, r, http.StatusUnauthorized, "Not authenticated")
			return
		}
		user, err := s.store.Users.GetByID(r.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			httperrors.Status(w, r, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if err != nil {
			httperrors.InternalError(w, r, err, "Failed to load user")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireGoogle makes a Google token source available to the handler. An
// expired access token gets exactly one refresh attempt.
func (s *Service) RequireGoogle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := s.sessions.Token(r)
		if err != nil {
			needsAuth(w, "No access token available. Please authenticate first.")
			return
		}
		if !tok.Valid() {
			refreshed, err := s.RefreshToken(r.Context(), tok.RefreshToken)
			if err != nil {
				s.logger.Warn("token refresh failed", "error", err.Error())
				needsAuth(w, "Failed to refresh authentication. Please sign in again.")
				return
			}
			rotated := refreshed.RefreshToken
			if rotated == tok.RefreshToken {
				refreshed.RefreshToken = ""
			}
			if err := s.sessions.SetToken(w, refreshed); err != nil {
				httperrors.InternalError(w, r, err, "Failed to refresh authentication")
				return
			}
			refreshed.RefreshToken = rotated
			tok = refreshed
		}

		ts := s.oauth.TokenSource(s.clientContext(r.Context()), tok)
		next.ServeHTTP(w, r.WithContext(WithTokenSource(r.Context(), ts)))
	})
}

func needsAuth(w http.ResponseWriter, message string) {
	httperrors.JSON(w, http.StatusUnauthorized, map[string]any{
		"error":     message,
		"needsAuth": true,
		"authUrl":   "/api/auth/login",
	})
}
