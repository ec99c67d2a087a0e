// Package csrf guards the JSON API with a double-submit token. The token
// sits in an HttpOnly cookie, reaches the browser through /api/auth/me and
// must come back in the X-CSRF-Token header on every write.
package csrf

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gorilla/securecookie"

	"github.com/pewcal/pewcal/internal/config"
	httperrors "github.com/pewcal/pewcal/internal/http/errors"
)

const (
	CookieName = "pewcal_csrf"
	HeaderName = "X-CSRF-Token"
	tokenBytes = 32
)

type tokenKey struct{}

var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Middleware makes sure every browser holds a token and rejects writes
// whose header does not repeat it.
func Middleware(cfg *config.Config) func(http.Handler) http.Handler {
	g := guard{secure: cfg.SecureCookies()}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := g.ensure(w, r)
			if err != nil {
				httperrors.InternalError(w, r, err, "Failed to issue CSRF token")
				return
			}
			if !safeMethods[r.Method] && !matches(r.Header.Get(HeaderName), token) {
				httperrors.Status(w, r, http.StatusForbidden, "Invalid CSRF token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey{}, token)))
		})
	}
}

// TokenFromContext is the token Middleware saw or minted for this request.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type guard struct {
	secure bool
}

// ensure returns the browser's token, minting one on its first visit.
func (g guard) ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	raw := securecookie.GenerateRandomKey(tokenBytes)
	if raw == nil {
		return "", errors.New("csrf: no randomness available")
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func matches(sent, want string) bool {
	return sent != "" && subtle.ConstantTimeCompare([]byte(sent), []byte(want)) == 1
}
