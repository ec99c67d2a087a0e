package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/oauth2"

	"github.com/pewcal/pewcal/internal/config"
)

const (
	CookieAccessToken      = "access_token"
	CookieRefreshToken     = "refresh_token"
	CookieTokenExpiry      = "token_expiry"
	CookieUserID           = "user_id"
	CookieCalendarID       = "calendar_id"
	CookieGoogleCalendarID = "google_calendar_id"
	CookieOAuthNonce       = "oauth_nonce"
)

const (
	shortTTL = 7 * 24 * time.Hour
	longTTL  = 30 * 24 * time.Hour
)

var cookieTTL = map[string]time.Duration{
	CookieAccessToken:      shortTTL,
	CookieTokenExpiry:      shortTTL,
	CookieRefreshToken:     longTTL,
	CookieUserID:           longTTL,
	CookieCalendarID:       longTTL,
	CookieGoogleCalendarID: longTTL,
	CookieOAuthNonce:       stateTTL,
}

// SessionCookies lists every cookie that makes up a session.
var SessionCookies = []string{
	CookieAccessToken,
	CookieRefreshToken,
	CookieTokenExpiry,
	CookieUserID,
	CookieCalendarID,
	CookieGoogleCalendarID,
}

var (
	ErrNoSession      = errors.New("no session")
	ErrNoRefreshToken = errors.New("no refresh token")
)

// SessionManager reads and writes the signed, encrypted session cookies.
type SessionManager struct {
	codec  *securecookie.SecureCookie
	secure bool
}

func NewSessionManager(cfg *config.Config) (*SessionManager, error) {
	hashKey, err := deriveKey(cfg.Session.Secret, "pewcal cookie hash", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(cfg.Session.Secret, "pewcal cookie block", 32)
	if err != nil {
		return nil, err
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(longTTL.Seconds()))

	return &SessionManager{codec: sc, secure: cfg.SecureCookies()}, nil
}

// deriveKey expands the configured secret into n bytes for one purpose.
func deriveKey(secret, info string, n int) ([]byte, error) {
	key := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}

// Set writes one session cookie with its fixed lifetime.
func (m *SessionManager) Set(w http.ResponseWriter, name, value string) error {
	encoded, err := m.codec.Encode(name, value)
	if err != nil {
		return fmt.Errorf("encode cookie %s: %w", name, err)
	}
	ttl, ok := cookieTTL[name]
	if !ok {
		ttl = shortTTL
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Get returns the decoded cookie value. Tampered or expired cookies read as
// absent.
func (m *SessionManager) Get(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	var value string
	if err := m.codec.Decode(name, c.Value, &value); err != nil {
		return "", false
	}
	return value, value != ""
}

// Clear expires the named cookies.
func (m *SessionManager) Clear(w http.ResponseWriter, names ...string) {
	for _, name := range names {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// SetToken stores the access token, its expiry and, when present, the
// refresh token.
func (m *SessionManager) SetToken(w http.ResponseWriter, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("token has no access token")
	}
	if err := m.Set(w, CookieAccessToken, tok.AccessToken); err != nil {
		return err
	}
	if !tok.Expiry.IsZero() {
		if err := m.Set(w, CookieTokenExpiry, strconv.FormatInt(tok.Expiry.UnixMilli(), 10)); err != nil {
			return err
		}
	}
	if tok.RefreshToken != "" {
		if err := m.Set(w, CookieRefreshToken, tok.RefreshToken); err != nil {
			return err
		}
	}
	return nil
}

// Token rebuilds the OAuth token from the cookies. ErrNoSession means there is
// no access token.
func (m *SessionManager) Token(r *http.Request) (*oauth2.Token, error) {
	access, ok := m.Get(r, CookieAccessToken)
	if !ok {
		return nil, ErrNoSession
	}
	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if refresh, ok := m.Get(r, CookieRefreshToken); ok {
		tok.RefreshToken = refresh
	}
	if raw, ok := m.Get(r, CookieTokenExpiry); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			tok.Expiry = time.UnixMilli(ms)
		}
	}
	return tok, nil
}

// SetCalendar records the selected app calendar and its Google calendar.
func (m *SessionManager) SetCalendar(w http.ResponseWriter, calendarID, googleCalendarID string) error {
	if calendarID != "" {
		if err := m.Set(w, CookieCalendarID, calendarID); err != nil {
			return err
		}
	}
	return m.Set(w, CookieGoogleCalendarID, googleCalendarID)
}
