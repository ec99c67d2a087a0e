package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/pewcal/pewcal/internal/config"
	"github.com/pewcal/pewcal/internal/http/csrf"
	httperrors "github.com/pewcal/pewcal/internal/http/errors"
	"github.com/pewcal/pewcal/internal/logger"
	"github.com/pewcal/pewcal/internal/store"
)

const (
	googleIssuer      = "https://accounts.google.com"
	googleCertsURL    = "https://www.googleapis.com/oauth2/v3/certs"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Scopes requested from Google.
var Scopes = []string{
	oidc.ScopeOpenID,
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/calendar.events",
}

// Profile is the identity Google reports for the signed-in user.
type Profile struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Service runs the Google OAuth flow and guards routes with the cookie session.
type Service struct {
	oauth       *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	userInfoURL string
	httpClient  *http.Client

	store    *store.Store
	sessions *SessionManager
	states   *StateSigner
	logger   logger.Logger
}

type Option func(*Service)

// WithEndpoint overrides the Google authorization and token endpoints.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(s *Service) { s.oauth.Endpoint = ep }
}

// WithVerifier overrides the id_token verifier.
func WithVerifier(v *oidc.IDTokenVerifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithUserInfoURL overrides the userinfo endpoint used when no id_token is returned.
func WithUserInfoURL(u string) Option {
	return func(s *Service) { s.userInfoURL = u }
}

// WithHTTPClient sets the client used for token and userinfo requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

func NewService(cfg *config.Config, st *store.Store, sessions *SessionManager, log logger.Logger, opts ...Option) (*Service, error) {
	states, err := NewStateSigner(cfg.Session.Secret)
	if err != nil {
		return nil, err
	}
	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		store:       st,
		sessions:    sessions,
		states:      states,
		logger:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.verifier == nil {
		keys := oidc.NewRemoteKeySet(s.clientContext(context.Background()), googleCertsURL)
		s.verifier = oidc.NewVerifier(googleIssuer, keys, &oidc.Config{ClientID: cfg.Google.ClientID})
	}
	return s, nil
}

func (s *Service) clientContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Login redirects to the Google consent screen. Consent is only forced when
// the browser holds no refresh token, otherwise Google would not issue one.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	nonce, err := NewNonce()
	if err == nil {
		err = s.sessions.Set(w, CookieOAuthNonce, nonce)
	}
	var state string
	if err == nil {
		state, err = s.states.Issue(r.URL.Query().Get("redirect"), nonce)
	}
	if err != nil {
		s.logger.Error("issue oauth state", err)
		http.Redirect(w, r, "/?error=auth", http.StatusFound)
		return
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if _, ok := s.sessions.Get(r, CookieRefreshToken); !ok {
		opts = append(opts, oauth2.ApprovalForce)
	}
	http.Redirect(w, r, s.oauth.AuthCodeURL(state, opts...), http.StatusFound)
}

// Callback completes the code exchange, records the profile and sends the
// browser to its calendar.
func (s *Service) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nonce, _ := s.sessions.Get(r, CookieOAuthNonce)
	s.sessions.Clear(w, CookieOAuthNonce)

	if reason := q.Get("error"); reason != "" {
		s.logger.Warn("google oauth error", "reason", reason)
		s.fail(w, r, reason)
		return
	}
	code := q.Get("code")
	if code == "" {
		s.fail(w, r, "no_code")
		return
	}
	redirect, err := s.states.Verify(q.Get("state"), nonce)
	if err != nil {
		s.logger.Warn("rejected oauth state", "error", err.Error())
		s.fail(w, r, "invalid_state")
		return
	}

	ctx := s.clientContext(r.Context())
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Error("exchange oauth code", err)
		s.fail(w, r, "auth_failed")
		return
	}

	profile, err := s.profile(ctx, tok)
	if err != nil {
		s.logger.Error("load google profile", err)
		s.fail(w, r, "auth_failed")
		return
	}
	if profile.Email == "" {
		s.fail(w, r, "no_email")
		return
	}

	user, err := s.store.Users.UpsertProfile(r.Context(), profile.Email, profile.Name, profile.Picture)
	if err != nil {
		s.logger.Error("upsert profile", err, "email", profile.Email)
		s.fail(w, r, "auth_failed")
		return
	}
	if err := s.sessions.SetToken(w, tok); err != nil {
		s.logger.Error("store oauth token", err)
		s.fail(w, r, "auth_failed")
		return
	}
	if err := s.sessions.Set(w, CookieUserID, user.ID); err != nil {
		s.logger.Error("store user cookie", err)
		s.fail(w, r, "auth_failed")
		return
	}

	cal, err := s.store.Calendars.FindByOwner(r.Context(), user.ID)
	if errors.Is(err, store.ErrNotFound) {
		http.Redirect(w, r, "/calendar/setup", http.StatusFound)
		return
	}
	if err != nil {
		s.logger.Error("find calendar", err, "user_id", user.ID)
		s.fail(w, r, "auth_failed")
		return
	}
	if err := s.sessions.SetCalendar(w, cal.ID, cal.GoogleCalendarID); err != nil {
		s.logger.Error("store calendar cookies", err)
		s.fail(w, r, "auth_failed")
		return
	}

	if redirect == "" {
		redirect = "/calendar/" + cal.ID
	}
	s.logger.Info("user signed in", "user_id", user.ID)
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (s *Service) fail(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, "/?error="+url.QueryEscape(reason), http.StatusFound)
}

// profile reads the identity from the verified id_token, falling back to
// the userinfo endpoint.
func (s *Service) profile(ctx context.Context, tok *oauth2.Token) (Profile, error) {
	var p Profile
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		idToken, err := s.verifier.Verify(ctx, raw)
		if err != nil {
			return p, fmt.Errorf("verify id token: %w", err)
		}
		if err := idToken.Claims(&p); err != nil {
			return p, fmt.Errorf("decode id token claims: %w", err)
		}
		return p, nil
	}

	resp, err := s.oauth.Client(ctx, tok).Get(s.userInfoURL)
	if err != nil {
		return p, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return p, fmt.Errorf("fetch userinfo: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return p, fmt.Errorf("decode userinfo: %w", err)
	}
	return p, nil
}

// RefreshToken exchanges a refresh token for a fresh access token.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	tok, err := s.oauth.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return tok, nil
}

// Refresh handles POST /api/auth/refresh.
func (s *Service) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := s.sessions.Get(r, CookieRefreshToken)
	if !ok {
		httperrors.Status(w, r, http.StatusUnauthorized, "No refresh token")
		return
	}
	tok, err := s.RefreshToken(r.Context(), refreshToken)
	if err != nil {
		s.logger.Warn("token refresh failed", "error", err.Error())
		httperrors.Status(w, r, http.StatusUnauthorized, "Failed to refresh token")
		return
	}
	if tok.RefreshToken == refreshToken {
		tok.RefreshToken = ""
	}
	if err := s.sessions.SetToken(w, tok); err != nil {
		httperrors.InternalError(w, r, err, "Failed to refresh token")
		return
	}
	httperrors.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me handles GET /api/auth/me.
func (s *Service) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.sessions.Get(r, CookieUserID)
	_, hasToken := s.sessions.Get(r, CookieAccessToken)
	if !ok || !hasToken {
		httperrors.JSON(w, http.StatusUnauthorized, map[string]bool{"authenticated": false})
		return
	}

	user, err := s.store.Users.GetByID(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		httperrors.JSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false, "error": "Profile not found"})
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "Internal server error")
		return
	}

	var cal *store.Calendar
	cal, err = s.store.Calendars.FindByOwner(r.Context(), userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		httperrors.InternalError(w, r, err, "Failed to fetch calendar")
		return
	}

	httperrors.JSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          user,
		"calendar":      cal,
		"csrfToken":     csrf.TokenFromContext(r.Context()),
	})
}

// Logout drops the identity and token cookies but keeps the calendar selection.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w, CookieUserID, CookieAccessToken, CookieRefreshToken)
	httperrors.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Service) Signout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w, SessionCookies...)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Service) Cleanup(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w, SessionCookies...)
	httperrors.JSON(w, http.StatusOK, map[string]bool{"success": true})
}
