// Package api serves the JSON routes behind the calendar and chat screens.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tmc/langchaingo/llms"

	"github.com/pewcal/pewcal/internal/assistant"
	"github.com/pewcal/pewcal/internal/auth"
	"github.com/pewcal/pewcal/internal/command"
	"github.com/pewcal/pewcal/internal/gcal"
	httperrors "github.com/pewcal/pewcal/internal/http/errors"
	"github.com/pewcal/pewcal/internal/logger"
	"github.com/pewcal/pewcal/internal/store"
)

const maxJSONBody = 1 << 20

// Deps are the collaborators a Handler needs. Model and Assistant may be nil.
type Deps struct {
	Store     *store.Store
	Sessions  *auth.SessionManager
	Calendars gcal.Connector
	Model     llms.Model
	Assistant *assistant.Service
	Location  *time.Location
	Logger    logger.Logger
	Now       func() time.Time
}

// Handler serves the JSON API.
type Handler struct {
	store     *store.Store
	sessions  *auth.SessionManager
	calendars gcal.Connector
	model     llms.Model
	parser    command.Parser
	assistant *assistant.Service
	loc       *time.Location
	logger    logger.Logger
	now       func() time.Time
	upgrader  websocket.Upgrader
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		store:     d.Store,
		sessions:  d.Sessions,
		calendars: d.Calendars,
		model:     d.Model,
		assistant: d.Assistant,
		loc:       d.Location,
		logger:    d.Logger,
		now:       d.Now,
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.logger == nil {
		h.logger = logger.NewNopLogger()
	}
	if h.now == nil {
		h.now = time.Now
	}

	fallback := command.FallbackParser{Secondary: command.RuleParser{}, Logger: h.logger}
	if d.Model != nil {
		fallback.Primary = command.LLMParser{Model: d.Model}
	}
	h.parser = fallback
	return h
}

func (h *Handler) clock() time.Time {
	return h.now().In(h.loc)
}

func (h *Handler) executor(svc gcal.Service) *command.Executor {
	return &command.Executor{Calendar: svc, Location: h.loc, Logger: h.logger, Now: h.now}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(v)
}

// calendarService connects to Google with the token source RequireGoogle
// placed in the context.
func (h *Handler) calendarService(w http.ResponseWriter, r *http.Request) (gcal.Service, bool) {
	ts, ok := auth.TokenSourceFromContext(r.Context())
	if !ok {
		httperrors.JSON(w, http.StatusUnauthorized, map[string]any{
			"error":     "No access token available. Please authenticate first.",
			"needsAuth": true,
			"authUrl":   "/api/auth/login",
		})
		return nil, false
	}
	svc, err := h.calendars.Connect(r.Context(), ts)
	if err != nil {
		httperrors.InternalError(w, r, err, "Failed to connect to Google Calendar")
		return nil, false
	}
	return svc, true
}

// selectedCalendar returns the Google calendar id from the query or the
// session cookie.
func (h *Handler) selectedCalendar(r *http.Request, override string) string {
	if override != "" {
		return override
	}
	if id := r.URL.Query().Get("calendarId"); id != "" {
		return id
	}
	id, _ := h.sessions.Get(r, auth.CookieGoogleCalendarID)
	return id
}

// loadAccess resolves a calendar id path parameter and checks the current
// user may see it.
func (h *Handler) loadAccess(w http.ResponseWriter, r *http.Request, id string) (*store.CalendarAccess, store.Role, bool) {
	if _, err := uuid.Parse(id); err != nil {
		httperrors.BadRequest(w, r, err, "Invalid calendar ID")
		return nil, "", false
	}
	access, err := h.store.Calendars.GetWithAccess(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httperrors.Status(w, r, http.StatusNotFound, "Calendar not found")
		return nil, "", false
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "Failed to fetch calendar")
		return nil, "", false
	}
	user, _ := auth.UserFromContext(r.Context())
	role, ok := access.RoleFor(user.ID)
	if !ok {
		httperrors.Status(w, r, http.StatusForbidden, "Access denied")
		return nil, "", false
	}
	return access, role, true
}
