package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"

	"github.com/pewcal/pewcal/internal/auth"
	"github.com/pewcal/pewcal/internal/command"
	"github.com/pewcal/pewcal/internal/gcal"
	httperrors "github.com/pewcal/pewcal/internal/http/errors"
	"github.com/pewcal/pewcal/internal/nlp"
	"github.com/pewcal/pewcal/internal/store"
)

const (
	eventsWindow   = 365 * 24 * time.Hour
	upcomingWindow = 7 * 24 * time.Hour
)

// ListCalendars returns the Google calendars the user can write to.
func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.calendarService(w, r)
	if !ok {
		return
	}
	entries, err := svc.ListWritableCalendars(r.Context())
	if err != nil {
		httperrors.Upstream(w, r, err, "Failed to list calendars")
		return
	}
	if entries == nil {
		entries = []gcal.CalendarEntry{}
	}
	httperrors.JSON(w, http.StatusOK, entries)
}

// SelectCalendar stores the chosen Google calendar in the session.
func (h *Handler) SelectCalendar(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CalendarID string `json:"calendarId"`
	}
	if err := decodeJSON(w, r, &body); err != nil || strings.TrimSpace(body.CalendarID) == "" {
		httperrors.BadRequest(w, r, err, "Calendar ID is required")
		return
	}
	if err := h.sessions.SetCalendar(w, "", body.CalendarID); err != nil {
		httperrors.InternalError(w, r, err, "Failed to select calendar")
		return
	}
	httperrors.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// SetupCalendar links a Google calendar as the user's primary calendar.
func (h *Handler) SetupCalendar(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GoogleCalendarID string `json:"googleCalendarId"`
		Name             string `json:"name"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.GoogleCalendarID == "" || strings.TrimSpace(body.Name) == "" {
		httperrors.BadRequest(w, r, err, "Missing required fields")
		return
	}

	user, _ := auth.UserFromContext(r.Context())
	cal, err := h.store.Calendars.Create(r.Context(), store.Calendar{
		GoogleCalendarID: body.GoogleCalendarID,
		Name:             strings.TrimSpace(body.Name),
		OwnerID:          user.ID,
		IsPrimary:        true,
	})
	if err != nil {
		httperrors.InternalError(w, r, err, "Failed to create calendar")
		return
	}
	if err := h.sessions.SetCalendar(w, cal.ID, cal.GoogleCalendarID); err != nil {
		httperrors.InternalError(w, r, err, "Failed to select calendar")
		return
	}
	httperrors.JSON(w, http.StatusOK, cal)
}

// GetCalendar returns a stored calendar with its owner and shares.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	access, _, ok := h.loadAccess(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if access.Shares == nil {
		access.Shares = []store.CalendarShare{}
	}
	httperrors.JSON(w, http.StatusOK, access)
}

// ListEvents returns a year either side of now for the selected calendar.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	calendarID := h.selectedCalendar(r, "")
	if calendarID == "" {
		httperrors.Status(w, r, http.StatusBadRequest, "No calendar ID found. Please set up your calendar first.")
		return
	}
	svc, ok := h.calendarService(w, r)
	if !ok {
		return
	}

	color, err := svc.CalendarColor(r.Context(), calendarID)
	if err != nil {
		httperrors.Upstream(w, r, err, "Failed to fetch events")
		return
	}
	now := h.clock()
	events, err := svc.ListEvents(r.Context(), calendarID, gcal.ListOptions{
		TimeMin:    now.Add(-eventsWindow),
		TimeMax:    now.Add(eventsWindow),
		MaxResults: gcal.MaxEvents,
	})
	if err != nil {
		httperrors.Upstream(w, r, err, "Failed to fetch events")
		return
	}
	if events == nil {
		events = []*calendar.Event{}
	}
	httperrors.JSON(w, http.StatusOK, map[string]any{"events": events, "calendarColor": color})
}

// CreateEvent inserts an event into the selected calendar.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CalendarID  string   `json:"calendarId"`
		Summary     string   `json:"summary"`
		Description string   `json:"description"`
		Start       string   `json:"start"`
		End         string   `json:"end"`
		Recurrence  []string `json:"recurrence"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		httperrors.BadRequest(w, r, err, "Invalid request body")
		return
	}
	if strings.TrimSpace(body.Summary) == "" {
		httperrors.BadRequest(w, r, nil, "Summary is required")
		return
	}
	start, err := time.Parse(time.RFC3339, body.Start)
	if err != nil {
		httperrors.BadRequest(w, r, err, "Start must be an RFC 3339 timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, body.End)
	if err != nil {
		httperrors.BadRequest(w, r, err, "End must be an RFC 3339 timestamp")
		return
	}
	if !end.After(start) {
		httperrors.BadRequest(w, r, nil, "End must be after start")
		return
	}

	calendarID := h.selectedCalendar(r, body.CalendarID)
	if calendarID == "" {
		httperrors.Status(w, r, http.StatusBadRequest, "No calendar ID found. Please set up your calendar first.")
		return
	}
	svc, ok := h.calendarService(w, r)
	if !ok {
		return
	}
	ev, err := svc.InsertEvent(r.Context(), calendarID, gcal.EventInput{
		Summary:     strings.TrimSpace(body.Summary),
		Description: body.Description,
		Start:       start.In(h.loc),
		End:         end.In(h.loc),
		Recurrence:  body.Recurrence,
		TimeZone:    h.loc.String(),
	})
	if err != nil {
		httperrors.Upstream(w, r, err, "Failed to create event")
		return
	}
	httperrors.JSON(w, http.StatusOK, map[string]any{"event": ev})
}

// DeleteEvent removes one event by id.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EventID    string `json:"eventId"`
		CalendarID string `json:"calendarId"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.EventID == "" {
		httperrors.BadRequest(w, r, err, "Event ID is required")
		return
	}
	calendarID := h.selectedCalendar(r, body.CalendarID)
	if calendarID == "" {
		httperrors.Status(w, r, http.StatusBadRequest, "No calendar ID found. Please set up your calendar first.")
		return
	}
	svc, ok := h.calendarService(w, r)
	if !ok {
		return
	}
	if err := svc.DeleteEvent(r.Context(), calendarID, body.EventID); err != nil {
		httperrors.Upstream(w, r, err, "Failed to delete event")
		return
	}
	httperrors.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// CalendarEvents lists the next week of a stored calendar.
func (h *Handler) CalendarEvents(w http.ResponseWriter, r *http.Request) {
	access, _, ok := h.loadAccess(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	svc, ok := h.calendarService(w, r)
	if !ok {
		return
	}
	now := h.clock()
	events, err := svc.ListEvents(r.Context(), access.Calendar.GoogleCalendarID, gcal.ListOptions{
		TimeMin: now,
		TimeMax: now.Add(upcomingWindow),
	})
	if err != nil {
		httperrors.Upstream(w, r, err, "Failed to fetch events")
		return
	}
	if events == nil {
		events = []*calendar.Event{}
	}
	httperrors.JSON(w, http.StatusOK, map[string]any{
		"events": events,
		"calendar": map[string]string{
			"id":               access.Calendar.ID,
			"googleCalendarId": access.Calendar.GoogleCalendarID,
		},
	})
}

// ShareCalendar grants another registered user access. Owner only.
func (h *Handler) ShareCalendar(w http.ResponseWriter, r *http.Request) {
	access, role, ok := h.loadAccess(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if role != store.RoleOwner {
		httperrors.Status(w, r, http.StatusForbidden, "Only the owner can share this calendar")
		return
	}

	var body struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decodeJSON(w, r, &body); err != nil || strings.TrimSpace(body.Email) == "" {
		httperrors.BadRequest(w, r, err, "Email is required")
		return
	}
	shareRole, err := store.ParseRole(body.Role)
	if err != nil {
		httperrors.BadRequest(w, r, err, "Role must be editor or viewer")
		return
	}

	target, err := h.store.Users.GetByEmail(r.Context(), strings.TrimSpace(body.Email))
	if errors.Is(err, store.ErrNotFound) {
		httperrors.Status(w, r, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "Failed to look up user")
		return
	}
	if target.ID == access.Calendar.OwnerID {
		httperrors.BadRequest(w, r, nil, "Cannot share a calendar with its owner")
		return
	}

	share, err := h.store.CalendarShares.Upsert(r.Context(), access.Calendar.ID, target.ID, shareRole)
	if err != nil {
		httperrors.InternalError(w, r, err, "Failed to share calendar")
		return
	}
	httperrors.JSON(w, http.StatusOK, share)
}

// UnshareCalendar removes a share. The owner may remove anyone and a sharer
// may remove themselves.
func (h *Handler) UnshareCalendar(w http.ResponseWriter, r *http.Request) {
	access, role, ok := h.loadAccess(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	user, _ := auth.UserFromContext(r.Context())
	targetID := chi.URLParam(r, "userId")
	if _, err := uuid.Parse(targetID); err != nil {
		httperrors.BadRequest(w, r, err, "Invalid user ID")
		return
	}
	if role != store.RoleOwner && targetID != user.ID {
		httperrors.Status(w, r, http.StatusForbidden, "Only the owner can remove other users")
		return
	}

	err := h.store.CalendarShares.Delete(r.Context(), access.Calendar.ID, targetID)
	if errors.Is(err, store.ErrNotFound) {
		httperrors.Status(w, r, http.StatusNotFound, "Share not found")
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "Failed to remove share")
		return
	}
	httperrors.JSON(w, http.StatusOK, map[string]any{"success": true})
}

// ParseEvent extracts a quick-add event from ?text= or a {text} body.
func (h *Handler) ParseEvent(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if r.Method == http.MethodPost {
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			httperrors.BadRequest(w, r, err, "Invalid request body")
			return
		}
		text = body.Text
	}
	if strings.TrimSpace(text) == "" {
		httperrors.BadRequest(w, r, nil, "Text is required")
		return
	}
	now := h.clock()
	if err := nlp.CheckDate(text, now); err != nil {
		httperrors.BadRequest(w, r, err, command.ClarifyDate)
		return
	}
	httperrors.JSON(w, http.StatusOK, command.ParseQuickEvent(r.Context(), h.model, text, now))
}
