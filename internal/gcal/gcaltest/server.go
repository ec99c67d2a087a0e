// Package gcaltest provides an in-memory fake of the Google Calendar v3 API
// covering the calendar list, colours and event endpoints the app uses.
package gcaltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/calendar/v3"
)

// Server is a fake Google Calendar API.
type Server struct {
	*httptest.Server

	mu        sync.RWMutex
	calendars map[string]*calendar.CalendarListEntry
	events    map[string]map[string]*calendar.Event // calendarID -> eventID -> event
	colors    map[string]calendar.ColorDefinition
	nextID    int
	failures  []int
	requests  int
}

// NewServer starts a fake server. Close it with s.Close().
func NewServer() *Server {
	s := &Server{}
	s.reset()
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Endpoint is the base URL to hand to option.WithEndpoint.
func (s *Server) Endpoint() string {
	return s.URL + "/"
}

// Reset drops all state.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Server) reset() {
	s.calendars = make(map[string]*calendar.CalendarListEntry)
	s.events = make(map[string]map[string]*calendar.Event)
	s.colors = map[string]calendar.ColorDefinition{
		"1": {Background: "#ac725e", Foreground: "#1d1d1d"},
		"7": {Background: "#42d692", Foreground: "#1d1d1d"},
	}
	s.nextID = 1
	s.failures = nil
	s.requests = 0
}

// AddCalendar registers a calendar list entry.
func (s *Server) AddCalendar(entry *calendar.CalendarListEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars[entry.Id] = entry
}

// AddEvent stores an event, assigning an id when missing.
func (s *Server) AddEvent(calendarID string, ev *calendar.Event) *calendar.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(calendarID, ev)
}

// Events returns the stored events of a calendar ordered by start.
func (s *Server) Events(calendarID string) []*calendar.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*calendar.Event, 0, len(s.events[calendarID]))
	for _, ev := range s.events[calendarID] {
		out = append(out, ev)
	}
	sortByStart(out)
	return out
}

// FailNext makes the next request answer with status.
func (s *Server) FailNext(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, status)
}

// Requests is the number of requests served so far.
func (s *Server) Requests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests
}

func (s *Server) store(calendarID string, ev *calendar.Event) *calendar.Event {
	if ev.Id == "" {
		ev.Id = fmt.Sprintf("event%d", s.nextID)
		s.nextID++
	}
	if ev.Status == "" {
		ev.Status = "confirmed"
	}
	ev.HtmlLink = "https://calendar.google.com/event?eid=" + ev.Id
	if s.events[calendarID] == nil {
		s.events[calendarID] = make(map[string]*calendar.Event)
	}
	s.events[calendarID][ev.Id] = ev
	return ev
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	if len(s.failures) > 0 {
		status := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()
		writeError(w, status, http.StatusText(status))
		return
	}
	s.mu.Unlock()

	path := strings.Trim(r.URL.Path, "/")
	path = strings.TrimPrefix(path, "calendar/v3/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] == "colors" && r.Method == http.MethodGet:
		s.getColors(w)
	case len(parts) >= 3 && parts[0] == "users" && parts[1] == "me" && parts[2] == "calendarList":
		if len(parts) == 3 {
			s.listCalendars(w, r)
			return
		}
		s.getCalendar(w, parts[3])
	case len(parts) >= 3 && parts[0] == "calendars" && parts[2] == "events":
		s.routeEvents(w, r, parts[1], parts[3:])
	default:
		writeError(w, http.StatusNotFound, "unsupported endpoint "+r.URL.Path)
	}
}

func (s *Server) routeEvents(w http.ResponseWriter, r *http.Request, calendarID string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		s.listEvents(w, r, calendarID)
	case len(rest) == 0 && r.Method == http.MethodPost:
		s.insertEvent(w, r, calendarID)
	case len(rest) == 1 && r.Method == http.MethodGet:
		s.getEvent(w, calendarID, rest[0])
	case len(rest) == 1 && r.Method == http.MethodDelete:
		s.deleteEvent(w, calendarID, rest[0])
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) getColors(w http.ResponseWriter) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, &calendar.Colors{Kind: "calendar#colors", Calendar: s.colors})
}

func (s *Server) listCalendars(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	minRole := r.URL.Query().Get("minAccessRole")
	var items []*calendar.CalendarListEntry
	for _, c := range s.calendars {
		if minRole == "writer" && c.AccessRole != "writer" && c.AccessRole != "owner" {
			continue
		}
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Id < items[j].Id })
	writeJSON(w, &calendar.CalendarList{Kind: "calendar#calendarList", Items: items})
}

func (s *Server) getCalendar(w http.ResponseWriter, calendarID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calendars[calendarID]
	if !ok {
		writeError(w, http.StatusNotFound, "calendar not found")
		return
	}
	writeJSON(w, c)
}

func (s *Server) insertEvent(w http.ResponseWriter, r *http.Request, calendarID string) {
	var ev calendar.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	ev.Id = ""

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339)
	ev.Created, ev.Updated = now, now
	writeJSON(w, s.store(calendarID, &ev))
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request, calendarID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := r.URL.Query()
	timeMin := parseTime(q.Get("timeMin"))
	timeMax := parseTime(q.Get("timeMax"))
	text := strings.ToLower(q.Get("q"))

	var matched []*calendar.Event
	for _, ev := range s.events[calendarID] {
		start, end := eventBounds(ev)
		if !timeMin.IsZero() && !end.After(timeMin) {
			continue
		}
		if !timeMax.IsZero() && !start.Before(timeMax) {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(ev.Summary+" "+ev.Description), text) {
			continue
		}
		matched = append(matched, ev)
	}
	sortByStart(matched)

	offset, _ := strconv.Atoi(q.Get("pageToken"))
	if offset > len(matched) {
		offset = len(matched)
	}
	limit := len(matched) - offset
	if mr, err := strconv.Atoi(q.Get("maxResults")); err == nil && mr > 0 && mr < limit {
		limit = mr
	}

	resp := &calendar.Events{
		Kind:    "calendar#events",
		Summary: calendarID,
		Items:   matched[offset : offset+limit],
	}
	if offset+limit < len(matched) {
		resp.NextPageToken = strconv.Itoa(offset + limit)
	}
	writeJSON(w, resp)
}

func (s *Server) getEvent(w http.ResponseWriter, calendarID, eventID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[calendarID][eventID]
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, ev)
}

func (s *Server) deleteEvent(w http.ResponseWriter, calendarID, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[calendarID][eventID]; !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	delete(s.events[calendarID], eventID)
	w.WriteHeader(http.StatusNoContent)
}

func eventBounds(ev *calendar.Event) (time.Time, time.Time) {
	var start, end time.Time
	if ev.Start != nil {
		start = parseEventTime(ev.Start)
	}
	if ev.End != nil {
		end = parseEventTime(ev.End)
	}
	if end.IsZero() {
		end = start
	}
	return start, end
}

func parseEventTime(dt *calendar.EventDateTime) time.Time {
	if dt.DateTime != "" {
		return parseTime(dt.DateTime)
	}
	t, _ := time.Parse("2006-01-02", dt.Date)
	return t
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func sortByStart(events []*calendar.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		si, _ := eventBounds(events[i])
		sj, _ := eventBounds(events[j])
		if si.Equal(sj) {
			return events[i].Id < events[j].Id
		}
		return si.Before(sj)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}
