// Package gcal is the Google Calendar v3 client used by every calendar route.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/pewcal/pewcal/internal/metrics"
)

// DefaultColor is returned when a calendar has no resolvable colour.
const DefaultColor = "#0A84FF"

// MaxEvents bounds a single ListEvents call.
const MaxEvents = 5000

var (
	ErrUnauthorized = errors.New("google calendar: unauthorized")
	ErrForbidden    = errors.New("google calendar: forbidden")
	ErrNotFound     = errors.New("google calendar: not found")
)

// CalendarEntry is a calendar the user can see in their calendar list.
type CalendarEntry struct {
	ID              string `json:"id"`
	Summary         string `json:"summary"`
	Primary         bool   `json:"primary"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	AccessRole      string `json:"accessRole"`
	TimeZone        string `json:"timeZone,omitempty"`
}

// ListOptions filters an event listing. Zero MaxResults means MaxEvents.
type ListOptions struct {
	TimeMin    time.Time
	TimeMax    time.Time
	Query      string
	MaxResults int
}

// EventInput describes an event to create.
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Recurrence  []string
	TimeZone    string
}

// Service is the subset of Google Calendar used by the app.
type Service interface {
	ListWritableCalendars(ctx context.Context) ([]CalendarEntry, error)
	CalendarColor(ctx context.Context, calendarID string) (string, error)
	ListEvents(ctx context.Context, calendarID string, opts ListOptions) ([]*calendar.Event, error)
	InsertEvent(ctx context.Context, calendarID string, in EventInput) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// Connector builds a Service for one user's token.
type Connector interface {
	Connect(ctx context.Context, ts oauth2.TokenSource) (Service, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, ts oauth2.TokenSource) (Service, error)

func (f ConnectorFunc) Connect(ctx context.Context, ts oauth2.TokenSource) (Service, error) {
	return f(ctx, ts)
}

// GoogleConnector connects to the real API. Extra options are appended after
// the token source.
func GoogleConnector(opts ...option.ClientOption) Connector {
	return ConnectorFunc(func(ctx context.Context, ts oauth2.TokenSource) (Service, error) {
		return New(ctx, ts, opts...)
	})
}

// Client implements Service over calendar/v3.
type Client struct {
	svc *calendar.Service
}

// New creates a client authorised by ts.
func New(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	all := append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := calendar.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// NewWithHTTPClient creates a client over an already-authorised HTTP client.
// A non-empty endpoint overrides the API base URL, which tests point at
// gcaltest.
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, endpoint string) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &Client{svc: svc}, nil
}

func (c *Client) ListWritableCalendars(ctx context.Context) (_ []CalendarEntry, err error) {
	defer func() { metrics.ObserveGCal("calendarList.list", err) }()

	var out []CalendarEntry
	call := c.svc.CalendarList.List().MinAccessRole("writer").Context(ctx)
	err = call.Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			if item.AccessRole != "owner" && item.AccessRole != "writer" {
				continue
			}
			out = append(out, entryFrom(item))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("list calendars", err)
	}
	return out, nil
}

// CalendarColor resolves the calendar's background colour, preferring the
// explicit value and falling back to the colour palette.
func (c *Client) CalendarColor(ctx context.Context, calendarID string) (_ string, err error) {
	defer func() { metrics.ObserveGCal("colors.get", err) }()

	item, err := c.svc.CalendarList.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return DefaultColor, wrap("get calendar", err)
	}
	if item.BackgroundColor != "" {
		return item.BackgroundColor, nil
	}
	if item.ColorId == "" {
		return DefaultColor, nil
	}

	colors, err := c.svc.Colors.Get().Context(ctx).Do()
	if err != nil {
		return DefaultColor, wrap("get colors", err)
	}
	if def, ok := colors.Calendar[item.ColorId]; ok && def.Background != "" {
		return def.Background, nil
	}
	return DefaultColor, nil
}

func (c *Client) ListEvents(ctx context.Context, calendarID string, opts ListOptions) (_ []*calendar.Event, err error) {
	defer func() { metrics.ObserveGCal("events.list", err) }()

	limit := opts.MaxResults
	if limit <= 0 || limit > MaxEvents {
		limit = MaxEvents
	}

	call := c.svc.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(min(limit, 2500))).
		Context(ctx)
	if !opts.TimeMin.IsZero() {
		call = call.TimeMin(opts.TimeMin.Format(time.RFC3339))
	}
	if !opts.TimeMax.IsZero() {
		call = call.TimeMax(opts.TimeMax.Format(time.RFC3339))
	}
	if opts.Query != "" {
		call = call.Q(opts.Query)
	}

	var out []*calendar.Event
	errLimit := errors.New("limit reached")
	err = call.Pages(ctx, func(page *calendar.Events) error {
		for _, ev := range page.Items {
			out = append(out, ev)
			if len(out) >= limit {
				return errLimit
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, wrap("list events", err)
	}
	return out, nil
}

func (c *Client) InsertEvent(ctx context.Context, calendarID string, in EventInput) (_ *calendar.Event, err error) {
	defer func() { metrics.ObserveGCal("events.insert", err) }()

	tz := in.TimeZone
	if tz == "" && in.Start.Location() != time.Local {
		tz = in.Start.Location().String()
	}
	ev := &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       &calendar.EventDateTime{DateTime: in.Start.Format(time.RFC3339), TimeZone: tz},
		End:         &calendar.EventDateTime{DateTime: in.End.Format(time.RFC3339), TimeZone: tz},
		Recurrence:  in.Recurrence,
	}

	created, err := c.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
	if err != nil {
		return nil, wrap("insert event", err)
	}
	return created, nil
}

func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) (err error) {
	defer func() { metrics.ObserveGCal("events.delete", err) }()

	if err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return wrap("delete event", err)
	}
	return nil
}

func entryFrom(item *calendar.CalendarListEntry) CalendarEntry {
	return CalendarEntry{
		ID:              item.Id,
		Summary:         item.Summary,
		Primary:         item.Primary,
		BackgroundColor: item.BackgroundColor,
		AccessRole:      item.AccessRole,
		TimeZone:        item.TimeZone,
	}
}

// wrap maps Google API status codes onto the package sentinels so handlers
// can answer with a matching HTTP status.
func wrap(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %s", op, ErrUnauthorized, gerr.Message)
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w: %s", op, ErrForbidden, gerr.Message)
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%s: %w: %s", op, ErrNotFound, gerr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// StartTime parses an event's start, handling all-day events.
func StartTime(ev *calendar.Event, loc *time.Location) (time.Time, bool) {
	if ev == nil || ev.Start == nil {
		return time.Time{}, false
	}
	return parseEventTime(ev.Start, loc)
}

func parseEventTime(dt *calendar.EventDateTime, loc *time.Location) (time.Time, bool) {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t.In(loc), true
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
