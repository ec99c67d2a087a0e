package command

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/calendar/v3"

	"github.com/pewcal/pewcal/internal/gcal"
	"github.com/pewcal/pewcal/internal/logger"
)

const (
	deleteConcurrency = 4
	defaultQueryRange = 7 * 24 * time.Hour
	defaultDeleteSpan = 24 * time.Hour
)

// Executor runs commands against one user's Google Calendar.
type Executor struct {
	Calendar gcal.Service
	Location *time.Location
	Logger   logger.Logger
	Now      func() time.Time
}

// Result is what a command did.
type Result struct {
	Type         Type              `json:"type"`
	Event        *calendar.Event   `json:"event,omitempty"`
	Events       []*calendar.Event `json:"events,omitempty"`
	DeletedCount int               `json:"deletedCount"`
	TotalEvents  int               `json:"totalEvents"`

	loc *time.Location
}

func (e *Executor) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now().In(e.location())
	}
	return time.Now().In(e.location())
}

func (e *Executor) log() logger.Logger {
	if e.Logger == nil {
		return logger.NewNopLogger()
	}
	return e.Logger
}

// Execute validates cmd and runs it on calendarID.
func (e *Executor) Execute(ctx context.Context, calendarID string, cmd Command) (Result, error) {
	if err := cmd.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{Type: cmd.Type, loc: e.location()}

	switch cmd.Type {
	case TypeCreate:
		end := cmd.Params.EndTime
		if end.IsZero() {
			end = cmd.Params.StartTime.Add(time.Hour)
		}
		ev, err := e.Calendar.InsertEvent(ctx, calendarID, gcal.EventInput{
			Summary:     cmd.Params.Title,
			Description: cmd.Params.Description,
			Start:       cmd.Params.StartTime.In(e.location()),
			End:         end.In(e.location()),
			Recurrence:  cmd.Params.Recurrence,
			TimeZone:    e.location().String(),
		})
		if err != nil {
			return res, fmt.Errorf("create event: %w", err)
		}
		res.Event = ev
		res.TotalEvents = 1

	case TypeDelete:
		start := cmd.Params.StartTime
		if start.IsZero() {
			start = e.now()
		}
		end := cmd.Params.EndTime
		if end.IsZero() {
			end = start.Add(defaultDeleteSpan)
		}
		events, err := e.Calendar.ListEvents(ctx, calendarID, gcal.ListOptions{
			TimeMin: start, TimeMax: end, Query: cmd.Params.Title,
		})
		if err != nil {
			return res, fmt.Errorf("find events to delete: %w", err)
		}
		res.TotalEvents = len(events)
		res.DeletedCount = e.deleteAll(ctx, calendarID, events)

	case TypeQuery:
		start := cmd.Params.StartTime
		if start.IsZero() {
			start = e.now()
		}
		end := cmd.Params.EndTime
		if end.IsZero() {
			end = start.Add(defaultQueryRange)
		}
		events, err := e.Calendar.ListEvents(ctx, calendarID, gcal.ListOptions{
			TimeMin: start, TimeMax: end, Query: cmd.Params.Title,
		})
		if err != nil {
			return res, fmt.Errorf("query events: %w", err)
		}
		res.Events = events
		res.TotalEvents = len(events)
	}
	return res, nil
}

// deleteAll removes events concurrently and returns how many succeeded.
// Individual failures are logged and counted, never returned.
func (e *Executor) deleteAll(ctx context.Context, calendarID string, events []*calendar.Event) int {
	var deleted atomic.Int64
	var g errgroup.Group
	g.SetLimit(deleteConcurrency)
	for _, ev := range events {
		g.Go(func() error {
			if err := e.Calendar.DeleteEvent(ctx, calendarID, ev.Id); err != nil {
				e.log().Warn("delete event failed", "event_id", ev.Id, "error", err.Error())
				return nil
			}
			deleted.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(deleted.Load())
}

// Message renders the result as a chat reply.
func (r Result) Message() string {
	switch r.Type {
	case TypeCreate:
		if r.Event == nil {
			return "Created event."
		}
		return "Created event: " + r.Event.Summary
	case TypeDelete:
		if r.TotalEvents == 0 {
			return "No matching events found to delete."
		}
		msg := fmt.Sprintf("Deleted %d event(s)", r.DeletedCount)
		if failed := r.TotalEvents - r.DeletedCount; failed > 0 {
			msg += fmt.Sprintf("; %d could not be deleted", failed)
		}
		return msg + "."
	case TypeQuery:
		if len(r.Events) == 0 {
			return "You have no events in that range."
		}
		var b strings.Builder
		b.WriteString("Here are your events:")
		for _, ev := range r.Events {
			b.WriteString("\n- ")
			b.WriteString(describeEvent(ev, r.location()))
		}
		return b.String()
	default:
		return ""
	}
}

func (r Result) location() *time.Location {
	if r.loc == nil {
		return time.UTC
	}
	return r.loc
}

func describeEvent(ev *calendar.Event, loc *time.Location) string {
	title := ev.Summary
	if title == "" {
		title = "(untitled)"
	}
	start, ok := gcal.StartTime(ev, loc)
	if !ok {
		return title
	}
	if ev.Start.DateTime == "" {
		return fmt.Sprintf("%s (all day, %s)", title, start.Format("Mon Jan 2"))
	}
	return fmt.Sprintf("%s at %s", title, start.Format("Mon Jan 2 3:04 PM"))
}
