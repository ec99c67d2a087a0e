package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/calendar/v3"

	"github.com/pewcal/pewcal/internal/command"
	"github.com/pewcal/pewcal/internal/gcal"
	"github.com/pewcal/pewcal/internal/nlp"
)

// Action records one tool call the assistant made during a chat turn.
type Action struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
}

type toolOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type createEventArgs struct {
	Summary     string   `json:"summary"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	Duration    float64  `json:"duration"`
	Description string   `json:"description"`
	Recurrence  []string `json:"recurrence"`
}

type deleteEventsArgs struct {
	Query string `json:"query"`
	Date  string `json:"date"`
}

type queryCalendarArgs struct {
	Type      string `json:"type"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// toolRunner executes assistant tool calls against one calendar.
type toolRunner struct {
	exec       *command.Executor
	calendarID string
	now        time.Time
}

func (r toolRunner) run(ctx context.Context, call openai.ToolCall) (openai.ToolOutput, Action) {
	action := Action{Tool: call.Function.Name, Arguments: json.RawMessage(call.Function.Arguments)}
	if !json.Valid(action.Arguments) {
		action.Arguments = nil
	}

	msg, err := r.dispatch(ctx, call.Function.Name, call.Function.Arguments)
	out := toolOutput{Success: err == nil, Message: msg}
	if err != nil {
		out.Error = err.Error()
	}
	action.Success, action.Message = out.Success, msg
	if err != nil {
		action.Message = err.Error()
	}

	data, _ := json.Marshal(out)
	return openai.ToolOutput{ToolCallID: call.ID, Output: string(data)}, action
}

func (r toolRunner) dispatch(ctx context.Context, name, arguments string) (string, error) {
	switch name {
	case "create_event":
		var args createEventArgs
		if err := decodeArgs(arguments, &args); err != nil {
			return "", err
		}
		return r.createEvent(ctx, args)
	case "delete_events":
		var args deleteEventsArgs
		if err := decodeArgs(arguments, &args); err != nil {
			return "", err
		}
		return r.deleteEvents(ctx, args)
	case "query_calendar":
		var args queryCalendarArgs
		if err := decodeArgs(arguments, &args); err != nil {
			return "", err
		}
		return r.queryCalendar(ctx, args)
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

func decodeArgs(arguments string, v any) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (r toolRunner) resolveDay(phrase string) (time.Time, error) {
	if strings.TrimSpace(phrase) == "" {
		return nlp.StartOfDay(r.now), nil
	}
	day, ok := nlp.ExtractDate(phrase, r.now)
	if !ok {
		return time.Time{}, fmt.Errorf("could not understand the date %q", phrase)
	}
	return day, nil
}

func (r toolRunner) createEvent(ctx context.Context, args createEventArgs) (string, error) {
	if strings.TrimSpace(args.Summary) == "" {
		return "", fmt.Errorf("summary is required")
	}
	day, err := r.resolveDay(args.Date)
	if err != nil {
		return "", err
	}
	hour, minute, ok := nlp.ParseTimeOfDay(args.Time)
	if !ok {
		hour, minute = nlp.DefaultHour, 0
	}
	duration := time.Hour
	if args.Duration > 0 {
		duration = time.Duration(args.Duration * float64(time.Hour))
	}
	span := nlp.NewTimeRange(day, hour, minute, duration)

	res, err := r.exec.Execute(ctx, r.calendarID, command.Command{
		Type: command.TypeCreate,
		Params: command.Params{
			Title:       strings.TrimSpace(args.Summary),
			StartTime:   span.Start,
			EndTime:     span.End,
			Description: args.Description,
			Recurrence:  args.Recurrence,
		},
	})
	if err != nil {
		return "", err
	}
	return res.Message(), nil
}

func (r toolRunner) deleteEvents(ctx context.Context, args deleteEventsArgs) (string, error) {
	day, err := r.resolveDay(args.Date)
	if err != nil {
		return "", err
	}
	span := nlp.FullDayRange(day)
	res, err := r.exec.Execute(ctx, r.calendarID, command.Command{
		Type:   command.TypeDelete,
		Params: command.Params{Title: strings.TrimSpace(args.Query), StartTime: span.Start, EndTime: span.End},
	})
	if err != nil {
		return "", err
	}
	return res.Message(), nil
}

// resolveRange is resolveDay for queries, where "next week" spans the week.
func (r toolRunner) resolveRange(phrase string) (nlp.TimeRange, error) {
	if strings.TrimSpace(phrase) == "" {
		return nlp.FullDayRange(r.now), nil
	}
	span, ok := nlp.ExtractRange(phrase, r.now)
	if !ok {
		return nlp.TimeRange{}, fmt.Errorf("could not understand the date %q", phrase)
	}
	return span, nil
}

func (r toolRunner) queryCalendar(ctx context.Context, args queryCalendarArgs) (string, error) {
	first, err := r.resolveRange(args.StartDate)
	if err != nil {
		return "", err
	}
	last := first
	if args.EndDate != "" {
		if last, err = r.resolveRange(args.EndDate); err != nil {
			return "", err
		}
	}
	start, end := first.Start, first.End
	if last.Start.Before(start) {
		start = last.Start
	}
	if last.End.After(end) {
		end = last.End
	}

	res, err := r.exec.Execute(ctx, r.calendarID, command.Command{
		Type:   command.TypeQuery,
		Params: command.Params{StartTime: start, EndTime: end},
	})
	if err != nil {
		return "", err
	}

	switch args.Type {
	case "availability":
		return describeAvailability(res.Events, start.Location()), nil
	case "", "schedule":
		return res.Message(), nil
	default:
		return "", fmt.Errorf("unknown query type %q", args.Type)
	}
}

func describeAvailability(events []*calendar.Event, loc *time.Location) string {
	if len(events) == 0 {
		return "You're free for that whole period."
	}
	var b strings.Builder
	b.WriteString("You're busy at these times:")
	for _, ev := range events {
		start, ok := gcal.StartTime(ev, loc)
		if !ok {
			continue
		}
		b.WriteString("\n- ")
		if ev.Start.DateTime == "" {
			b.WriteString(start.Format("Mon Jan 2") + " (all day)")
			continue
		}
		b.WriteString(start.Format("Mon Jan 2 3:04 PM"))
		if ev.End != nil {
			if end, ok := gcal.StartTime(&calendar.Event{Start: ev.End}, loc); ok {
				b.WriteString(" - " + end.Format("3:04 PM"))
			}
		}
	}
	return b.String()
}
