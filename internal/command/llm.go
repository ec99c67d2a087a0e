package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/pewcal/pewcal/internal/nlp"
)

var fenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// StripCodeFences removes a surrounding markdown code fence, if any.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

const commandPrompt = `You are a calendar command parser. Convert natural language into structured calendar commands.
Respond with a single JSON object with "type" and "params" fields.

- type is one of "CREATE", "DELETE" or "QUERY".
- params may contain title, startTime, endTime, description and recurrence (an array of RRULE strings).
- startTime and endTime are RFC3339 timestamps with the user's UTC offset.
- For CREATE, endTime is one hour after startTime unless the user gives a duration.
- Capitalize titles properly.
- Interpret relative dates (tomorrow, next week, this friday) from the current time.

Current time: %s (%s)

Example for "add bible study tomorrow at 6pm" when the current time is 2024-01-23T10:00:00-06:00:
{"type":"CREATE","params":{"title":"Bible Study","startTime":"2024-01-24T18:00:00-06:00","endTime":"2024-01-24T19:00:00-06:00"}}`

// LLMParser asks a language model to produce the command JSON.
type LLMParser struct {
	Model llms.Model
}

type llmCommand struct {
	Type   string `json:"type"`
	Params struct {
		Title       string   `json:"title"`
		StartTime   string   `json:"startTime"`
		EndTime     string   `json:"endTime"`
		Description string   `json:"description"`
		Recurrence  []string `json:"recurrence"`
	} `json:"params"`
}

func (p LLMParser) Parse(ctx context.Context, text string, now time.Time) (Command, error) {
	if p.Model == nil {
		return Command{}, errors.New("llm parser: no model configured")
	}
	content, err := generate(ctx, p.Model,
		fmt.Sprintf(commandPrompt, now.Format(time.RFC3339), now.Location()), text)
	if err != nil {
		return Command{}, err
	}

	var raw llmCommand
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Command{}, fmt.Errorf("llm parser: decode response: %w", err)
	}

	cmd := Command{
		Type: Type(strings.ToUpper(strings.TrimSpace(raw.Type))),
		Params: Params{
			Title:       strings.TrimSpace(raw.Params.Title),
			Description: raw.Params.Description,
			Recurrence:  raw.Params.Recurrence,
		},
	}
	loc := now.Location()
	if start, ok := parseTimestamp(raw.Params.StartTime, loc); ok {
		cmd.Params.StartTime = start
	}
	if end, ok := parseTimestamp(raw.Params.EndTime, loc); ok {
		cmd.Params.EndTime = end
	}
	if cmd.Type == TypeCreate && !cmd.Params.StartTime.IsZero() && !cmd.Params.EndTime.After(cmd.Params.StartTime) {
		cmd.Params.EndTime = cmd.Params.StartTime.Add(time.Hour)
	}
	return cmd, cmd.Validate()
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func generate(ctx context.Context, model llms.Model, system, user string) (string, error) {
	resp, err := model.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, system),
			llms.TextParts(llms.ChatMessageTypeHuman, user),
		},
		llms.WithJSONMode(),
		llms.WithTemperature(0),
	)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("llm generate: empty response")
	}
	return StripCodeFences(resp.Choices[0].Content), nil
}

const quickEventPrompt = `You are a calendar event parser. Extract event details from the user's request and answer with a JSON object with these fields:
- title: the event title
- date: the event date as YYYY-MM-DD
- time: optional 24-hour start time as HH:mm
- duration: optional duration in minutes

Current time: %s (%s)`

// QuickEvent is the result of the quick-add parser.
type QuickEvent struct {
	Title    string    `json:"title"`
	Date     string    `json:"date"`
	Time     string    `json:"time,omitempty"`
	Duration int       `json:"duration"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Source   string    `json:"source"`
}

// ParseQuickEvent extracts a single event from text. It asks model first and
// uses the rule-based extractor when the model is nil, fails, or answers with
// something unusable.
func ParseQuickEvent(ctx context.Context, model llms.Model, text string, now time.Time) QuickEvent {
	if model != nil {
		if ev, err := quickEventFromLLM(ctx, model, text, now); err == nil {
			return ev
		}
	}

	d := nlp.ExtractEventDetails(text, now)
	ev := QuickEvent{
		Title:    d.Title,
		Date:     d.Start.Format("2006-01-02"),
		Duration: int(d.End.Sub(d.Start).Minutes()),
		Start:    d.Start,
		End:      d.End,
		Source:   "rules",
	}
	if d.HasTime {
		ev.Time = d.Start.Format("15:04")
	}
	return ev
}

func quickEventFromLLM(ctx context.Context, model llms.Model, text string, now time.Time) (QuickEvent, error) {
	content, err := generate(ctx, model, fmt.Sprintf(quickEventPrompt, now.Format(time.RFC3339), now.Location()), text)
	if err != nil {
		return QuickEvent{}, err
	}
	var raw struct {
		Title    string          `json:"title"`
		Date     string          `json:"date"`
		Time     string          `json:"time"`
		Duration json.RawMessage `json:"duration"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return QuickEvent{}, fmt.Errorf("quick event: decode: %w", err)
	}

	loc := now.Location()
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(raw.Date), loc)
	if err != nil {
		return QuickEvent{}, fmt.Errorf("quick event: date %q: %w", raw.Date, err)
	}
	hour, minute := nlp.DefaultHour, 0
	if raw.Time != "" {
		t, err := time.Parse("15:04", strings.TrimSpace(raw.Time))
		if err != nil {
			return QuickEvent{}, fmt.Errorf("quick event: time %q: %w", raw.Time, err)
		}
		hour, minute = t.Hour(), t.Minute()
	}
	minutes := durationMinutes(raw.Duration)
	if minutes <= 0 {
		minutes = 60
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = nlp.DefaultTitle
	}
	r := nlp.NewTimeRange(day, hour, minute, time.Duration(minutes)*time.Minute)
	return QuickEvent{
		Title:    title,
		Date:     r.Start.Format("2006-01-02"),
		Time:     strings.TrimSpace(raw.Time),
		Duration: minutes,
		Start:    r.Start,
		End:      r.End,
		Source:   "llm",
	}, nil
}

// durationMinutes accepts either a number of minutes or a phrase such as
// "1 hour".
func durationMinutes(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, ok := nlp.ParseDuration("for " + s); ok {
			return int(d.Minutes())
		}
	}
	return 0
}
