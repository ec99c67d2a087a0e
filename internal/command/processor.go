package command

import (
	"context"
	"fmt"
	"time"

	"github.com/pewcal/pewcal/internal/metrics"
	"github.com/pewcal/pewcal/internal/nlp"
)

const helpMessage = "I can help you manage calendar events. Try:\n" +
	"- 'add team lunch tomorrow at noon'\n" +
	"- 'delete dentist on friday'\n" +
	"- 'clear my calendar on March 3'\n" +
	"- 'what do I have next week?'"

// Reply is the conversational answer to one chat message.
type Reply struct {
	Message         string  `json:"message"`
	Intent          string  `json:"intent"`
	CalendarUpdated bool    `json:"calendarUpdated"`
	Result          *Result `json:"result,omitempty"`
}

// Processor answers free-form chat messages using the rule-based parser.
type Processor struct {
	Executor *Executor
}

// Handle interprets text relative to now and applies it to calendarID.
func (p *Processor) Handle(ctx context.Context, calendarID, text string, now time.Time) (reply Reply, err error) {
	now = now.In(p.Executor.location())
	intent := nlp.DetectIntent(text)
	defer func() { metrics.ObserveCommand(intent.String(), "processor", err) }()

	reply.Intent = intent.String()
	if intent != nlp.IntentUnknown {
		if err := nlp.CheckDate(text, now); err != nil {
			reply.Message = ClarifyDate
			return reply, nil
		}
	}
	switch intent {
	case nlp.IntentDelete:
		return p.delete(ctx, calendarID, text, now, reply)
	case nlp.IntentCreate:
		return p.create(ctx, calendarID, text, now, reply)
	case nlp.IntentUpdate:
		reply.Message = "Updating events is coming soon. For now, delete the event and add it again."
		return reply, nil
	case nlp.IntentQuery:
		return p.query(ctx, calendarID, text, now, reply)
	default:
		reply.Message = helpMessage
		return reply, nil
	}
}

func (p *Processor) delete(ctx context.Context, calendarID, text string, now time.Time, reply Reply) (Reply, error) {
	target := nlp.ExtractDeleteTarget(text, now)
	if !target.HasDate && target.Title == "" {
		reply.Message = ClarifyDelete
		return reply, nil
	}

	res, err := p.Executor.Execute(ctx, calendarID, Command{
		Type:   TypeDelete,
		Params: Params{Title: target.Title, StartTime: target.Start, EndTime: target.End},
	})
	if err != nil {
		return reply, err
	}
	reply.Result = &res
	reply.CalendarUpdated = res.DeletedCount > 0

	day := target.Start.Format("Monday, January 2")
	switch {
	case res.TotalEvents == 0 && target.Title != "" && target.HasDate:
		reply.Message = fmt.Sprintf("I couldn't find any events matching %q on %s.", target.Title, day)
	case res.TotalEvents == 0 && target.Title != "":
		reply.Message = fmt.Sprintf("I couldn't find any events matching %q.", target.Title)
	case res.TotalEvents == 0:
		reply.Message = fmt.Sprintf("You don't have any events on %s.", day)
	case target.Title != "":
		reply.Message = fmt.Sprintf("Deleted %d event(s) matching %q.", res.DeletedCount, target.Title)
	default:
		reply.Message = fmt.Sprintf("I've removed %d event(s) from %s.", res.DeletedCount, day)
	}
	if failed := res.TotalEvents - res.DeletedCount; failed > 0 && res.TotalEvents > 0 {
		reply.Message += fmt.Sprintf(" %d could not be deleted.", failed)
	}
	return reply, nil
}

func (p *Processor) create(ctx context.Context, calendarID, text string, now time.Time, reply Reply) (Reply, error) {
	d := nlp.ExtractEventDetails(text, now)
	res, err := p.Executor.Execute(ctx, calendarID, Command{
		Type:   TypeCreate,
		Params: Params{Title: d.Title, StartTime: d.Start, EndTime: d.End},
	})
	if err != nil {
		return reply, err
	}
	reply.Result = &res
	reply.CalendarUpdated = true
	reply.Message = fmt.Sprintf("I've added %q to your calendar for %s.", d.Title, d.Start.Format("Mon, Jan 2 at 3:04 PM"))
	return reply, nil
}

func (p *Processor) query(ctx context.Context, calendarID, text string, now time.Time, reply Reply) (Reply, error) {
	cmd := Command{Type: TypeQuery, Params: Params{StartTime: now, EndTime: now.Add(defaultQueryRange)}}
	if r, ok := nlp.ExtractRange(text, now); ok {
		cmd.Params.StartTime, cmd.Params.EndTime = r.Start, r.End
	}
	res, err := p.Executor.Execute(ctx, calendarID, cmd)
	if err != nil {
		return reply, err
	}
	reply.Result = &res
	reply.Message = res.Message()
	return reply, nil
}
