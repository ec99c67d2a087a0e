package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorDelete(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantMessage string
		wantLeft    int
	}{
		{
			name:        "ambiguous",
			text:        "delete everything",
			wantMessage: "Which day would you like me to clear?",
			wantLeft:    3,
		},
		{
			name:        "clear a day",
			text:        "clear my calendar on Friday",
			wantMessage: "I've removed 2 event(s) from Friday, January 12.",
			wantLeft:    1,
		},
		{
			name:        "empty day",
			text:        "clear my calendar on Sunday",
			wantMessage: "You don't have any events on Sunday, January 14.",
			wantLeft:    3,
		},
		{
			name:        "by title on a day",
			text:        "cancel lunch on Friday",
			wantMessage: `Deleted 1 event(s) matching "lunch".`,
			wantLeft:    2,
		},
		{
			name:        "title not found on a day",
			text:        "delete dentist on Friday",
			wantMessage: `I couldn't find any events matching "dentist" on Friday, January 12.`,
			wantLeft:    3,
		},
		{
			name:        "title not found",
			text:        "delete dentist",
			wantMessage: `I couldn't find any events matching "dentist".`,
			wantLeft:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal, srv := newCalendar(t)
			srv.AddEvent("primary", timed("Standup", at(12, 9), 15*time.Minute))
			srv.AddEvent("primary", timed("Lunch", at(12, 12), time.Hour))
			srv.AddEvent("primary", timed("Brunch", at(13, 11), time.Hour))

			p := &Processor{Executor: newExecutor(cal)}
			reply, err := p.Handle(context.Background(), "primary", tt.text, testNow)
			require.NoError(t, err)

			assert.Equal(t, "delete", reply.Intent)
			assert.Equal(t, tt.wantMessage, reply.Message)
			assert.Equal(t, tt.wantLeft < 3, reply.CalendarUpdated)
			assert.Len(t, srv.Events("primary"), tt.wantLeft)
		})
	}
}

func TestProcessorCreate(t *testing.T) {
	cal, srv := newCalendar(t)
	p := &Processor{Executor: newExecutor(cal)}

	reply, err := p.Handle(context.Background(), "primary", "add lunch tomorrow at noon", testNow)
	require.NoError(t, err)

	assert.Equal(t, "create", reply.Intent)
	assert.True(t, reply.CalendarUpdated)
	assert.Equal(t, `I've added "lunch" to your calendar for Thu, Jan 11 at 12:00 PM.`, reply.Message)
	require.Len(t, srv.Events("primary"), 1)
	assert.Equal(t, "lunch", srv.Events("primary")[0].Summary)
}

func TestProcessorQuery(t *testing.T) {
	cal, srv := newCalendar(t)
	srv.AddEvent("primary", timed("Dentist", at(11, 15), time.Hour))
	srv.AddEvent("primary", timed("Gym", at(12, 7), time.Hour))
	p := &Processor{Executor: newExecutor(cal)}

	reply, err := p.Handle(context.Background(), "primary", "what do I have tomorrow?", testNow)
	require.NoError(t, err)
	assert.Equal(t, "query", reply.Intent)
	assert.False(t, reply.CalendarUpdated)
	assert.Equal(t, "Here are your events:\n- Dentist at Thu Jan 11 3:00 PM", reply.Message)

	reply, err = p.Handle(context.Background(), "primary", "show my agenda", testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, reply.Result.TotalEvents)
}

func TestProcessorQueryNextWeek(t *testing.T) {
	cal, srv := newCalendar(t)
	srv.AddEvent("primary", timed("Gym", at(12, 7), time.Hour))
	srv.AddEvent("primary", timed("Review", at(15, 9), time.Hour))
	srv.AddEvent("primary", timed("Offsite", at(19, 13), time.Hour))
	srv.AddEvent("primary", timed("Brunch", at(21, 11), time.Hour))
	srv.AddEvent("primary", timed("Later", at(22, 9), time.Hour))
	p := &Processor{Executor: newExecutor(cal)}

	reply, err := p.Handle(context.Background(), "primary", "what do I have next week?", testNow)
	require.NoError(t, err)
	require.NotNil(t, reply.Result)
	assert.Equal(t, 3, reply.Result.TotalEvents)
	assert.Contains(t, reply.Message, "Review")
	assert.Contains(t, reply.Message, "Brunch")
	assert.NotContains(t, reply.Message, "Gym")
	assert.NotContains(t, reply.Message, "Later")
}

func TestProcessorRejectsImpossibleDate(t *testing.T) {
	cal, srv := newCalendar(t)
	p := &Processor{Executor: newExecutor(cal)}

	for _, msg := range []string{"add review on 2024-02-30", "what do I have on april 31?", "delete gym on feb 30th"} {
		reply, err := p.Handle(context.Background(), "primary", msg, testNow)
		require.NoError(t, err)
		assert.Equal(t, ClarifyDate, reply.Message, msg)
		assert.False(t, reply.CalendarUpdated)
	}
	assert.Zero(t, srv.Requests())
	assert.Empty(t, srv.Events("primary"))
}

func TestProcessorUpdateAndUnknown(t *testing.T) {
	cal, srv := newCalendar(t)
	p := &Processor{Executor: newExecutor(cal)}

	reply, err := p.Handle(context.Background(), "primary", "move my dentist to 4pm", testNow)
	require.NoError(t, err)
	assert.Equal(t, "update", reply.Intent)
	assert.Contains(t, reply.Message, "coming soon")

	reply, err = p.Handle(context.Background(), "primary", "hello", testNow)
	require.NoError(t, err)
	assert.Equal(t, "unknown", reply.Intent)
	assert.Equal(t, helpMessage, reply.Message)
	assert.Zero(t, srv.Requests())
}

func TestProcessorUpstreamError(t *testing.T) {
	cal, srv := newCalendar(t)
	srv.FailNext(401)
	p := &Processor{Executor: newExecutor(cal)}

	_, err := p.Handle(context.Background(), "primary", "add gym tomorrow", testNow)
	assert.Error(t, err)
}
