package command

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/api/calendar/v3"

	"github.com/pewcal/pewcal/internal/gcal"
	"github.com/pewcal/pewcal/internal/gcal/gcaltest"
)

var (
	testLoc = time.FixedZone("CST", -6*60*60)
	// Wednesday.
	testNow = time.Date(2024, 1, 10, 10, 0, 0, 0, testLoc)
)

func newCalendar(t *testing.T) (*gcal.Client, *gcaltest.Server) {
	t.Helper()
	srv := gcaltest.NewServer()
	t.Cleanup(srv.Close)
	c, err := gcal.NewWithHTTPClient(context.Background(), http.DefaultClient, srv.Endpoint())
	require.NoError(t, err)
	return c, srv
}

func newExecutor(svc gcal.Service) *Executor {
	return &Executor{Calendar: svc, Location: testLoc, Now: func() time.Time { return testNow }}
}

func timed(summary string, start time.Time, d time.Duration) *calendar.Event {
	return &calendar.Event{
		Summary: summary,
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: start.Add(d).Format(time.RFC3339)},
	}
}

func at(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, testLoc)
}

// fakeModel answers every request with a canned reply.
type fakeModel struct {
	reply    string
	err      error
	calls    int
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (m *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	m.messages = msgs
	for _, o := range options {
		o(&m.opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// flakyCalendar fails deletes of the listed event ids.
type flakyCalendar struct {
	gcal.Service
	failIDs map[string]bool
}

func (f flakyCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if f.failIDs[eventID] {
		return gcal.ErrForbidden
	}
	return f.Service.DeleteEvent(ctx, calendarID, eventID)
}
