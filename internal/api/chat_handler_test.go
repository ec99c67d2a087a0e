package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"github.com/pewcal/pewcal/internal/auth"
	"github.com/pewcal/pewcal/internal/command"
	"github.com/pewcal/pewcal/internal/store"
)

func TestChatRunsCommand(t *testing.T) {
	e := newEnv(t)

	rec := e.serve(t, e.h.Chat, http.MethodPost, "/api/chat", map[string]string{"message": "add lunch tomorrow at noon"}, selected("primary"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "Created event: lunch", body["message"])
	cmd := body["command"].(map[string]any)
	assert.Equal(t, "CREATE", cmd["type"])
	assert.Equal(t, "2024-01-11T12:00:00-06:00", cmd["params"].(map[string]any)["startTime"])

	events := e.google.Events("primary")
	require.Len(t, events, 1)
	assert.Equal(t, "lunch", events[0].Summary)
}

func TestChatEdgeCases(t *testing.T) {
	e := newEnv(t)

	rec := e.serve(t, e.h.Chat, http.MethodPost, "/api/chat", map[string]string{"message": "add lunch"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please select a calendar first.", decode(t, rec)["message"])

	rec = e.serve(t, e.h.Chat, http.MethodPost, "/api/chat", map[string]string{"message": " "}, selected("primary"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message is required", decode(t, rec)["error"])

	rec = e.serve(t, e.h.Chat, http.MethodPost, "/api/chat", `{"message":`, selected("primary"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.serve(t, e.h.Chat, http.MethodPost, "/api/chat", map[string]string{"message": "hello there"}, selected("primary"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, notUnderstood, body["message"])
	assert.Nil(t, body["command"])
	assert.Zero(t, e.google.Requests())

	e.google.FailNext(http.StatusUnauthorized)
	rec = e.serve(t, e.h.Chat, http.MethodPost, "/api/chat", map[string]string{"message": "what do I have tomorrow?"}, selected("primary"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatAmbiguousDeleteKeepsEvents(t *testing.T) {
	e := newEnv(t)
	e.google.AddEvent("primary", &calendar.Event{
		Summary: "Standup",
		Start:   &calendar.EventDateTime{DateTime: "2024-01-10T14:00:00-06:00"},
		End:     &calendar.EventDateTime{DateTime: "2024-01-10T14:30:00-06:00"},
	})

	for _, msg := range []string{"cancel", "clear everything", "delete all events"} {
		t.Run(msg, func(t *testing.T) {
			rec := e.serve(t, e.h.Chat, http.MethodPost, "/api/chat", map[string]string{"message": msg}, selected("primary"))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, "Which day would you like me to clear?", body["message"])
			assert.Nil(t, body["command"])
			assert.Len(t, e.google.Events("primary"), 1)
		})
	}
	assert.Zero(t, e.google.Requests())
}

func TestChatImpossibleDate(t *testing.T) {
	e := newEnv(t)

	rec := e.serve(t, e.h.Chat, http.MethodPost, "/api/chat", map[string]string{"message": "add review on 2024-02-30 at 3pm"}, selected("primary"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, command.ClarifyDate, body["message"])
	assert.Nil(t, body["command"])
	assert.Empty(t, e.google.Events("primary"))
}

func TestCalendarChat(t *testing.T) {
	e := newEnv(t)
	bob := e.mem.AddUser("bob@example.com", "Bob")
	_, err := e.st.CalendarShares.Upsert(context.Background(), e.calendar.ID, bob.ID, store.RoleViewer)
	require.NoError(t, err)
	e.google.AddEvent("primary", &calendar.Event{
		Summary: "Dentist",
		Start:   &calendar.EventDateTime{DateTime: "2024-01-11T15:00:00-06:00"},
		End:     &calendar.EventDateTime{DateTime: "2024-01-11T16:00:00-06:00"},
	})
	chat := func(user *store.User, message string) *httptest.ResponseRecorder {
		return e.serve(t, e.h.CalendarChat, http.MethodPost, "/api/calendar/x/chat",
			map[string]string{"message": message}, as(user), param("id", e.calendar.ID))
	}

	rec := chat(e.owner, "delete everything")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Which day would you like me to clear?", decode(t, rec)["message"])

	rec = chat(bob, "what do I have tomorrow?")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "query", body["intent"])
	assert.Equal(t, "Here are your events:\n- Dentist at Thu Jan 11 3:00 PM", body["message"])

	rec = chat(bob, "cancel dentist tomorrow")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Len(t, e.google.Events("primary"), 1)

	rec = chat(e.owner, "cancel dentist tomorrow")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, `Deleted 1 event(s) matching "dentist".`, body["message"])
	assert.Equal(t, true, body["calendarUpdated"])
	assert.Empty(t, e.google.Events("primary"))
}

func TestAssistantChat(t *testing.T) {
	e := newEnv(t)
	e.ai.reply = "You have nothing planned tomorrow."

	rec := e.serve(t, e.h.AssistantChat, http.MethodPost, "/api/calendar/chat", map[string]string{"message": "what's tomorrow?"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please select a calendar first.", decode(t, rec)["message"])

	rec = e.serve(t, e.h.AssistantChat, http.MethodPost, "/api/calendar/chat", map[string]string{"message": "what's tomorrow?"}, selected("primary"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "You have nothing planned tomorrow.", body["message"])
	assert.Equal(t, "thread_1", body["threadId"])
	assert.Equal(t, false, body["calendarUpdated"])

	rec = e.serve(t, e.h.AssistantChat, http.MethodPost, "/api/calendar/chat",
		map[string]string{"message": "and friday?", "threadId": "thread_1"}, selected("primary"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, e.ai.threads)
}

func TestAssistantDisabled(t *testing.T) {
	e := newEnv(t)
	e.h.assistant = nil
	for name, handler := range map[string]http.HandlerFunc{
		"chat":   e.h.AssistantChat,
		"create": e.h.CreateAssistant,
		"files":  e.h.ListFiles,
		"upload": e.h.UploadFile,
	} {
		t.Run(name, func(t *testing.T) {
			rec := e.serve(t, handler, http.MethodPost, "/", map[string]string{"message": "hi"}, selected("primary"))
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}
}

func TestChatSocket(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithTokenSource(r.Context(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}))
		e.h.ChatSocket(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)

	rec := httptest.NewRecorder()
	require.NoError(t, e.sm.Set(rec, auth.CookieGoogleCalendarID, "primary"))
	header := http.Header{}
	for _, c := range rec.Result().Cookies() {
		header.Add("Cookie", c.Name+"="+c.Value)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("add gym tomorrow at 6pm")))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "Created event: gym", reply["message"])
	assert.Equal(t, "CREATE", reply["command"].(map[string]any)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("gibberish")))
	reply = nil
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, notUnderstood, reply["message"])
	assert.Nil(t, reply["command"])

	require.Len(t, e.google.Events("primary"), 1)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
}

func TestChatSocketRequiresCalendar(t *testing.T) {
	e := newEnv(t)
	rec := e.serve(t, e.h.ChatSocket, http.MethodGet, "/api/chat/ws", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
