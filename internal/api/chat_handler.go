package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/pewcal/pewcal/internal/assistant"
	"github.com/pewcal/pewcal/internal/command"
	"github.com/pewcal/pewcal/internal/gcal"
	httperrors "github.com/pewcal/pewcal/internal/http/errors"
	"github.com/pewcal/pewcal/internal/nlp"
)

const (
	notUnderstood    = "I couldn't understand that. Try something like 'add lunch tomorrow at noon' or 'what do I have on Friday?'"
	maxMessageLength = 2000
	wsReadLimit      = 8192
	wsWriteTimeout   = 10 * time.Second
)

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId"`
}

func (h *Handler) readMessage(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var body chatRequest
	if err := decodeJSON(w, r, &body); err != nil {
		httperrors.BadRequest(w, r, err, "Invalid request body")
		return body, false
	}
	body.Message = strings.TrimSpace(body.Message)
	if body.Message == "" {
		httperrors.BadRequest(w, r, nil, "Message is required")
		return body, false
	}
	if len(body.Message) > maxMessageLength {
		httperrors.BadRequest(w, r, nil, "Message is too long")
		return body, false
	}
	return body, true
}

func noCalendarSelected(w http.ResponseWriter) {
	httperrors.JSON(w, http.StatusBadRequest, map[string]string{
		"message": "Please select a calendar first.",
		"error":   "No calendar selected",
	})
}

// CalendarChat answers a chat message about a stored calendar with the
// conversational processor.
func (h *Handler) CalendarChat(w http.ResponseWriter, r *http.Request) {
	access, role, ok := h.loadAccess(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	body, ok := h.readMessage(w, r)
	if !ok {
		return
	}
	if !role.CanEdit() {
		switch nlp.DetectIntent(body.Message) {
		case nlp.IntentCreate, nlp.IntentDelete, nlp.IntentUpdate:
			httperrors.Status(w, r, http.StatusForbidden, "You have view-only access to this calendar")
			return
		}
	}
	svc, ok := h.calendarService(w, r)
	if !ok {
		return
	}

	p := &command.Processor{Executor: h.executor(svc)}
	reply, err := p.Handle(r.Context(), access.Calendar.GoogleCalendarID, body.Message, h.clock())
	if err != nil {
		httperrors.Upstream(w, r, err, "Something went wrong. Please try again.")
		return
	}
	httperrors.JSON(w, http.StatusOK, reply)
}

type commandReply struct {
	Message string           `json:"message"`
	Command *command.Command `json:"command"`
	Result  *command.Result  `json:"result,omitempty"`
}

// runCommand parses text and executes it. An unparseable message is not an
// error; it yields a hint and a nil command.
func (h *Handler) runCommand(ctx context.Context, svc gcal.Service, calendarID, text string) (commandReply, error) {
	cmd, err := h.parser.Parse(ctx, text, h.clock())
	if errors.Is(err, command.ErrAmbiguousDelete) {
		return commandReply{Message: command.ClarifyDelete}, nil
	}
	if errors.Is(err, nlp.ErrInvalidDate) {
		return commandReply{Message: command.ClarifyDate}, nil
	}
	if errors.Is(err, command.ErrInvalidCommand) {
		return commandReply{Message: notUnderstood}, nil
	}
	if err != nil {
		return commandReply{}, err
	}
	res, err := h.executor(svc).Execute(ctx, calendarID, cmd)
	if err != nil {
		return commandReply{Command: &cmd}, err
	}
	return commandReply{Message: res.Message(), Command: &cmd, Result: &res}, nil
}

// Chat runs one structured command against the selected calendar.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readMessage(w, r)
	if !ok {
		return
	}
	calendarID := h.selectedCalendar(r, "")
	if calendarID == "" {
		noCalendarSelected(w)
		return
	}
	svc, ok := h.calendarService(w, r)
	if !ok {
		return
	}
	reply, err := h.runCommand(r.Context(), svc, calendarID, body.Message)
	if err != nil {
		httperrors.Upstream(w, r, err, "Something went wrong. Please try again.")
		return
	}
	httperrors.JSON(w, http.StatusOK, reply)
}

// AssistantChat sends the message to the OpenAI assistant, which calls back
// into the calendar through its tools.
func (h *Handler) AssistantChat(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		httperrors.Status(w, r, http.StatusServiceUnavailable, "The assistant is not configured")
		return
	}
	body, ok := h.readMessage(w, r)
	if !ok {
		return
	}
	calendarID := h.selectedCalendar(r, "")
	if calendarID == "" {
		noCalendarSelected(w)
		return
	}
	svc, ok := h.calendarService(w, r)
	if !ok {
		return
	}

	resp, err := h.assistant.Chat(r.Context(), assistant.ChatRequest{
		Message:    body.Message,
		ThreadID:   body.ThreadID,
		CalendarID: calendarID,
		Calendar:   svc,
		Now:        h.clock(),
		Location:   h.loc,
	})
	if err != nil {
		httperrors.InternalError(w, r, err, "I had trouble processing your request. Please try again.")
		return
	}
	httperrors.JSON(w, http.StatusOK, map[string]any{
		"message":         resp.Message,
		"threadId":        resp.ThreadID,
		"actions":         resp.Actions,
		"calendarUpdated": resp.CalendarUpdated(),
	})
}

// ChatSocket upgrades to a websocket. Every text frame is run as a command
// and answered with one JSON frame.
func (h *Handler) ChatSocket(w http.ResponseWriter, r *http.Request) {
	calendarID := h.selectedCalendar(r, "")
	if calendarID == "" {
		noCalendarSelected(w)
		return
	}
	svc, ok := h.calendarService(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)
	log := h.logger.With("request_id", middleware.GetReqID(r.Context()))

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket closed", "error", err.Error())
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		text := strings.TrimSpace(string(data))
		var reply commandReply
		switch {
		case text == "":
			reply = commandReply{Message: "Message is required"}
		case len(text) > maxMessageLength:
			reply = commandReply{Message: "Message is too long"}
		default:
			reply, err = h.runCommand(r.Context(), svc, calendarID, text)
			if err != nil {
				log.Error("websocket command failed", err)
				reply = commandReply{Message: "Something went wrong. Please try again.", Command: reply.Command}
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			log.Debug("websocket write failed", "error", err.Error())
			return
		}
	}
}

