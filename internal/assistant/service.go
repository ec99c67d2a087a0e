// Package assistant drives the OpenAI Assistants API for calendar chat.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/pewcal/pewcal/internal/command"
	"github.com/pewcal/pewcal/internal/gcal"
	"github.com/pewcal/pewcal/internal/logger"
	"github.com/pewcal/pewcal/internal/metrics"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultRunTimeout   = 60 * time.Second
	genericName         = "Chat Assistant"

	runStatusIncomplete openai.RunStatus = "incomplete"
)

var (
	// ErrRunFailed is returned when a run ends in failed, cancelled or expired.
	ErrRunFailed = errors.New("assistant run did not complete")
	// ErrNoReply is returned when a completed run left no assistant message.
	ErrNoReply = errors.New("assistant returned no reply")
)

// API is the subset of the OpenAI client the service uses. *openai.Client
// satisfies it.
type API interface {
	CreateAssistant(ctx context.Context, request openai.AssistantRequest) (openai.Assistant, error)
	RetrieveAssistant(ctx context.Context, assistantID string) (openai.Assistant, error)
	ListAssistants(ctx context.Context, limit *int, order *string, after *string, before *string) (openai.AssistantsList, error)
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID string, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
	ListFiles(ctx context.Context) (openai.FilesList, error)
	CreateFileBytes(ctx context.Context, request openai.FileBytesRequest) (openai.File, error)
}

// Service runs calendar chats on a lazily resolved assistant.
type Service struct {
	api          API
	def          Definition
	configuredID string
	logger       logger.Logger

	mu sync.Mutex
	id string

	pollInterval time.Duration
	runTimeout   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithPollInterval overrides how often a run is polled.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.pollInterval = d }
}

// WithRunTimeout overrides how long a run may take.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) { s.runTimeout = d }
}

// NewService builds a Service. assistantID may be empty, in which case the
// assistant is looked up by name or created on first use.
func NewService(api API, def Definition, assistantID string, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Service{
		api:          api,
		def:          def,
		configuredID: assistantID,
		logger:       log,
		pollInterval: defaultPollInterval,
		runTimeout:   defaultRunTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure returns the assistant id, resolving it on the first call.
func (s *Service) Ensure(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" {
		return s.id, nil
	}

	if s.configuredID != "" {
		a, err := s.api.RetrieveAssistant(ctx, s.configuredID)
		if err == nil {
			s.id = a.ID
			return s.id, nil
		}
		s.logger.Warn("configured assistant not found, looking up by name", "assistant_id", s.configuredID, "error", err.Error())
	}

	limit, order := 100, "desc"
	list, err := s.api.ListAssistants(ctx, &limit, &order, nil, nil)
	if err != nil {
		return "", fmt.Errorf("list assistants: %w", err)
	}
	for _, a := range list.Assistants {
		if a.Name != nil && *a.Name == s.def.Name {
			s.id = a.ID
			return s.id, nil
		}
	}

	a, err := s.api.CreateAssistant(ctx, s.def.request())
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	s.logger.Info("created assistant", "assistant_id", a.ID, "name", s.def.Name)
	s.id = a.ID
	return s.id, nil
}

// ChatRequest is one user turn.
type ChatRequest struct {
	Message    string
	ThreadID   string
	CalendarID string
	Calendar   gcal.Service
	Now        time.Time
	Location   *time.Location
}

// ChatResponse is the assistant's answer to one turn.
type ChatResponse struct {
	Message  string   `json:"message"`
	ThreadID string   `json:"threadId"`
	Actions  []Action `json:"actions,omitempty"`
}

// CalendarUpdated reports whether a successful tool call changed the calendar.
func (r ChatResponse) CalendarUpdated() bool {
	for _, a := range r.Actions {
		if a.Success && a.Tool != "query_calendar" {
			return true
		}
	}
	return false
}

// Chat posts the message to a thread, runs the assistant and executes any
// tool calls it requests.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	assistantID, err := s.Ensure(ctx)
	if err != nil {
		return ChatResponse{}, err
	}

	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	threadID := req.ThreadID
	if threadID == "" {
		thread, err := s.api.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return ChatResponse{}, fmt.Errorf("create thread: %w", err)
		}
		threadID = thread.ID
	}
	resp := ChatResponse{ThreadID: threadID}

	content := fmt.Sprintf("Current date: %s (%s)\n\n%s", now.Format("Monday, January 2, 2006 3:04 PM"), loc, req.Message)
	if _, err := s.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: content,
	}); err != nil {
		return resp, fmt.Errorf("add message: %w", err)
	}

	run, err := s.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return resp, fmt.Errorf("create run: %w", err)
	}

	runner := toolRunner{
		exec: &command.Executor{
			Calendar: req.Calendar,
			Location: loc,
			Logger:   s.logger,
			Now:      func() time.Time { return now },
		},
		calendarID: req.CalendarID,
		now:        now,
	}
	run, resp.Actions, err = s.waitForRun(ctx, threadID, run, runner)
	if err != nil {
		return resp, err
	}

	resp.Message, err = s.lastReply(ctx, threadID, run.ID)
	return resp, err
}

func (s *Service) waitForRun(ctx context.Context, threadID string, run openai.Run, runner toolRunner) (_ openai.Run, actions []Action, err error) {
	start := time.Now()
	defer func() {
		status := string(run.Status)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		metrics.ObserveAssistantRun(status, start)
	}()

	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case openai.RunStatusCompleted:
			return run, actions, nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired, runStatusIncomplete:
			if run.LastError != nil {
				return run, actions, fmt.Errorf("%w: %s: %s", ErrRunFailed, run.Status, run.LastError.Message)
			}
			return run, actions, fmt.Errorf("%w: %s", ErrRunFailed, run.Status)
		case openai.RunStatusRequiresAction:
			if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
				return run, actions, fmt.Errorf("%w: requires_action without tool calls", ErrRunFailed)
			}
			calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
			outputs := make([]openai.ToolOutput, 0, len(calls))
			for _, call := range calls {
				out, action := runner.run(ctx, call)
				if !action.Success {
					s.logger.Warn("assistant tool call failed", "tool", action.Tool, "error", action.Message)
				}
				outputs = append(outputs, out)
				actions = append(actions, action)
			}
			run, err = s.api.SubmitToolOutputs(ctx, threadID, run.ID, openai.SubmitToolOutputsRequest{ToolOutputs: outputs})
			if err != nil {
				return run, actions, fmt.Errorf("submit tool outputs: %w", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return run, actions, fmt.Errorf("wait for run %s: %w", run.ID, ctx.Err())
		case <-ticker.C:
		}
		next, err := s.api.RetrieveRun(ctx, threadID, run.ID)
		if err != nil {
			return run, actions, fmt.Errorf("retrieve run: %w", err)
		}
		run = next
	}
}

func (s *Service) lastReply(ctx context.Context, threadID, runID string) (string, error) {
	limit, order := 10, "desc"
	list, err := s.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	for _, msg := range list.Messages {
		if msg.Role != string(openai.ThreadMessageRoleAssistant) {
			continue
		}
		for _, c := range msg.Content {
			if c.Text != nil && c.Text.Value != "" {
				return c.Text.Value, nil
			}
		}
	}
	return "", ErrNoReply
}

// CreateGeneric creates a plain chat assistant with the code interpreter.
func (s *Service) CreateGeneric(ctx context.Context, name, instructions string) (openai.Assistant, error) {
	if name == "" {
		name = genericName
	}
	req := openai.AssistantRequest{
		Model: s.def.Model,
		Name:  &name,
		Tools: []openai.AssistantTool{{Type: openai.AssistantToolTypeCodeInterpreter}},
	}
	if instructions != "" {
		req.Instructions = &instructions
	}
	a, err := s.api.CreateAssistant(ctx, req)
	if err != nil {
		return openai.Assistant{}, fmt.Errorf("create assistant: %w", err)
	}
	return a, nil
}

// ListFiles returns the files uploaded to the OpenAI account.
func (s *Service) ListFiles(ctx context.Context) ([]openai.File, error) {
	list, err := s.api.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return list.Files, nil
}

// UploadFile stores data for use by assistants.
func (s *Service) UploadFile(ctx context.Context, name string, data []byte) (openai.File, error) {
	f, err := s.api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return openai.File{}, fmt.Errorf("upload file: %w", err)
	}
	return f, nil
}
