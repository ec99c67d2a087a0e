package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// fakeAPI is a scripted stand-in for the OpenAI client. Runs advance through
// the states queued in runs, one per RetrieveRun or SubmitToolOutputs call.
type fakeAPI struct {
	mu sync.Mutex

	assistants  []openai.Assistant
	created     []openai.AssistantRequest
	retrieveErr error

	threads  int
	messages []openai.MessageRequest
	runs     []openai.Run
	reply    string
	outputs  []openai.SubmitToolOutputsRequest
	retrieve int

	files    []openai.File
	uploaded []openai.FileBytesRequest
}

func (f *fakeAPI) CreateAssistant(_ context.Context, req openai.AssistantRequest) (openai.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	a := openai.Assistant{ID: fmt.Sprintf("asst_%d", len(f.created)), Name: req.Name, Model: req.Model}
	f.assistants = append(f.assistants, a)
	return a, nil
}

func (f *fakeAPI) RetrieveAssistant(_ context.Context, id string) (openai.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retrieveErr != nil {
		return openai.Assistant{}, f.retrieveErr
	}
	for _, a := range f.assistants {
		if a.ID == id {
			return a, nil
		}
	}
	return openai.Assistant{}, errors.New("no such assistant")
}

func (f *fakeAPI) ListAssistants(context.Context, *int, *string, *string, *string) (openai.AssistantsList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return openai.AssistantsList{Assistants: append([]openai.Assistant(nil), f.assistants...)}, nil
}

func (f *fakeAPI) CreateThread(context.Context, openai.ThreadRequest) (openai.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads++
	return openai.Thread{ID: fmt.Sprintf("thread_%d", f.threads)}, nil
}

func (f *fakeAPI) CreateMessage(_ context.Context, _ string, req openai.MessageRequest) (openai.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, req)
	return openai.Message{ID: "msg_user", Role: req.Role}, nil
}

func (f *fakeAPI) ListMessage(context.Context, string, *int, *string, *string, *string, *string) (openai.MessagesList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reply == "" {
		return openai.MessagesList{}, nil
	}
	return openai.MessagesList{Messages: []openai.Message{{
		ID:      "msg_reply",
		Role:    string(openai.ThreadMessageRoleAssistant),
		Content: []openai.MessageContent{{Type: "text", Text: &openai.MessageText{Value: f.reply}}},
	}}}, nil
}

func (f *fakeAPI) next() openai.Run {
	run := f.runs[0]
	if len(f.runs) > 1 {
		f.runs = f.runs[1:]
	}
	return run
}

func (f *fakeAPI) CreateRun(context.Context, string, openai.RunRequest) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next(), nil
}

func (f *fakeAPI) RetrieveRun(context.Context, string, string) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieve++
	return f.next(), nil
}

func (f *fakeAPI) SubmitToolOutputs(_ context.Context, _ string, _ string, req openai.SubmitToolOutputsRequest) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, req)
	return f.next(), nil
}

func (f *fakeAPI) ListFiles(context.Context) (openai.FilesList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return openai.FilesList{Files: f.files}, nil
}

func (f *fakeAPI) CreateFileBytes(_ context.Context, req openai.FileBytesRequest) (openai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, req)
	file := openai.File{ID: "file_1", FileName: req.Name, Bytes: len(req.Bytes), Purpose: string(req.Purpose)}
	f.files = append(f.files, file)
	return file, nil
}

func runWith(status openai.RunStatus) openai.Run {
	return openai.Run{ID: "run_1", Status: status}
}

func toolRun(calls ...openai.ToolCall) openai.Run {
	run := runWith(openai.RunStatusRequiresAction)
	run.RequiredAction = &openai.RunRequiredAction{
		Type:              openai.RequiredActionTypeSubmitToolOutputs,
		SubmitToolOutputs: &openai.SubmitToolOutputs{ToolCalls: calls},
	}
	return run
}

func call(id, name, args string) openai.ToolCall {
	return openai.ToolCall{ID: id, Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: name, Arguments: args}}
}
