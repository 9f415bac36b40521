package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/aescanero/dago-node-llmworker/internal/provider"
	"github.com/aescanero/dago-node-llmworker/internal/router"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// MockModel is a test double for llms.Model
type MockModel struct {
	mu sync.Mutex

	// Text is returned as the completion content.
	Text string

	// Err, when set, is returned instead of a response.
	Err error

	// Info overrides the generated usage info when not nil.
	Info map[string]any

	calls        int
	lastMessages []llms.MessageContent
	lastOptions  llms.CallOptions
}

// NewMockModel creates a mock model answering with text
func NewMockModel(text string) *MockModel {
	return &MockModel{Text: text}
}

// GenerateContent records the request and returns the canned response
func (m *MockModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastMessages = messages
	m.lastOptions = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.lastOptions)
	}

	if m.Err != nil {
		return nil, m.Err
	}

	info := m.Info
	if info == nil {
		in := countWords(messages)
		out := len(strings.Fields(m.Text))
		info = map[string]any{
			"PromptTokens":     in,
			"CompletionTokens": out,
			"InputTokens":      in,
			"OutputTokens":     out,
			"input_tokens":     int32(in),
			"output_tokens":    int32(out),
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        m.Text,
			StopReason:     "stop",
			GenerationInfo: info,
		}},
	}, nil
}

// Call implements the single prompt form of llms.Model
func (m *MockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns the number of GenerateContent calls
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastMessages returns the messages of the latest call
func (m *MockModel) LastMessages() []llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMessages
}

// LastOptions returns the call options of the latest call
func (m *MockModel) LastOptions() llms.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOptions
}

// MessageText joins the text parts of a message
func MessageText(msg llms.MessageContent) string {
	var sb strings.Builder
	for _, part := range msg.Parts {
		if text, ok := part.(llms.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}

func countWords(messages []llms.MessageContent) int {
	n := 0
	for _, msg := range messages {
		n += len(strings.Fields(MessageText(msg)))
	}
	return n
}

// MockFactory is a test double for provider.Factory
type MockFactory struct {
	mu sync.Mutex

	// Model backs every client handed out.
	Model *MockModel

	// Err, when set, is returned instead of a client.
	Err error

	targets []router.Target
}

// NewMockFactory creates a factory serving model
func NewMockFactory(model *MockModel) *MockFactory {
	return &MockFactory{Model: model}
}

// NewClient records the target and wraps the mock model
func (f *MockFactory) NewClient(_ context.Context, target *router.Target) (provider.Client, error) {
	f.mu.Lock()
	f.targets = append(f.targets, *target)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	return provider.NewModelClient(f.Model, target.Model.Provider, zap.NewNop())
}

// Targets returns the targets clients were requested for
func (f *MockFactory) Targets() []router.Target {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]router.Target(nil), f.targets...)
}
