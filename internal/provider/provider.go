package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aescanero/dago-node-llmworker/internal/router"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// ErrProvider is wrapped around every failed provider interaction
var ErrProvider = errors.New("provider error")

// Request is a role-structured prompt
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Usage holds the token counts reported by the provider
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Completion is the normalized provider output
type Completion struct {
	Text string

	// Usage is nil when the provider did not report token counts.
	Usage *Usage
}

// Client completes prompts against one provider model
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Factory builds clients for resolved targets
type Factory interface {
	NewClient(ctx context.Context, target *router.Target) (Client, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(ctx context.Context, target *router.Target) (Client, error)

// NewClient calls f
func (f FactoryFunc) NewClient(ctx context.Context, target *router.Target) (Client, error) {
	return f(ctx, target)
}

// LangChainFactory builds clients backed by langchaingo models
type LangChainFactory struct {
	logger *zap.Logger
}

// NewLangChainFactory creates a new factory
func NewLangChainFactory(logger *zap.Logger) *LangChainFactory {
	return &LangChainFactory{logger: logger}
}

// NewClient builds a client for the target's provider
func (f *LangChainFactory) NewClient(ctx context.Context, target *router.Target) (Client, error) {
	a, ok := adapters[target.Model.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrProvider, target.Model.Provider)
	}

	model, err := a.newModel(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s client: %w", ErrProvider, target.ProviderID(), err)
	}

	return &modelClient{
		model:      model,
		adapter:    a,
		providerID: target.ProviderID(),
		logger:     f.logger,
	}, nil
}

// NewModelClient wraps an existing langchaingo model using the adapter of
// the given provider.
func NewModelClient(model llms.Model, p router.Provider, logger *zap.Logger) (Client, error) {
	a, ok := adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrProvider, p)
	}
	return &modelClient{
		model:      model,
		adapter:    a,
		providerID: string(p),
		logger:     logger,
	}, nil
}

// modelClient implements Client over a langchaingo model
type modelClient struct {
	model      llms.Model
	adapter    adapter
	providerID string
	logger     *zap.Logger
}

// Complete sends the prompt and normalizes the response
func (c *modelClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	var messages []llms.MessageContent
	if c.adapter.inlineSystem {
		messages = []llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeHuman, req.System+"\n\n"+req.User),
		}
	} else {
		messages = []llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, req.System),
			llms.TextParts(schema.ChatMessageTypeHuman, req.User),
		}
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProvider, c.providerID, err)
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, fmt.Errorf("%w: %s: unexpected response shape: no choices", ErrProvider, c.providerID)
	}

	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: %s: unexpected response shape: empty content (stop reason %q)",
			ErrProvider, c.providerID, choice.StopReason)
	}

	usage := c.adapter.usage(choice.GenerationInfo)
	if usage == nil {
		c.logger.Debug("provider reported no token usage", zap.String("provider", c.providerID))
	}

	return &Completion{
		Text:  text,
		Usage: usage,
	}, nil
}
