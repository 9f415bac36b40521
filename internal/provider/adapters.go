package provider

import (
	"context"

	"github.com/aescanero/dago-node-llmworker/internal/router"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// adapter isolates everything provider specific
type adapter struct {
	newModel func(ctx context.Context, target *router.Target) (llms.Model, error)
	usage    func(info map[string]any) *Usage

	// inlineSystem folds the system instruction into the user turn.
	inlineSystem bool
}

var adapters = map[router.Provider]adapter{
	router.ProviderOpenAI:    {newModel: newOpenAI(""), usage: openAIUsage},
	router.ProviderDeepSeek:  {newModel: newOpenAI("https://api.deepseek.com/v1"), usage: openAIUsage},
	router.ProviderXAI:       {newModel: newOpenAI("https://api.x.ai/v1"), usage: openAIUsage},
	router.ProviderAnthropic: {newModel: newAnthropic, usage: anthropicUsage},
	router.ProviderGoogleAI:  {newModel: newGoogleAI, usage: googleAIUsage, inlineSystem: true},
}

// newOpenAI builds clients for OpenAI and OpenAI-compatible APIs
func newOpenAI(defaultBaseURL string) func(context.Context, *router.Target) (llms.Model, error) {
	return func(_ context.Context, target *router.Target) (llms.Model, error) {
		opts := []openai.Option{
			openai.WithToken(target.Credential),
			openai.WithModel(target.Model.ProviderModel),
		}
		baseURL := target.Model.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.New(opts...)
	}
}

func newAnthropic(_ context.Context, target *router.Target) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(target.Credential),
		anthropic.WithModel(target.Model.ProviderModel),
	}
	if target.Model.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(target.Model.BaseURL))
	}
	return anthropic.New(opts...)
}

func newGoogleAI(ctx context.Context, target *router.Target) (llms.Model, error) {
	return googleai.New(ctx,
		googleai.WithAPIKey(target.Credential),
		googleai.WithDefaultModel(target.Model.ProviderModel),
	)
}

func openAIUsage(info map[string]any) *Usage {
	return usageFrom(info, "PromptTokens", "CompletionTokens")
}

func anthropicUsage(info map[string]any) *Usage {
	return usageFrom(info, "InputTokens", "OutputTokens")
}

func googleAIUsage(info map[string]any) *Usage {
	return usageFrom(info, "input_tokens", "output_tokens")
}

// usageFrom reads token counts stored under the given keys
func usageFrom(info map[string]any, inputKey, outputKey string) *Usage {
	in, okIn := toInt(info[inputKey])
	out, okOut := toInt(info[outputKey])
	if !okIn && !okOut {
		return nil
	}
	return &Usage{InputTokens: in, OutputTokens: out}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
