package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aescanero/dago-node-llmworker/internal/provider"
	"github.com/aescanero/dago-node-llmworker/internal/provider/mock"
	"github.com/aescanero/dago-node-llmworker/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

func TestComplete_RoleStructuredPrompt(t *testing.T) {
	model := mock.NewMockModel("  the summary  ")
	client, err := provider.NewModelClient(model, router.ProviderOpenAI, zap.NewNop())
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), provider.Request{
		System:      "Summarize the document.",
		User:        "some content here",
		MaxTokens:   256,
		Temperature: 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "the summary", completion.Text)

	messages := model.LastMessages()
	require.Len(t, messages, 2)
	assert.Equal(t, schema.ChatMessageTypeSystem, messages[0].Role)
	assert.Equal(t, "Summarize the document.", mock.MessageText(messages[0]))
	assert.Equal(t, schema.ChatMessageTypeHuman, messages[1].Role)
	assert.Equal(t, "some content here", mock.MessageText(messages[1]))

	opts := model.LastOptions()
	assert.Equal(t, 256, opts.MaxTokens)
	assert.InDelta(t, 0.3, opts.Temperature, 1e-9)
}

func TestComplete_GoogleAIInlinesSystem(t *testing.T) {
	model := mock.NewMockModel("answer")
	client, err := provider.NewModelClient(model, router.ProviderGoogleAI, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), provider.Request{System: "sys", User: "usr"})
	require.NoError(t, err)

	messages := model.LastMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, schema.ChatMessageTypeHuman, messages[0].Role)
	assert.Equal(t, "sys\n\nusr", mock.MessageText(messages[0]))
}

func TestComplete_UsagePerProvider(t *testing.T) {
	tests := []struct {
		provider router.Provider
		info     map[string]any
	}{
		{router.ProviderOpenAI, map[string]any{"PromptTokens": 11, "CompletionTokens": 7, "TotalTokens": 18}},
		{router.ProviderDeepSeek, map[string]any{"PromptTokens": 11, "CompletionTokens": 7}},
		{router.ProviderXAI, map[string]any{"PromptTokens": 11, "CompletionTokens": 7}},
		{router.ProviderAnthropic, map[string]any{"InputTokens": 11, "OutputTokens": 7}},
		{router.ProviderGoogleAI, map[string]any{"input_tokens": int32(11), "output_tokens": int32(7)}},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			model := mock.NewMockModel("text")
			model.Info = tt.info
			client, err := provider.NewModelClient(model, tt.provider, zap.NewNop())
			require.NoError(t, err)

			completion, err := client.Complete(context.Background(), provider.Request{System: "s", User: "u"})
			require.NoError(t, err)
			require.NotNil(t, completion.Usage)
			assert.Equal(t, 11, completion.Usage.InputTokens)
			assert.Equal(t, 7, completion.Usage.OutputTokens)
		})
	}
}

func TestComplete_NoUsageReported(t *testing.T) {
	model := mock.NewMockModel("text")
	model.Info = map[string]any{"InputTokens": 3}
	client, err := provider.NewModelClient(model, router.ProviderOpenAI, zap.NewNop())
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), provider.Request{System: "s", User: "u"})
	require.NoError(t, err)
	assert.Nil(t, completion.Usage, "anthropic keys mean nothing to the openai adapter")
}

func TestComplete_ProviderError(t *testing.T) {
	model := mock.NewMockModel("")
	model.Err = errors.New("429 rate limited")
	client, err := provider.NewModelClient(model, router.ProviderAnthropic, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), provider.Request{System: "s", User: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrProvider)
	assert.Contains(t, err.Error(), "429 rate limited")
}

func TestComplete_EmptyContent(t *testing.T) {
	model := mock.NewMockModel("   ")
	client, err := provider.NewModelClient(model, router.ProviderOpenAI, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), provider.Request{System: "s", User: "u"})
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrProvider)
	assert.Contains(t, err.Error(), "unexpected response shape")
}

func TestNewModelClient_UnsupportedProvider(t *testing.T) {
	_, err := provider.NewModelClient(mock.NewMockModel("x"), router.Provider("acme"), zap.NewNop())
	assert.ErrorIs(t, err, provider.ErrProvider)
}

func TestLangChainFactory_BuildsClients(t *testing.T) {
	factory := provider.NewLangChainFactory(zap.NewNop())

	for _, m := range router.DefaultRegistry().Models() {
		t.Run(m.Name, func(t *testing.T) {
			client, err := factory.NewClient(context.Background(), &router.Target{Model: m, Credential: "test-key"})
			require.NoError(t, err)
			assert.NotNil(t, client)
		})
	}
}

func TestLangChainFactory_UnsupportedProvider(t *testing.T) {
	factory := provider.NewLangChainFactory(zap.NewNop())
	_, err := factory.NewClient(context.Background(), &router.Target{
		Model: router.Model{Name: "x", Provider: "acme", ProviderModel: "y"},
	})
	assert.ErrorIs(t, err, provider.ErrProvider)
}
