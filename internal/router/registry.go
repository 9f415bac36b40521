package router

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider identifies an LLM API family
type Provider string

const (
	// ProviderOpenAI is the OpenAI chat completions API
	ProviderOpenAI Provider = "openai"

	// ProviderAnthropic is the Anthropic messages API
	ProviderAnthropic Provider = "anthropic"

	// ProviderGoogleAI is the Gemini API
	ProviderGoogleAI Provider = "googleai"

	// ProviderDeepSeek is DeepSeek's OpenAI-compatible API
	ProviderDeepSeek Provider = "deepseek"

	// ProviderXAI is xAI's OpenAI-compatible API
	ProviderXAI Provider = "xai"
)

// Valid reports whether p is a supported provider
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogleAI, ProviderDeepSeek, ProviderXAI:
		return true
	default:
		return false
	}
}

// Model describes one logical model of the registry
type Model struct {
	Name              string   `yaml:"name"`
	DisplayName       string   `yaml:"display_name"`
	Provider          Provider `yaml:"provider"`
	ProviderModel     string   `yaml:"provider_model"`
	CredentialEnv     string   `yaml:"credential_env"`
	BaseURL           string   `yaml:"base_url,omitempty"`
	MaxOutputTokens   int      `yaml:"max_output_tokens"`
	InputCostPerMTok  float64  `yaml:"input_cost_per_mtok"`
	OutputCostPerMTok float64  `yaml:"output_cost_per_mtok"`
}

// ProviderID returns the concrete provider identifier, e.g. "openai/gpt-4o"
func (m Model) ProviderID() string {
	return string(m.Provider) + "/" + m.ProviderModel
}

// Cost returns the USD cost of a call with the given token counts
func (m Model) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*m.InputCostPerMTok +
		float64(outputTokens)/1e6*m.OutputCostPerMTok
}

func (m Model) validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !m.Provider.Valid() {
		return fmt.Errorf("model %s: unsupported provider %q", m.Name, m.Provider)
	}
	if m.ProviderModel == "" {
		return fmt.Errorf("model %s: provider_model is required", m.Name)
	}
	if m.CredentialEnv == "" {
		return fmt.Errorf("model %s: credential_env is required", m.Name)
	}
	if m.MaxOutputTokens < 0 {
		return fmt.Errorf("model %s: max_output_tokens must be non-negative", m.Name)
	}
	if m.InputCostPerMTok < 0 || m.OutputCostPerMTok < 0 {
		return fmt.Errorf("model %s: costs must be non-negative", m.Name)
	}
	return nil
}

// Registry is an immutable table of logical model names
type Registry struct {
	models map[string]Model
}

// NewRegistry validates models and builds a registry from them
func NewRegistry(models ...Model) (*Registry, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("registry has no models")
	}

	table := make(map[string]Model, len(models))
	for _, m := range models {
		m.Name = normalizeName(m.Name)
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, dup := table[m.Name]; dup {
			return nil, fmt.Errorf("duplicate model %s", m.Name)
		}
		if m.DisplayName == "" {
			m.DisplayName = m.Name
		}
		table[m.Name] = m
	}

	return &Registry{models: table}, nil
}

// registryFile is the on-disk registry layout
type registryFile struct {
	Models []Model `yaml:"models"`
}

// ParseRegistry builds a registry from YAML (or JSON) data
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	registry, err := NewRegistry(file.Models...)
	if err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}
	return registry, nil
}

// LoadRegistry reads a registry file
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	return ParseRegistry(data)
}

// DefaultRegistry returns the built-in model table
func DefaultRegistry() *Registry {
	registry, err := NewRegistry(defaultModels()...)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in registry: %v", err))
	}
	return registry
}

func defaultModels() []Model {
	gpt4o := Model{
		DisplayName:       "GPT-4o",
		Provider:          ProviderOpenAI,
		ProviderModel:     "gpt-4o",
		CredentialEnv:     "OPENAI_API_KEY",
		MaxOutputTokens:   4096,
		InputCostPerMTok:  2.50,
		OutputCostPerMTok: 10.00,
	}
	chatgpt, gpt4 := gpt4o, gpt4o
	chatgpt.Name = "chatgpt"
	gpt4.Name = "gpt4o"

	return []Model{
		chatgpt,
		gpt4,
		{
			Name:              "gemini",
			DisplayName:       "Gemini Flash",
			Provider:          ProviderGoogleAI,
			ProviderModel:     "gemini-1.5-flash",
			CredentialEnv:     "GEMINI_API_KEY",
			MaxOutputTokens:   4000,
			InputCostPerMTok:  0.075,
			OutputCostPerMTok: 0.30,
		},
		{
			Name:              "deepseek",
			DisplayName:       "DeepSeek",
			Provider:          ProviderDeepSeek,
			ProviderModel:     "deepseek-reasoner",
			CredentialEnv:     "DEEPSEEK_API_KEY",
			BaseURL:           "https://api.deepseek.com/v1",
			MaxOutputTokens:   2048,
			InputCostPerMTok:  0.55,
			OutputCostPerMTok: 2.19,
		},
		{
			Name:              "claude",
			DisplayName:       "Claude 3.5 Sonnet",
			Provider:          ProviderAnthropic,
			ProviderModel:     "claude-3-5-sonnet-20240620",
			CredentialEnv:     "ANTHROPIC_API_KEY",
			MaxOutputTokens:   4096,
			InputCostPerMTok:  3.00,
			OutputCostPerMTok: 15.00,
		},
		{
			Name:              "grok",
			DisplayName:       "Grok",
			Provider:          ProviderXAI,
			ProviderModel:     "grok-beta",
			CredentialEnv:     "XAI_API_KEY",
			BaseURL:           "https://api.x.ai/v1",
			MaxOutputTokens:   2048,
			InputCostPerMTok:  5.00,
			OutputCostPerMTok: 15.00,
		},
	}
}

// Lookup returns the model registered under name
func (r *Registry) Lookup(name string) (Model, bool) {
	m, ok := r.models[normalizeName(name)]
	return m, ok
}

// Names returns the sorted logical model names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns all models sorted by name
func (r *Registry) Models() []Model {
	names := r.Names()
	models := make([]Model, 0, len(names))
	for _, name := range names {
		models = append(models, r.models[name])
	}
	return models
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
