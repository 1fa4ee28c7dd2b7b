// Package ai asks a chat-completion model for extra test scenarios and turns
// its answer into scenario.TestScenario values.
package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Generator sends one system/user exchange to a model and returns the text
// of the reply.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type GeneratorFunc func(ctx context.Context, system, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultOllamaModel    = "llama3.1"
	defaultOllamaBaseURL  = "http://localhost:11434/v1"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultMaxTokens      = 4096
)

var ErrMissingAPIKey = errors.New("ai: missing API key")

// Config selects and addresses a provider. APIKey is never read from config
// files; ConfigFromEnv fills it from the environment.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	MaxRetries int
}

// ConfigFromEnv resolves a provider configuration. Explicit arguments win
// over environment variables, which win over provider defaults. A nil getenv
// reads the process environment.
func ConfigFromEnv(provider, model, baseURL string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	first := func(values ...string) string {
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}

	provider = strings.ToLower(first(provider, getenv("SPEC2TEST_AI_PROVIDER"), getenv("LLM_PROVIDER"), ProviderOllama))
	cfg := Config{Provider: provider, MaxRetries: 1}
	switch provider {
	case ProviderOpenAI:
		cfg.Model = first(model, getenv("SPEC2TEST_AI_MODEL"), getenv("OPENAI_MODEL"), defaultOpenAIModel)
		cfg.BaseURL = first(baseURL, getenv("SPEC2TEST_AI_BASE_URL"), getenv("OPENAI_BASE_URL"))
		cfg.APIKey = first(getenv("SPEC2TEST_AI_API_KEY"), getenv("OPENAI_API_KEY"))
	case ProviderOllama:
		cfg.Model = first(model, getenv("SPEC2TEST_AI_MODEL"), getenv("OLLAMA_MODEL"), defaultOllamaModel)
		cfg.BaseURL = first(baseURL, getenv("SPEC2TEST_AI_BASE_URL"), getenv("OLLAMA_BASE_URL"), defaultOllamaBaseURL)
		// Ollama ignores the key but the client requires one.
		cfg.APIKey = first(getenv("SPEC2TEST_AI_API_KEY"), "ollama")
	case ProviderAnthropic:
		cfg.Model = first(model, getenv("SPEC2TEST_AI_MODEL"), getenv("ANTHROPIC_MODEL"), defaultAnthropicModel)
		cfg.BaseURL = first(baseURL, getenv("SPEC2TEST_AI_BASE_URL"), getenv("ANTHROPIC_BASE_URL"))
		cfg.APIKey = first(getenv("SPEC2TEST_AI_API_KEY"), getenv("ANTHROPIC_API_KEY"))
	default:
		return Config{}, fmt.Errorf("ai: unsupported provider %q (want openai, ollama or anthropic)", provider)
	}
	return cfg, nil
}

// NewGenerator builds the provider adapter for cfg.
func NewGenerator(cfg Config) (Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w for provider %s", ErrMissingAPIKey, cfg.Provider)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("ai: missing model for provider %s", cfg.Provider)
	}
	switch cfg.Provider {
	case ProviderOpenAI, ProviderOllama:
		return newOpenAIGenerator(cfg), nil
	case ProviderAnthropic:
		return newAnthropicGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("ai: unsupported provider %q", cfg.Provider)
	}
}
