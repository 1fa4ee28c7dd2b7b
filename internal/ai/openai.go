package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

// openAIGenerator talks to the chat completions API. Ollama is served through
// its OpenAI-compatible endpoint.
type openAIGenerator struct {
	client openai.Client
	model  string
}

func newOpenAIGenerator(cfg Config) *openAIGenerator {
	opts := []ooption.RequestOption{
		ooption.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		ooption.WithMaxRetries(cfg.MaxRetries),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, ooption.WithBaseURL(baseURL))
	}
	return &openAIGenerator{client: openai.NewClient(opts...), model: cfg.Model}
}

func (g *openAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("ai: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}
