package codegen

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/athenalabs/athena/internal/config"
)

// Completer is the opaque text-completion backend: one chat-style call
// in, one string out.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// LLMClient implements Completer on an OpenAI-compatible endpoint via
// langchaingo.
type LLMClient struct {
	llm *openai.LLM
	cfg config.LLMConfig
}

// NewLLMClient builds the completion client from config.
func NewLLMClient(cfg config.LLMConfig) (*LLMClient, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("LLM API key not set")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}
	return &LLMClient{llm: llm, cfg: cfg}, nil
}

// Complete runs a single system+user chat completion with bounded output.
func (c *LLMClient) Complete(ctx context.Context, system, user string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout.Duration())
		defer cancel()
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}

	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(c.cfg.MaxTokens),
		llms.WithTemperature(c.cfg.Temperature),
		llms.WithTopP(c.cfg.TopP),
	)
	if err != nil {
		return "", fmt.Errorf("completion call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}
