// Package llm provides a unified interface for LLM providers using CloudWeGo Eino.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Config holds configuration for creating an LLM client.
type Config struct {
	Provider       string
	Model          string // Chat model
	EmbeddingModel string // Embedding model (optional)
	APIKey         string // Required for OpenAI, Anthropic, Gemini
	BaseURL        string // Required for Ollama (default: http://localhost:11434)
}

// ValidateProvider checks if the given provider string is supported.
func ValidateProvider(p string) (string, error) {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGemini:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s (supported: openai, anthropic, ollama, gemini)", p)
	}
}

// NewChatModel creates a ChatModel instance based on the provider configuration.
// An empty provider or model falls back to the defaults.
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModelForProvider(cfg.Provider)
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:  cfg.Model,
			APIKey: cfg.APIKey,
		})

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
		})

	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		// The Gemini extension reads credentials from the environment.
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)
		return gemini.NewChatModel(ctx, &gemini.Config{
			Model: cfg.Model,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, anthropic, ollama, gemini)", cfg.Provider)
	}
}

// Generator is the minimal chat surface the client needs. It matches
// eino's BaseChatModel and allows fakes in tests.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Client wraps a chat model with the conversation-level helpers the
// orchestration core relies on: plain calls and format-checked calls
// with bounded retry.
type Client struct {
	chatModel Generator
}

// NewClient creates a client for the configured provider and model.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	chatModel, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return &Client{chatModel: chatModel}, nil
}

// NewClientWithModel wraps an existing chat model. Used by tests.
func NewClientWithModel(m Generator) *Client {
	return &Client{chatModel: m}
}

// Call sends the full conversation to the model and returns the raw
// response content.
func (c *Client) Call(ctx context.Context, messages []ChatMessage) (string, error) {
	input := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		input = append(input, &schema.Message{
			Role:    schema.RoleType(m.Role),
			Content: m.Content,
		})
	}
	resp, err := c.chatModel.Generate(ctx, input)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	return resp.Content, nil
}

// CallWithFormatCheck calls the model and validates the response against
// the role's format predicate. Invalid responses are retried up to
// maxAttempts times with a format reminder appended to the conversation
// before re-asking. The conversation may be trimmed beforehand to stay
// inside the token budget.
func (c *Client) CallWithFormatCheck(
	ctx context.Context,
	messages *[]ChatMessage,
	validate func(string) bool,
	formatReminder string,
	maxAttempts int,
) (string, error) {
	ManageTokenBudget(messages, DefaultTokenBudget)

	attempts := 0
	for {
		attempts++
		response, err := c.Call(ctx, *messages)
		if err != nil {
			return "", err
		}

		if validate(response) {
			return response, nil
		}
		if attempts >= maxAttempts {
			return "", fmt.Errorf("LLM did not follow the format after %d attempts", maxAttempts)
		}

		var reminder strings.Builder
		reminder.WriteString("Your last answer did not follow the required format.\n")
		reminder.WriteString(formatReminder)
		reminder.WriteString("\nPlease provide a new answer following exactly these formatting rules.")
		*messages = append(*messages, NewChatMessage(RoleUser, reminder.String()))
	}
}
