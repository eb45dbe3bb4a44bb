package llm

import (
	"context"
	"fmt"
	"os"

	geminiEmbed "github.com/cloudwego/eino-ext/components/embedding/gemini"
	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// Embedder converts text into an embedding vector. The vector store is
// the only consumer; provider network behavior lives behind this single
// method.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// NewEmbeddingModel creates an Eino embedding component for the provider.
func NewEmbeddingModel(ctx context.Context, cfg Config) (embedding.Embedder, error) {
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultOpenAIEmbeddingModel
		}
		return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			Model:  modelName,
			APIKey: cfg.APIKey,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		modelName := cfg.EmbeddingModel
		if modelName == "" {
			modelName = DefaultOllamaEmbeddingModel
		}
		return ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   modelName,
		})

	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)
		return geminiEmbed.NewEmbedder(ctx, &geminiEmbed.EmbeddingConfig{
			Model: cfg.EmbeddingModel,
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// einoEmbedder adapts an Eino embedding component to the single-text
// Embedder surface the vector store consumes.
type einoEmbedder struct {
	embedder embedding.Embedder
}

// NewEmbedder creates an Embedder for the configured provider.
func NewEmbedder(ctx context.Context, cfg Config) (Embedder, error) {
	em, err := NewEmbeddingModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create embedding model: %w", err)
	}
	return &einoEmbedder{embedder: em}, nil
}

func (e *einoEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	// Eino returns [][]float64.
	vectors, err := e.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	out := make([]float32, len(vectors[0]))
	for i, v := range vectors[0] {
		out[i] = float32(v)
	}
	return out, nil
}
