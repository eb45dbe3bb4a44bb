package llm

import "os"

// Supported provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
)

// Defaults applied when the task config leaves a field empty.
const (
	DefaultProvider             = ProviderOpenAI
	DefaultOllamaURL            = "http://localhost:11434"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
)

// APIKeyFromEnv reads the conventional environment variable for a
// provider's API key.
func APIKeyFromEnv(provider string) string {
	if provider == "" {
		provider = DefaultProvider
	}
	switch provider {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}

// DefaultModelForProvider returns a sensible chat model for a provider.
func DefaultModelForProvider(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	case ProviderOllama:
		return "llama3.1"
	case ProviderGemini:
		return "gemini-2.0-flash"
	default:
		return ""
	}
}
