package core

import "context"

// Embedder is a raw embedding backend (Gemini, OpenAI, ...).
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// TokenSink receives streamed tokens in order. Returning an error stops the stream.
type TokenSink func(token string) error

type LLMProvider interface {
	Generate(ctx context.Context, msgs []Message) (string, error)
	Stream(ctx context.Context, msgs []Message, sink TokenSink) error
}

// ModelSettings identify one configured model instance.
type ModelSettings struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// ChatModelFactory hands out (possibly cached) model instances.
type ChatModelFactory interface {
	ChatModel(ctx context.Context, s ModelSettings) (LLMProvider, error)
}

// EmbeddingService is the batched, error-normalizing embedding client.
type EmbeddingService interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
