package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/markdave123-py/botwise/internal/core"
)

// OpenAIClient builds eino chat models against an OpenAI-compatible endpoint.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
}

func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai chat model missing apiKey")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OpenAIClient{apiKey: apiKey, baseURL: strings.TrimSpace(baseURL), timeout: timeout}, nil
}

// Model builds a configured chat model. It matches ModelBuilder.
func (o *OpenAIClient) Model(ctx context.Context, s core.ModelSettings) (core.LLMProvider, error) {
	if s.Model == "" {
		return nil, fmt.Errorf("openai chat model missing model")
	}
	temp := s.Temperature
	cfg := &openaiModel.ChatModelConfig{
		APIKey:      o.apiKey,
		Model:       s.Model,
		BaseURL:     o.baseURL,
		Timeout:     o.timeout,
		Temperature: &temp,
	}
	if s.MaxTokens > 0 {
		maxTokens := s.MaxTokens
		cfg.MaxTokens = &maxTokens
	}
	cm, err := openaiModel.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAILLM{model: cm}, nil
}

type OpenAILLM struct {
	model model.BaseChatModel
}

var _ core.LLMProvider = (*OpenAILLM)(nil)

func (o *OpenAILLM) Generate(ctx context.Context, msgs []core.Message) (string, error) {
	out, err := o.model.Generate(ctx, toSchema(msgs))
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if out == nil {
		return "", nil
	}
	return out.Content, nil
}

func (o *OpenAILLM) Stream(ctx context.Context, msgs []core.Message, sink core.TokenSink) error {
	sr, err := o.model.Stream(ctx, toSchema(msgs))
	if err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	defer sr.Close()

	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("openai stream: %w", err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		if err := sink(chunk.Content); err != nil {
			return err
		}
	}
}

func toSchema(msgs []core.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case core.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}
