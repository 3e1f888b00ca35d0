package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/markdave123-py/botwise/internal/core"
)

// GeminiClient owns the API connection; GeminiLLM values built from it are cheap.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiClient{client: cl}, nil
}

func (g *GeminiClient) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Model builds a configured model. It matches ModelBuilder.
func (g *GeminiClient) Model(_ context.Context, s core.ModelSettings) (core.LLMProvider, error) {
	if s.Model == "" {
		s.Model = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: g.client, settings: s}, nil
}

type GeminiLLM struct {
	client   *genai.Client
	settings core.ModelSettings
}

var _ core.LLMProvider = (*GeminiLLM)(nil)

func (g *GeminiLLM) Generate(ctx context.Context, msgs []core.Message) (string, error) {
	cs, last, err := g.session(msgs)
	if err != nil {
		return "", err
	}
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return responseText(resp), nil
}

func (g *GeminiLLM) Stream(ctx context.Context, msgs []core.Message, sink core.TokenSink) error {
	cs, last, err := g.session(msgs)
	if err != nil {
		return err
	}
	it := cs.SendMessageStream(ctx, genai.Text(last))
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		if t := responseText(resp); t != "" {
			if err := sink(t); err != nil {
				return err
			}
		}
	}
}

// session maps system messages to the system instruction and every message
// but the last user turn to chat history.
func (g *GeminiLLM) session(msgs []core.Message) (*genai.ChatSession, string, error) {
	m := g.client.GenerativeModel(g.settings.Model)
	m.SetTemperature(g.settings.Temperature)
	if g.settings.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(g.settings.MaxTokens))
	}

	var (
		system []string
		turns  []core.Message
	)
	for _, msg := range msgs {
		if msg.Role == core.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != core.RoleUser {
		return nil, "", fmt.Errorf("gemini: conversation must end with a user message")
	}
	if len(system) > 0 {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}

	cs := m.StartChat()
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == core.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return cs, turns[len(turns)-1].Content, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
