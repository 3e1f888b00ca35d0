package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

const (
	NotTrainedResponse = "I haven't been trained yet. Please add some documents or a website so I can help."
	NoMatchResponse    = "I couldn't find relevant information to answer that question."

	DefaultTopK  = 3
	HistoryTurns = 3
	previewRunes = 100
	noHistory    = "None."
)

type Source struct {
	Text     string                `json:"text"`
	Preview  string                `json:"preview"`
	Score    float32               `json:"score"`
	Metadata models.VectorMetadata `json:"metadata"`
}

type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
	// Trained is false when the bot had no vectors and no lookup was made.
	Trained bool `json:"trained"`
}

// Composer answers questions from a bot's own indexed content.
type Composer struct {
	embeddings     core.EmbeddingService
	store          core.VectorStore
	models         core.ChatModelFactory
	db             core.DbClient
	defaultModel   string
	log            *zap.Logger
	now            func() time.Time
	counterTimeout time.Duration
}

func NewComposer(
	emb core.EmbeddingService,
	store core.VectorStore,
	factory core.ChatModelFactory,
	db core.DbClient,
	defaultModel string,
	log *zap.Logger,
) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{
		embeddings:     emb,
		store:          store,
		models:         factory,
		db:             db,
		defaultModel:   defaultModel,
		log:            log,
		now:            time.Now,
		counterTimeout: 3 * time.Second,
	}
}

// Answer composes a grounded reply. With a nil onToken the model is called in
// batch mode; otherwise tokens are forwarded to onToken as they arrive and the
// returned text is their concatenation. An error from onToken stops the stream.
func (c *Composer) Answer(ctx context.Context, bot *models.Bot, question string, history []models.ConversationTurn, onToken core.TokenSink) (*Answer, error) {
	if bot == nil {
		return nil, core.NewError(core.KindInvalidInput, "nil bot", nil)
	}
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, core.NewError(core.KindInvalidInput, "question is empty", nil)
	}
	log := c.log.With(zap.String("bot_id", bot.ID))
	filter := core.Filter{models.MetaChatbotID: bot.ID}

	stats, err := c.store.Stats(ctx, filter)
	if err != nil {
		return nil, err
	}
	if stats.VectorCount == 0 {
		return c.fixed(ctx, bot.ID, NotTrainedResponse, false, onToken)
	}

	vec, err := c.embeddings.EmbedQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	matches, err := c.store.Query(ctx, vec, filter, min(DefaultTopK, stats.VectorCount))
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		if m.Metadata.ChatbotID != bot.ID {
			log.Error("tenant isolation violation",
				zap.Error(core.ErrTenantIsolation),
				zap.String("expected_bot", bot.ID),
				zap.String("got_bot", m.Metadata.ChatbotID),
				zap.String("vector_id", m.ID))
			continue
		}
		sources = append(sources, Source{
			Text:     m.Metadata.Text,
			Preview:  preview(m.Metadata.Text),
			Score:    m.Score,
			Metadata: m.Metadata,
		})
	}
	if len(sources) == 0 {
		return c.fixed(ctx, bot.ID, NoMatchResponse, true, onToken)
	}

	settings := bot.Settings.WithDefaults(c.defaultModel)
	model, err := c.models.ChatModel(ctx, core.ModelSettings{
		Model:       settings.Model,
		Temperature: settings.TemperatureValue(),
		MaxTokens:   settings.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat model %s: %w", settings.Model, err)
	}
	msgs := BuildMessages(settings, sources, history, q)

	var text string
	if onToken == nil {
		text, err = model.Generate(ctx, msgs)
		if err != nil {
			return nil, fmt.Errorf("generate answer: %w", err)
		}
	} else {
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var b strings.Builder
		err = model.Stream(streamCtx, msgs, func(tok string) error {
			b.WriteString(tok)
			if err := onToken(tok); err != nil {
				cancel()
				return err
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("stream answer: %w", err)
		}
		text = b.String()
	}

	c.recordMessage(ctx, bot.ID, log)
	log.Debug("answer composed", zap.Int("sources", len(sources)), zap.Int("answer_len", len(text)))
	return &Answer{Text: text, Sources: sources, Trained: true}, nil
}

// fixed returns a canned reply without calling the model. Streaming callers
// receive it as a single token.
func (c *Composer) fixed(ctx context.Context, botID, text string, trained bool, onToken core.TokenSink) (*Answer, error) {
	if onToken != nil {
		if err := onToken(text); err != nil {
			return nil, err
		}
	}
	c.recordMessage(ctx, botID, c.log.With(zap.String("bot_id", botID)))
	return &Answer{Text: text, Sources: []Source{}, Trained: trained}, nil
}

func (c *Composer) recordMessage(ctx context.Context, botID string, log *zap.Logger) {
	if c.db == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.counterTimeout)
	defer cancel()
	if err := c.db.RecordBotMessage(rctx, botID, c.now()); err != nil {
		log.Warn("record bot message", zap.Error(err))
	}
}

// BuildMessages renders the system instruction and the filled prompt template.
func BuildMessages(settings models.BotSettings, sources []Source, history []models.ConversationTurn, question string) []core.Message {
	texts := make([]string, len(sources))
	for i, s := range sources {
		texts[i] = s.Text
	}
	prompt := strings.NewReplacer(
		"{context}", strings.Join(texts, "\n\n"),
		"{history}", renderHistory(history),
		"{question}", question,
	).Replace(settings.PromptTemplate)

	return []core.Message{
		{Role: core.RoleSystem, Content: settings.SystemMessage},
		{Role: core.RoleUser, Content: prompt},
	}
}

func renderHistory(history []models.ConversationTurn) string {
	if len(history) > HistoryTurns {
		history = history[len(history)-HistoryTurns:]
	}
	if len(history) == 0 {
		return noHistory
	}
	parts := make([]string, len(history))
	for i, t := range history {
		parts[i] = "User: " + t.User + "\nAssistant: " + t.Assistant
	}
	return strings.Join(parts, "\n\n")
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes]) + "..."
}
