package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
	db "github.com/markdave123-py/botwise/internal/core/database"
	"github.com/markdave123-py/botwise/internal/core/llm"
	"github.com/markdave123-py/botwise/internal/core/llm/llmtest"
	"github.com/markdave123-py/botwise/internal/core/vectorstore"
	"github.com/markdave123-py/botwise/internal/models"
)

const dim = 256

type countingEmbeddings struct {
	core.EmbeddingService
	queries int
}

func (c *countingEmbeddings) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.queries++
	return c.EmbeddingService.EmbedQuery(ctx, text)
}

// echoModel answers with a fixed function of the prompt so batch and stream
// modes can be compared.
type echoModel struct {
	calls int
	last  []core.Message
}

func (m *echoModel) answer(msgs []core.Message) string {
	prompt := msgs[len(msgs)-1].Content
	first := strings.SplitN(strings.TrimPrefix(prompt, "Context:\n"), "\n", 2)[0]
	return "Based on our docs: " + first
}

func (m *echoModel) Generate(_ context.Context, msgs []core.Message) (string, error) {
	m.calls++
	m.last = msgs
	return m.answer(msgs), nil
}

func (m *echoModel) Stream(ctx context.Context, msgs []core.Message, sink core.TokenSink) error {
	m.calls++
	m.last = msgs
	for _, tok := range strings.SplitAfter(m.answer(msgs), " ") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink(tok); err != nil {
			return err
		}
	}
	return nil
}

type staticFactory struct {
	model    *echoModel
	settings []core.ModelSettings
}

func (f *staticFactory) ChatModel(_ context.Context, s core.ModelSettings) (core.LLMProvider, error) {
	f.settings = append(f.settings, s)
	return f.model, nil
}

// leakyIndex returns a record from another bot on every query.
type leakyIndex struct {
	*vectorstore.MemoryIndex
	leak core.QueryMatch
}

func (l *leakyIndex) Query(ctx context.Context, v []float32, f core.Filter, k int) ([]core.QueryMatch, error) {
	m, err := l.MemoryIndex.Query(ctx, v, f, k)
	return append([]core.QueryMatch{l.leak}, m...), err
}

// brokenDB fails every message counter update.
type brokenDB struct{ *db.MemoryClient }

func (brokenDB) RecordBotMessage(context.Context, string, time.Time) error {
	return errors.New("database is read-only")
}

type setup struct {
	index    *vectorstore.MemoryIndex
	store    *vectorstore.Client
	emb      *countingEmbeddings
	model    *echoModel
	factory  *staticFactory
	db       *db.MemoryClient
	composer *Composer
	bot      *models.Bot
}

func newSetup(t *testing.T) *setup {
	t.Helper()
	s := &setup{
		index: vectorstore.NewMemoryIndex(dim),
		emb:   &countingEmbeddings{EmbeddingService: llm.NewEmbeddingClient(llmtest.NewHashEmbedder(dim), 20, dim)},
		model: &echoModel{},
		db:    db.NewMemoryClient(),
		bot:   &models.Bot{ID: "bot-1", UserID: "u1", Name: "Tea shop"},
	}
	s.factory = &staticFactory{model: s.model}
	s.store = vectorstore.NewClient(s.index, vectorstore.WithBatchDelay(0))
	s.composer = NewComposer(s.emb, s.store, s.factory, s.db, "gemini-1.5-flash", zap.NewNop())
	require.NoError(t, s.db.CreateBot(context.Background(), s.bot))
	return s
}

func (s *setup) seed(t *testing.T, bot string, texts ...string) {
	t.Helper()
	vecs, err := s.emb.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	recs := make([]models.VectorRecord, len(texts))
	for i, text := range texts {
		recs[i] = models.VectorRecord{
			ID:     bot + "-" + text,
			Values: vecs[i],
			Metadata: models.VectorMetadata{
				ChatbotID: bot, SourceType: models.SourceTypeDocument, Source: "faq.txt", DocumentID: "doc-1", Text: text,
			},
		}
	}
	require.NoError(t, s.store.Upsert(context.Background(), recs))
}

func TestNotTrainedMakesNoCalls(t *testing.T) {
	s := newSetup(t)

	ans, err := s.composer.Answer(context.Background(), s.bot, "hello", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, NotTrainedResponse, ans.Text)
	assert.Empty(t, ans.Sources)
	assert.False(t, ans.Trained)
	assert.Zero(t, s.emb.queries)
	assert.Zero(t, s.model.calls)
}

func TestOtherTenantsDataDoesNotCountAsTrained(t *testing.T) {
	s := newSetup(t)
	s.seed(t, "bot-2", "Refunds take 14 days.")

	ans, err := s.composer.Answer(context.Background(), s.bot, "refunds?", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, NotTrainedResponse, ans.Text)
	assert.Zero(t, s.model.calls)
}

func TestAnswerUsesOwnSourcesInScoreOrder(t *testing.T) {
	s := newSetup(t)
	s.seed(t, "bot-1", "refund policy refunds take 14 days", "shipping takes two days", "we sell green tea", "store opens at nine")

	ans, err := s.composer.Answer(context.Background(), s.bot, "what is the refund policy", nil, nil)
	require.NoError(t, err)
	assert.True(t, ans.Trained)
	require.Len(t, ans.Sources, DefaultTopK)
	assert.Equal(t, "refund policy refunds take 14 days", ans.Sources[0].Text)
	for i := 1; i < len(ans.Sources); i++ {
		assert.GreaterOrEqual(t, ans.Sources[i-1].Score, ans.Sources[i].Score)
	}
	assert.Equal(t, "Based on our docs: refund policy refunds take 14 days", ans.Text)

	require.Len(t, s.model.last, 2)
	assert.Equal(t, core.RoleSystem, s.model.last[0].Role)
	assert.Equal(t, models.DefaultSystemMessage, s.model.last[0].Content)
	assert.Contains(t, s.model.last[1].Content, "Question: what is the refund policy")

	require.Len(t, s.factory.settings, 1)
	assert.Equal(t, core.ModelSettings{Model: "gemini-1.5-flash", Temperature: models.DefaultTemperature, MaxTokens: models.DefaultMaxTokens}, s.factory.settings[0])
}

func TestTopKBoundedByVectorCount(t *testing.T) {
	s := newSetup(t)
	s.seed(t, "bot-1", "only one fact")

	ans, err := s.composer.Answer(context.Background(), s.bot, "fact?", nil, nil)
	require.NoError(t, err)
	assert.Len(t, ans.Sources, 1)
}

func TestForeignRecordsAreDiscarded(t *testing.T) {
	s := newSetup(t)
	leaky := &leakyIndex{
		MemoryIndex: s.index,
		leak: core.QueryMatch{ID: "x", Score: 0.99, Metadata: models.VectorMetadata{ChatbotID: "bot-2", Text: "secret of bot 2"}},
	}
	// bypass the client so only the composer's own check is exercised
	s.composer.store = &rawStore{Client: s.store, index: leaky}
	s.seed(t, "bot-1", "public fact")

	ans, err := s.composer.Answer(context.Background(), s.bot, "fact?", nil, nil)
	require.NoError(t, err)
	for _, src := range ans.Sources {
		assert.Equal(t, "bot-1", src.Metadata.ChatbotID)
		assert.NotContains(t, src.Text, "secret")
	}
	assert.NotContains(t, s.model.last[1].Content, "secret")
}

type rawStore struct {
	*vectorstore.Client
	index core.VectorIndex
}

func (r *rawStore) Query(ctx context.Context, v []float32, f core.Filter, k int) ([]core.QueryMatch, error) {
	return r.index.Query(ctx, v, f, k)
}

func TestOnlyForeignMatchesGiveNoMatchResponse(t *testing.T) {
	s := newSetup(t)
	s.seed(t, "bot-1", "public fact")
	s.composer.store = &rawStore{Client: s.store, index: &onlyLeak{}}

	ans, err := s.composer.Answer(context.Background(), s.bot, "fact?", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, NoMatchResponse, ans.Text)
	assert.True(t, ans.Trained)
	assert.Zero(t, s.model.calls)
}

type onlyLeak struct{ core.VectorIndex }

func (onlyLeak) Query(context.Context, []float32, core.Filter, int) ([]core.QueryMatch, error) {
	return []core.QueryMatch{{ID: "x", Metadata: models.VectorMetadata{ChatbotID: "bot-2", Text: "secret"}}}, nil
}

func TestStreamingEqualsBatch(t *testing.T) {
	s := newSetup(t)
	s.seed(t, "bot-1", "refund policy refunds take 14 days", "shipping takes two days")

	batch, err := s.composer.Answer(context.Background(), s.bot, "refund policy", nil, nil)
	require.NoError(t, err)

	var tokens []string
	streamed, err := s.composer.Answer(context.Background(), s.bot, "refund policy", nil, func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	})
	require.NoError(t, err)

	assert.Greater(t, len(tokens), 1)
	assert.Equal(t, batch.Text, strings.Join(tokens, ""))
	assert.Equal(t, batch.Text, streamed.Text)
	assert.Equal(t, batch.Sources, streamed.Sources)
}

func TestSinkErrorStopsStream(t *testing.T) {
	s := newSetup(t)
	s.seed(t, "bot-1", "refund policy refunds take 14 days")

	gone := errors.New("client went away")
	n := 0
	_, err := s.composer.Answer(context.Background(), s.bot, "refund policy", nil, func(string) error {
		n++
		return gone
	})
	assert.True(t, errors.Is(err, gone))
	assert.Equal(t, 1, n)
}

func TestHistoryUsesLastThreeTurns(t *testing.T) {
	s := newSetup(t)
	s.seed(t, "bot-1", "fact")

	var history []models.ConversationTurn
	for _, q := range []string{"one", "two", "three", "four"} {
		history = append(history, models.ConversationTurn{User: q, Assistant: "re " + q})
	}
	_, err := s.composer.Answer(context.Background(), s.bot, "fact?", history, nil)
	require.NoError(t, err)

	prompt := s.model.last[1].Content
	assert.NotContains(t, prompt, "User: one")
	assert.Contains(t, prompt, "User: two\nAssistant: re two")
	assert.Contains(t, prompt, "User: four\nAssistant: re four")
}

func TestMessageCounter(t *testing.T) {
	s := newSetup(t)
	s.seed(t, "bot-1", "fact")

	_, err := s.composer.Answer(context.Background(), s.bot, "fact?", nil, nil)
	require.NoError(t, err)
	bot, err := s.db.GetBotByID(context.Background(), "bot-1")
	require.NoError(t, err)
	assert.Equal(t, 1, bot.MessageCount)
	assert.NotNil(t, bot.LastActiveAt)

	// counter failures do not fail the answer
	s.composer.db = brokenDB{s.db}
	ans, err := s.composer.Answer(context.Background(), s.bot, "fact?", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, ans.Text)
}

func TestEmptyQuestion(t *testing.T) {
	s := newSetup(t)
	_, err := s.composer.Answer(context.Background(), s.bot, "   ", nil, nil)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestBotSettingsReachModel(t *testing.T) {
	s := newSetup(t)
	s.seed(t, "bot-1", "fact")
	temp := float32(0.2)
	s.bot.Settings = models.BotSettings{Model: "gemini-1.5-pro", Temperature: &temp, MaxTokens: 256, SystemMessage: "Be brief.", PromptTemplate: "Q={question} C={context}"}

	_, err := s.composer.Answer(context.Background(), s.bot, "fact?", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, core.ModelSettings{Model: "gemini-1.5-pro", Temperature: 0.2, MaxTokens: 256}, s.factory.settings[0])
	assert.Equal(t, "Be brief.", s.model.last[0].Content)
	assert.Equal(t, "Q=fact? C=fact", s.model.last[1].Content)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := strings.Repeat("é", 150)
	p := preview(long)
	assert.True(t, strings.HasSuffix(p, "..."))
	assert.Equal(t, 103, len([]rune(p)))
}
