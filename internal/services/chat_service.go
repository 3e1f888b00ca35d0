package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/core/retrieval"
	"github.com/markdave123-py/botwise/internal/models"
)

// Answerer is satisfied by *retrieval.Composer.
type Answerer interface {
	Answer(ctx context.Context, bot *models.Bot, question string, history []models.ConversationTurn, onToken core.TokenSink) (*retrieval.Answer, error)
}

type ChatService struct {
	db       core.DbClient
	history  core.HistoryStore
	composer Answerer
	log      *zap.Logger
}

func NewChatService(db core.DbClient, history core.HistoryStore, composer Answerer, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{db: db, history: history, composer: composer, log: log}
}

// Ask answers question for the widget of botID. An empty sessionID disables history.
func (s *ChatService) Ask(ctx context.Context, botID, sessionID, question string, onToken core.TokenSink) (*retrieval.Answer, error) {
	bot, err := s.db.GetBotByID(ctx, botID)
	if err != nil {
		return nil, err
	}

	var turns []models.ConversationTurn
	if sessionID != "" && s.history != nil {
		turns, err = s.history.Recent(ctx, botID, sessionID, retrieval.HistoryTurns)
		if err != nil {
			s.log.Warn("load history", zap.String("bot_id", botID), zap.String("session_id", sessionID), zap.Error(err))
			turns = nil
		}
	}

	ans, err := s.composer.Answer(ctx, bot, question, turns, onToken)
	if err != nil {
		return nil, err
	}

	if sessionID != "" && s.history != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		turn := models.ConversationTurn{User: question, Assistant: ans.Text, CreatedAt: time.Now()}
		if err := s.history.Append(hctx, botID, sessionID, turn); err != nil {
			s.log.Warn("append history", zap.String("bot_id", botID), zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return ans, nil
}
