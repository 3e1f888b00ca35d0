package history

import (
	"context"
	"sync"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

// MemoryStore is the in-process history store used when no Redis is configured.
// Sessions never expire.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]models.ConversationTurn
}

var _ core.HistoryStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]models.ConversationTurn)}
}

func (s *MemoryStore) Recent(_ context.Context, botID, sessionID string, n int) ([]models.ConversationTurn, error) {
	if n <= 0 || sessionID == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.sessions[sessionKey(botID, sessionID)]
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return append([]models.ConversationTurn(nil), turns...), nil
}

func (s *MemoryStore) Append(_ context.Context, botID, sessionID string, turn models.ConversationTurn) error {
	if sessionID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(botID, sessionID)
	turns := append(s.sessions[key], turn)
	if len(turns) > MaxTurns {
		turns = turns[len(turns)-MaxTurns:]
	}
	s.sessions[key] = turns
	return nil
}
