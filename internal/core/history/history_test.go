package history

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

func exerciseStore(t *testing.T, s core.HistoryStore, session string) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < MaxTurns+5; i++ {
		require.NoError(t, s.Append(ctx, "bot-1", session, models.ConversationTurn{
			User: fmt.Sprintf("q%d", i), Assistant: fmt.Sprintf("a%d", i), CreatedAt: time.Now(),
		}))
	}

	recent, err := s.Recent(ctx, "bot-1", session, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, fmt.Sprintf("q%d", MaxTurns+2), recent[0].User)
	assert.Equal(t, fmt.Sprintf("a%d", MaxTurns+4), recent[2].Assistant)

	all, err := s.Recent(ctx, "bot-1", session, 100)
	require.NoError(t, err)
	assert.Len(t, all, MaxTurns)

	other, err := s.Recent(ctx, "bot-2", session, 3)
	require.NoError(t, err)
	assert.Empty(t, other)

	none, err := s.Recent(ctx, "bot-1", "", 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(), "s1")
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	rdb, err := NewRedisClient(context.Background(), url)
	require.NoError(t, err)
	defer rdb.Close()

	session := uuid.NewString()
	t.Cleanup(func() { rdb.Del(context.Background(), sessionKey("bot-1", session)) })
	exerciseStore(t, NewRedisStore(rdb, time.Minute, zap.NewNop()), session)
}

func TestSessionKeyIsScopedByBot(t *testing.T) {
	assert.NotEqual(t, sessionKey("bot-1", "s"), sessionKey("bot-2", "s"))
	assert.Equal(t, "botwise:history:bot-1:s", sessionKey("bot-1", "s"))
}
