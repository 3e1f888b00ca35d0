package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

// MaxTurns is how many turns a session keeps.
const MaxTurns = 20

// NewRedisClient accepts a redis:// or rediss:// URL, or a bare host:port.
func NewRedisClient(ctx context.Context, val string) (*redis.Client, error) {
	if val == "" {
		return nil, errors.New("REDIS_URL is empty")
	}
	var rdb *redis.Client
	if strings.HasPrefix(val, "redis://") || strings.HasPrefix(val, "rediss://") {
		opt, err := redis.ParseURL(val)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
	} else {
		rdb = redis.NewClient(&redis.Options{Addr: val})
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// RedisStore keeps each session as a capped list of JSON turns that expires
// after ttl of inactivity.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

var _ core.HistoryStore = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *RedisStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, ttl: ttl, log: log}
}

func sessionKey(botID, sessionID string) string {
	return "botwise:history:" + botID + ":" + sessionID
}

func (s *RedisStore) Recent(ctx context.Context, botID, sessionID string, n int) ([]models.ConversationTurn, error) {
	if n <= 0 || sessionID == "" {
		return nil, nil
	}
	raw, err := s.rdb.LRange(ctx, sessionKey(botID, sessionID), int64(-n), -1).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	out := make([]models.ConversationTurn, 0, len(raw))
	for _, r := range raw {
		var t models.ConversationTurn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			s.log.Warn("skipping corrupt history entry", zap.String("bot_id", botID), zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisStore) Append(ctx context.Context, botID, sessionID string, turn models.ConversationTurn) error {
	if sessionID == "" {
		return nil
	}
	b, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	key := sessionKey(botID, sessionID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, b)
		p.LTrim(ctx, key, -MaxTurns, -1)
		if s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
