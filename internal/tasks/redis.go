package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/axiom/ucws/internal/database"
	"github.com/axiom/ucws/internal/models"
)

// RedisStore keeps tasks as JSON values with a creation-time index. Entries
// expire after ttl; a zero ttl keeps them forever.
type RedisStore struct {
	client *redis.Client
	keys   *database.Redis
	ttl    time.Duration
}

// NewRedisStore creates a store on an open client
func NewRedisStore(r *database.Redis, ttl time.Duration) *RedisStore {
	return &RedisStore{client: r.Client(), keys: r, ttl: ttl}
}

func (s *RedisStore) taskKey(id string) string { return s.keys.Key("task", id) }

func (s *RedisStore) indexKey() string { return s.keys.Key("tasks") }

func (s *RedisStore) Save(ctx context.Context, t models.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.taskKey(t.ID), data, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(t.CreatedAt.UnixNano()), Member: t.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	var t models.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	out := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// expired; drop it from the index
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}
