package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobboard-agent/internal/domain"
)

const redisKeyPrefix = "session:"

// RedisStore keeps each session as a JSON value under session:<id>, using
// WATCH/MULTI for compare-and-swap.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	return &RedisStore{client: client, now: time.Now}, nil
}

func redisKey(conversationID string) string {
	return redisKeyPrefix + conversationID
}

func (r *RedisStore) Get(ctx context.Context, conversationID string) (domain.Session, bool, error) {
	b, err := r.client.Get(ctx, redisKey(conversationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: redis get: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: redis decode: %w", err)
	}
	return s, true, nil
}

func (r *RedisStore) Put(ctx context.Context, s domain.Session, expectedVersion int64) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("repository: redis encode: %w", err)
	}
	key := redisKey(s.ConversationID)

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expectedVersion != 0 {
				return ErrVersionConflict
			}
		case err != nil:
			return err
		default:
			var stored domain.Session
			if err := json.Unmarshal(cur, &stored); err != nil {
				return fmt.Errorf("repository: redis decode: %w", err)
			}
			if stored.State == domain.StateTerminated || stored.Version != expectedVersion {
				return ErrVersionConflict
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, sessionTTL)
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	}
	return fmt.Errorf("repository: redis put: %w", err)
}

func (r *RedisStore) Clear(ctx context.Context, conversationID string) error {
	b, err := json.Marshal(domain.Tombstone(conversationID, r.now()))
	if err != nil {
		return fmt.Errorf("repository: redis encode: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(conversationID), b, tombstoneTTL).Err(); err != nil {
		return fmt.Errorf("repository: redis clear: %w", err)
	}
	return nil
}
