package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/loan-desk-api/pkg/errors"
)

const quotaCachePrefix = "loan-desk:quota:"

// QuotaCacheRepository keeps quota status snapshots in redis. Each user has an
// index set listing their slot keys so invalidation never scans the keyspace.
type QuotaCacheRepository struct {
	client redis.UniversalClient
}

// NewQuotaCacheRepository constructs the repository.
func NewQuotaCacheRepository(client redis.UniversalClient) *QuotaCacheRepository {
	return &QuotaCacheRepository{client: client}
}

func quotaSlotKey(userID, slot string) string {
	return quotaCachePrefix + userID + ":" + slot
}

func quotaIndexKey(userID string) string {
	return quotaCachePrefix + userID + ":slots"
}

// Get decodes the snapshot for the user and slot into dest. A missing entry
// yields appErrors.ErrCacheMiss.
func (r *QuotaCacheRepository) Get(ctx context.Context, userID, slot string, dest interface{}) error {
	raw, err := r.client.Get(ctx, quotaSlotKey(userID, slot)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get quota %s/%s: %w", userID, slot, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode quota %s/%s: %w", userID, slot, err)
	}
	return nil
}

// Set stores the snapshot and registers the slot in the user's index.
func (r *QuotaCacheRepository) Set(ctx context.Context, userID, slot string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode quota %s/%s: %w", userID, slot, err)
	}
	key := quotaSlotKey(userID, slot)
	index := quotaIndexKey(userID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, ttl)
		pipe.SAdd(ctx, index, key)
		pipe.Expire(ctx, index, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set quota %s/%s: %w", userID, slot, err)
	}
	return nil
}

// Forget removes every cached snapshot of the user.
func (r *QuotaCacheRepository) Forget(ctx context.Context, userID string) error {
	index := quotaIndexKey(userID)
	keys, err := r.client.SMembers(ctx, index).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis list quota slots %s: %w", userID, err)
	}
	keys = append(keys, index)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis forget quota %s: %w", userID, err)
	}
	return nil
}
