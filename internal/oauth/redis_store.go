package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mixelka/codebox/pkg/models"
)

const redisKeyPrefix = "codebox:oauth:"

// RedisAttemptStore shares authorization attempts between instances
type RedisAttemptStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisAttemptStore creates a redis-backed AttemptStore
func NewRedisAttemptStore(client redis.UniversalClient, ttl time.Duration, now func() time.Time) *RedisAttemptStore {
	if now == nil {
		now = time.Now
	}
	return &RedisAttemptStore{client: client, ttl: ttl, now: now}
}

func attemptKey(state string) string {
	return redisKeyPrefix + "attempt:" + state
}

func userKey(userID int64) string {
	return redisKeyPrefix + "user:" + strconv.FormatInt(userID, 10)
}

// Put stores attempt until its creation time plus the TTL
func (s *RedisAttemptStore) Put(ctx context.Context, attempt *models.AuthAttempt) error {
	remaining := s.ttl - s.now().Sub(attempt.CreatedAt)
	if remaining <= 0 {
		return nil
	}

	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to encode attempt: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, attemptKey(attempt.State), data, remaining)
	pipe.SAdd(ctx, userKey(attempt.UserID), attempt.State)
	pipe.Expire(ctx, userKey(attempt.UserID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store attempt: %w", err)
	}
	return nil
}

// Get returns the attempt stored for state
func (s *RedisAttemptStore) Get(ctx context.Context, state string) (*models.AuthAttempt, error) {
	data, err := s.client.Get(ctx, attemptKey(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}

	attempt, err := s.decode(data)
	if errors.Is(err, ErrInvalidState) {
		s.client.Del(ctx, attemptKey(state))
	}
	return attempt, err
}

// Claim marks the pending attempt for state as processing and returns it.
// The update runs under WATCH, so a concurrent claim of the same state fails.
func (s *RedisAttemptStore) Claim(ctx context.Context, state string) (*models.AuthAttempt, error) {
	key := attemptKey(state)

	var claimed *models.AuthAttempt
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrInvalidState
		}
		if err != nil {
			return fmt.Errorf("failed to load attempt: %w", err)
		}

		attempt, err := s.decode(data)
		if err != nil {
			return err
		}
		if attempt.Status != models.AttemptPending {
			return ErrInvalidState
		}

		attempt.Status = models.AttemptProcessing
		encoded, err := json.Marshal(attempt)
		if err != nil {
			return fmt.Errorf("failed to encode attempt: %w", err)
		}
		remaining := s.ttl - s.now().Sub(attempt.CreatedAt)
		if remaining <= 0 {
			return ErrInvalidState
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, remaining)
			return nil
		})
		if err != nil {
			return err
		}
		claimed = attempt
		return nil
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return nil, ErrInvalidState
	case err != nil:
		if !errors.Is(err, ErrInvalidState) {
			err = fmt.Errorf("failed to claim attempt: %w", err)
		}
		return nil, err
	}
	return claimed, nil
}

// decode parses a stored attempt; ErrInvalidState when it outlived the TTL
func (s *RedisAttemptStore) decode(data []byte) (*models.AuthAttempt, error) {
	var attempt models.AuthAttempt
	if err := json.Unmarshal(data, &attempt); err != nil {
		return nil, fmt.Errorf("failed to decode attempt: %w", err)
	}
	// Key TTL and the injected clock may disagree
	if s.now().Sub(attempt.CreatedAt) > s.ttl {
		return nil, ErrInvalidState
	}
	return &attempt, nil
}

// ListPending returns unexpired attempts of a user that have no outcome yet, oldest first
func (s *RedisAttemptStore) ListPending(ctx context.Context, userID int64) ([]*models.AuthAttempt, error) {
	states, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	var pending []*models.AuthAttempt
	for _, state := range states {
		attempt, err := s.Get(ctx, state)
		if errors.Is(err, ErrInvalidState) {
			s.client.SRem(ctx, userKey(userID), state)
			continue
		}
		if err != nil {
			return nil, err
		}
		if attempt.Status.InProgress() {
			pending = append(pending, attempt)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}
