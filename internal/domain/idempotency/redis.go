package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "trackgate:idem:"

// RedisStore is the shared Store for multi-instance deployments. The
// reserve check-and-set runs under a short redsync mutex so two gateway
// instances racing on one key cannot both reserve it; the record itself
// carries the full TTL.
type RedisStore struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

// remainingTTL is the record's unexpired lifetime against the store
// clock, so an injected clock drives expiry the same way it does for
// the memory store.
func (s *RedisStore) remainingTTL(rec Record) time.Duration {
	return rec.ExpiresAt.Sub(s.now())
}

func (s *RedisStore) recordKey(key Key) string {
	return redisKeyPrefix + key.String()
}

func (s *RedisStore) lockKey(key Key) string {
	return redisKeyPrefix + "lock:" + key.String()
}

func (s *RedisStore) Reserve(ctx context.Context, key Key, fingerprint string) (Reservation, error) {
	mutex := s.rs.NewMutex(s.lockKey(key), redsync.WithExpiry(10*time.Second))
	if err := mutex.LockContext(ctx); err != nil {
		return Reservation{}, fmt.Errorf("acquire idempotency lock: %w", err)
	}
	defer func() {
		_, _ = mutex.UnlockContext(ctx)
	}()

	raw, err := s.client.Get(ctx, s.recordKey(key)).Bytes()
	switch {
	case err == nil:
		var rec Record
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr != nil {
			// Unreadable record: treat as absent, a fresh reservation
			// overwrites it below.
			break
		}
		switch {
		case rec.Pending:
			return Reservation{State: StateInProgress}, nil
		case rec.Fingerprint != fingerprint:
			return Reservation{State: StateConflict}, nil
		default:
			return Reservation{State: StateReplayed, Result: rec.Result}, nil
		}
	case !errors.Is(err, redis.Nil):
		return Reservation{}, fmt.Errorf("read idempotency record: %w", err)
	}

	now := s.now()
	rec := Record{
		Key:         key.Key,
		Tenant:      key.Tenant,
		Action:      key.Action,
		Fingerprint: fingerprint,
		Pending:     true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return Reservation{}, fmt.Errorf("encode idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, s.recordKey(key), payload, s.ttl).Err(); err != nil {
		return Reservation{}, fmt.Errorf("write idempotency reservation: %w", err)
	}
	return Reservation{State: StateReserved}, nil
}

func (s *RedisStore) Commit(ctx context.Context, key Key, result []byte) error {
	raw, err := s.client.Get(ctx, s.recordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read idempotency record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decode idempotency record: %w", err)
	}
	rec.Pending = false
	rec.Result = result

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	remaining := s.remainingTTL(rec)
	if remaining <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.recordKey(key), payload, remaining).Err(); err != nil {
		return fmt.Errorf("commit idempotency record: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key Key) error {
	raw, err := s.client.Get(ctx, s.recordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read idempotency record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil || !rec.Pending {
		return nil
	}
	if err := s.client.Del(ctx, s.recordKey(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency reservation: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
