package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ExpiredGrace is how long Redis keeps an entry past its deadline so that
// late submissions are reported as expired rather than missing.
const ExpiredGrace = time.Minute

// RedisOTPStore keeps one binary record per email under "<prefix>:<email>".
type RedisOTPStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisOTPStore creates a store in the prefix namespace ("aotp" when empty).
func NewRedisOTPStore(client redis.UniversalClient, prefix string, now func() time.Time) *RedisOTPStore {
	if prefix == "" {
		prefix = "aotp"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisOTPStore{redis: client, prefix: prefix, now: now}
}

func (s *RedisOTPStore) key(email string) string {
	return s.prefix + ":" + email
}

func (s *RedisOTPStore) Put(ctx context.Context, email string, e OTPEntry) error {
	encoded, err := encodeOTPEntry(e)
	if err != nil {
		return err
	}

	ttl := e.ExpiresAt.Sub(s.now()) + ExpiredGrace
	if ttl <= 0 {
		ttl = ExpiredGrace
	}
	if err := s.redis.Set(ctx, s.key(email), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}
	return nil
}

func (s *RedisOTPStore) Get(ctx context.Context, email string) (OTPEntry, bool, error) {
	data, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return OTPEntry{}, false, nil
		}
		return OTPEntry{}, false, fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}

	e, err := decodeOTPEntry(data)
	if err != nil {
		return OTPEntry{}, false, err
	}
	return e, true, nil
}

func (s *RedisOTPStore) Delete(ctx context.Context, email string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(email)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOTPBackend, err)
	}
	return n > 0, nil
}

func (s *RedisOTPStore) RecordFailure(ctx context.Context, email string, maxAttempts int) (int, bool, error) {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		var (
			attempts int
			exceeded bool
		)
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			e, err := decodeOTPEntry(data)
			if err != nil {
				return err
			}

			e.Attempts++
			attempts = e.Attempts
			if e.Attempts >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			ttl, err := tx.PTTL(ctx, key).Result()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = ExpiredGrace
			}
			updated, err := encodeOTPEntry(e)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return 0, false, ErrOTPNotFound
			}
			if errors.Is(err, ErrOTPCorrupt) {
				return 0, false, err
			}
			return 0, false, fmt.Errorf("%w: %v", ErrOTPBackend, err)
		}
		return attempts, exceeded, nil
	}

	return 0, false, fmt.Errorf("%w: too much contention", ErrOTPBackend)
}

// Cleanup is a no-op: entries carry a TTL past their deadline.
func (s *RedisOTPStore) Cleanup(context.Context) (int, error) {
	return 0, nil
}
