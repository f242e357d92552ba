package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loopcraft/iamd/internal/domain"
	"github.com/loopcraft/iamd/internal/repository"
)

// RedisOTPStore implements repository.OTPStore backed by Redis. The record
// TTL doubles as a hard eviction bound; an evicted record is indistinguishable
// from one that never existed, which both restart the reset flow.
type RedisOTPStore struct {
	client redis.UniversalClient
}

var _ repository.OTPStore = (*RedisOTPStore)(nil)

// NewRedisOTPStore constructs a Redis-backed passcode store.
func NewRedisOTPStore(client redis.UniversalClient) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

func otpKey(email string) string {
	return "otp:reset:" + strings.ToLower(strings.TrimSpace(email))
}

// Save stores the encoded passcode record with TTL, replacing any prior record.
func (s *RedisOTPStore) Save(ctx context.Context, email string, record domain.OTPRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal otp record: %w", err)
	}
	if err := s.client.Set(ctx, otpKey(email), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist otp record: %w: %v", domain.ErrExternal, err)
	}
	return nil
}

// Get loads and decodes the passcode record; (nil, nil) when absent.
func (s *RedisOTPStore) Get(ctx context.Context, email string) (*domain.OTPRecord, error) {
	bytes, err := s.client.Get(ctx, otpKey(email)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load otp record: %w: %v", domain.ErrExternal, err)
	}
	var record domain.OTPRecord
	if err := json.Unmarshal(bytes, &record); err != nil {
		return nil, fmt.Errorf("decode otp record: %w", err)
	}
	return &record, nil
}

// Delete removes the persisted passcode record.
func (s *RedisOTPStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, otpKey(email)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete otp record: %w: %v", domain.ErrExternal, err)
	}
	return nil
}
