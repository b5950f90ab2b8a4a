package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOTPStore keeps OTPs in redis under otp:<mobile> with the TTL
// enforced by redis itself
type RedisOTPStore struct {
	client *redis.Client
}

// NewRedisOTPStore creates a redis-backed OTP store
func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

func (s *RedisOTPStore) Put(ctx context.Context, mobileNumber, code string, ttl time.Duration) error {
	return s.client.Set(ctx, otpKey(mobileNumber), code, ttl).Err()
}

func (s *RedisOTPStore) Get(ctx context.Context, mobileNumber string) (string, bool, error) {
	code, err := s.client.Get(ctx, otpKey(mobileNumber)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get otp: %w", err)
	}
	return code, true, nil
}

func (s *RedisOTPStore) Delete(ctx context.Context, mobileNumber string) error {
	return s.client.Del(ctx, otpKey(mobileNumber)).Err()
}

// RedisRefreshStore keeps the issued refresh token under
// refresh:<mobile>:<device>
type RedisRefreshStore struct {
	client *redis.Client
}

// NewRedisRefreshStore creates a redis-backed refresh store
func NewRedisRefreshStore(client *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{client: client}
}

func (s *RedisRefreshStore) Put(ctx context.Context, mobileNumber, deviceID, token string, ttl time.Duration) error {
	return s.client.Set(ctx, refreshKey(mobileNumber, deviceID), token, ttl).Err()
}

func (s *RedisRefreshStore) Get(ctx context.Context, mobileNumber, deviceID string) (string, bool, error) {
	token, err := s.client.Get(ctx, refreshKey(mobileNumber, deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get refresh token: %w", err)
	}
	return token, true, nil
}

func (s *RedisRefreshStore) Delete(ctx context.Context, mobileNumber, deviceID string) error {
	return s.client.Del(ctx, refreshKey(mobileNumber, deviceID)).Err()
}

// RedisUserDirectory keeps completed profiles as JSON under user:<mobile>
type RedisUserDirectory struct {
	client *redis.Client
}

// NewRedisUserDirectory creates a redis-backed user directory
func NewRedisUserDirectory(client *redis.Client) *RedisUserDirectory {
	return &RedisUserDirectory{client: client}
}

func (d *RedisUserDirectory) Exists(ctx context.Context, mobileNumber string) (bool, error) {
	count, err := d.client.Exists(ctx, userKey(mobileNumber)).Result()
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return count > 0, nil
}

func (d *RedisUserDirectory) Save(ctx context.Context, rec UserRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}
	return d.client.Set(ctx, userKey(rec.MobileNumber), raw, 0).Err()
}
