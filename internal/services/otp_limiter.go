package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), nil
}

type counterStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisOTPLimiter allows at most Limit OTP sends per user per Window.
type RedisOTPLimiter struct {
	client counterStore
	Limit  int64
	Window time.Duration
}

func NewRedisOTPLimiter(client counterStore, limit int64, window time.Duration) *RedisOTPLimiter {
	return &RedisOTPLimiter{client: client, Limit: limit, Window: window}
}

func (l *RedisOTPLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if l.Limit <= 0 {
		return true, nil
	}
	key := "growvia:otp:sends:" + userID
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.Window).Err(); err != nil {
			return false, err
		}
	}
	return count <= l.Limit, nil
}
