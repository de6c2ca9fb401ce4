package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowScript 고정 윈도우 카운터
// 첫 요청에서 만료 시간을 걸고 (현재 카운트, 남은 ms)를 반환한다
var windowScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	return {count, ttl}
`)

// RedisWindowLimiter Redis 기반 분산 Rate Limiter (고정 윈도우)
// 여러 클라이언트 프로세스가 같은 사용자 키를 공유해도 한도가 합산된다
type RedisWindowLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
}

// NewRedisWindowLimiter window 동안 limit회까지 허용
func NewRedisWindowLimiter(client *redis.Client, keyPrefix string, limit int, window time.Duration) *RedisWindowLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisWindowLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}
}

// RateLimitInfo Rate Limit 상세 정보
type RateLimitInfo struct {
	Limit     int           `json:"limit"`
	Remaining int           `json:"remaining"`
	ResetIn   time.Duration `json:"reset_in"`
}

// Take Limiter 구현
func (r *RedisWindowLimiter) Take(ctx context.Context, key string) (bool, error) {
	allowed, _, err := r.TakeWithInfo(ctx, key)
	return allowed, err
}

// TakeWithInfo 요청 허용 여부와 남은 횟수
func (r *RedisWindowLimiter) TakeWithInfo(ctx context.Context, key string) (bool, *RateLimitInfo, error) {
	result, err := windowScript.Run(ctx, r.client, []string{r.keyPrefix + key}, r.window.Milliseconds()).Result()
	if err != nil {
		return false, nil, fmt.Errorf("redis script execution failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return false, nil, fmt.Errorf("invalid script result")
	}
	count, _ := values[0].(int64)
	ttl, _ := values[1].(int64)

	remaining := r.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	info := &RateLimitInfo{
		Limit:     r.limit,
		Remaining: remaining,
		ResetIn:   time.Duration(ttl) * time.Millisecond,
	}
	return int(count) <= r.limit, info, nil
}

// Reset 특정 키의 Rate Limit 초기화
func (r *RedisWindowLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
