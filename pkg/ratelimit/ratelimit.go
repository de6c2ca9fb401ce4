package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter 키 단위 요청 허용 여부 판단
type Limiter interface {
	Take(ctx context.Context, key string) (bool, error)
}

// TokenBucket implements the token bucket algorithm for rate limiting
// capacity개의 토큰이 window 동안 균등하게 다시 채워진다
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	perSecond  float64
	lastRefill time.Time
	clock      clockwork.Clock
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(capacity int64, window time.Duration, clock clockwork.Clock) *TokenBucket {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = time.Second
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		perSecond:  float64(capacity) / window.Seconds(),
		lastRefill: clock.Now(),
		clock:      clock,
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN checks if n requests are allowed and consumes n tokens if so
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

func (tb *TokenBucket) refill() {
	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed.Seconds() * tb.perSecond
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

func (tb *TokenBucket) full() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens >= tb.capacity
}

// RateLimiter manages rate limits for multiple keys (e.g., user IDs, IP addresses)
type RateLimiter struct {
	mu       sync.RWMutex
	buckets  map[string]*TokenBucket
	capacity int64
	window   time.Duration
	clock    clockwork.Clock

	cleanupInterval time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a new rate limiter
// Stop을 호출하면 비활성 버킷 정리 고루틴이 종료된다
func NewRateLimiter(capacity int64, window time.Duration, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	rl := &RateLimiter{
		buckets:         make(map[string]*TokenBucket),
		capacity:        capacity,
		window:          window,
		clock:           clock,
		cleanupInterval: 10 * time.Minute,
		stopChan:        make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow checks if a request from the given key is allowed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getBucket(key).Allow()
}

// Take Limiter 구현
func (rl *RateLimiter) Take(_ context.Context, key string) (bool, error) {
	return rl.Allow(key), nil
}

func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[key]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists = rl.buckets[key]; exists {
		return bucket
	}
	bucket = NewTokenBucket(rl.capacity, rl.window, rl.clock)
	rl.buckets[key] = bucket
	return bucket
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := rl.clock.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			rl.cleanup()
		case <-rl.stopChan:
			return
		}
	}
}

// cleanup 가득 찬(최근에 쓰이지 않은) 버킷 제거
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, bucket := range rl.buckets {
		if bucket.full() {
			delete(rl.buckets, key)
		}
	}
}

// Reset resets the rate limit for a given key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Buckets 활성 버킷 수
func (rl *RateLimiter) Buckets() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.buckets)
}

// Stop 정리 고루틴 종료
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

// Cooldown 키마다 최소 간격을 강제
type Cooldown struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	clock    clockwork.Clock
}

// NewCooldown Cooldown 생성
func NewCooldown(interval time.Duration, clock clockwork.Clock) *Cooldown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cooldown{
		interval: interval,
		last:     make(map[string]time.Time),
		clock:    clock,
	}
}

// Try 간격이 지났으면 시각을 기록하고 true, 아니면 남은 대기 시간을 반환
func (c *Cooldown) Try(key string) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if last, ok := c.last[key]; ok {
		if wait := c.interval - now.Sub(last); wait > 0 {
			return false, wait
		}
	}
	c.last[key] = now
	return true, 0
}

// Interval 설정된 최소 간격
func (c *Cooldown) Interval() time.Duration {
	return c.interval
}
