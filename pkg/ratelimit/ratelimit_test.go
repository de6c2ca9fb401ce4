package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_Allow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bucket := NewTokenBucket(5, 5*time.Second, clock) // 초당 1개

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, bucket.Allow(), "6th request should be denied")

	clock.Advance(time.Second)
	assert.True(t, bucket.Allow(), "request after refill should be allowed")
	assert.False(t, bucket.Allow())
}

func TestTokenBucket_AllowN(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bucket := NewTokenBucket(10, 5*time.Second, clock) // 초당 2개

	assert.True(t, bucket.AllowN(10))
	assert.False(t, bucket.AllowN(1))

	clock.Advance(time.Second)
	assert.True(t, bucket.AllowN(2))
	assert.False(t, bucket.AllowN(1))
}

func TestTokenBucket_PartialRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bucket := NewTokenBucket(20, 10*time.Second, clock)

	assert.True(t, bucket.AllowN(20))
	clock.Advance(250 * time.Millisecond) // 0.5개
	assert.False(t, bucket.Allow())
	clock.Advance(250 * time.Millisecond)
	assert.True(t, bucket.Allow())
}

func TestTokenBucket_CapsAtCapacity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bucket := NewTokenBucket(3, time.Second, clock)

	clock.Advance(time.Hour)
	assert.True(t, bucket.AllowN(3))
	assert.False(t, bucket.Allow())
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(3, 3*time.Second, clockwork.NewFakeClock())
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("user1"), "request %d for user1 should be allowed", i+1)
	}
	assert.False(t, limiter.Allow("user1"))

	// 다른 키는 별도 버킷
	ok, err := limiter.Take(context.Background(), "user2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter := NewRateLimiter(2, time.Second, clockwork.NewFakeClock())
	defer limiter.Stop()

	limiter.Allow("test")
	limiter.Allow("test")
	assert.False(t, limiter.Allow("test"))

	limiter.Reset("test")
	assert.True(t, limiter.Allow("test"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(2, time.Second, clock)
	defer limiter.Stop()

	limiter.Allow("idle")
	limiter.Allow("busy")
	limiter.Allow("busy")
	require.Equal(t, 2, limiter.Buckets())

	clock.Advance(500 * time.Millisecond)
	limiter.cleanup()
	assert.Equal(t, 1, limiter.Buckets(), "only the refilled bucket is dropped")

	clock.Advance(time.Second)
	limiter.cleanup()
	assert.Equal(t, 0, limiter.Buckets())
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewRateLimiter(100, 10*time.Second, clockwork.NewFakeClock())
	defer limiter.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if limiter.Allow("concurrent") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
	assert.Equal(t, 1, limiter.Buckets())
}

func TestCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cd := NewCooldown(2*time.Second, clock)

	ok, _ := cd.Try("alice")
	assert.True(t, ok)

	clock.Advance(500 * time.Millisecond)
	ok, wait := cd.Try("alice")
	assert.False(t, ok)
	assert.Equal(t, 1500*time.Millisecond, wait)

	ok, _ = cd.Try("bob")
	assert.True(t, ok, "keys are independent")

	clock.Advance(1500 * time.Millisecond)
	ok, _ = cd.Try("alice")
	assert.True(t, ok)
}

func BenchmarkTokenBucket_Allow(b *testing.B) {
	bucket := NewTokenBucket(1000000, time.Second, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bucket.Allow()
	}
}
