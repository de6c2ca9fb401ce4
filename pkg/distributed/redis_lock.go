package distributed

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// 자신이 획득한 락만 TTL 연장
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLock Redis 기반 분산 락
type RedisLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// RedisLockManager Redis 분산 락 관리자
type RedisLockManager struct {
	client *redis.Client
	prefix string
}

// NewRedisLockManager Redis Lock Manager 생성 (모든 키에 prefix가 붙는다)
func NewRedisLockManager(client *redis.Client, prefix string) *RedisLockManager {
	return &RedisLockManager{
		client: client,
		prefix: prefix,
	}
}

// AcquireLock 분산 락 획득 시도
func (m *RedisLockManager) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (*RedisLock, error) {
	fullKey := m.prefix + key

	// SET NX (Not Exists) 명령으로 원자적 락 획득
	success, err := m.client.SetNX(ctx, fullKey, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !success {
		return nil, ErrLockNotAcquired
	}

	return &RedisLock{
		client: m.client,
		key:    fullKey,
		value:  value,
		ttl:    ttl,
	}, nil
}

// Release 락 해제
func (l *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend 락 TTL 연장
func (l *RedisLock) Extend(ctx context.Context, extension time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, extension.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	l.ttl = extension
	return nil
}

// IsHeld 락이 현재 유효한지 확인
func (l *RedisLock) IsHeld(ctx context.Context) (bool, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == l.value, nil
}

// JobLocker gocron 분산 작업 락
// 같은 이름의 작업은 여러 클라이언트 중 하나만 실행한다
type JobLocker struct {
	manager *RedisLockManager
	owner   string
	ttl     time.Duration
}

// NewJobLocker owner 식별자를 새로 만들어 JobLocker 생성
func NewJobLocker(manager *RedisLockManager, ttl time.Duration) *JobLocker {
	return &JobLocker{
		manager: manager,
		owner:   uuid.New().String(),
		ttl:     ttl,
	}
}

// Lock gocron.Locker 구현
func (j *JobLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	lock, err := j.manager.AcquireLock(ctx, "job:"+key, j.owner, j.ttl)
	if err != nil {
		return nil, err
	}
	return jobLock{lock: lock}, nil
}

type jobLock struct {
	lock *RedisLock
}

// Unlock gocron.Lock 구현 (TTL로 이미 만료된 락은 에러 없이 무시)
func (l jobLock) Unlock(ctx context.Context) error {
	if err := l.lock.Release(ctx); err != nil && !errors.Is(err, ErrLockNotHeld) {
		return err
	}
	return nil
}

var _ gocron.Locker = (*JobLocker)(nil)
