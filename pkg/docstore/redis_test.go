package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 테스트용 DB
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available:", err)
	}
	return client
}

func setupRedisStore(t *testing.T) *RedisStore {
	client := newTestRedisClient(t)

	// 테스트 전 DB 초기화
	client.FlushDB(context.Background())

	return NewRedisStore(client, "test:", nil)
}

// setupRedisPair 같은 DB를 공유하는 두 클라이언트(호스트) 저장소
func setupRedisPair(t *testing.T) (*RedisStore, *RedisStore) {
	hostA := setupRedisStore(t)
	hostB := NewRedisStore(newTestRedisClient(t), "test:", nil)
	t.Cleanup(func() {
		hostB.Close()
		hostA.Close()
	})
	return hostA, hostB
}

func TestRedisStore_CRUDAndQuery(t *testing.T) {
	store := setupRedisStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "waiting/alice", map[string]any{"commType": "chat", "searching": true}))
	require.NoError(t, store.Set(ctx, "waiting/bob", map[string]any{"commType": "video", "searching": true}))

	docs, err := store.Query(ctx, Query{Collection: "waiting"}.Where("commType", "chat"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alice", docs[0].ID)

	require.NoError(t, store.Merge(ctx, "waiting/alice", map[string]any{"searching": false}))
	doc, err := store.Get(ctx, "waiting/alice")
	require.NoError(t, err)
	assert.Equal(t, false, doc.Data["searching"])
	assert.Equal(t, "chat", doc.Data["commType"])

	require.NoError(t, store.Delete(ctx, "waiting/alice"))
	_, err = store.Get(ctx, "waiting/alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ConcurrentClaimSingleWinner(t *testing.T) {
	store := setupRedisStore(t)
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won := false
			err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
				won = false
				if _, err := tx.Get("calls/a_b"); err == nil {
					return nil
				}
				won = true
				return tx.Set("calls/a_b", map[string]any{"status": "connecting"})
			})
			assert.NoError(t, err)
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestRedisStore_WatchQuery(t *testing.T) {
	store := setupRedisStore(t)
	defer store.Close()
	ctx := context.Background()

	_, err := store.Add(ctx, "calls/a_b/candidates", map[string]any{"n": 0})
	require.NoError(t, err)

	sub, err := store.WatchQuery(ctx, Query{Collection: "calls/a_b/candidates"})
	require.NoError(t, err)
	defer sub.Cancel()

	for i := 1; i <= 5; i++ {
		_, err := store.Add(ctx, "calls/a_b/candidates", map[string]any{"n": i})
		require.NoError(t, err)
	}
	for i := 0; i <= 5; i++ {
		ev := nextEvent(t, sub)
		assert.Equal(t, Added, ev.Type)
		assert.Equal(t, float64(i), ev.Doc.Data["n"])
	}
}

func TestRedisStore_DrainCollection(t *testing.T) {
	store := setupRedisStore(t)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := store.Add(ctx, "calls/a_b/messages", map[string]any{"i": i})
		require.NoError(t, err)
	}

	total, err := DrainCollection(ctx, store, "calls/a_b/messages", 10)
	require.NoError(t, err)
	assert.Equal(t, 25, total)

	docs, err := store.Query(ctx, Query{Collection: "calls/a_b/messages"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRedisStore_TwoClientsSignaling(t *testing.T) {
	hostA, hostB := setupRedisPair(t)
	ctx := context.Background()

	sub, err := hostA.WatchDocument(ctx, "calls/x")
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, hostA.Merge(ctx, "calls/x", map[string]any{"offer": "o"}))
	ev := nextEvent(t, sub)
	assert.Equal(t, Added, ev.Type)

	require.NoError(t, hostB.Merge(ctx, "calls/x", map[string]any{"answer": "a"}))
	ev = nextEvent(t, sub)
	assert.Equal(t, Modified, ev.Type)
	assert.Equal(t, "a", ev.Doc.Data["answer"])
	assert.Equal(t, "o", ev.Doc.Data["offer"])

	require.NoError(t, hostB.Merge(ctx, "calls/x", map[string]any{"status": "ended"}))
	ev = nextEvent(t, sub)
	assert.Equal(t, Modified, ev.Type)
	assert.Equal(t, "ended", ev.Doc.Data["status"])
}

func TestRedisStore_DedupeIgnoresWallClock(t *testing.T) {
	store := setupRedisStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "calls/x", map[string]any{"offer": "o"}))
	doc, err := store.Get(ctx, "calls/x")
	require.NoError(t, err)

	sub, err := store.WatchDocument(ctx, "calls/x")
	require.NoError(t, err)
	defer sub.Cancel()
	assert.Equal(t, Added, nextEvent(t, sub).Type)

	before := &redisRecord{Data: doc.Data, Version: doc.rev, Seq: doc.rev}
	publish := func(data map[string]any, version int64) {
		// 시계가 크게 뒤처진 호스트가 쓴 것처럼 Updated를 과거로 둔다
		msg, err := json.Marshal(redisChange{
			Path:   "calls/x",
			Before: before,
			After:  &redisRecord{Data: data, Updated: 1, Version: version, Seq: doc.rev},
		})
		require.NoError(t, err)
		require.NoError(t, store.client.Publish(ctx, store.chgKey("calls"), msg).Err())
	}

	// 이미 본 리비전의 재전송은 건너뛰고 더 높은 리비전은 시각과 무관하게 전달
	publish(map[string]any{"offer": "replayed"}, doc.rev)
	publish(map[string]any{"offer": "o", "answer": "a"}, doc.rev+1)

	ev := nextEvent(t, sub)
	assert.Equal(t, Modified, ev.Type)
	assert.Equal(t, "a", ev.Doc.Data["answer"])
}

func TestRedisStore_SameInstantAddsKeepOrder(t *testing.T) {
	hostA, hostB := setupRedisPair(t)
	ctx := context.Background()
	hosts := []*RedisStore{hostA, hostB}

	const total = 8
	for i := 0; i < total; i++ {
		_, err := hosts[i%2].Add(ctx, "calls/x/candidates", map[string]any{"n": i})
		require.NoError(t, err)
	}

	docs, err := hostB.Query(ctx, Query{Collection: "calls/x/candidates"})
	require.NoError(t, err)
	require.Len(t, docs, total)
	for i, d := range docs {
		assert.Equal(t, float64(i), d.Data["n"], fmt.Sprintf("position %d", i))
	}

	sub, err := hostA.WatchQuery(ctx, Query{Collection: "calls/x/candidates"})
	require.NoError(t, err)
	defer sub.Cancel()
	for i := 0; i < total; i++ {
		ev := nextEvent(t, sub)
		assert.Equal(t, Added, ev.Type)
		assert.Equal(t, float64(i), ev.Doc.Data["n"])
	}

	// 삭제 후 다시 넣은 항목은 대기열 맨 뒤로 간다
	require.NoError(t, hostA.Set(ctx, "waiting/u1", map[string]any{"n": 1}))
	require.NoError(t, hostB.Set(ctx, "waiting/u2", map[string]any{"n": 2}))
	require.NoError(t, hostA.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Delete("waiting/u1"); err != nil {
			return err
		}
		return tx.Set("waiting/u1", map[string]any{"n": 3})
	}))
	docs, err = hostB.Query(ctx, Query{Collection: "waiting"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "u2", docs[0].ID)
	assert.Equal(t, "u1", docs[1].ID)
}
