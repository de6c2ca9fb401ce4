package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxTxRetries = 16

// redisRecord Redis에 저장되는 문서 표현
// Version은 마지막 쓰기의 리비전, Seq는 생성 시점의 리비전이며
// 둘 다 {prefix}rev 카운터에서 발급되어 모든 클라이언트에 걸쳐 단조 증가한다
type redisRecord struct {
	Data    map[string]any `json:"data"`
	Created int64          `json:"created"`
	Updated int64          `json:"updated"`
	Version int64          `json:"version"`
	Seq     int64          `json:"seq"`
}

// redisChange 변경 피드 메시지
type redisChange struct {
	Path   string       `json:"path"`
	Before *redisRecord `json:"before,omitempty"`
	After  *redisRecord `json:"after,omitempty"`
}

// RedisStore Redis 기반 문서 저장소
//
// 문서는 {prefix}doc:{path}에 JSON으로, 컬렉션 인덱스는 {prefix}col:{collection}
// sorted set(생성 리비전 점수)으로 유지된다. 모든 쓰기는 WATCH/MULTI 트랜잭션으로
// 적용되며 같은 MULTI 안에서 {prefix}chg:{collection} 채널로 변경이 발행된다.
// 생성/수정 시각은 Redis 서버 시계(TIME)를 따른다.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewRedisStore RedisStore 생성
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
		subs:   make(map[*Subscription]struct{}),
	}
}

func (s *RedisStore) docKey(path string) string       { return s.prefix + "doc:" + path }
func (s *RedisStore) colKey(collection string) string { return s.prefix + "col:" + collection }
func (s *RedisStore) chgKey(collection string) string { return s.prefix + "chg:" + collection }
func (s *RedisStore) revKey() string                  { return s.prefix + "rev" }

func (r *redisRecord) document(path string) *Document {
	if r == nil {
		return nil
	}
	_, id, _ := splitDocPath(path)
	data := r.Data
	if data == nil {
		data = map[string]any{}
	}
	return &Document{
		ID:         id,
		Path:       path,
		Data:       data,
		CreateTime: time.Unix(0, r.Created),
		UpdateTime: time.Unix(0, r.Updated),
		rev:        r.Version,
	}
}

func decodeRecord(raw string) (*redisRecord, error) {
	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("corrupt document record: %w", err)
	}
	return &rec, nil
}

// Get 문서 조회
func (s *RedisStore) Get(ctx context.Context, path string) (*Document, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}
	raw, err := s.client.Get(ctx, s.docKey(path)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	return rec.document(path), nil
}

// Set 문서 전체 쓰기
func (s *RedisStore) Set(ctx context.Context, path string, data any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(path, data)
	})
}

// Merge 최상위 필드 병합 (없으면 생성)
func (s *RedisStore) Merge(ctx context.Context, path string, data any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Merge(path, data)
	})
}

// Delete 문서 삭제 (없어도 에러 아님)
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Delete(path)
	})
}

// Add 자동 생성 ID로 문서 추가
func (s *RedisStore) Add(ctx context.Context, collection string, data any) (string, error) {
	if err := validCollection(collection); err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := s.Set(ctx, Join(collection, id), data); err != nil {
		return "", err
	}
	return id, nil
}

// load 컬렉션 문서를 생성 순서대로 조회
func (s *RedisStore) load(ctx context.Context, collection string, limit int) ([]*Document, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRange(ctx, s.colKey(collection), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(Join(collection, id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			s.logger.Warn("Skipping corrupt document", zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		docs = append(docs, rec.document(Join(collection, ids[i])))
	}
	return docs, nil
}

// Query 컬렉션 조회
func (s *RedisStore) Query(ctx context.Context, q Query) ([]*Document, error) {
	if err := validCollection(q.Collection); err != nil {
		return nil, err
	}
	docs, err := s.load(ctx, q.Collection, 0)
	if err != nil {
		return nil, err
	}
	return q.apply(docs), nil
}

// DeleteBatch 컬렉션에서 최대 limit개 문서 삭제
func (s *RedisStore) DeleteBatch(ctx context.Context, collection string, limit int) (int, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	docs, err := s.load(ctx, collection, limit)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	err = s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		for _, d := range docs {
			if err := tx.Delete(d.Path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	// 동시에 삭제된 문서도 처리된 것으로 센다
	return len(docs), nil
}

type redisWrite struct {
	path   string
	data   map[string]any
	merge  bool
	delete bool
}

type redisTx struct {
	ctx    context.Context
	store  *RedisStore
	tx     *redis.Tx
	reads  map[string]*redisRecord
	writes []redisWrite
}

func (t *redisTx) read(path string) (*redisRecord, error) {
	if rec, ok := t.reads[path]; ok {
		return rec, nil
	}
	key := t.store.docKey(path)
	if err := t.tx.Watch(t.ctx, key).Err(); err != nil {
		return nil, err
	}
	raw, err := t.tx.Get(t.ctx, key).Result()
	if err == redis.Nil {
		t.reads[path] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	t.reads[path] = rec
	return rec, nil
}

func (t *redisTx) Get(path string) (*Document, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}
	rec, err := t.read(path)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec.document(path), nil
}

func (t *redisTx) write(path string, data any, merge bool) error {
	if _, _, err := splitDocPath(path); err != nil {
		return err
	}
	m, err := normalize(data)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, redisWrite{path: path, data: m, merge: merge})
	return nil
}

func (t *redisTx) Set(path string, data any) error   { return t.write(path, data, false) }
func (t *redisTx) Merge(path string, data any) error { return t.write(path, data, true) }

func (t *redisTx) Delete(path string) error {
	if _, _, err := splitDocPath(path); err != nil {
		return err
	}
	t.writes = append(t.writes, redisWrite{path: path, delete: true})
	return nil
}

// commit 쓰기 대상 문서를 감시한 뒤 MULTI로 적용하고 변경을 발행
func (t *redisTx) commit() error {
	if len(t.writes) == 0 {
		return nil
	}
	for _, w := range t.writes {
		if _, err := t.read(w.path); err != nil {
			return err
		}
	}

	serverTime, err := t.tx.Time(t.ctx).Result()
	if err != nil {
		return err
	}
	now := serverTime.UnixNano()
	// 리비전은 WATCH 이후에 발급되므로 같은 문서에 대해 커밋 순서와 일치한다
	rev, err := t.tx.IncrBy(t.ctx, t.store.revKey(), int64(len(t.writes))).Result()
	if err != nil {
		return err
	}
	rev -= int64(len(t.writes))

	current := make(map[string]*redisRecord, len(t.reads))
	for path, rec := range t.reads {
		current[path] = rec
	}

	_, err = t.tx.TxPipelined(t.ctx, func(pipe redis.Pipeliner) error {
		for _, w := range t.writes {
			rev++
			collection, id, _ := splitDocPath(w.path)
			before := current[w.path]
			change := redisChange{Path: w.path, Before: before}

			if w.delete {
				if before == nil {
					continue
				}
				pipe.Del(t.ctx, t.store.docKey(w.path))
				pipe.ZRem(t.ctx, t.store.colKey(collection), id)
				current[w.path] = nil
			} else {
				after := &redisRecord{Data: w.data, Created: now, Updated: now, Version: rev, Seq: rev}
				if before != nil {
					after.Created = before.Created
					after.Seq = before.Seq
					if w.merge {
						after.Data = mergeMaps(before.Data, w.data)
					}
				}
				raw, err := json.Marshal(after)
				if err != nil {
					return err
				}
				pipe.Set(t.ctx, t.store.docKey(w.path), raw, 0)
				pipe.ZAdd(t.ctx, t.store.colKey(collection), redis.Z{
					Score:  float64(after.Seq),
					Member: id,
				})
				change.After = after
				current[w.path] = after
			}

			msg, err := json.Marshal(change)
			if err != nil {
				return err
			}
			pipe.Publish(t.ctx, t.store.chgKey(collection), msg)
		}
		return nil
	})
	return err
}

// RunTransaction 낙관적 트랜잭션 실행 (충돌 시 재시도)
func (s *RedisStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &redisTx{
				ctx:   ctx,
				store: s,
				tx:    rtx,
				reads: make(map[string]*redisRecord),
			}
			if err := fn(ctx, tx); err != nil {
				return err
			}
			return tx.commit()
		})
		if err == redis.TxFailedErr {
			s.logger.Debug("Transaction conflict, retrying", zap.Int("attempt", attempt+1))
			continue
		}
		return err
	}
	return ErrTxConflict
}

// subscribe 변경 채널을 먼저 구독한 뒤 초기 스냅샷을 전달
func (s *RedisStore) subscribe(
	ctx context.Context,
	collection string,
	match func(*Document) bool,
	snapshot func(ctx context.Context) ([]*Document, error),
) (*Subscription, error) {
	pubsub := s.client.Subscribe(ctx, s.chgKey(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	initial, err := snapshot(ctx)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	var wg sync.WaitGroup
	var sub *Subscription
	sub = newSubscription(func() {
		pubsub.Close()
		wg.Wait()
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	})

	seen := make(map[string]int64, len(initial))
	for _, d := range initial {
		seen[d.Path] = d.rev
		sub.push(Event{Type: Added, Doc: d})
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range pubsub.Channel() {
			var change redisChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				s.logger.Warn("Dropping malformed change message", zap.Error(err))
				continue
			}
			// 스냅샷이나 이전 이벤트에 이미 반영된 리비전은 건너뜀
			if last, ok := seen[change.Path]; ok {
				if change.After != nil && change.After.Version <= last {
					continue
				}
				if change.After == nil && change.Before != nil && change.Before.Version < last {
					continue
				}
			}
			before := change.Before.document(change.Path)
			after := change.After.document(change.Path)
			if ev, ok := classify(match, before, after); ok {
				if after != nil {
					seen[change.Path] = change.After.Version
				} else {
					delete(seen, change.Path)
				}
				sub.push(ev)
			}
		}
	}()

	return sub, nil
}

// WatchDocument 단일 문서 구독
func (s *RedisStore) WatchDocument(ctx context.Context, path string) (*Subscription, error) {
	collection, _, err := splitDocPath(path)
	if err != nil {
		return nil, err
	}
	return s.subscribe(ctx, collection, pathMatcher(path), func(ctx context.Context) ([]*Document, error) {
		doc, err := s.Get(ctx, path)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []*Document{doc}, nil
	})
}

// WatchQuery 쿼리 구독
func (s *RedisStore) WatchQuery(ctx context.Context, q Query) (*Subscription, error) {
	if err := validCollection(q.Collection); err != nil {
		return nil, err
	}
	return s.subscribe(ctx, q.Collection, q.matches, func(ctx context.Context) ([]*Document, error) {
		return s.Query(ctx, q)
	})
}

// Close 모든 구독 해제 후 클라이언트 종료
func (s *RedisStore) Close() error {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	return s.client.Close()
}
