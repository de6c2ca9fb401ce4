package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type memRecord struct {
	data    []byte
	created time.Time
	updated time.Time
	seq     uint64
}

type memWatcher struct {
	match func(*Document) bool
	sub   *Subscription
}

// MemoryStore 프로세스 내부 문서 저장소
// 모든 트랜잭션은 단일 뮤텍스로 직렬화된다
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]*memRecord
	watchers map[uint64]*memWatcher
	nextID   uint64
	seq      uint64
	clock    clockwork.Clock
	closed   bool
}

// NewMemoryStore MemoryStore 생성
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		docs:     make(map[string]*memRecord),
		watchers: make(map[uint64]*memWatcher),
		clock:    clock,
	}
}

func (s *MemoryStore) snapshot(path string) *Document {
	rec, ok := s.docs[path]
	if !ok {
		return nil
	}
	data := map[string]any{}
	_ = json.Unmarshal(rec.data, &data)
	_, id, _ := splitDocPath(path)
	return &Document{
		ID:         id,
		Path:       path,
		Data:       data,
		CreateTime: rec.created,
		UpdateTime: rec.updated,
	}
}

// Get 문서 조회
func (s *MemoryStore) Get(ctx context.Context, path string) (*Document, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.snapshot(path)
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

// Set 문서 전체 쓰기
func (s *MemoryStore) Set(ctx context.Context, path string, data any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(path, data)
	})
}

// Merge 최상위 필드 병합 (없으면 생성)
func (s *MemoryStore) Merge(ctx context.Context, path string, data any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Merge(path, data)
	})
}

// Delete 문서 삭제 (없어도 에러 아님)
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Delete(path)
	})
}

// Add 자동 생성 ID로 문서 추가
func (s *MemoryStore) Add(ctx context.Context, collection string, data any) (string, error) {
	if err := validCollection(collection); err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := s.Set(ctx, Join(collection, id), data); err != nil {
		return "", err
	}
	return id, nil
}

// ordered 컬렉션 문서를 생성 순서대로 반환
func (s *MemoryStore) ordered(collection string) []*Document {
	prefix := collection + "/"
	type entry struct {
		path string
		rec  *memRecord
	}
	var entries []entry
	for path, rec := range s.docs {
		if !strings.HasPrefix(path, prefix) || strings.Contains(path[len(prefix):], "/") {
			continue
		}
		entries = append(entries, entry{path, rec})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].rec.seq < entries[j].rec.seq
	})
	docs := make([]*Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, s.snapshot(e.path))
	}
	return docs
}

// Query 컬렉션 조회
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]*Document, error) {
	if err := validCollection(q.Collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return q.apply(s.ordered(q.Collection)), nil
}

// DeleteBatch 컬렉션에서 최대 limit개 문서 삭제
func (s *MemoryStore) DeleteBatch(ctx context.Context, collection string, limit int) (int, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	deleted := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		mtx := tx.(*memTx)
		docs := s.ordered(collection)
		if limit > 0 && len(docs) > limit {
			docs = docs[:limit]
		}
		for _, d := range docs {
			if err := mtx.Delete(d.Path); err != nil {
				return err
			}
		}
		deleted = len(docs)
		return nil
	})
	return deleted, err
}

type memWrite struct {
	path   string
	data   map[string]any
	merge  bool
	delete bool
}

type memTx struct {
	store  *MemoryStore
	writes []memWrite
}

func (t *memTx) Get(path string) (*Document, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}
	doc := t.store.snapshot(path)
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (t *memTx) write(path string, data any, merge bool) error {
	if _, _, err := splitDocPath(path); err != nil {
		return err
	}
	m, err := normalize(data)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, memWrite{path: path, data: m, merge: merge})
	return nil
}

func (t *memTx) Set(path string, data any) error   { return t.write(path, data, false) }
func (t *memTx) Merge(path string, data any) error { return t.write(path, data, true) }

func (t *memTx) Delete(path string) error {
	if _, _, err := splitDocPath(path); err != nil {
		return err
	}
	t.writes = append(t.writes, memWrite{path: path, delete: true})
	return nil
}

// RunTransaction 트랜잭션 실행
// fn 안에서는 tx만 사용해야 한다 (저장소 메서드를 직접 호출하면 교착 상태)
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.commit(tx.writes)
	return nil
}

func (s *MemoryStore) commit(writes []memWrite) {
	now := s.clock.Now()
	for _, w := range writes {
		before := s.snapshot(w.path)
		if w.delete {
			if before == nil {
				continue
			}
			delete(s.docs, w.path)
			s.notify(before, nil)
			continue
		}

		data := w.data
		rec := &memRecord{created: now, updated: now}
		if before != nil {
			old := s.docs[w.path]
			rec.created = old.created
			rec.seq = old.seq
			if w.merge {
				data = mergeMaps(before.Data, w.data)
			}
		} else {
			s.seq++
			rec.seq = s.seq
		}
		rec.data, _ = json.Marshal(data)
		s.docs[w.path] = rec
		s.notify(before, s.snapshot(w.path))
	}
}

func (s *MemoryStore) notify(before, after *Document) {
	ids := make([]uint64, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		w := s.watchers[id]
		if ev, ok := classify(w.match, before, after); ok {
			w.sub.push(ev)
		}
	}
}

func (s *MemoryStore) watch(match func(*Document) bool, initial []*Document) *Subscription {
	s.nextID++
	id := s.nextID
	sub := newSubscription(func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	})
	for _, d := range initial {
		sub.push(Event{Type: Added, Doc: d})
	}
	s.watchers[id] = &memWatcher{match: match, sub: sub}
	return sub
}

// WatchDocument 단일 문서 구독 (현재 상태가 있으면 Added로 먼저 전달)
func (s *MemoryStore) WatchDocument(ctx context.Context, path string) (*Subscription, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var initial []*Document
	if doc := s.snapshot(path); doc != nil {
		initial = append(initial, doc)
	}
	return s.watch(pathMatcher(path), initial), nil
}

// WatchQuery 쿼리 구독
// 초기 스냅샷에만 Limit이 적용되고 이후 변경은 필터 기준으로 모두 전달된다
func (s *MemoryStore) WatchQuery(ctx context.Context, q Query) (*Subscription, error) {
	if err := validCollection(q.Collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.watch(q.matches, q.apply(s.ordered(q.Collection))), nil
}

// Close 모든 구독 해제
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.watchers))
	for _, w := range s.watchers {
		subs = append(subs, w.sub)
	}
	s.closed = true
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	return nil
}
