package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidPath = errors.New("invalid document path")
	ErrTxConflict  = errors.New("transaction conflict")
)

// Document 저장소 문서 스냅샷
type Document struct {
	ID         string
	Path       string
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time

	rev int64
}

// DataTo 문서 데이터를 구조체로 디코딩
func (d *Document) DataTo(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.Path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", d.Path, err)
	}
	return nil
}

// Filter 동등 비교 필터
type Filter struct {
	Field string
	Value any
}

// Query 컬렉션 조회 조건
// OrderBy가 비어 있으면 저장소의 생성 순서 (시계가 아닌 쓰기 순번 기준)
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Where 필터 추가
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// Tx 트랜잭션 핸들
// 모든 읽기는 쓰기보다 먼저 수행되어야 하며 쓰기는 커밋 시점에 원자적으로 반영된다
type Tx interface {
	Get(path string) (*Document, error)
	Set(path string, data any) error
	Merge(path string, data any) error
	Delete(path string) error
}

// Store 트랜잭션과 실시간 구독을 지원하는 문서 저장소
type Store interface {
	Get(ctx context.Context, path string) (*Document, error)
	Set(ctx context.Context, path string, data any) error
	Merge(ctx context.Context, path string, data any) error
	Delete(ctx context.Context, path string) error
	Add(ctx context.Context, collection string, data any) (string, error)
	Query(ctx context.Context, q Query) ([]*Document, error)
	DeleteBatch(ctx context.Context, collection string, limit int) (int, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	WatchDocument(ctx context.Context, path string) (*Subscription, error)
	WatchQuery(ctx context.Context, q Query) (*Subscription, error)
	Close() error
}

// Join 경로 세그먼트 결합
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// splitDocPath 문서 경로를 (컬렉션, ID)로 분리
func splitDocPath(path string) (string, string, error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, p := range parts {
		if p == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

func validCollection(collection string) error {
	parts := strings.Split(collection, "/")
	if len(parts)%2 != 1 {
		return fmt.Errorf("%w: %q is not a collection", ErrInvalidPath, collection)
	}
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("%w: %q", ErrInvalidPath, collection)
		}
	}
	return nil
}

// normalize 임의의 값을 JSON 표현의 map으로 변환
func normalize(data any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("document data must be an object: %w", err)
	}
	return out, nil
}

func normalizeValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func mergeMaps(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// matches 문서가 쿼리 조건을 만족하는지 확인
func (q Query) matches(doc *Document) bool {
	if doc == nil {
		return false
	}
	collection, _, err := splitDocPath(doc.Path)
	if err != nil || collection != q.Collection {
		return false
	}
	for _, f := range q.Filters {
		if !reflect.DeepEqual(doc.Data[f.Field], normalizeValue(f.Value)) {
			return false
		}
	}
	return true
}

// apply 필터, 정렬, 개수 제한 적용
func (q Query) apply(docs []*Document) []*Document {
	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		if q.matches(d) {
			out = append(out, d)
		}
	}
	if q.OrderBy == "" {
		if q.Desc {
			slices.Reverse(out)
		}
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			if q.Desc {
				return q.less(out[j], out[i])
			}
			return q.less(out[i], out[j])
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (q Query) less(a, b *Document) bool {
	return compareValues(a.Data[q.OrderBy], b.Data[q.OrderBy]) < 0
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	}
	switch {
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	return 0
}

// classify before/after 상태로부터 구독자에게 전달할 이벤트 결정
func classify(match func(*Document) bool, before, after *Document) (Event, bool) {
	was, is := match(before), match(after)
	switch {
	case !was && is:
		return Event{Type: Added, Doc: after}, true
	case was && is:
		return Event{Type: Modified, Doc: after}, true
	case was && !is:
		return Event{Type: Removed, Doc: before}, true
	}
	return Event{}, false
}

func pathMatcher(path string) func(*Document) bool {
	return func(d *Document) bool { return d != nil && d.Path == path }
}
