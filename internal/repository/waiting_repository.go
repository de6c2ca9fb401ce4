package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/pkg/docstore"
)

const waitingCollection = "waiting"

func waitingPath(userID string) string {
	return docstore.Join(waitingCollection, userID)
}

type WaitingRepository struct {
	store docstore.Store
}

func NewWaitingRepository(store docstore.Store) *WaitingRepository {
	return &WaitingRepository{store: store}
}

// Enqueue 대기열 항목 쓰기
// 같은 사용자의 이전 항목이 있으면 같은 트랜잭션 안에서 먼저 삭제한다
func (r *WaitingRepository) Enqueue(ctx context.Context, entry *models.WaitingEntry) (stale bool, err error) {
	path := waitingPath(entry.UserID)
	err = r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		stale = false
		entry.Version = 1

		doc, err := tx.Get(path)
		switch {
		case err == nil:
			var old models.WaitingEntry
			if err := doc.DataTo(&old); err == nil {
				entry.Version = old.Version + 1
			}
			stale = true
			if err := tx.Delete(path); err != nil {
				return err
			}
		case !errors.Is(err, docstore.ErrNotFound):
			return err
		}
		return tx.Set(path, entry)
	})
	if err != nil {
		return false, fmt.Errorf("failed to enqueue %s: %w", entry.UserID, err)
	}
	return stale, nil
}

// Remove 대기열 항목 삭제 (없어도 성공)
func (r *WaitingRepository) Remove(ctx context.Context, userID string) error {
	if err := r.store.Delete(ctx, waitingPath(userID)); err != nil {
		return fmt.Errorf("failed to remove waiting entry %s: %w", userID, err)
	}
	return nil
}

// Get 대기열 항목 조회 (없으면 nil, nil)
func (r *WaitingRepository) Get(ctx context.Context, userID string) (*models.WaitingEntry, error) {
	doc, err := r.store.Get(ctx, waitingPath(userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waiting entry: %w", err)
	}
	var entry models.WaitingEntry
	if err := doc.DataTo(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func searchingQuery(commType models.CommType) docstore.Query {
	return docstore.Query{Collection: waitingCollection}.
		Where("commType", string(commType)).
		Where("searching", true)
}

// ListSearching 검색 중인 항목을 오래된 순으로 최대 limit개 조회
func (r *WaitingRepository) ListSearching(ctx context.Context, commType models.CommType, limit int) ([]*models.WaitingEntry, error) {
	q := searchingQuery(commType)
	q.Limit = limit

	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}

	entries := make([]*models.WaitingEntry, 0, len(docs))
	for _, doc := range docs {
		var entry models.WaitingEntry
		if err := doc.DataTo(&entry); err != nil {
			continue
		}
		if entry.UserID == "" {
			entry.UserID = doc.ID
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// CountSearching 검색 중인 사용자 수
func (r *WaitingRepository) CountSearching(ctx context.Context, commType models.CommType) (int, error) {
	docs, err := r.store.Query(ctx, searchingQuery(commType))
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting entries: %w", err)
	}
	return len(docs), nil
}

// SweepStale olderThan 이전에 생성된 항목 삭제
// 항목의 Timestamp는 등록한 클라이언트 시계라서 저장소가 기록한 생성 시각으로 판단한다
func (r *WaitingRepository) SweepStale(ctx context.Context, olderThan time.Time) (int, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: waitingCollection})
	if err != nil {
		return 0, fmt.Errorf("failed to scan waiting entries: %w", err)
	}

	removed := 0
	for _, doc := range docs {
		if !doc.CreateTime.Before(olderThan) {
			continue
		}
		if err := r.store.Delete(ctx, doc.Path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
