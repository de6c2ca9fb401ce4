package repository

import (
	"context"
	"fmt"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/pkg/docstore"
)

const statusCollection = "status"

// PresenceChange 접속 상태 변경
type PresenceChange struct {
	UserID string
	Online bool
}

type PresenceRepository struct {
	store docstore.Store
}

func NewPresenceRepository(store docstore.Store) *PresenceRepository {
	return &PresenceRepository{store: store}
}

func onlineQuery() docstore.Query {
	return docstore.Query{Collection: statusCollection}.Where("online", true)
}

// SetOnline 접속 중으로 표시
func (r *PresenceRepository) SetOnline(ctx context.Context, userID string, at int64) error {
	p := models.Presence{Online: true, LastSeen: at}
	if err := r.store.Merge(ctx, docstore.Join(statusCollection, userID), p); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

// SetOffline 접속 종료로 표시
func (r *PresenceRepository) SetOffline(ctx context.Context, userID string, at int64) error {
	p := models.Presence{Online: false, LastSeen: at}
	if err := r.store.Merge(ctx, docstore.Join(statusCollection, userID), p); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

// CountOnline 접속 중인 사용자 수
func (r *PresenceRepository) CountOnline(ctx context.Context) (int, error) {
	docs, err := r.store.Query(ctx, onlineQuery())
	if err != nil {
		return 0, fmt.Errorf("failed to count online users: %w", err)
	}
	return len(docs), nil
}

// WatchOnline 접속 상태 변화 구독
func (r *PresenceRepository) WatchOnline(ctx context.Context) (*docstore.Stream[PresenceChange], error) {
	sub, err := r.store.WatchQuery(ctx, onlineQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to watch presence: %w", err)
	}
	return docstore.NewStream(sub, func(ev docstore.Event) (PresenceChange, bool) {
		return PresenceChange{UserID: ev.Doc.ID, Online: ev.Type != docstore.Removed}, true
	}), nil
}
