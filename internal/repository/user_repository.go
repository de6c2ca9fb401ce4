package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/pkg/docstore"
)

const usersCollection = "users"

type UserRepository struct {
	store docstore.Store
}

func NewUserRepository(store docstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

func userPath(userID string) string {
	return docstore.Join(usersCollection, userID)
}

// BlockedUsers 차단 목록 조회
func (r *UserRepository) BlockedUsers(ctx context.Context, userID string) ([]string, error) {
	doc, err := r.store.Get(ctx, userPath(userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	var user models.UserRecord
	if err := doc.DataTo(&user); err != nil {
		return nil, err
	}
	return user.BlockedUsers, nil
}

// updateBlocked 차단 목록을 트랜잭션으로 갱신
func (r *UserRepository) updateBlocked(ctx context.Context, userID string, fn func([]string) []string) error {
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var user models.UserRecord
		doc, err := tx.Get(userPath(userID))
		switch {
		case err == nil:
			if err := doc.DataTo(&user); err != nil {
				return err
			}
		case !errors.Is(err, docstore.ErrNotFound):
			return err
		}
		blocked := fn(user.BlockedUsers)
		if blocked == nil {
			blocked = []string{}
		}
		return tx.Merge(userPath(userID), map[string]any{"blockedUsers": blocked})
	})
}

// Block 차단 목록에 추가 (이미 있으면 변화 없음)
func (r *UserRepository) Block(ctx context.Context, userID, target string) error {
	err := r.updateBlocked(ctx, userID, func(list []string) []string {
		for _, id := range list {
			if id == target {
				return list
			}
		}
		return append(list, target)
	})
	if err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	return nil
}

// Unblock 차단 목록에서 제거
func (r *UserRepository) Unblock(ctx context.Context, userID, target string) error {
	err := r.updateBlocked(ctx, userID, func(list []string) []string {
		out := list[:0:0]
		for _, id := range list {
			if id != target {
				out = append(out, id)
			}
		}
		return out
	})
	if err != nil {
		return fmt.Errorf("failed to unblock user: %w", err)
	}
	return nil
}
