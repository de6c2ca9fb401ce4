package service

import (
	"context"
	"fmt"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/internal/repository"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// QueueService 매칭 대기열 관리
type QueueService struct {
	waiting      *repository.WaitingRepository
	clock        clockwork.Clock
	logger       *zap.Logger
	maxInterests int
}

func NewQueueService(
	waiting *repository.WaitingRepository,
	maxInterests int,
	clock clockwork.Clock,
	logger *zap.Logger,
) *QueueService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{
		waiting:      waiting,
		clock:        clock,
		logger:       logger,
		maxInterests: maxInterests,
	}
}

// Enqueue 검색 중 항목 쓰기 (이전 세션이 남긴 항목은 같은 트랜잭션에서 교체)
func (s *QueueService) Enqueue(ctx context.Context, userID string, prefs models.Preferences) (*models.WaitingEntry, error) {
	if s.maxInterests > 0 && len(prefs.Interests) > s.maxInterests {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyInterests, len(prefs.Interests), s.maxInterests)
	}
	if !prefs.CommType.Valid() {
		return nil, ErrInvalidCommType
	}

	entry := &models.WaitingEntry{
		UserID:        userID,
		GenderFilter:  prefs.Gender,
		CollegeFilter: prefs.College,
		CommType:      prefs.CommType,
		Interests:     append([]string{}, prefs.Interests...),
		Timestamp:     s.clock.Now().UnixMilli(),
		Searching:     true,
	}

	stale, err := s.waiting.Enqueue(ctx, entry)
	if err != nil {
		return nil, err
	}
	if stale {
		s.logger.Info("Replaced stale waiting entry", zap.String("userId", userID))
	}
	s.logger.Debug("Enqueued",
		zap.String("userId", userID),
		zap.String("commType", string(prefs.CommType)),
		zap.Int64("version", entry.Version))
	return entry, nil
}

// Dequeue 대기열 항목 삭제 (실패는 로그만 남긴다)
func (s *QueueService) Dequeue(ctx context.Context, userID string) {
	if err := s.waiting.Remove(ctx, userID); err != nil {
		s.logger.Warn("Failed to dequeue", zap.String("userId", userID), zap.Error(err))
	}
}

// Waiting 같은 통신 방식으로 검색 중인 사용자 수
func (s *QueueService) Waiting(ctx context.Context, commType models.CommType) (int, error) {
	return s.waiting.CountSearching(ctx, commType)
}
