package session

import (
	"context"

	"github.com/akkalaj75/hostelhub-v40/internal/repository"
	"go.uber.org/zap"
)

// Teardown 건너뛰기/종료/오류 시 세션 전체 정리
//
// 각 단계는 실패해도 로그만 남기고 다음 단계로 진행한다. 정리할 것이 없는
// 상태에서 다시 호출해도 안전하다.
type Teardown struct {
	waiting   *repository.WaitingRepository
	calls     *repository.CallRepository
	batchSize int
	logger    *zap.Logger
}

// NewTeardown Teardown 생성
func NewTeardown(
	waiting *repository.WaitingRepository,
	calls *repository.CallRepository,
	batchSize int,
	logger *zap.Logger,
) *Teardown {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Teardown{
		waiting:   waiting,
		calls:     calls,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run 정리 순서
//  1. 구독과 타이머 취소
//  2. 피어 연결 종료 (로컬 트랙 정지, 원격 트랙 해제 포함)
//  3. 자신의 대기열 항목 삭제
//  4. 통화 문서 ended 표시, 후보/메시지 배치 삭제, 통화 문서 삭제
//  5. 세션 상태 초기화
func (t *Teardown) Run(ctx context.Context, sc *Context) {
	d := sc.detach()

	for _, sub := range d.subs {
		sub.Cancel()
	}
	if d.peer != nil {
		d.peer.Close()
	}

	if err := t.waiting.Remove(ctx, sc.UserID); err != nil {
		t.logger.Warn("Failed to remove waiting entry", zap.String("userId", sc.UserID), zap.Error(err))
	}

	if d.match != nil {
		t.cleanupCall(ctx, d.match.CallID)
	}

	sc.Reset()
	t.logger.Debug("Session torn down",
		zap.String("userId", sc.UserID),
		zap.Int("subscriptions", len(d.subs)),
		zap.Bool("hadMatch", d.match != nil))
}

func (t *Teardown) cleanupCall(ctx context.Context, callID string) {
	logger := t.logger.With(zap.String("callId", callID))

	if err := t.calls.MarkEnded(ctx, callID); err != nil {
		logger.Warn("Failed to mark call ended", zap.Error(err))
	}
	if n, err := t.calls.DrainCandidates(ctx, callID, t.batchSize); err != nil {
		logger.Warn("Failed to delete candidates", zap.Int("deleted", n), zap.Error(err))
	}
	if n, err := t.calls.DrainMessages(ctx, callID, t.batchSize); err != nil {
		logger.Warn("Failed to delete messages", zap.Int("deleted", n), zap.Error(err))
	}
	if err := t.calls.Delete(ctx, callID); err != nil {
		logger.Warn("Failed to delete call", zap.Error(err))
	}
}
