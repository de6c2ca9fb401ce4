package service

import (
	"context"
	"fmt"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/internal/repository"
	"github.com/akkalaj75/hostelhub-v40/internal/session"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// MatchConfig 매칭 루프 설정
type MatchConfig struct {
	Timeout        time.Duration
	MaxAttempts    int
	CandidateLimit int
	CleanupDelay   time.Duration
}

// MatchmakingService 후보 조회, 점수 계산, 원자적 선점을 반복하는 매칭 엔진
type MatchmakingService struct {
	queue   *QueueService
	waiting *repository.WaitingRepository
	calls   *repository.CallRepository
	cfg     MatchConfig
	clock   clockwork.Clock
	logger  *zap.Logger
}

func NewMatchmakingService(
	queue *QueueService,
	waiting *repository.WaitingRepository,
	calls *repository.CallRepository,
	cfg MatchConfig,
	clock clockwork.Clock,
	logger *zap.Logger,
) *MatchmakingService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 30
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 10
	}
	return &MatchmakingService{
		queue:   queue,
		waiting: waiting,
		calls:   calls,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
	}
}

// Backoff 실패한 시도 후 대기 시간 min(1000*ceil((attempt+1)/2), 3000)ms
func Backoff(attempt int) time.Duration {
	ms := 1000 * ((attempt + 2) / 2)
	return time.Duration(min(ms, 3000)) * time.Millisecond
}

// FindMatch sc의 매칭 조건으로 대기열에 들어가 상대를 찾는다
//
// 시도 횟수나 제한 시간을 넘기면 대기열 항목을 지우고 idle로 돌아간 뒤
// ErrNoMatch를 반환한다. sc가 외부에서 searching이 아닌 상태로 바뀌거나
// ctx가 취소되면 ErrSearchCancelled로 즉시 빠져나온다.
func (s *MatchmakingService) FindMatch(ctx context.Context, sc *session.Context, notifier models.Notifier) (*models.Match, error) {
	if notifier == nil {
		notifier = models.NopNotifier
	}
	prefs := sc.Preferences()
	if prefs == nil {
		return nil, fmt.Errorf("%w: no preferences", ErrInvalidInput)
	}
	gen := sc.Generation()
	logger := s.logger.With(zap.String("userId", sc.UserID))

	self, err := s.queue.Enqueue(ctx, sc.UserID, *prefs)
	if err != nil {
		s.abandon(ctx, sc, gen)
		return nil, err
	}

	deadline := s.clock.Now().Add(s.cfg.Timeout)
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil || !sc.Current(gen) || sc.State() != models.MatchSearching {
			s.abandon(ctx, sc, gen)
			return nil, ErrSearchCancelled
		}
		if s.cfg.Timeout > 0 && !s.clock.Now().Before(deadline) {
			break
		}

		match, claimed, err := s.attempt(ctx, sc, self)
		if err != nil {
			logger.Warn("Match attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		if match != nil {
			if !sc.AcceptMatch(gen, match) {
				logger.Info("Search ended before match was accepted", zap.String("callId", match.CallID))
				if err := s.calls.MarkEnded(context.WithoutCancel(ctx), match.CallID); err != nil {
					logger.Warn("Failed to end orphaned call", zap.String("callId", match.CallID), zap.Error(err))
				}
				return nil, ErrSearchCancelled
			}
			if claimed {
				s.scheduleCleanup(sc)
			}
			logger.Info("Matched",
				zap.String("callId", match.CallID),
				zap.String("remoteUserId", match.RemoteUserID),
				zap.Bool("initiator", match.IsInitiator),
				zap.Float64("score", match.Score),
				zap.Int("attempt", attempt))
			return match, nil
		}

		if n, err := s.queue.Waiting(ctx, self.CommType); err == nil {
			notifier.Notify(models.Event{
				Type:    models.EventStatus,
				Payload: fmt.Sprintf("Finding match... (%d others waiting)", max(n-1, 0)),
			})
		}

		wait := Backoff(attempt)
		if s.cfg.Timeout > 0 {
			wait = min(wait, deadline.Sub(s.clock.Now()))
		}
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			s.abandon(ctx, sc, gen)
			return nil, ErrSearchCancelled
		case <-s.clock.After(wait):
		}
	}

	logger.Info("No match found", zap.Duration("timeout", s.cfg.Timeout))
	s.abandon(ctx, sc, gen)
	return nil, ErrNoMatch
}

// abandon 검색 실패 시 대기열 정리 후 idle로
// 이미 Teardown이 지나간 세대라면 새 검색의 항목을 건드리지 않는다
func (s *MatchmakingService) abandon(ctx context.Context, sc *session.Context, gen uint64) {
	if !sc.Current(gen) {
		return
	}
	s.queue.Dequeue(context.WithoutCancel(ctx), sc.UserID)
	sc.Transition(models.MatchSearching, models.MatchIdle)
}

// attempt 한 번의 매칭 시도
//  1. 다른 클라이언트가 나를 선점했는지 내 항목으로 확인
//  2. 오래된 후보를 최대 CandidateLimit개 조회해 필터링과 점수 정렬
//  3. 순서대로 선점 트랜잭션 시도
func (s *MatchmakingService) attempt(ctx context.Context, sc *session.Context, self *models.WaitingEntry) (match *models.Match, claimed bool, err error) {
	own, err := s.waiting.Get(ctx, sc.UserID)
	switch {
	case err != nil:
		return nil, false, err
	case own == nil:
		// 항목이 사라졌으면 (정리 작업 등) 다시 등록
		entry, err := s.queue.Enqueue(ctx, sc.UserID, *sc.Preferences())
		if err != nil {
			return nil, false, err
		}
		*self = *entry
	case own.Matched && own.CallID != "":
		match, err := s.claimedBy(ctx, sc, own)
		if match != nil || err != nil {
			return match, false, err
		}
	}

	candidates, err := s.waiting.ListSearching(ctx, self.CommType, s.cfg.CandidateLimit)
	if err != nil {
		return nil, false, err
	}
	ranked := RankCandidates(self, candidates, sc.IsBlocked)
	s.logger.Debug("Candidates ranked",
		zap.String("userId", sc.UserID),
		zap.Int("found", len(candidates)),
		zap.Int("compatible", len(ranked)))

	for _, c := range ranked {
		call, ok, err := s.calls.Claim(ctx, self, c.Entry, s.clock.Now().UnixMilli())
		if err != nil {
			s.logger.Warn("Claim failed", zap.String("target", c.Entry.UserID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		match := matchFromCall(call, sc.UserID)
		match.Score = c.Score
		return match, true, nil
	}
	return nil, false, nil
}

// claimedBy 다른 사용자가 내 항목을 선점한 경우 통화 문서로 매칭을 구성
// 통화가 이미 끝났으면 새 항목으로 검색을 이어간다
func (s *MatchmakingService) claimedBy(ctx context.Context, sc *session.Context, own *models.WaitingEntry) (*models.Match, error) {
	call, err := s.calls.Get(ctx, own.CallID)
	if err != nil {
		return nil, err
	}
	if call == nil || call.Status == models.CallEnded {
		s.logger.Info("Claimed call already gone, requeueing",
			zap.String("userId", sc.UserID),
			zap.String("callId", own.CallID))
		entry, err := s.queue.Enqueue(ctx, sc.UserID, *sc.Preferences())
		if err != nil {
			return nil, err
		}
		*own = *entry
		return nil, nil
	}

	s.queue.Dequeue(ctx, sc.UserID)
	return matchFromCall(call, sc.UserID), nil
}

// scheduleCleanup 선점한 쪽은 CleanupDelay 뒤에 자신의 항목을 지운다
// 상대 항목은 상대가 직접 지우며, 타이머는 Teardown이 취소한다
func (s *MatchmakingService) scheduleCleanup(sc *session.Context) {
	userID := sc.UserID
	timer := s.clock.AfterFunc(s.cfg.CleanupDelay, func() {
		s.queue.Dequeue(context.Background(), userID)
	})
	sc.Track(session.CancelFunc(func() { timer.Stop() }))
}

func matchFromCall(call *models.CallSession, userID string) *models.Match {
	remoteID := call.Other(userID)
	remote := call.Profiles[remoteID]
	if remote.UserID == "" {
		remote.UserID = remoteID
	}
	return &models.Match{
		CallID:       call.ID,
		RemoteUserID: remoteID,
		IsInitiator:  call.Initiator == userID,
		CommType:     call.CommType,
		Remote:       remote,
		Score:        InterestScore(call.Profiles[userID].Interests, remote.Interests),
	}
}
