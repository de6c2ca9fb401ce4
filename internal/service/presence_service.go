package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/internal/repository"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	heartbeatJob = "presence-heartbeat"
	sweepJob     = "waiting-sweep"
)

// PresenceConfig 접속 상태 작업 설정
type PresenceConfig struct {
	Interval time.Duration
	StaleAge time.Duration
}

// PresenceService 접속 상태 하트비트, 오래된 대기열 정리, 접속자 수 알림
//
// 정리 작업은 locker가 있으면 여러 클라이언트 중 한 곳에서만 실행된다.
type PresenceService struct {
	presence *repository.PresenceRepository
	waiting  *repository.WaitingRepository
	userID   string
	cfg      PresenceConfig
	locker   gocron.Locker
	clock    clockwork.Clock
	logger   *zap.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
	watches   []func()
	running   bool
}

func NewPresenceService(
	presence *repository.PresenceRepository,
	waiting *repository.WaitingRepository,
	userID string,
	cfg PresenceConfig,
	locker gocron.Locker,
	clock clockwork.Clock,
	logger *zap.Logger,
) *PresenceService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &PresenceService{
		presence: presence,
		waiting:  waiting,
		userID:   userID,
		cfg:      cfg,
		locker:   locker,
		clock:    clock,
		logger:   logger,
	}
}

// Start 스케줄러 시작 (두 작업 모두 즉시 한 번 실행)
func (s *PresenceService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	sched, err := gocron.NewScheduler(
		gocron.WithClock(s.clock),
		gocron.WithLogger(schedulerLogger{s.logger.Sugar()}),
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if _, err := sched.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(func() {
			if err := s.Heartbeat(jobCtx); err != nil {
				s.logger.Warn("Presence heartbeat failed", zap.Error(err))
			}
		}),
		gocron.WithName(heartbeatJob),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule heartbeat: %w", err)
	}

	sweepOpts := []gocron.JobOption{
		gocron.WithName(sweepJob),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	}
	if s.locker != nil {
		sweepOpts = append(sweepOpts, gocron.WithDistributedJobLocker(s.locker))
	}
	if s.cfg.StaleAge > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(s.cfg.Interval),
			gocron.NewTask(func() {
				if _, err := s.Sweep(jobCtx); err != nil {
					s.logger.Warn("Waiting sweep failed", zap.Error(err))
				}
			}),
			sweepOpts...,
		); err != nil {
			cancel()
			return fmt.Errorf("failed to schedule sweep: %w", err)
		}
	}

	sched.Start()
	s.scheduler = sched
	s.cancel = cancel
	s.running = true
	s.logger.Info("Presence service started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("staleAge", s.cfg.StaleAge),
		zap.Bool("distributedSweep", s.locker != nil))
	return nil
}

// Stop 스케줄러와 구독을 멈추고 오프라인으로 표시
func (s *PresenceService) Stop(ctx context.Context) error {
	s.mu.Lock()
	sched := s.scheduler
	cancel := s.cancel
	watches := s.watches
	s.scheduler = nil
	s.cancel = nil
	s.watches = nil
	s.running = false
	s.mu.Unlock()

	for _, stop := range watches {
		stop()
	}

	var errs []error
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
		}
		cancel()
	}
	if err := s.presence.SetOffline(ctx, s.userID, s.clock.Now().UnixMilli()); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("Presence service stopped")
	return errors.Join(errs...)
}

// Heartbeat 접속 중 표시 갱신
func (s *PresenceService) Heartbeat(ctx context.Context) error {
	return s.presence.SetOnline(ctx, s.userID, s.clock.Now().UnixMilli())
}

// Sweep StaleAge보다 오래된 대기열 항목 삭제
func (s *PresenceService) Sweep(ctx context.Context) (int, error) {
	n, err := s.waiting.SweepStale(ctx, s.clock.Now().Add(-s.cfg.StaleAge))
	if n > 0 {
		s.logger.Info("Swept stale waiting entries", zap.Int("removed", n))
	}
	return n, err
}

// LiveCount 접속 중인 사용자 수
func (s *PresenceService) LiveCount(ctx context.Context) (int, error) {
	return s.presence.CountOnline(ctx)
}

// WatchLive 접속자 수가 바뀔 때마다 live_users 이벤트 전송 (Stop에서 해제)
func (s *PresenceService) WatchLive(ctx context.Context, notifier models.Notifier) error {
	stream, err := s.presence.WatchOnline(ctx)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		online := make(map[string]struct{})
		for change := range stream.C() {
			if change.Online {
				online[change.UserID] = struct{}{}
			} else {
				delete(online, change.UserID)
			}
			notifier.Notify(models.Event{Type: models.EventLiveUsers, Payload: len(online)})
		}
	}()

	s.mu.Lock()
	s.watches = append(s.watches, func() {
		stream.Cancel()
		<-done
	})
	s.mu.Unlock()
	return nil
}

// schedulerLogger gocron.Logger를 zap으로 연결
type schedulerLogger struct {
	l *zap.SugaredLogger
}

func (s schedulerLogger) Debug(msg string, args ...any) { s.l.Debugw(msg, args...) }
func (s schedulerLogger) Info(msg string, args ...any)  { s.l.Infow(msg, args...) }
func (s schedulerLogger) Warn(msg string, args ...any)  { s.l.Warnw(msg, args...) }
func (s schedulerLogger) Error(msg string, args ...any) { s.l.Errorw(msg, args...) }
