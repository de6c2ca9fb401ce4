package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/internal/moderation"
	"github.com/akkalaj75/hostelhub-v40/internal/repository"
	"github.com/akkalaj75/hostelhub-v40/internal/session"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const maxReportDetails = 1000

// ReportService 차단 목록과 신고
type ReportService struct {
	users   *repository.UserRepository
	reports *repository.ReportRepository
	clock   clockwork.Clock
	logger  *zap.Logger
}

func NewReportService(
	users *repository.UserRepository,
	reports *repository.ReportRepository,
	clock clockwork.Clock,
	logger *zap.Logger,
) *ReportService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{users: users, reports: reports, clock: clock, logger: logger}
}

// LoadBlocked 저장된 차단 목록을 세션에 반영
func (s *ReportService) LoadBlocked(ctx context.Context, sc *session.Context) error {
	ids, err := s.users.BlockedUsers(ctx, sc.UserID)
	if err != nil {
		return err
	}
	sc.SetBlocked(ids)
	s.logger.Debug("Blocked list loaded", zap.String("userId", sc.UserID), zap.Int("count", len(ids)))
	return nil
}

// Block 사용자 차단 (이후 매칭 후보에서 제외)
func (s *ReportService) Block(ctx context.Context, sc *session.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrInvalidInput
	}
	if target == sc.UserID {
		return ErrSelfTarget
	}
	if err := s.users.Block(ctx, sc.UserID, target); err != nil {
		return err
	}
	sc.AddBlocked(target)
	s.logger.Info("User blocked", zap.String("userId", sc.UserID), zap.String("target", target))
	return nil
}

// Unblock 차단 해제
func (s *ReportService) Unblock(ctx context.Context, sc *session.Context, target string) error {
	if strings.TrimSpace(target) == "" {
		return ErrInvalidInput
	}
	if err := s.users.Unblock(ctx, sc.UserID, target); err != nil {
		return err
	}
	sc.RemoveBlocked(target)
	s.logger.Info("User unblocked", zap.String("userId", sc.UserID), zap.String("target", target))
	return nil
}

// Blocked 저장된 차단 목록
func (s *ReportService) Blocked(ctx context.Context, sc *session.Context) ([]string, error) {
	return s.users.BlockedUsers(ctx, sc.UserID)
}

// Report 현재 상대 신고 (매칭이 없으면 ErrNoActiveMatch)
func (s *ReportService) Report(ctx context.Context, sc *session.Context, reason, details string) (*models.Report, error) {
	match := sc.Match()
	if match == nil || match.RemoteUserID == "" {
		return nil, ErrNoActiveMatch
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}

	report := &models.Report{
		ReportedBy:   sc.UserID,
		ReportedUser: match.RemoteUserID,
		Reason:       moderation.Sanitize(reason, 100),
		Details:      moderation.Sanitize(details, maxReportDetails),
		Status:       models.ReportStatusPending,
		Created:      s.clock.Now().UnixMilli(),
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, err
	}
	s.logger.Info("Report submitted",
		zap.String("reportId", report.ID),
		zap.String("reportedUser", report.ReportedUser),
		zap.String("reason", report.Reason))
	return report, nil
}
