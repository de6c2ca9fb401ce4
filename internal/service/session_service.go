package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/internal/moderation"
	"github.com/akkalaj75/hostelhub-v40/internal/repository"
	"github.com/akkalaj75/hostelhub-v40/internal/rtc"
	"github.com/akkalaj75/hostelhub-v40/internal/session"
	"github.com/akkalaj75/hostelhub-v40/pkg/ratelimit"
	"github.com/jonboulle/clockwork"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

const mediaRetryDelay = time.Second

// SessionConfig 세션 수립 설정
type SessionConfig struct {
	MaxInterests      int
	ConnectionTimeout time.Duration
	ReconnectDelay    time.Duration
	MaxReconnects     int
	MediaAttempts     int
	StatsInterval     time.Duration
}

// StrangerInfo 매칭 직후 보여줄 상대 정보
type StrangerInfo struct {
	UserID    string          `json:"userId"`
	College   string          `json:"college"`
	Interests []string        `json:"interests"`
	Common    []string        `json:"common"`
	Score     float64         `json:"score"`
	CommType  models.CommType `json:"commType"`
}

// SessionService 검색, 건너뛰기, 종료를 조율하는 클라이언트 오케스트레이터
//
// 모든 동작은 하나의 session.Context를 통해 상태를 바꾸며, 새 검색이나
// 건너뛰기, 종료는 항상 Teardown을 먼저 실행한다. 피어 세션과 구독의
// 콜백은 시작 시점의 세대 번호를 확인한 뒤에만 상태를 변경한다.
type SessionService struct {
	sc          *session.Context
	matchmaking *MatchmakingService
	chat        *ChatService
	teardown    *session.Teardown
	calls       *repository.CallRepository
	media       rtc.MediaSource
	peers       rtc.PeerFactory
	cooldown    *ratelimit.Cooldown
	notifier    models.Notifier
	cfg         SessionConfig
	clock       clockwork.Clock
	logger      *zap.Logger
}

func NewSessionService(
	sc *session.Context,
	matchmaking *MatchmakingService,
	chat *ChatService,
	teardown *session.Teardown,
	calls *repository.CallRepository,
	media rtc.MediaSource,
	peers rtc.PeerFactory,
	cooldown *ratelimit.Cooldown,
	notifier models.Notifier,
	cfg SessionConfig,
	clock clockwork.Clock,
	logger *zap.Logger,
) *SessionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = models.NopNotifier
	}
	return &SessionService{
		sc:          sc,
		matchmaking: matchmaking,
		chat:        chat,
		teardown:    teardown,
		calls:       calls,
		media:       media,
		peers:       peers,
		cooldown:    cooldown,
		notifier:    notifier,
		cfg:         cfg,
		clock:       clock,
		logger:      logger.With(zap.String("userId", sc.UserID)),
	}
}

// Context 관리 중인 세션 상태
func (s *SessionService) Context() *session.Context {
	return s.sc
}

// SetNotifier 이벤트 수신자 교체
func (s *SessionService) SetNotifier(n models.Notifier) {
	if n == nil {
		n = models.NopNotifier
	}
	s.notifier = n
}

// ValidatePreferences 관심사 정규화와 통신 방식/개수 검증
func (s *SessionService) ValidatePreferences(p models.Preferences) (models.Preferences, error) {
	if !p.CommType.Valid() {
		return p, ErrInvalidCommType
	}
	if s.cfg.MaxInterests > 0 && len(p.Interests) > s.cfg.MaxInterests {
		return p, ErrTooManyInterests
	}

	interests := make([]string, 0, len(p.Interests))
	seen := make(map[string]struct{})
	for _, raw := range p.Interests {
		interest, err := moderation.ValidateInterest(raw)
		if err != nil {
			return p, fmt.Errorf("%w: %q: %v", ErrInvalidInput, raw, err)
		}
		if _, dup := seen[interest]; dup {
			continue
		}
		seen[interest] = struct{}{}
		interests = append(interests, interest)
	}
	p.Interests = interests
	p.Gender = strings.TrimSpace(p.Gender)
	if p.College = strings.TrimSpace(p.College); p.College == "" {
		p.College = models.AnyCollege
	}
	return p, nil
}

// FindMatch 기존 세션을 정리하고 새 상대를 찾아 세션을 연다
// 매칭이 끝날 때까지 블록되며 실패 시 상태는 idle로 돌아간다
func (s *SessionService) FindMatch(ctx context.Context, prefs models.Preferences) (*models.Match, error) {
	prefs, err := s.ValidatePreferences(prefs)
	if err != nil {
		return nil, err
	}

	s.teardown.Run(ctx, s.sc)
	s.sc.SetPreferences(prefs)
	searchCtx, gen := s.sc.BeginSearch(context.WithoutCancel(ctx))
	s.notifyState()
	s.status("Finding match...")

	match, err := s.matchmaking.FindMatch(searchCtx, s.sc, s.notifier)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			s.status(ErrNoMatch.Error())
			s.notifyState()
		}
		return nil, err
	}

	s.notify(models.EventStrangerInfo, StrangerInfo{
		UserID:    match.RemoteUserID,
		College:   match.Remote.College,
		Interests: match.Remote.Interests,
		Common:    CommonInterests(prefs.Interests, match.Remote.Interests),
		Score:     match.Score,
		CommType:  match.CommType,
	})

	if err := s.startSession(searchCtx, gen, match, prefs); err != nil {
		s.logger.Error("Failed to start session", zap.String("callId", match.CallID), zap.Error(err))
		var mediaErr *rtc.MediaError
		if errors.As(err, &mediaErr) {
			s.status(mediaErr.UserMessage())
		} else {
			s.status("Failed to connect. Please try again.")
		}
		if s.sc.Current(gen) {
			s.teardown.Run(context.WithoutCancel(ctx), s.sc)
			s.notifyState()
		}
		return nil, err
	}

	if !s.sc.Transition(models.MatchMatched, models.MatchConnected) {
		return nil, ErrSearchCancelled
	}
	s.notifyState()
	s.status("")
	return match, nil
}

// StartSearch 검증 후 백그라운드에서 FindMatch 실행 (결과는 이벤트로 전달)
func (s *SessionService) StartSearch(prefs models.Preferences) error {
	prefs, err := s.ValidatePreferences(prefs)
	if err != nil {
		return err
	}
	go func() {
		if _, err := s.FindMatch(context.Background(), prefs); err != nil && !errors.Is(err, ErrSearchCancelled) {
			s.logger.Info("Search finished without session", zap.Error(err))
		}
	}()
	return nil
}

// CooldownError 건너뛰기 간격이 아직 지나지 않음
type CooldownError struct {
	Wait     time.Duration
	Interval time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrSkipCooldown, e.Wait.Round(time.Millisecond))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrSkipCooldown
}

// Skip 현재 상대를 떠나 같은 조건으로 다시 검색 (연결된 상태에서만, 쿨다운 적용)
func (s *SessionService) Skip(ctx context.Context) error {
	if s.sc.State() != models.MatchConnected {
		return ErrNotConnected
	}
	if s.cooldown != nil {
		if ok, wait := s.cooldown.Try(s.sc.UserID); !ok {
			return &CooldownError{Wait: wait, Interval: s.cooldown.Interval()}
		}
	}
	prefs := s.sc.Preferences()
	if prefs == nil {
		return ErrInvalidInput
	}

	s.logger.Info("Skipping stranger")
	s.teardown.Run(ctx, s.sc)
	s.notifyState()
	return s.StartSearch(*prefs)
}

// End 검색이나 세션을 끝내고 idle로
func (s *SessionService) End(ctx context.Context) {
	s.teardown.Run(ctx, s.sc)
	s.notifyState()
	s.status("Session ended")
}

// SendMessage 채팅 전송 (검열 차단 시 안내 메시지를 보낸다)
func (s *SessionService) SendMessage(ctx context.Context, text string) (models.TranscriptLine, error) {
	line, err := s.chat.Send(ctx, s.sc, text)
	var blocked *BlockedError
	switch {
	case errors.As(err, &blocked):
		s.notify(models.EventSystem, blocked.UserMessage())
	case errors.Is(err, ErrRateLimited):
		s.notify(models.EventSystem, "⚠️ You're sending messages too fast")
	case err == nil:
		s.notify(models.EventChat, line)
	}
	return line, err
}

// trackToggler 로컬 트랙 켜기/끄기 (rtc.PeerSession이 구현)
type trackToggler interface {
	SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) (bool, error)
	TrackEnabled(kind webrtc.RTPCodecType) bool
}

// ToggleAudio 마이크 송신 전환, 전환 후 상태 반환
func (s *SessionService) ToggleAudio() (bool, error) {
	return s.toggle(webrtc.RTPCodecTypeAudio)
}

// ToggleVideo 카메라 송신 전환, 전환 후 상태 반환
func (s *SessionService) ToggleVideo() (bool, error) {
	return s.toggle(webrtc.RTPCodecTypeVideo)
}

func (s *SessionService) toggle(kind webrtc.RTPCodecType) (bool, error) {
	peer, ok := s.sc.Peer().(trackToggler)
	if !ok {
		return false, ErrNoMedia
	}
	enabled := !peer.TrackEnabled(kind)
	found, err := peer.SetTrackEnabled(kind, enabled)
	if err != nil {
		return !enabled, err
	}
	if !found {
		return false, ErrNoMedia
	}
	s.logger.Debug("Local track toggled", zap.String("kind", kind.String()), zap.Bool("enabled", enabled))
	return enabled, nil
}

// startSession 매칭 후 통신 방식별 세션 시작
func (s *SessionService) startSession(ctx context.Context, gen uint64, match *models.Match, prefs models.Preferences) error {
	if err := s.chat.Watch(ctx, s.sc, match.CallID, s.notifier); err != nil {
		return err
	}

	if match.CommType == models.CommChat {
		if err := s.watchRemoteEnd(ctx, gen, match.CallID); err != nil {
			return err
		}
		s.sc.SetConnection(models.ConnConnected)
	} else if err := s.startPeer(ctx, gen, match); err != nil {
		return err
	}

	s.chat.System(s.sc, s.notifier, "Connected! Say hello :)")
	if starters := ConversationStarters(prefs.Interests, match.Remote.Interests); len(starters) > 0 {
		s.chat.System(s.sc, s.notifier, "Try asking about: "+strings.Join(starters, " | "))
	} else {
		s.chat.System(s.sc, s.notifier, "Icebreaker: "+RandomIcebreaker())
	}
	return nil
}

func (s *SessionService) startPeer(ctx context.Context, gen uint64, match *models.Match) error {
	media, err := rtc.AcquireWithRetry(ctx, s.media,
		rtc.ConstraintsFor(match.CommType == models.CommVideo),
		s.cfg.MediaAttempts, mediaRetryDelay, s.clock, s.logger)
	if err != nil {
		return err
	}

	pc, err := s.peers()
	if err != nil {
		media.Stop()
		return fmt.Errorf("create peer connection: %w", err)
	}

	remoteID := match.RemoteUserID
	peer := rtc.NewPeerSession(rtc.Config{
		CallID:            match.CallID,
		UserID:            s.sc.UserID,
		RemoteID:          remoteID,
		Initiator:         match.IsInitiator,
		ConnectionTimeout: s.cfg.ConnectionTimeout,
		ReconnectDelay:    s.cfg.ReconnectDelay,
		MaxReconnects:     s.cfg.MaxReconnects,
		StatsInterval:     s.cfg.StatsInterval,
	}, pc, s.calls, media, s.clock, s.logger, rtc.Hooks{
		OnConnectionState: func(st models.ConnectionState) {
			if !s.sc.Current(gen) {
				return
			}
			s.sc.SetConnection(st)
			s.notify(models.EventConnection, st)
		},
		OnRemoteTrack: func(track *webrtc.TrackRemote) {
			s.logger.Info("Remote track received", zap.String("kind", track.Kind().String()))
		},
		OnData: func(data []byte) {
			if s.sc.Current(gen) {
				s.chat.Receive(s.sc, remoteID, data, s.notifier)
			}
		},
		OnStats: func(st rtc.Stats) {
			s.notify(models.EventStats, st)
		},
		OnConnectionLost: func() {
			if s.sc.Current(gen) {
				s.status(ErrConnectionLost.Error())
				s.notify(models.EventError, ErrConnectionLost.Error())
			}
		},
		OnRemoteEnded: func() {
			go s.remoteEnded(gen)
		},
	})

	s.sc.SetPeer(peer)
	return peer.Start(ctx)
}

// watchRemoteEnd 채팅 세션에서 상대가 통화를 끝냈는지 감시
func (s *SessionService) watchRemoteEnd(ctx context.Context, gen uint64, callID string) error {
	stream, err := s.calls.Watch(ctx, callID)
	if err != nil {
		return err
	}
	s.sc.Track(stream)

	go func() {
		for upd := range stream.C() {
			if upd.Deleted || (upd.Call != nil && upd.Call.Status == models.CallEnded) {
				s.remoteEnded(gen)
				return
			}
		}
	}()
	return nil
}

// remoteEnded 상대가 떠난 세션 정리
func (s *SessionService) remoteEnded(gen uint64) {
	if !s.sc.Current(gen) {
		return
	}
	s.logger.Info("Stranger disconnected")
	s.chat.System(s.sc, s.notifier, "Stranger disconnected")
	s.teardown.Run(context.Background(), s.sc)
	s.notifyState()
}

func (s *SessionService) notify(t models.EventType, payload any) {
	s.notifier.Notify(models.Event{Type: t, Payload: payload})
}

func (s *SessionService) status(msg string) {
	s.notify(models.EventStatus, msg)
}

func (s *SessionService) notifyState() {
	s.notify(models.EventState, s.sc.Snapshot())
}
