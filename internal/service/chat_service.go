package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/internal/moderation"
	"github.com/akkalaj75/hostelhub-v40/internal/repository"
	"github.com/akkalaj75/hostelhub-v40/internal/session"
	"github.com/akkalaj75/hostelhub-v40/pkg/ratelimit"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const chatMessageType = "chat"

// BlockedError 검열로 전송이 막힌 메시지
type BlockedError struct {
	Reason moderation.Reason
}

func (e *BlockedError) Error() string {
	return "message blocked: " + string(e.Reason)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrMessageBlocked
}

// UserMessage 발신자에게 보여줄 안내
func (e *BlockedError) UserMessage() string {
	if e.Reason == moderation.ReasonContactInfo {
		return "⚠️ Sharing contact info is against the rules"
	}
	return "⚠️ Please keep the conversation respectful"
}

// DataSender 직접 전송 채널 (rtc.PeerSession이 구현)
type DataSender interface {
	DataOpen() bool
	SendData(data []byte) error
}

// ChatService 채팅 메시지 송수신과 대화 기록
type ChatService struct {
	calls     *repository.CallRepository
	limiter   ratelimit.Limiter
	clock     clockwork.Clock
	logger    *zap.Logger
	maxLength int
}

func NewChatService(
	calls *repository.CallRepository,
	limiter ratelimit.Limiter,
	maxLength int,
	clock clockwork.Clock,
	logger *zap.Logger,
) *ChatService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		calls:     calls,
		limiter:   limiter,
		clock:     clock,
		logger:    logger,
		maxLength: maxLength,
	}
}

// Send 현재 상대에게 메시지 전송
//
// 검열에 걸린 메시지는 *BlockedError로 거절되며 어디에도 기록되지 않는다.
// 데이터 채널이 열려 있으면 직접 보내고, 아니면 통화 문서의 메시지
// 컬렉션에 쓴다.
func (s *ChatService) Send(ctx context.Context, sc *session.Context, text string) (models.TranscriptLine, error) {
	var line models.TranscriptLine

	match := sc.Match()
	if match == nil {
		return line, ErrNotConnected
	}
	text = moderation.Truncate(text, s.maxLength)
	if text == "" {
		return line, ErrEmptyMessage
	}
	if v := moderation.Check(text); !v.Allowed {
		s.logger.Info("Outgoing message blocked",
			zap.String("userId", sc.UserID),
			zap.String("reason", string(v.Reason)))
		return line, &BlockedError{Reason: v.Reason}
	}
	if s.limiter != nil {
		ok, err := s.limiter.Take(ctx, sc.UserID)
		if err != nil {
			s.logger.Warn("Rate limiter unavailable", zap.Error(err))
		} else if !ok {
			return line, ErrRateLimited
		}
	}

	now := s.clock.Now().UnixMilli()
	line = models.TranscriptLine{From: sc.UserID, Text: text, Timestamp: now, Local: true}

	if s.sendDirect(sc, text, now) {
		sc.AppendTranscript(line)
		return line, nil
	}

	msg := models.ChatMessage{Text: text, From: sc.UserID, Timestamp: now}
	if _, err := s.calls.AddMessage(ctx, match.CallID, msg); err != nil {
		return models.TranscriptLine{}, fmt.Errorf("send message: %w", err)
	}
	sc.AppendTranscript(line)
	return line, nil
}

func (s *ChatService) sendDirect(sc *session.Context, text string, ts int64) bool {
	dc, ok := sc.Peer().(DataSender)
	if !ok || !dc.DataOpen() {
		return false
	}
	payload, err := json.Marshal(models.DataChannelMessage{Type: chatMessageType, Text: text, TS: ts})
	if err != nil {
		return false
	}
	if err := dc.SendData(payload); err != nil {
		s.logger.Warn("Data channel send failed, using store", zap.Error(err))
		return false
	}
	return true
}

// Watch 통화 문서의 메시지 컬렉션 구독
// 반환된 핸들은 Teardown이 취소하도록 sc에 등록되어 있다
func (s *ChatService) Watch(ctx context.Context, sc *session.Context, callID string, notifier models.Notifier) error {
	stream, err := s.calls.WatchMessages(ctx, callID)
	if err != nil {
		return err
	}
	sc.Track(stream)

	go func() {
		for msg := range stream.C() {
			if msg.From == sc.UserID {
				continue
			}
			s.deliver(sc, notifier, models.TranscriptLine{
				From:      msg.From,
				Text:      moderation.Truncate(msg.Text, s.maxLength),
				Timestamp: msg.Timestamp,
			})
		}
	}()
	return nil
}

// Receive 데이터 채널로 받은 페이로드 처리 (chat 타입만)
func (s *ChatService) Receive(sc *session.Context, remoteID string, data []byte, notifier models.Notifier) {
	var msg models.DataChannelMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("Ignoring malformed data channel payload", zap.Error(err))
		return
	}
	if msg.Type != chatMessageType || strings.TrimSpace(msg.Text) == "" {
		return
	}
	ts := msg.TS
	if ts == 0 {
		ts = s.clock.Now().UnixMilli()
	}
	s.deliver(sc, notifier, models.TranscriptLine{
		From:      remoteID,
		Text:      moderation.Truncate(msg.Text, s.maxLength),
		Timestamp: ts,
	})
}

func (s *ChatService) deliver(sc *session.Context, notifier models.Notifier, line models.TranscriptLine) {
	sc.AppendTranscript(line)
	if notifier != nil {
		notifier.Notify(models.Event{Type: models.EventChat, Payload: line})
	}
}

// System 시스템 안내를 기록하고 알림
func (s *ChatService) System(sc *session.Context, notifier models.Notifier, text string) {
	line := models.TranscriptLine{Text: text, Timestamp: s.clock.Now().UnixMilli(), System: true}
	sc.AppendTranscript(line)
	if notifier != nil {
		notifier.Notify(models.Event{Type: models.EventSystem, Payload: text})
	}
}

// WriteTranscript "[hh:mm:ss] From: text" 형식으로 기록 저장 (시스템 안내 제외)
func WriteTranscript(w io.Writer, lines []models.TranscriptLine) error {
	for _, l := range lines {
		if l.System {
			continue
		}
		from := "Stranger"
		if l.Local {
			from = "You"
		}
		stamp := time.UnixMilli(l.Timestamp).Format(time.TimeOnly)
		if _, err := fmt.Fprintf(w, "[%s] %s: %s\n", stamp, from, l.Text); err != nil {
			return err
		}
	}
	return nil
}
