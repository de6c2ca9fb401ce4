package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/pkg/docstore"
	"github.com/jonboulle/clockwork"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// ErrSessionClosed 종료된 세션에 대한 요청
var ErrSessionClosed = errors.New("peer session closed")

// ErrDataChannelNotOpen 데이터 채널이 열려 있지 않음
var ErrDataChannelNotOpen = errors.New("data channel not open")

const dataChannelLabel = "chat"

// Signaler 통화 문서를 통한 시그널링 (repository.CallRepository가 구현)
type Signaler interface {
	Watch(ctx context.Context, callID string) (*docstore.Stream[models.CallUpdate], error)
	WatchCandidates(ctx context.Context, callID string) (*docstore.Stream[models.CandidateRecord], error)
	PublishOffer(ctx context.Context, callID string, offer models.SessionDescription, iceRestart bool) error
	PublishAnswer(ctx context.Context, callID string, answer models.SessionDescription) error
	RequestICERestart(ctx context.Context, callID, userID string, at int64) error
	AddCandidate(ctx context.Context, callID string, rec models.CandidateRecord) (string, error)
}

// Config 세션 설정
type Config struct {
	CallID            string
	UserID            string
	RemoteID          string
	Initiator         bool
	ConnectionTimeout time.Duration
	ReconnectDelay    time.Duration
	MaxReconnects     int
	StatsInterval     time.Duration
}

// Hooks 세션 이벤트 콜백
// 세션 루프에서 호출되므로 콜백 안에서 Close를 직접 호출하면 안 된다
type Hooks struct {
	OnConnectionState func(models.ConnectionState)
	OnRemoteTrack     func(*webrtc.TrackRemote)
	OnDataOpen        func()
	OnData            func([]byte)
	OnStats           func(Stats)
	OnConnectionLost  func()
	OnRemoteEnded     func()
}

// PeerSession 한 매칭의 실시간 연결 수명 주기를 관리
//
// offer/answer 교환, 후보 버퍼링, 연결 상태 감시, ICE restart 기반 재연결을
// 단일 이벤트 루프에서 처리한다. 피어 콜백과 구독, 타이머는 모두 루프에 작업을
// 게시하고 상태는 루프 안에서만 변경된다.
type PeerSession struct {
	cfg      Config
	pc       PeerConnection
	signaler Signaler
	media    *LocalStream
	clock    clockwork.Clock
	logger   *zap.Logger
	hooks    Hooks

	ctx    context.Context
	cancel context.CancelFunc
	box    *mailbox
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	callStream *docstore.Stream[models.CallUpdate]
	candStream *docstore.Stream[models.CandidateRecord]
	statsStop  chan struct{}

	// 루프 전용 상태
	buffer             CandidateBuffer
	revision           int
	answerRevision     int
	reconnects         int
	reconnectTimer     clockwork.Timer
	connectTimer       clockwork.Timer
	lastRestartRequest int64
	lost               bool
	ended              bool
	remoteTracks       []*webrtc.TrackRemote

	mu      sync.Mutex
	state   models.ConnectionState
	dc      DataChannel
	senders map[webrtc.RTPCodecType]senderTrack
	closed  bool
}

type senderTrack struct {
	sender  TrackSender
	track   webrtc.TrackLocal
	enabled bool
}

// NewPeerSession PeerSession 생성 (Start 전에는 아무 동작도 하지 않음)
func NewPeerSession(
	cfg Config,
	pc PeerConnection,
	signaler Signaler,
	localMedia *LocalStream,
	clock clockwork.Clock,
	logger *zap.Logger,
	hooks Hooks,
) *PeerSession {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PeerSession{
		cfg:      cfg,
		pc:       pc,
		signaler: signaler,
		media:    localMedia,
		clock:    clock,
		logger:   logger.With(zap.String("callId", cfg.CallID), zap.Bool("initiator", cfg.Initiator)),
		hooks:    hooks,
		ctx:      ctx,
		cancel:   cancel,
		box:      newMailbox(),
		done:     make(chan struct{}),
		state:    models.ConnNew,
		senders:  make(map[webrtc.RTPCodecType]senderTrack),
	}
}

// Start 시그널링 구독, 로컬 트랙 추가, 타이머 시작 (개시자는 offer 생성)
func (s *PeerSession) Start(ctx context.Context) error {
	s.registerCallbacks()

	if s.media != nil {
		for _, track := range s.media.Tracks() {
			sender, err := s.pc.AddTrack(track)
			if err != nil {
				s.logger.Warn("Failed to add local track", zap.String("kind", track.Kind().String()), zap.Error(err))
				continue
			}
			s.mu.Lock()
			s.senders[track.Kind()] = senderTrack{sender: sender, track: track, enabled: true}
			s.mu.Unlock()
		}
	}

	if s.cfg.Initiator {
		dc, err := s.pc.CreateDataChannel(dataChannelLabel, nil)
		if err != nil {
			s.logger.Warn("Failed to create data channel", zap.Error(err))
		} else {
			s.attachDataChannel(dc)
		}
	}

	callStream, err := s.signaler.Watch(ctx, s.cfg.CallID)
	if err != nil {
		return err
	}
	candStream, err := s.signaler.WatchCandidates(ctx, s.cfg.CallID)
	if err != nil {
		callStream.Cancel()
		return err
	}
	s.callStream = callStream
	s.candStream = candStream

	s.wg.Add(3)
	go s.loop()
	go func() {
		defer s.wg.Done()
		for upd := range callStream.C() {
			upd := upd
			s.box.post(func() { s.handleCall(upd) })
		}
	}()
	go func() {
		defer s.wg.Done()
		for rec := range candStream.C() {
			rec := rec
			s.box.post(func() { s.handleRemoteCandidate(rec) })
		}
	}()

	s.box.post(func() {
		s.armConnectTimer()
		if s.cfg.Initiator {
			s.sendOffer(false)
		}
	})

	if s.cfg.StatsInterval > 0 {
		s.statsStop = make(chan struct{})
		s.wg.Add(1)
		go s.statsLoop()
	}
	return nil
}

func (s *PeerSession) registerCallbacks() {
	s.pc.OnICECandidate(func(c *webrtc.ICECandidateInit) {
		if c == nil {
			return
		}
		cand := *c
		s.box.post(func() { s.publishCandidate(cand) })
	})
	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.box.post(func() { s.handleConnectionState(connectionState(state)) })
	})
	s.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if state == webrtc.ICEConnectionStateFailed {
			s.box.post(func() {
				s.logger.Warn("ICE connection failed, restarting immediately")
				s.attemptReconnect(true)
			})
		}
	})
	s.pc.OnTrack(func(track *webrtc.TrackRemote) {
		s.box.post(func() { s.handleRemoteTrack(track) })
	})
	s.pc.OnDataChannel(func(dc DataChannel) {
		if dc.Label() != dataChannelLabel {
			return
		}
		s.box.post(func() { s.attachDataChannel(dc) })
	})
}

func (s *PeerSession) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.box.notify:
			for _, fn := range s.box.take() {
				select {
				case <-s.done:
					return
				default:
				}
				fn()
			}
		}
	}
}

func (s *PeerSession) now() int64 {
	return s.clock.Now().UnixMilli()
}

// sendOffer 개시자: offer 생성 후 통화 문서에 기록
func (s *PeerSession) sendOffer(iceRestart bool) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := s.pc.CreateOffer(opts)
	if err != nil {
		s.logger.Error("Failed to create offer", zap.Error(err))
		return
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		s.logger.Error("Failed to set local offer", zap.Error(err))
		return
	}
	s.revision++
	desc := models.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP, Revision: s.revision}
	if err := s.signaler.PublishOffer(s.ctx, s.cfg.CallID, desc, iceRestart); err != nil {
		s.logger.Error("Failed to publish offer", zap.Error(err))
		return
	}
	s.logger.Debug("Offer published", zap.Int("revision", s.revision), zap.Bool("iceRestart", iceRestart))
}

func (s *PeerSession) handleCall(upd models.CallUpdate) {
	if upd.Deleted || upd.Call.Status == models.CallEnded {
		if !s.ended {
			s.ended = true
			s.logger.Info("Remote ended the call", zap.Bool("deleted", upd.Deleted))
			if s.hooks.OnRemoteEnded != nil {
				s.hooks.OnRemoteEnded()
			}
		}
		return
	}
	call := upd.Call

	if !s.cfg.Initiator {
		if call.Offer != nil && (s.pc.RemoteDescription() == nil || call.Offer.Revision > s.revision) {
			s.applyOffer(call.Offer)
		}
		return
	}

	if call.Answer != nil &&
		call.Answer.Revision == s.revision &&
		s.answerRevision < s.revision &&
		s.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		if err := s.pc.SetRemoteDescription(toDescription(call.Answer)); err != nil {
			s.logger.Error("Failed to set remote answer", zap.Error(err))
		} else {
			s.answerRevision = call.Answer.Revision
			s.flushCandidates()
		}
	}

	if call.ICERestartRequestedAt > s.lastRestartRequest && call.ICERestartRequestedBy != s.cfg.UserID {
		s.lastRestartRequest = call.ICERestartRequestedAt
		if s.currentState() != models.ConnConnected {
			s.logger.Info("Remote requested ICE restart")
			s.sendOffer(true)
		}
	}
}

// applyOffer 비개시자: 원격 offer 적용 후 answer 기록
func (s *PeerSession) applyOffer(offer *models.SessionDescription) {
	if err := s.pc.SetRemoteDescription(toDescription(offer)); err != nil {
		s.logger.Error("Failed to set remote offer", zap.Int("revision", offer.Revision), zap.Error(err))
		return
	}
	s.revision = offer.Revision
	s.flushCandidates()

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		s.logger.Error("Failed to create answer", zap.Error(err))
		return
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		s.logger.Error("Failed to set local answer", zap.Error(err))
		return
	}
	desc := models.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP, Revision: offer.Revision}
	if err := s.signaler.PublishAnswer(s.ctx, s.cfg.CallID, desc); err != nil {
		s.logger.Error("Failed to publish answer", zap.Error(err))
	}
}

func (s *PeerSession) publishCandidate(c webrtc.ICECandidateInit) {
	rec := models.CandidateRecord{
		Candidate: fromCandidateInit(c),
		From:      s.cfg.UserID,
		Timestamp: s.now(),
	}
	if _, err := s.signaler.AddCandidate(s.ctx, s.cfg.CallID, rec); err != nil {
		s.logger.Warn("Failed to publish candidate", zap.Error(err))
	}
}

func (s *PeerSession) handleRemoteCandidate(rec models.CandidateRecord) {
	if rec.From == s.cfg.UserID {
		return
	}
	if s.pc.RemoteDescription() == nil {
		s.buffer.Push(rec)
		return
	}
	s.applyCandidate(rec)
}

func (s *PeerSession) applyCandidate(rec models.CandidateRecord) {
	if err := s.pc.AddICECandidate(toCandidateInit(rec.Candidate)); err != nil {
		s.logger.Warn("Failed to apply remote candidate", zap.String("candidateId", rec.ID), zap.Error(err))
	}
}

// flushCandidates 버퍼에 쌓인 후보를 도착 순서대로 적용
func (s *PeerSession) flushCandidates() {
	pending := s.buffer.Drain()
	for _, rec := range pending {
		s.applyCandidate(rec)
	}
	if len(pending) > 0 {
		s.logger.Debug("Flushed buffered candidates", zap.Int("count", len(pending)))
	}
}

func (s *PeerSession) handleConnectionState(state models.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.logger.Info("Connection state changed", zap.String("state", string(state)))
	if s.hooks.OnConnectionState != nil {
		s.hooks.OnConnectionState(state)
	}

	switch state {
	case models.ConnConnected:
		stopTimer(&s.connectTimer)
		stopTimer(&s.reconnectTimer)
		s.reconnects = 0
	case models.ConnDisconnected, models.ConnFailed:
		s.attemptReconnect(false)
	}
}

// attemptReconnect 재연결 한 번을 예약하거나(immediate면 즉시) 상한 초과를 알림
//
// 재연결이 이미 예약된 상태에서 즉시 요청이 오면 예약을 취소하고 바로 수행하며
// 추가 시도로 세지 않는다.
func (s *PeerSession) attemptReconnect(immediate bool) {
	if s.lost || s.ended {
		return
	}
	if s.reconnectTimer != nil {
		if !immediate {
			return
		}
		stopTimer(&s.reconnectTimer)
		s.restartICE()
		return
	}

	if s.reconnects >= s.cfg.MaxReconnects {
		s.lost = true
		stopTimer(&s.connectTimer)
		s.logger.Warn("Reconnection limit reached", zap.Int("attempts", s.reconnects))
		if s.hooks.OnConnectionLost != nil {
			s.hooks.OnConnectionLost()
		}
		return
	}
	s.reconnects++
	s.logger.Info("Scheduling reconnection", zap.Int("attempt", s.reconnects), zap.Bool("immediate", immediate))

	if immediate {
		s.restartICE()
		return
	}
	s.reconnectTimer = s.clock.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.box.post(func() {
			s.reconnectTimer = nil
			s.restartICE()
		})
	})
}

func (s *PeerSession) restartICE() {
	if s.currentState() == models.ConnConnected {
		return
	}
	if s.cfg.Initiator {
		s.sendOffer(true)
	} else if err := s.signaler.RequestICERestart(s.ctx, s.cfg.CallID, s.cfg.UserID, s.now()); err != nil {
		s.logger.Warn("Failed to request ICE restart", zap.Error(err))
	}
	s.armConnectTimer()
}

// armConnectTimer 연결 제한 시간 안에 연결되지 않으면 재연결 시도
func (s *PeerSession) armConnectTimer() {
	if s.cfg.ConnectionTimeout <= 0 {
		return
	}
	stopTimer(&s.connectTimer)
	s.connectTimer = s.clock.AfterFunc(s.cfg.ConnectionTimeout, func() {
		s.box.post(func() {
			s.connectTimer = nil
			if s.currentState() != models.ConnConnected {
				s.logger.Warn("Connection timeout", zap.Duration("timeout", s.cfg.ConnectionTimeout))
				s.attemptReconnect(false)
			}
		})
	})
}

func stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *PeerSession) handleRemoteTrack(track *webrtc.TrackRemote) {
	s.remoteTracks = append(s.remoteTracks, track)
	s.logger.Info("Remote track received", zap.String("kind", track.Kind().String()))
	if s.hooks.OnRemoteTrack != nil {
		s.hooks.OnRemoteTrack(track)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	}()
}

func (s *PeerSession) attachDataChannel(dc DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.box.post(func() {
			s.logger.Info("Data channel open")
			if s.hooks.OnDataOpen != nil {
				s.hooks.OnDataOpen()
			}
		})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		data := msg.Data
		s.box.post(func() {
			if s.hooks.OnData != nil {
				s.hooks.OnData(data)
			}
		})
	})
}

func (s *PeerSession) statsLoop() {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.statsStop:
			return
		case <-ticker.Chan():
			if s.currentState() == models.ConnClosed {
				continue
			}
			st := s.pc.Stats()
			s.logger.Debug("Transport stats",
				zap.Uint64("bytesSent", st.BytesSent),
				zap.Uint64("bytesReceived", st.BytesReceived))
			if s.hooks.OnStats != nil {
				s.box.post(func() { s.hooks.OnStats(st) })
			}
		}
	}
}

func (s *PeerSession) currentState() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// State 현재 연결 상태
func (s *PeerSession) State() models.ConnectionState {
	return s.currentState()
}

// DataOpen 데이터 채널 사용 가능 여부
func (s *PeerSession) DataOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.dc != nil && s.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// SendData 데이터 채널로 전송
func (s *PeerSession) SendData(data []byte) error {
	s.mu.Lock()
	dc, closed := s.dc, s.closed
	s.mu.Unlock()

	if closed {
		return ErrSessionClosed
	}
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrDataChannelNotOpen
	}
	return dc.Send(data)
}

// SetTrackEnabled 로컬 트랙 송신 켜기/끄기 (재협상 없이 송신 트랙 교체)
func (s *PeerSession) SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrSessionClosed
	}
	st, ok := s.senders[kind]
	if !ok {
		return false, nil
	}
	var track webrtc.TrackLocal
	if enabled {
		track = st.track
	}
	if err := st.sender.ReplaceTrack(track); err != nil {
		return st.enabled, err
	}
	st.enabled = enabled
	s.senders[kind] = st
	return true, nil
}

// TrackEnabled 로컬 트랙 송신 여부
func (s *PeerSession) TrackEnabled(kind webrtc.RTPCodecType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.senders[kind]
	return ok && st.enabled
}

// Close 구독과 타이머를 해제하고 피어 연결과 로컬 미디어를 정리
// 동기적이며 여러 번 호출해도 안전하다
func (s *PeerSession) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		dc := s.dc
		s.dc = nil
		s.state = models.ConnClosed
		s.mu.Unlock()

		if s.callStream != nil {
			s.callStream.Cancel()
		}
		if s.candStream != nil {
			s.candStream.Cancel()
		}
		if s.statsStop != nil {
			close(s.statsStop)
		}
		s.cancel()
		s.box.close()
		close(s.done)

		if dc != nil {
			if err := dc.Close(); err != nil {
				s.logger.Debug("Data channel close failed", zap.Error(err))
			}
		}
		if err := s.pc.Close(); err != nil {
			s.logger.Warn("Peer connection close failed", zap.Error(err))
		}
		if s.media != nil {
			s.media.Stop()
		}
		s.wg.Wait()

		stopTimer(&s.connectTimer)
		stopTimer(&s.reconnectTimer)
		s.remoteTracks = nil
		s.buffer.Drain()
		s.logger.Info("Peer session closed")
	})
}
