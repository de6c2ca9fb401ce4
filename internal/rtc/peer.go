package rtc

import (
	"fmt"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/config"
	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/pion/webrtc/v4"
)

// DataChannel 데이터 채널 (pion *webrtc.DataChannel이 구현)
type DataChannel interface {
	Label() string
	ReadyState() webrtc.DataChannelState
	Send(data []byte) error
	OnOpen(f func())
	OnMessage(f func(msg webrtc.DataChannelMessage))
	Close() error
}

// TrackSender 송신 트랙 교체 핸들 (pion *webrtc.RTPSender가 구현)
type TrackSender interface {
	ReplaceTrack(track webrtc.TrackLocal) error
}

// Stats 전송 계층 누적 카운터
type Stats struct {
	BytesSent     uint64    `json:"bytesSent"`
	BytesReceived uint64    `json:"bytesReceived"`
	Timestamp     time.Time `json:"timestamp"`
}

// PeerConnection 세션 코디네이터가 사용하는 피어 연결 기능
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	RemoteDescription() *webrtc.SessionDescription
	SignalingState() webrtc.SignalingState
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	// OnICECandidate nil은 후보 수집 완료
	OnICECandidate(f func(*webrtc.ICECandidateInit))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	OnICEConnectionStateChange(f func(webrtc.ICEConnectionState))
	OnTrack(f func(*webrtc.TrackRemote))
	OnDataChannel(f func(DataChannel))

	CreateDataChannel(label string, init *webrtc.DataChannelInit) (DataChannel, error)
	AddTrack(track webrtc.TrackLocal) (TrackSender, error)
	Stats() Stats
	Close() error
}

// PeerFactory 세션마다 새 PeerConnection 생성
type PeerFactory func() (PeerConnection, error)

// ICEServers 설정을 pion 형식으로 변환
func ICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

// NewPionFactory pion 기반 PeerFactory
func NewPionFactory(servers []config.ICEServer) PeerFactory {
	iceServers := ICEServers(servers)
	return func() (PeerConnection, error) {
		m := &webrtc.MediaEngine{}
		if err := m.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("register codecs: %w", err)
		}

		settingEngine := webrtc.SettingEngine{}
		settingEngine.SetIncludeLoopbackCandidate(true)

		api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(settingEngine))
		pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
		if err != nil {
			return nil, fmt.Errorf("create peer connection: %w", err)
		}
		return &pionPeer{PeerConnection: pc}, nil
	}
}

// pionPeer *webrtc.PeerConnection 어댑터
type pionPeer struct {
	*webrtc.PeerConnection
}

func (p *pionPeer) OnICECandidate(f func(*webrtc.ICECandidateInit)) {
	p.PeerConnection.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			f(nil)
			return
		}
		init := c.ToJSON()
		f(&init)
	})
}

func (p *pionPeer) OnTrack(f func(*webrtc.TrackRemote)) {
	p.PeerConnection.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		f(track)
	})
}

func (p *pionPeer) OnDataChannel(f func(DataChannel)) {
	p.PeerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		f(dc)
	})
}

func (p *pionPeer) CreateDataChannel(label string, init *webrtc.DataChannelInit) (DataChannel, error) {
	dc, err := p.PeerConnection.CreateDataChannel(label, init)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (p *pionPeer) AddTrack(track webrtc.TrackLocal) (TrackSender, error) {
	sender, err := p.PeerConnection.AddTrack(track)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func (p *pionPeer) Stats() Stats {
	st := Stats{Timestamp: time.Now()}
	for _, s := range p.PeerConnection.GetStats() {
		switch ts := s.(type) {
		case webrtc.TransportStats:
			st.BytesSent += ts.BytesSent
			st.BytesReceived += ts.BytesReceived
		case *webrtc.TransportStats:
			st.BytesSent += ts.BytesSent
			st.BytesReceived += ts.BytesReceived
		}
	}
	return st
}

func toCandidateInit(c models.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromCandidateInit(c webrtc.ICECandidateInit) models.ICECandidate {
	return models.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func toDescription(d *models.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(d.Type),
		SDP:  d.SDP,
	}
}

func connectionState(s webrtc.PeerConnectionState) models.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return models.ConnConnecting
	case webrtc.PeerConnectionStateConnected:
		return models.ConnConnected
	case webrtc.PeerConnectionStateDisconnected:
		return models.ConnDisconnected
	case webrtc.PeerConnectionStateFailed:
		return models.ConnFailed
	case webrtc.PeerConnectionStateClosed:
		return models.ConnClosed
	}
	return models.ConnNew
}
