package rtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

type fakeDataChannel struct {
	mu     sync.Mutex
	label  string
	state  webrtc.DataChannelState
	sent   [][]byte
	onOpen func()
	onMsg  func(webrtc.DataChannelMessage)
	closed bool
}

func (d *fakeDataChannel) Label() string { return d.label }

func (d *fakeDataChannel) ReadyState() webrtc.DataChannelState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *fakeDataChannel) Send(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, data)
	return nil
}

func (d *fakeDataChannel) OnOpen(f func()) {
	d.mu.Lock()
	d.onOpen = f
	d.mu.Unlock()
}

func (d *fakeDataChannel) OnMessage(f func(webrtc.DataChannelMessage)) {
	d.mu.Lock()
	d.onMsg = f
	d.mu.Unlock()
}

func (d *fakeDataChannel) Close() error {
	d.mu.Lock()
	d.closed = true
	d.state = webrtc.DataChannelStateClosed
	d.mu.Unlock()
	return nil
}

func (d *fakeDataChannel) open() {
	d.mu.Lock()
	d.state = webrtc.DataChannelStateOpen
	f := d.onOpen
	d.mu.Unlock()
	if f != nil {
		f()
	}
}

func (d *fakeDataChannel) receive(data []byte) {
	d.mu.Lock()
	f := d.onMsg
	d.mu.Unlock()
	if f != nil {
		f(webrtc.DataChannelMessage{Data: data})
	}
}

func (d *fakeDataChannel) sentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type fakeSender struct {
	mu      sync.Mutex
	current webrtc.TrackLocal
}

func (s *fakeSender) ReplaceTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	s.current = track
	s.mu.Unlock()
	return nil
}

func (s *fakeSender) track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// fakePeer 네트워크 없이 시그널링 상태만 흉내 내는 PeerConnection
type fakePeer struct {
	mu sync.Mutex

	signaling  webrtc.SignalingState
	remote     *webrtc.SessionDescription
	offers     []*webrtc.OfferOptions
	remoteSet  []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	senders    []*fakeSender
	dc         *fakeDataChannel
	closeCalls int
	stats      Stats

	onCandidate func(*webrtc.ICECandidateInit)
	onState     func(webrtc.PeerConnectionState)
	onICEState  func(webrtc.ICEConnectionState)
	onTrack     func(*webrtc.TrackRemote)
	onDC        func(DataChannel)
}

func newFakePeer() *fakePeer {
	return &fakePeer{signaling: webrtc.SignalingStateStable}
}

func (p *fakePeer) CreateOffer(opts *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers = append(p.offers, opts)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", len(p.offers))}, nil
}

func (p *fakePeer) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (p *fakePeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if desc.Type == webrtc.SDPTypeOffer {
		p.signaling = webrtc.SignalingStateHaveLocalOffer
	} else {
		p.signaling = webrtc.SignalingStateStable
	}
	return nil
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := desc
	p.remote = &d
	p.remoteSet = append(p.remoteSet, desc)
	if desc.Type == webrtc.SDPTypeOffer {
		p.signaling = webrtc.SignalingStateHaveRemoteOffer
	} else {
		p.signaling = webrtc.SignalingStateStable
	}
	return nil
}

func (p *fakePeer) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePeer) SignalingState() webrtc.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaling
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) OnICECandidate(f func(*webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onCandidate = f
	p.mu.Unlock()
}

func (p *fakePeer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = f
	p.mu.Unlock()
}

func (p *fakePeer) OnICEConnectionStateChange(f func(webrtc.ICEConnectionState)) {
	p.mu.Lock()
	p.onICEState = f
	p.mu.Unlock()
}

func (p *fakePeer) OnTrack(f func(*webrtc.TrackRemote)) {
	p.mu.Lock()
	p.onTrack = f
	p.mu.Unlock()
}

func (p *fakePeer) OnDataChannel(f func(DataChannel)) {
	p.mu.Lock()
	p.onDC = f
	p.mu.Unlock()
}

func (p *fakePeer) CreateDataChannel(label string, _ *webrtc.DataChannelInit) (DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dc = &fakeDataChannel{label: label, state: webrtc.DataChannelStateConnecting}
	return p.dc, nil
}

func (p *fakePeer) AddTrack(track webrtc.TrackLocal) (TrackSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &fakeSender{current: track}
	p.senders = append(p.senders, s)
	return s, nil
}

func (p *fakePeer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closeCalls++
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) setState(state webrtc.PeerConnectionState) {
	p.mu.Lock()
	f := p.onState
	p.mu.Unlock()
	f(state)
}

func (p *fakePeer) setICEState(state webrtc.ICEConnectionState) {
	p.mu.Lock()
	f := p.onICEState
	p.mu.Unlock()
	f(state)
}

func (p *fakePeer) gather(candidate string) {
	p.mu.Lock()
	f := p.onCandidate
	p.mu.Unlock()
	c := webrtc.ICECandidateInit{Candidate: candidate}
	f(&c)
}

func (p *fakePeer) remoteDataChannel(label string) *fakeDataChannel {
	dc := &fakeDataChannel{label: label, state: webrtc.DataChannelStateConnecting}
	p.mu.Lock()
	f := p.onDC
	p.mu.Unlock()
	f(dc)
	return dc
}

func (p *fakePeer) offerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.offers)
}

func (p *fakePeer) lastOffer() *webrtc.OfferOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.offers) == 0 {
		return nil
	}
	return p.offers[len(p.offers)-1]
}

func (p *fakePeer) remoteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remoteSet)
}

func (p *fakePeer) appliedCandidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.candidates))
	for _, c := range p.candidates {
		out = append(out, c.Candidate)
	}
	return out
}

func (p *fakePeer) closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}
