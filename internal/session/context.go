package session

import (
	"context"
	"sync"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
)

// Canceler 취소 가능한 구독/타이머 핸들
type Canceler interface {
	Cancel()
}

// CancelFunc 함수형 Canceler
type CancelFunc func()

func (f CancelFunc) Cancel() { f() }

// Peer 세션이 소유하는 실시간 연결 (rtc.PeerSession이 구현)
type Peer interface {
	Close()
}

// Snapshot 세션 상태 조회용 복사본
type Snapshot struct {
	UserID      string                 `json:"userId"`
	State       models.MatchState      `json:"state"`
	Connection  models.ConnectionState `json:"connection"`
	Preferences *models.Preferences    `json:"preferences,omitempty"`
	Match       *models.Match          `json:"match,omitempty"`
	Blocked     int                    `json:"blocked"`
	Generation  uint64                 `json:"generation"`
}

// Context 클라이언트 한 명의 매칭/세션 상태
//
// 모든 핵심 동작은 이 객체를 통해 상태를 읽고 쓴다. Reset은 매칭과 연결 관련
// 필드를 초기값으로 돌리고 세대 번호를 올리므로, 이전 세대에서 시작된 콜백은
// Current로 자신이 유효한지 확인할 수 있다.
type Context struct {
	UserID string

	mu           sync.Mutex
	prefs        *models.Preferences
	blocked      map[string]struct{}
	state        models.MatchState
	conn         models.ConnectionState
	match        *models.Match
	peer         Peer
	subs         []Canceler
	searchCancel context.CancelFunc
	transcript   []models.TranscriptLine
	generation   uint64
}

// NewContext 초기 상태의 Context
func NewContext(userID string) *Context {
	return &Context{
		UserID:  userID,
		blocked: make(map[string]struct{}),
		state:   models.MatchIdle,
		conn:    models.ConnNew,
	}
}

// Preferences 마지막으로 사용한 매칭 조건 (없으면 nil)
func (c *Context) Preferences() *models.Preferences {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prefs == nil {
		return nil
	}
	p := *c.prefs
	p.Interests = append([]string(nil), c.prefs.Interests...)
	return &p
}

// SetPreferences 매칭 조건 저장 (Reset 후에도 유지되어 Skip 재검색에 쓰인다)
func (c *Context) SetPreferences(p models.Preferences) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.Interests = append([]string(nil), p.Interests...)
	c.prefs = &p
}

// SetBlocked 차단 목록 교체
func (c *Context) SetBlocked(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c.blocked[id] = struct{}{}
	}
}

// AddBlocked 차단 목록에 추가
func (c *Context) AddBlocked(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked[id] = struct{}{}
}

// RemoveBlocked 차단 목록에서 제거
func (c *Context) RemoveBlocked(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blocked, id)
}

// IsBlocked 차단 여부
func (c *Context) IsBlocked(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.blocked[id]
	return ok
}

func (c *Context) State() models.MatchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Context) SetState(s models.MatchState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Transition from 상태일 때만 to로 바꾼다
func (c *Context) Transition(from, to models.MatchState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return false
	}
	c.state = to
	return true
}

func (c *Context) Connection() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Context) SetConnection(s models.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = s
}

// Match 현재 매칭 (없으면 nil)
func (c *Context) Match() *models.Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.match == nil {
		return nil
	}
	m := *c.match
	return &m
}

// SetMatch 매칭 기록 후 matched 상태로 전환
func (c *Context) SetMatch(m *models.Match) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.match = m
	c.state = models.MatchMatched
}

// AcceptMatch gen 세대의 검색이 아직 진행 중일 때만 매칭을 기록한다
func (c *Context) AcceptMatch(gen uint64, m *models.Match) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.state != models.MatchSearching {
		return false
	}
	c.match = m
	c.state = models.MatchMatched
	return true
}

// Peer 현재 연결 (없으면 nil)
func (c *Context) Peer() Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *Context) SetPeer(p Peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peer = p
}

// Track Teardown 때 취소할 구독이나 타이머 등록
func (c *Context) Track(h Canceler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, h)
}

// BeginSearch 검색 루프용 컨텍스트 생성 (Teardown이 취소한다)
func (c *Context) BeginSearch(parent context.Context) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searchCancel != nil {
		c.searchCancel()
	}
	c.searchCancel = cancel
	c.state = models.MatchSearching
	return ctx, c.generation
}

// Generation 현재 세대 번호
func (c *Context) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Current gen이 아직 현재 세대인지 확인
func (c *Context) Current(gen uint64) bool {
	return c.Generation() == gen
}

// AppendTranscript 대화 기록 추가
func (c *Context) AppendTranscript(line models.TranscriptLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = append(c.transcript, line)
}

// Transcript 대화 기록 복사본
func (c *Context) Transcript() []models.TranscriptLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.TranscriptLine(nil), c.transcript...)
}

// Snapshot 현재 상태 복사본
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		UserID:     c.UserID,
		State:      c.state,
		Connection: c.conn,
		Blocked:    len(c.blocked),
		Generation: c.generation,
	}
	if c.prefs != nil {
		p := *c.prefs
		snap.Preferences = &p
	}
	if c.match != nil {
		m := *c.match
		snap.Match = &m
	}
	return snap
}

// detached Teardown이 정리할 자원
type detached struct {
	match *models.Match
	peer  Peer
	subs  []Canceler
}

// detach 정리 대상 자원을 꺼내고 검색을 취소한다
// 세대를 바로 올리고 idle로 돌려서 정리 도중 커밋된 선점이 AcceptMatch를 통과하지 못하게 한다
func (c *Context) detach() detached {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := detached{match: c.match, peer: c.peer, subs: c.subs}
	c.peer = nil
	c.subs = nil
	if c.searchCancel != nil {
		c.searchCancel()
		c.searchCancel = nil
	}
	if c.state == models.MatchSearching {
		c.state = models.MatchIdle
	}
	c.generation++
	return d
}

// Reset 매칭/연결 필드를 초기값으로 (조건과 차단 목록은 유지)
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = models.MatchIdle
	c.conn = models.ConnNew
	c.match = nil
	c.peer = nil
	c.subs = nil
	c.transcript = nil
	if c.searchCancel != nil {
		c.searchCancel()
		c.searchCancel = nil
	}
	c.generation++
}
