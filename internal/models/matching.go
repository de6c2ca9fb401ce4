package models

import (
	"sort"
	"strings"
)

// CommType 통신 방식
type CommType string

const (
	CommVideo CommType = "video"
	CommVoice CommType = "voice"
	CommChat  CommType = "chat"
)

// Valid 지원하는 통신 방식인지 확인
func (c CommType) Valid() bool {
	return c == CommVideo || c == CommVoice || c == CommChat
}

// AnyCollege 대학 조건 와일드카드
const AnyCollege = "ANY"

// Colleges 선택 가능한 대학 목록
var Colleges = []string{
	"IIT Delhi", "IIT Bombay", "JNTUK", "KL University",
	"VIT AP", "Delhi University", "Harvard", "MIT",
	"Stanford", "Other", AnyCollege,
}

// Preferences 매칭 선호 조건
type Preferences struct {
	Gender    string   `json:"gender"`
	College   string   `json:"college"`
	CommType  CommType `json:"commType"`
	Interests []string `json:"interests"`
}

// WaitingEntry 매칭 대기열 항목 (waiting/{userId})
type WaitingEntry struct {
	UserID        string   `json:"userId"`
	GenderFilter  string   `json:"genderFilter"`
	CollegeFilter string   `json:"collegeFilter"`
	CommType      CommType `json:"commType"`
	Interests     []string `json:"interests"`
	Timestamp     int64    `json:"timestamp"`
	Searching     bool     `json:"searching"`
	Matched       bool     `json:"matched"`
	Version       int64    `json:"version"`
	CallID        string   `json:"callId,omitempty"`
	MatchedWith   string   `json:"matchedWith,omitempty"`
}

// MatchState 클라이언트 매칭 상태
type MatchState string

const (
	MatchIdle      MatchState = "idle"
	MatchSearching MatchState = "searching"
	MatchMatched   MatchState = "matched"
	MatchConnected MatchState = "connected"
)

// Match 성사된 매칭 정보
type Match struct {
	CallID       string      `json:"callId"`
	RemoteUserID string      `json:"remoteUserId"`
	IsInitiator  bool        `json:"isInitiator"`
	CommType     CommType    `json:"commType"`
	Remote       Participant `json:"remote"`
	Score        float64     `json:"score"`
}

// SessionID 두 사용자 ID를 정렬해 결합한 결정적 세션 ID
func SessionID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// InitiatorOf 사전순으로 작은 ID가 offer를 만든다
func InitiatorOf(a, b string) string {
	if a < b {
		return a
	}
	return b
}
