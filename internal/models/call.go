package models

// CallStatus 통화 세션 상태
type CallStatus string

const (
	CallConnecting CallStatus = "connecting"
	CallEnded      CallStatus = "ended"
)

// SessionDescription offer/answer 페이로드
// Revision은 ICE restart마다 증가하며 answer는 같은 revision의 offer에만 적용된다
type SessionDescription struct {
	Type     string `json:"type"`
	SDP      string `json:"sdp"`
	Revision int    `json:"revision"`
}

// Participant 세션 참가자 공개 정보
type Participant struct {
	UserID    string   `json:"userId"`
	College   string   `json:"college"`
	Interests []string `json:"interests"`
}

// CallSession 매칭된 두 사용자의 협상 문서 (calls/{sessionId})
type CallSession struct {
	ID                    string                 `json:"-"`
	Users                 []string               `json:"users"`
	Initiator             string                 `json:"initiator"`
	ClaimedBy             string                 `json:"claimedBy"`
	CommType              CommType               `json:"commType"`
	Status                CallStatus             `json:"status"`
	Offer                 *SessionDescription    `json:"offer,omitempty"`
	Answer                *SessionDescription    `json:"answer,omitempty"`
	ICERestart            bool                   `json:"iceRestart"`
	ICERestartRequestedBy string                 `json:"iceRestartRequestedBy,omitempty"`
	ICERestartRequestedAt int64                  `json:"iceRestartRequestedAt,omitempty"`
	Profiles              map[string]Participant `json:"profiles,omitempty"`
	Timestamp             int64                  `json:"timestamp"`
}

// Other 상대 참가자 ID
func (c *CallSession) Other(userID string) string {
	for _, u := range c.Users {
		if u != userID {
			return u
		}
	}
	return ""
}

// CallUpdate 통화 문서 변경 (삭제 시 Call은 마지막 상태)
type CallUpdate struct {
	Call    *CallSession
	Deleted bool
}

// ICECandidate 브라우저 RTCIceCandidateInit과 같은 형태의 후보
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// CandidateRecord calls/{id}/candidates/{auto}
type CandidateRecord struct {
	ID        string       `json:"-"`
	Candidate ICECandidate `json:"candidate"`
	From      string       `json:"from"`
	Timestamp int64        `json:"timestamp"`
}

// ConnectionState 전송 계층 연결 상태
type ConnectionState string

const (
	ConnNew          ConnectionState = "new"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnDisconnected ConnectionState = "disconnected"
	ConnFailed       ConnectionState = "failed"
	ConnClosed       ConnectionState = "closed"
)
