package models

// ChatMessage calls/{id}/messages/{auto}
type ChatMessage struct {
	ID        string `json:"-"`
	Text      string `json:"text"`
	From      string `json:"from"`
	Timestamp int64  `json:"timestamp"`
}

// DataChannelMessage 데이터 채널 직접 전송 페이로드
type DataChannelMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

// TranscriptLine 대화 기록 한 줄
type TranscriptLine struct {
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Local     bool   `json:"local"`
	System    bool   `json:"system,omitempty"`
}
