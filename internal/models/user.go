package models

// UserRecord users/{userId}
type UserRecord struct {
	BlockedUsers []string `json:"blockedUsers"`
}

// Report reports/{auto}
type Report struct {
	ID           string `json:"-"`
	ReportedBy   string `json:"reportedBy"`
	ReportedUser string `json:"reportedUser"`
	Reason       string `json:"reason"`
	Details      string `json:"details"`
	Status       string `json:"status"`
	Created      int64  `json:"created"`
}

// ReportStatusPending 신고 접수 상태
const ReportStatusPending = "pending"

// Presence status/{userId}
type Presence struct {
	Online   bool  `json:"online"`
	LastSeen int64 `json:"lastSeen"`
}
