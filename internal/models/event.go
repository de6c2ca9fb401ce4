package models

// EventType UI로 전달되는 세션 이벤트 종류
type EventType string

const (
	EventStatus       EventType = "status"
	EventState        EventType = "state"
	EventChat         EventType = "chat"
	EventSystem       EventType = "system"
	EventStrangerInfo EventType = "stranger_info"
	EventConnection   EventType = "connection"
	EventStats        EventType = "stats"
	EventLiveUsers    EventType = "live_users"
	EventError        EventType = "error"
)

// Event 세션 이벤트
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Notifier 이벤트 수신자
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc 함수형 Notifier
type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

// NopNotifier 이벤트를 버림
var NopNotifier Notifier = NotifierFunc(func(Event) {})
