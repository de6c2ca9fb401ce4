package docstore

import "sync"

// EventType 변경 이벤트 종류
type EventType int

const (
	Added EventType = iota
	Modified
	Removed
)

func (t EventType) String() string {
	switch t {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Event 구독 변경 이벤트
type Event struct {
	Type EventType
	Doc  *Document
}

// Subscription 취소 가능한 실시간 구독
// 내부 큐는 크기 제한이 없어 이벤트가 유실되지 않고 순서가 유지된다
type Subscription struct {
	events chan Event

	mu     sync.Mutex
	queue  []Event
	closed bool

	notify   chan struct{}
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	onCancel func()
}

func newSubscription(onCancel func()) *Subscription {
	s := &Subscription{
		events:   make(chan Event),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
	s.wg.Add(1)
	go s.pump()
	return s
}

// Events 이벤트 채널 (Cancel 이후 닫힘)
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// push 이벤트를 큐에 추가 (취소 후에는 무시)
func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// Cancel 구독 해제
// 동기적이며 여러 번 호출해도 안전하다. 반환 이후에는 어떤 이벤트도 전달되지 않는다
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()

		if s.onCancel != nil {
			s.onCancel()
		}
		close(s.done)
		s.wg.Wait()
	})
}
