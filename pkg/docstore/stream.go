package docstore

import "sync"

// Stream 구독 이벤트를 타입 값으로 변환한 스트림
type Stream[T any] struct {
	sub  *Subscription
	out  chan T
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewStream decode가 false를 반환한 이벤트는 건너뛴다
func NewStream[T any](sub *Subscription, decode func(Event) (T, bool)) *Stream[T] {
	s := &Stream[T]{
		sub:  sub,
		out:  make(chan T),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.out)
		for ev := range sub.Events() {
			v, ok := decode(ev)
			if !ok {
				continue
			}
			select {
			case s.out <- v:
			case <-s.done:
				return
			}
		}
	}()
	return s
}

// C 값 채널 (Cancel 이후 닫힘)
func (s *Stream[T]) C() <-chan T {
	return s.out
}

// Cancel 하위 구독까지 동기적으로 해제
func (s *Stream[T]) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.sub.Cancel()
		s.wg.Wait()
	})
}
