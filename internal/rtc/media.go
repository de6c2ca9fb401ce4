package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

// 로컬 미디어 획득 실패 원인
var (
	ErrPermissionDenied       = errors.New("media permission denied")
	ErrDeviceNotFound         = errors.New("media device not found")
	ErrDeviceBusy             = errors.New("media device busy")
	ErrConstraintsUnsupported = errors.New("media constraints unsupported")
)

// MediaError 재시도 후에도 미디어를 얻지 못함
type MediaError struct {
	Cause    error
	Attempts int
	Err      error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("acquire local media after %d attempts: %v", e.Attempts, e.Err)
}

func (e *MediaError) Unwrap() []error {
	return []error{e.Cause, e.Err}
}

// UserMessage 사용자에게 보여줄 메시지
func (e *MediaError) UserMessage() string {
	switch e.Cause {
	case ErrPermissionDenied:
		return "Camera/microphone permission denied. Please allow access and try again."
	case ErrDeviceNotFound:
		return "No camera or microphone found."
	case ErrDeviceBusy:
		return "Camera or microphone is already in use by another application."
	case ErrConstraintsUnsupported:
		return "Your device does not support the requested media settings."
	}
	return "Could not access camera/microphone."
}

func mediaCause(err error) error {
	for _, cause := range []error{ErrPermissionDenied, ErrDeviceNotFound, ErrDeviceBusy, ErrConstraintsUnsupported} {
		if errors.Is(err, cause) {
			return cause
		}
	}
	return nil
}

// Constraints 요청할 미디어 종류
type Constraints struct {
	Audio bool
	Video bool
}

// LocalStream 획득한 로컬 트랙 묶음
type LocalStream struct {
	Constraints Constraints
	tracks      []webrtc.TrackLocal
	stop        func()
	once        sync.Once
}

// NewLocalStream LocalStream 생성 (stop은 Stop에서 한 번만 호출)
func NewLocalStream(c Constraints, tracks []webrtc.TrackLocal, stop func()) *LocalStream {
	return &LocalStream{Constraints: c, tracks: tracks, stop: stop}
}

// Tracks 로컬 트랙 목록
func (s *LocalStream) Tracks() []webrtc.TrackLocal {
	return s.tracks
}

// Stop 모든 트랙 정지 및 해제
func (s *LocalStream) Stop() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// MediaSource 로컬 미디어 장치
type MediaSource interface {
	Acquire(ctx context.Context, c Constraints) (*LocalStream, error)
}

// ConstraintsFor 통신 방식별 미디어 요청
func ConstraintsFor(video bool) Constraints {
	return Constraints{Audio: true, Video: video}
}

// AcquireWithRetry 최대 attempts번 미디어 획득 시도
// 마지막 직전 시도가 실패하면 영상을 포기하고 음성만 요청한다. 권한 거부는 재시도하지 않는다
func AcquireWithRetry(
	ctx context.Context,
	src MediaSource,
	want Constraints,
	attempts int,
	delay time.Duration,
	clock clockwork.Clock,
	logger *zap.Logger,
) (*LocalStream, error) {
	if attempts <= 0 {
		attempts = 1
	}
	c := want
	var lastErr error
	tried := 0

	for i := 1; i <= attempts; i++ {
		tried = i
		stream, err := src.Acquire(ctx, c)
		if err == nil {
			if c != want {
				logger.Info("Acquired degraded local media", zap.Bool("video", c.Video), zap.Bool("audio", c.Audio))
			}
			return stream, nil
		}
		lastErr = err
		logger.Warn("Local media acquisition failed",
			zap.Int("attempt", i),
			zap.Bool("video", c.Video),
			zap.Error(err))

		if errors.Is(err, ErrPermissionDenied) || i == attempts {
			break
		}
		if i == attempts-1 && c.Video {
			c = Constraints{Audio: true}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-clock.After(delay):
		}
	}

	return nil, &MediaError{Cause: mediaCause(lastErr), Attempts: tried, Err: lastErr}
}

// opus 무음 프레임
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SyntheticSource 장치 없이 opus/VP8 트랙을 만드는 미디어 소스
// 오디오 트랙에는 20ms 간격으로 무음 프레임을 기록한다
type SyntheticSource struct {
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewSyntheticSource SyntheticSource 생성
func NewSyntheticSource(clock clockwork.Clock, logger *zap.Logger) *SyntheticSource {
	return &SyntheticSource{clock: clock, logger: logger}
}

func (s *SyntheticSource) Acquire(ctx context.Context, c Constraints) (*LocalStream, error) {
	if !c.Audio && !c.Video {
		return nil, ErrConstraintsUnsupported
	}

	var tracks []webrtc.TrackLocal
	var audio *webrtc.TrackLocalStaticSample
	if c.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "hostelhub")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		audio = track
		tracks = append(tracks, track)
	}
	if c.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "hostelhub")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		tracks = append(tracks, track)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	if audio != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := s.clock.NewTicker(20 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.Chan():
					if err := audio.WriteSample(media.Sample{Data: opusSilence, Duration: 20 * time.Millisecond}); err != nil {
						s.logger.Debug("Silence write failed", zap.Error(err))
					}
				}
			}
		}()
	}

	return NewLocalStream(c, tracks, func() {
		close(done)
		wg.Wait()
	}), nil
}
