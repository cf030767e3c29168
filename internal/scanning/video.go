package scanning

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrSessionStopped is returned when a video session ends without a code
	ErrSessionStopped = errors.New("video session stopped")

	// ErrPermissionDenied should be wrapped by frame sources that are refused
	// access to the capture device
	ErrPermissionDenied = errors.New("camera permission denied")
)

// FrameSource is a live capture device. NextFrame blocks until a frame is
// available or ctx is done; Close releases the device.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// VideoOption configures a VideoSession
type VideoOption func(*videoConfig)

type videoConfig struct {
	framesPerSecond float64
}

// WithFrameRate caps decode attempts per second. Zero or less means no cap.
func WithFrameRate(framesPerSecond float64) VideoOption {
	return func(c *videoConfig) {
		c.framesPerSecond = framesPerSecond
	}
}

// VideoSession decodes successive frames on its own goroutine until a code
// is found, Stop is called, or the parent context is cancelled. The frame
// source is closed exactly once, whichever way the session ends.
type VideoSession struct {
	source  FrameSource
	decoder *Decoder
	limiter *rate.Limiter
	cancel  context.CancelFunc
	done    chan struct{}

	releaseOnce sync.Once

	mu        sync.Mutex
	lastFrame image.Image
	attempts  int
	code      *DecodedCode
	err       error
}

// StartVideoSession starts decoding frames from source
func StartVideoSession(ctx context.Context, source FrameSource, decoder *Decoder, opts ...VideoOption) *VideoSession {
	cfg := videoConfig{framesPerSecond: 10}
	for _, opt := range opts {
		opt(&cfg)
	}

	limit := rate.Inf
	if cfg.framesPerSecond > 0 {
		limit = rate.Limit(cfg.framesPerSecond)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &VideoSession{
		source:  source,
		decoder: decoder,
		limiter: rate.NewLimiter(limit, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *VideoSession) run(ctx context.Context) {
	defer close(s.done)
	defer s.release()

	for {
		if err := s.throttle(ctx); err != nil {
			s.finish(nil, fmt.Errorf("%w: %v", ErrSessionStopped, err))
			return
		}

		frame, err := s.source.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.finish(nil, ErrSessionStopped)
				return
			}
			s.finish(nil, fmt.Errorf("reading frame: %w", err))
			return
		}

		s.mu.Lock()
		s.lastFrame = frame
		s.attempts++
		s.mu.Unlock()

		code, err := s.decoder.Decode(frame)
		switch {
		case err == nil:
			s.finish(code, nil)
			return
		case errors.Is(err, ErrNotFound):
			continue
		default:
			s.finish(nil, err)
			return
		}
	}
}

// throttle sleeps until the next attempt is allowed. Unlike limiter.Wait it
// does not give up early when the next token lies past ctx's deadline; the
// session keeps its frame source until the deadline actually passes.
func (s *VideoSession) throttle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r := s.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func (s *VideoSession) finish(code *DecodedCode, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
	s.err = err
}

func (s *VideoSession) release() {
	s.releaseOnce.Do(func() {
		if err := s.source.Close(); err != nil {
			slog.Warn("Failed to release frame source", "error", err)
		}
	})
}

// Stop cancels the decode loop and waits until the source is released.
// Calling it more than once is safe.
func (s *VideoSession) Stop() {
	s.cancel()
	<-s.done
}

// Done is closed once the session has ended and released its source
func (s *VideoSession) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns the decoded code, or
// ErrSessionStopped if it was stopped first. Cancelling ctx only abandons the
// wait; it does not stop the session, and an already finished session still
// reports its outcome.
func (s *VideoSession) Wait(ctx context.Context) (*DecodedCode, error) {
	select {
	case <-s.done:
	default:
		select {
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.err
}

// LastFrame returns the most recent frame pulled from the source, or nil
func (s *VideoSession) LastFrame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}

// Attempts returns how many frames have been run through the decoder
func (s *VideoSession) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
