package camerasession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devilx291/social-loan-ledger-82/internal/log"
	"github.com/devilx291/social-loan-ledger-82/internal/metrics"
	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
)

// DefaultReadyTimeout bounds the wait for the sink's loaded-metadata signal.
const DefaultReadyTimeout = 3 * time.Second

// Option configures a Session.
type Option func(*Session)

// WithConstraints overrides DefaultConstraints.
func WithConstraints(c Constraints) Option {
	return func(s *Session) { s.constraints = c }
}

// WithReadyTimeout overrides DefaultReadyTimeout. Non-positive values are ignored.
func WithReadyTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.readyTimeout = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session acquires a front-facing camera stream bound to a display surface and
// guarantees deterministic teardown.
//
// State machine:
//
//	Idle -> Acquiring -> Ready -> Released
//	Acquiring -> Failed(kind)
//
// A session holds at most one stream. Acquire releases any stale stream before
// requesting a new one, so it is safe to call again after a failure.
//
// Thread-safety: all methods are safe for concurrent use. A second Acquire while
// one is in flight fails with Busy.
type Session struct {
	devices      MediaDevices
	constraints  Constraints
	readyTimeout time.Duration
	logger       zerolog.Logger

	mu     sync.Mutex
	state  State
	err    error
	active *ActiveStream
}

// NewSession creates a session over the platform media API.
//
// devices may be nil: every Acquire then fails with PlatformUnsupported, which
// is how a host without camera access presents itself.
func NewSession(devices MediaDevices, opts ...Option) *Session {
	s := &Session{
		devices:      devices,
		constraints:  DefaultConstraints(),
		readyTimeout: DefaultReadyTimeout,
		logger:       log.WithComponent("camera-session"),
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActiveStream is a stream bound to a ready sink.
type ActiveStream struct {
	Stream     Stream
	Sink       Sink
	AcquiredAt time.Time

	once    sync.Once
	onClose func()
}

// Release detaches the sink and stops every track. Idempotent and nil-safe.
func (a *ActiveStream) Release() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		if a.Sink != nil {
			a.Sink.Detach()
		}
		Release(a.Stream)
		metrics.CameraStreamReleased()
		if a.onClose != nil {
			a.onClose()
		}
	})
}

// Release stops every constituent track of stream. Safe on nil and on streams
// that were already released.
func Release(stream Stream) {
	if stream == nil {
		return
	}
	for _, track := range stream.Tracks() {
		if track != nil {
			track.Stop()
		}
	}
}

// Acquire requests a camera stream, binds it to sink and waits for playback.
//
// This method:
//  1. Releases any stale stream held by the session
//  2. Requests the stream from the platform with the session constraints
//  3. Binds it to sink (SinkUnavailable if the sink is gone or ctx was cancelled)
//  4. Waits for the loaded-metadata signal, bounded by the ready timeout
//  5. Starts playback
//
// If the ready signal does not arrive in time and the sink is not already playing,
// Acquire fails with PlaybackFailed instead of hanging. Every failure after the
// platform returned a stream releases that stream before returning.
func (s *Session) Acquire(ctx context.Context, sink Sink) (*ActiveStream, error) {
	s.mu.Lock()
	if s.state == StateAcquiring {
		s.mu.Unlock()
		return nil, kycerr.Errorf(kycerr.Busy, "camera.acquire", "acquisition already in flight")
	}
	stale := s.active
	s.active = nil
	s.state = StateAcquiring
	s.err = nil
	s.mu.Unlock()

	if stale != nil {
		s.logger.Debug().Str("stream_id", stale.Stream.ID()).Msg("releasing stale stream before acquire")
		stale.Release()
	}

	active, err := s.acquire(ctx, sink)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateFailed
		s.err = err
		metrics.RecordCameraAcquire(kycerr.KindOf(err).String())
		s.logger.Warn().
			Err(err).
			Str("kind", kycerr.KindOf(err).String()).
			Str("constraints", s.constraints.String()).
			Msg("camera acquisition failed")
		return nil, err
	}

	s.state = StateReady
	s.active = active
	metrics.RecordCameraAcquire("ready")
	s.logger.Info().
		Str("stream_id", active.Stream.ID()).
		Str("constraints", s.constraints.String()).
		Msg("camera ready")
	return active, nil
}

func (s *Session) acquire(ctx context.Context, sink Sink) (*ActiveStream, error) {
	const op = "camera.acquire"

	if s.devices == nil {
		return nil, kycerr.Errorf(kycerr.PlatformUnsupported, op, "no media devices available")
	}
	if sink == nil {
		return nil, kycerr.Errorf(kycerr.SinkUnavailable, op, "no sink")
	}
	if err := ctx.Err(); err != nil {
		return nil, kycerr.New(kycerr.SinkUnavailable, op, err)
	}

	stream, err := s.devices.GetUserMedia(ctx, s.constraints)
	if err != nil {
		if stream != nil {
			Release(stream)
		}
		return nil, kycerr.New(Classify(err), op, err)
	}
	if stream == nil {
		return nil, kycerr.Errorf(kycerr.CameraFailure, op, "platform returned no stream")
	}
	metrics.CameraStreamOpened()

	// From here on every failure path gives the stream back.
	fail := func(kind kycerr.Kind, cause error) (*ActiveStream, error) {
		sink.Detach()
		Release(stream)
		metrics.CameraStreamReleased()
		return nil, kycerr.New(kind, op, cause)
	}

	if err := ctx.Err(); err != nil {
		s.logger.Debug().Str("stream_id", stream.ID()).Msg("stream arrived after cancellation, releasing")
		return fail(kycerr.SinkUnavailable, err)
	}

	if err := sink.Attach(stream); err != nil {
		return fail(kycerr.SinkUnavailable, err)
	}

	timer := time.NewTimer(s.readyTimeout)
	defer timer.Stop()

	select {
	case <-sink.MetadataLoaded():
	case <-ctx.Done():
		return fail(kycerr.SinkUnavailable, ctx.Err())
	case <-timer.C:
		if !sink.Playing() {
			return fail(kycerr.PlaybackFailed, errors.New("no frame within ready timeout"))
		}
	}

	if !sink.Playing() {
		if err := sink.Play(ctx); err != nil {
			if ctx.Err() != nil {
				return fail(kycerr.SinkUnavailable, ctx.Err())
			}
			return fail(kycerr.PlaybackFailed, err)
		}
	}

	active := &ActiveStream{
		Stream:     stream,
		Sink:       sink,
		AcquiredAt: time.Now(),
	}
	active.onClose = func() { s.forget(active) }
	return active, nil
}

// forget clears the session's reference once its active stream was released.
func (s *Session) forget(a *ActiveStream) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == a {
		s.active = nil
		s.state = StateReleased
		s.logger.Debug().Str("stream_id", a.Stream.ID()).Msg("camera released")
	}
}

// Release releases the active stream, if any. Idempotent.
func (s *Session) Release() {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	active.Release()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure of the last acquisition, nil unless State is StateFailed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Active returns the active stream, or nil.
func (s *Session) Active() *ActiveStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
