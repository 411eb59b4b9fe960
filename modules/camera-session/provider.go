package camerasession

import "context"

// MediaDevices is the platform media API.
//
// Implementations must guarantee:
//   - GetUserMedia either returns a live Stream or an error, never both
//   - errors carry a *MediaError (or wrap one) so they can be classified
//   - the returned Stream is exclusively owned by the caller
type MediaDevices interface {
	// GetUserMedia opens a camera matching the constraints on a best-effort basis.
	//
	// Blocks until the device is open or the platform reports a failure. If ctx is
	// cancelled while the platform is still opening the device, implementations
	// may still return a stream; the caller is responsible for releasing it.
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an active hardware camera acquisition.
type Stream interface {
	// ID identifies the stream in logs.
	ID() string

	// Tracks returns the constituent tracks. Stopping all of them releases the device.
	Tracks() []Track

	// Frames returns the decoded frame channel.
	//
	// The channel is closed once every track has been stopped. Frames are sent
	// non-blocking: a slow consumer loses frames, it never stalls the device.
	Frames() <-chan Frame
}

// Track is one media track of a Stream.
type Track interface {
	ID() string
	Kind() string

	// Stop releases the track. Idempotent.
	Stop()
}

// Sink is a renderable target bound to a live stream.
//
// The sink is a read-only consumer of frames. It becomes ready only after
// metadata has loaded (the first frame decoded) and playback has started.
type Sink interface {
	// Attach binds the stream. Fails with SinkUnavailable if the surface is gone.
	Attach(stream Stream) error

	// Detach unbinds the current stream, if any. Idempotent.
	Detach()

	// MetadataLoaded is closed once the bound stream delivered its first frame.
	MetadataLoaded() <-chan struct{}

	// Play starts playback of the bound stream.
	Play(ctx context.Context) error

	// Playing reports whether playback has started.
	Playing() bool
}
