package camerasession

import (
	"fmt"
	"time"
)

// FacingMode selects which camera to open on devices with several.
type FacingMode string

const (
	// FacingUser is the front camera, facing the subject.
	FacingUser FacingMode = "user"
	// FacingEnvironment is the rear camera.
	FacingEnvironment FacingMode = "environment"
)

// Constraints describes the requested video stream.
//
// IdealWidth and IdealHeight are preferences, not requirements: the platform may
// deliver another resolution and consumers must use the delivered dimensions.
type Constraints struct {
	FacingMode  FacingMode
	IdealWidth  int
	IdealHeight int
}

// DefaultConstraints returns the selfie constraints: front camera, 1280x720 preferred.
func DefaultConstraints() Constraints {
	return Constraints{
		FacingMode:  FacingUser,
		IdealWidth:  1280,
		IdealHeight: 720,
	}
}

// String returns a compact form for logs, e.g. "user@1280x720".
func (c Constraints) String() string {
	return fmt.Sprintf("%s@%dx%d", c.FacingMode, c.IdealWidth, c.IdealHeight)
}

// Frame represents a single decoded video frame.
type Frame struct {
	// Seq is the monotonic sequence number within the stream
	Seq uint64
	// Timestamp is when the frame was decoded
	Timestamp time.Time
	// Width in pixels, as delivered by the device
	Width int
	// Height in pixels, as delivered by the device
	Height int
	// Data contains interleaved RGB bytes (Width x Height x 3)
	Data []byte
	// TraceID identifies the frame in logs
	TraceID string
}

// State is the lifecycle state of a Session.
type State int

const (
	// StateIdle means no acquisition was ever attempted.
	StateIdle State = iota
	// StateAcquiring means an acquisition is in flight.
	StateAcquiring
	// StateReady means a stream is bound to a playing sink.
	StateReady
	// StateReleased means the last stream was released.
	StateReleased
	// StateFailed means the last acquisition failed; see Session.Err.
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateReady:
		return "ready"
	case StateReleased:
		return "released"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
