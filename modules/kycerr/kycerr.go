// Package kycerr defines the failure taxonomy shared by the selfie KYC modules.
//
// Every module reports failures as *Error values carrying a Kind. Callers branch
// on the kind with errors.Is against the exported sentinels, or with KindOf:
//
//	if errors.Is(err, kycerr.ErrPermissionDenied) {
//	    // ask the user to grant camera access
//	}
//
// Message returns the short human-readable text shown to the subject.
package kycerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is reported for errors that carry no kind.
	KindUnknown Kind = iota
	// PlatformUnsupported indicates the host has no camera access capability.
	PlatformUnsupported
	// PermissionDenied indicates the user declined or policy blocked camera access.
	PermissionDenied
	// DeviceNotFound indicates no camera hardware is available.
	DeviceNotFound
	// DeviceBusy indicates the camera is claimed by another consumer.
	DeviceBusy
	// ConstraintsUnsatisfiable indicates the requested constraints cannot be met.
	ConstraintsUnsatisfiable
	// PlaybackFailed indicates the stream was bound but playback never started.
	PlaybackFailed
	// SinkUnavailable indicates the display surface vanished during acquisition.
	SinkUnavailable
	// CameraFailure is an unclassified platform camera failure.
	CameraFailure
	// FrameNotReady indicates no frame has been decoded yet.
	FrameNotReady
	// SurfaceUnavailable indicates the raster surface could not be obtained.
	SurfaceUnavailable
	// VerificationTransportFailure indicates the gateway could not be reached or answered badly.
	VerificationTransportFailure
	// VerificationRejected is a negative verification decision. It is an outcome, not a fault.
	VerificationRejected
	// ProfilePersistenceFailure indicates the profile store read or write failed.
	ProfilePersistenceFailure
	// InvalidState indicates a command that is not legal in the current workflow state.
	InvalidState
	// Busy indicates a conflicting operation is already in flight.
	Busy
)

var kindNames = map[Kind]string{
	KindUnknown:                  "unknown",
	PlatformUnsupported:          "platform_unsupported",
	PermissionDenied:             "permission_denied",
	DeviceNotFound:               "device_not_found",
	DeviceBusy:                   "device_busy",
	ConstraintsUnsatisfiable:     "constraints_unsatisfiable",
	PlaybackFailed:               "playback_failed",
	SinkUnavailable:              "sink_unavailable",
	CameraFailure:                "camera_failure",
	FrameNotReady:                "frame_not_ready",
	SurfaceUnavailable:           "surface_unavailable",
	VerificationTransportFailure: "verification_transport_failure",
	VerificationRejected:         "verification_rejected",
	ProfilePersistenceFailure:    "profile_persistence_failure",
	InvalidState:                 "invalid_state",
	Busy:                         "busy",
}

var kindMessages = map[Kind]string{
	KindUnknown:                  "Something went wrong",
	PlatformUnsupported:          "Your device doesn't support camera access",
	PermissionDenied:             "Camera permission denied. Please allow camera access and try again.",
	DeviceNotFound:               "No camera found on this device",
	DeviceBusy:                   "Camera is in use by another application",
	ConstraintsUnsatisfiable:     "The camera cannot provide the requested video format",
	PlaybackFailed:               "Failed to start camera stream",
	SinkUnavailable:              "The camera view was closed before the camera was ready",
	CameraFailure:                "Failed to access camera",
	FrameNotReady:                "The camera has not produced an image yet. Please wait a moment and try again.",
	SurfaceUnavailable:           "Could not prepare the image for capture",
	VerificationTransportFailure: "There was an error verifying your identity. Please try again.",
	VerificationRejected:         "We couldn't verify your identity. Please try again.",
	ProfilePersistenceFailure:    "Your selfie was verified but your profile could not be updated. Please retry saving.",
	InvalidState:                 "That action is not available right now",
	Busy:                         "Please wait for the current operation to finish",
}

// String returns the snake_case name of the kind, used in logs and metric labels.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Message returns the human-readable text for the kind.
func (k Kind) Message() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return kindMessages[KindUnknown]
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "camera.acquire".
	Op string
	// Err is the underlying cause, may be nil.
	Err error
}

// New returns an *Error of the given kind.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf returns an *Error of the given kind with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrPlatformUnsupported          = &Error{Kind: PlatformUnsupported}
	ErrPermissionDenied             = &Error{Kind: PermissionDenied}
	ErrDeviceNotFound               = &Error{Kind: DeviceNotFound}
	ErrDeviceBusy                   = &Error{Kind: DeviceBusy}
	ErrConstraintsUnsatisfiable     = &Error{Kind: ConstraintsUnsatisfiable}
	ErrPlaybackFailed               = &Error{Kind: PlaybackFailed}
	ErrSinkUnavailable              = &Error{Kind: SinkUnavailable}
	ErrCameraFailure                = &Error{Kind: CameraFailure}
	ErrFrameNotReady                = &Error{Kind: FrameNotReady}
	ErrSurfaceUnavailable           = &Error{Kind: SurfaceUnavailable}
	ErrVerificationTransportFailure = &Error{Kind: VerificationTransportFailure}
	ErrVerificationRejected         = &Error{Kind: VerificationRejected}
	ErrProfilePersistenceFailure    = &Error{Kind: ProfilePersistenceFailure}
	ErrInvalidState                 = &Error{Kind: InvalidState}
	ErrBusy                         = &Error{Kind: Busy}
)

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the human-readable text for err, or "" for a nil error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return KindOf(err).Message()
}
