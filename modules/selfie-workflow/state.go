package selfieworkflow

import (
	framecapture "github.com/devilx291/social-loan-ledger-82/modules/frame-capture"
	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
)

// State is the workflow state.
//
//	Idle -> CameraShowing -> CameraReady -> ImageCaptured -> Verifying -> Verified | Rejected
//
// Verified is also entered directly when the stored profile is already verified.
type State int

const (
	StateIdle State = iota
	StateCameraShowing
	StateCameraReady
	StateImageCaptured
	StateVerifying
	StateVerified
	StateRejected
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCameraShowing:
		return "camera_showing"
	case StateCameraReady:
		return "camera_ready"
	case StateImageCaptured:
		return "image_captured"
	case StateVerifying:
		return "verifying"
	case StateVerified:
		return "verified"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is the user-facing verification outcome.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// User-facing messages.
const (
	MessageVerified     = "Selfie verification successful. Your account is now verified."
	MessageRejected     = "Selfie verification failed. Please try again with better lighting and a clear face image."
	MessageSaveFailed   = "Your selfie was verified but your profile could not be updated. Please retry saving."
	MessageAlreadyKnown = "Your identity is already verified."
)

// Snapshot is the read-only observable state of a workflow.
type Snapshot struct {
	// Seq numbers the changes delivered to OnChange, 0 before the first one.
	Seq           uint64                      `json:"seq"`
	State         State                       `json:"state"`
	CameraVisible bool                        `json:"cameraVisible"`
	CameraReady   bool                        `json:"cameraReady"`
	CapturedImage *framecapture.CapturedImage `json:"-"`
	Status        Status                      `json:"status"`
	StatusMessage string                      `json:"statusMessage,omitempty"`
	LastError     error                       `json:"-"`
	Busy          bool                        `json:"busy"`
	// PendingSave is set when a positive decision could not be persisted yet.
	PendingSave bool `json:"pendingSave"`
	TrustScore  int  `json:"trustScore"`
	IsVerified  bool `json:"isVerified"`
}

// ErrorKind returns the kind of LastError, or "" when there is none.
func (s Snapshot) ErrorKind() string {
	if s.LastError == nil {
		return ""
	}
	return kycerr.KindOf(s.LastError).String()
}

// ErrorMessage returns the human-readable LastError, or "".
func (s Snapshot) ErrorMessage() string {
	if s.LastError == nil {
		return ""
	}
	return kycerr.Message(s.LastError)
}
