package camerasession

import (
	"errors"
	"strings"

	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
)

// Platform error names, following the names media platforms report.
const (
	ErrNameNotAllowed             = "NotAllowedError"
	ErrNameSecurity               = "SecurityError"
	ErrNameNotFound               = "NotFoundError"
	ErrNameDevicesNotFound        = "DevicesNotFoundError"
	ErrNameNotReadable            = "NotReadableError"
	ErrNameTrackStart             = "TrackStartError"
	ErrNameOverconstrained        = "OverconstrainedError"
	ErrNameConstraintNotSatisfied = "ConstraintNotSatisfiedError"
	ErrNameNotSupported           = "NotSupportedError"
	ErrNameAbort                  = "AbortError"
)

// MediaError is a failure reported by the platform media API.
type MediaError struct {
	// Name is the platform error name, e.g. "NotAllowedError".
	Name string
	// Message is the platform's free-form description.
	Message string
	// Err is an optional underlying cause.
	Err error
}

func (e *MediaError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

func (e *MediaError) Unwrap() error { return e.Err }

// Classify maps a platform error to the failure taxonomy.
//
// Errors that already carry a kind keep it. Named MediaErrors are mapped by name;
// anything else falls back to keyword matching on the message, then CameraFailure.
func Classify(err error) kycerr.Kind {
	if err == nil {
		return kycerr.KindUnknown
	}

	var kerr *kycerr.Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}

	var merr *MediaError
	if errors.As(err, &merr) {
		if kind, ok := classifyName(merr.Name); ok {
			return kind
		}
		return classifyMessage(merr.Message)
	}

	return classifyMessage(err.Error())
}

func classifyName(name string) (kycerr.Kind, bool) {
	switch name {
	case ErrNameNotAllowed, ErrNameSecurity:
		return kycerr.PermissionDenied, true
	case ErrNameNotFound, ErrNameDevicesNotFound:
		return kycerr.DeviceNotFound, true
	case ErrNameNotReadable, ErrNameTrackStart:
		return kycerr.DeviceBusy, true
	case ErrNameOverconstrained, ErrNameConstraintNotSatisfied:
		return kycerr.ConstraintsUnsatisfiable, true
	case ErrNameNotSupported:
		return kycerr.PlatformUnsupported, true
	case ErrNameAbort:
		return kycerr.SinkUnavailable, true
	default:
		return kycerr.KindUnknown, false
	}
}

// classifyMessage checks the most specific keyword groups first.
func classifyMessage(msg string) kycerr.Kind {
	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, permissionKeywords):
		return kycerr.PermissionDenied
	case containsAny(lower, busyKeywords):
		return kycerr.DeviceBusy
	case containsAny(lower, constraintKeywords):
		return kycerr.ConstraintsUnsatisfiable
	case containsAny(lower, notFoundKeywords):
		return kycerr.DeviceNotFound
	default:
		return kycerr.CameraFailure
	}
}

var (
	permissionKeywords = []string{
		"permission denied",
		"not allowed",
		"access denied",
		"operation not permitted",
	}
	busyKeywords = []string{
		"busy",
		"in use",
		"could not start",
		"resource temporarily unavailable",
	}
	constraintKeywords = []string{
		"not negotiated",
		"not-negotiated",
		"overconstrained",
		"constraint",
		"caps",
	}
	notFoundKeywords = []string{
		"no such file",
		"no such device",
		"not found",
		"cannot identify device",
	}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
