package v4l2

import (
	"errors"
	"os"
	"strings"
	"syscall"

	camerasession "github.com/devilx291/social-loan-ledger-82/modules/camera-session"
)

// mediaErrorFromGst converts a GStreamer error message into a named MediaError.
//
// GStreamer reports v4l2 failures as free text, so the platform name is derived
// from keywords in the message and debug string. Unrecognised text yields an
// unnamed MediaError, which the session classifies as CameraFailure.
func mediaErrorFromGst(message, debug string) *camerasession.MediaError {
	return &camerasession.MediaError{
		Name:    gstErrorName(message + " " + debug),
		Message: message,
	}
}

func gstErrorName(text string) string {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "not permitted"):
		return camerasession.ErrNameNotAllowed
	case strings.Contains(lower, "device or resource busy"),
		strings.Contains(lower, "is busy"),
		strings.Contains(lower, "failed to allocate"):
		return camerasession.ErrNameNotReadable
	case strings.Contains(lower, "not-negotiated"),
		strings.Contains(lower, "not negotiated"):
		return camerasession.ErrNameOverconstrained
	case strings.Contains(lower, "cannot identify device"),
		strings.Contains(lower, "no such file"),
		strings.Contains(lower, "no such device"):
		return camerasession.ErrNameNotFound
	default:
		return ""
	}
}

// isNotNegotiated reports whether err is a caps negotiation failure.
func isNotNegotiated(err error) bool {
	var merr *camerasession.MediaError
	return errors.As(err, &merr) && merr.Name == camerasession.ErrNameOverconstrained
}

// probeDevice opens and closes the device node so the common failures surface
// with a precise name before GStreamer turns them into free text.
func probeDevice(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &camerasession.MediaError{Name: camerasession.ErrNameNotFound, Message: path, Err: err}
		}
		return &camerasession.MediaError{Message: err.Error(), Err: err}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrPermission):
			return &camerasession.MediaError{Name: camerasession.ErrNameNotAllowed, Message: path, Err: err}
		case errors.Is(err, syscall.EBUSY):
			return &camerasession.MediaError{Name: camerasession.ErrNameNotReadable, Message: path, Err: err}
		default:
			return &camerasession.MediaError{Message: err.Error(), Err: err}
		}
	}
	return f.Close()
}
