// Package camerasession acquires a front-facing camera stream, binds it to a
// display sink and releases it deterministically.
//
// # Quick Start
//
//	session := camerasession.NewSession(v4l2.New(v4l2.Config{Device: "/dev/video0"}))
//	sink := camerasession.NewVideoSink()
//
//	active, err := session.Acquire(ctx, sink)
//	if err != nil {
//	    switch kycerr.KindOf(err) {
//	    case kycerr.PermissionDenied:
//	        // ask the user to grant camera access
//	    }
//	    return err
//	}
//	defer active.Release()
//
//	w, h := sink.VideoSize() // delivered size, may differ from the ideal 1280x720
//
// # Lifecycle
//
// Acquire never leaves a device open on failure: once the platform handed out a
// stream, every error path stops all of its tracks before returning. A stream
// that arrives after the caller cancelled ctx is released immediately.
//
// Release on ActiveStream is idempotent and safe on nil, so it can be called
// from every exit path (stop, retake, verified, teardown) without bookkeeping.
//
// # Errors
//
// Platform failures are classified into kycerr kinds by Classify. Backends
// report *MediaError values named the way media platforms name them
// (NotAllowedError, NotFoundError, ...); unnamed errors fall back to keyword
// matching and finally to CameraFailure.
package camerasession
