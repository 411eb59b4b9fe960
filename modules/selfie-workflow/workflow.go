// Package selfieworkflow drives the selfie KYC cycle: show the camera,
// capture a still, submit it for verification and persist the outcome.
//
// The workflow never retries on its own. Every failure lands in a state from
// which the user can re-trigger the failed step, with LastError describing it.
//
// Concurrency: commands may be called from any goroutine. The internal lock is
// not held across camera acquisition, the verification call or the profile
// write, so StopCamera, Retake and Close stay responsive while those run.
package selfieworkflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/devilx291/social-loan-ledger-82/internal/log"
	"github.com/devilx291/social-loan-ledger-82/internal/metrics"
	camerasession "github.com/devilx291/social-loan-ledger-82/modules/camera-session"
	framecapture "github.com/devilx291/social-loan-ledger-82/modules/frame-capture"
	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
	profilestore "github.com/devilx291/social-loan-ledger-82/modules/profile-store"
	verificationgateway "github.com/devilx291/social-loan-ledger-82/modules/verification-gateway"
)

// TrustScoreBonus is added to the trust score on a positive verification.
const TrustScoreBonus = 20

// ErrStaleResult is returned when an asynchronous result arrived for an image
// that is no longer the current one. The result was discarded.
var ErrStaleResult = errors.New("result discarded: captured image was replaced")

// Camera acquires a stream bound to a sink. *camerasession.Session implements it.
type Camera interface {
	Acquire(ctx context.Context, sink camerasession.Sink) (*camerasession.ActiveStream, error)
}

// Capturer snapshots a source. *framecapture.Capturer implements it.
type Capturer interface {
	Capture(src framecapture.Source, surface framecapture.Surface) (*framecapture.CapturedImage, error)
}

// Display is the live preview: a sink for the stream and a source for captures.
// *camerasession.VideoSink implements it.
type Display interface {
	camerasession.Sink
	framecapture.Source
}

// Config wires a workflow to its collaborators.
type Config struct {
	SubjectID string                       `validate:"required"`
	Profiles  profilestore.Store           `validate:"required"`
	Gateway   verificationgateway.Verifier `validate:"required"`
	Camera    Camera                       `validate:"required"`
	Capturer  Capturer                     `validate:"required"`
	Display   Display                      `validate:"required"`
	Surface   framecapture.Surface         `validate:"required"`

	// Logger defaults to the "selfie-workflow" component logger.
	Logger *zerolog.Logger
	// OnChange, when set, receives a snapshot after every state change.
	// Deliveries are serialized and in Seq order. It must not block for long
	// and must not call workflow commands.
	OnChange func(Snapshot)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Workflow is one subject's capture cycle.
type Workflow struct {
	cfg    Config
	logger zerolog.Logger

	pubMu sync.Mutex // orders OnChange deliveries

	mu            sync.Mutex
	seq           uint64
	state         State
	cameraVisible bool
	active        *camerasession.ActiveStream
	acquiring     bool
	cameraGen     uint64 // bumped whenever the camera is dismissed
	cancelAcquire context.CancelFunc

	image         *framecapture.CapturedImage
	status        Status
	statusMessage string
	lastErr       error

	inFlight     bool // verification or profile write running
	saving       bool // profile write running
	pendingSave  bool
	pendingScore int

	profile profilestore.Profile
	closed  bool
}

// New builds a workflow and reads the subject's profile.
//
// A profile that is already verified puts the workflow straight into Verified
// with the stored selfie as the captured image; the camera is never touched. A
// failed profile read leaves the workflow Idle with LastError set. Only an
// invalid Config is returned as an error.
func New(ctx context.Context, cfg Config) (*Workflow, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("selfie workflow config: %w", err)
	}

	w := &Workflow{
		cfg:    cfg,
		logger: log.WithComponent("selfie-workflow").With().Str("subject_id", cfg.SubjectID).Logger(),
		state:  StateIdle,
		status: StatusIdle,
	}
	if cfg.Logger != nil {
		w.logger = cfg.Logger.With().Str("subject_id", cfg.SubjectID).Logger()
	}

	profile, err := cfg.Profiles.Read(ctx, cfg.SubjectID)
	if err != nil {
		w.lastErr = kycerr.New(kycerr.ProfilePersistenceFailure, "profile.read", err)
		w.profile = profilestore.Profile{SubjectID: cfg.SubjectID, TrustScore: profilestore.DefaultTrustScore}
		w.logger.Warn().Err(err).Msg("profile read failed")
		return w, nil
	}
	w.profile = profile

	if profile.IsVerified {
		w.state = StateVerified
		w.status = StatusVerified
		w.statusMessage = MessageAlreadyKnown
		if profile.SelfieImage != "" {
			img, err := framecapture.FromDataURI(profile.SelfieImage, profile.UpdatedAt)
			if err != nil {
				w.logger.Warn().Err(err).Msg("stored selfie is not a data URI, surfacing it as opaque")
				img = framecapture.OpaqueImage(profile.SelfieImage, profile.UpdatedAt)
			}
			w.image = img
		}
		w.logger.Info().Msg("profile already verified, skipping capture")
	}
	return w, nil
}

// Snapshot returns the current observable state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	return Snapshot{
		Seq:           w.seq,
		State:         w.state,
		CameraVisible: w.cameraVisible,
		CameraReady:   w.state == StateCameraReady && w.active != nil,
		CapturedImage: w.image,
		Status:        w.status,
		StatusMessage: w.statusMessage,
		LastError:     w.lastErr,
		Busy:          w.acquiring || w.inFlight,
		PendingSave:   w.pendingSave,
		TrustScore:    w.profile.TrustScore,
		IsVerified:    w.profile.IsVerified,
	}
}

// changed publishes a snapshot to the observer. The snapshot is taken while
// holding pubMu, so the last delivery always reflects the latest state.
func (w *Workflow) changed() {
	if w.cfg.OnChange == nil {
		return
	}
	w.pubMu.Lock()
	defer w.pubMu.Unlock()

	w.mu.Lock()
	w.seq++
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.cfg.OnChange(snap)
}

func invalidState(op string, s State) error {
	return kycerr.Errorf(kycerr.InvalidState, op, "not allowed in state %s", s)
}

// StartCamera shows the camera and blocks until it is ready or failed.
//
// Allowed from Idle and CameraShowing, so a failed start can be retried. A
// second call while an acquisition is outstanding fails with Busy. If the
// camera is dismissed while acquiring, the late stream is released and
// StartCamera returns SinkUnavailable without touching LastError.
func (w *Workflow) StartCamera(ctx context.Context) error {
	const op = "workflow.start_camera"

	w.mu.Lock()
	switch {
	case w.closed:
		w.mu.Unlock()
		return kycerr.Errorf(kycerr.InvalidState, op, "workflow closed")
	case w.acquiring:
		w.mu.Unlock()
		return kycerr.Errorf(kycerr.Busy, op, "camera acquisition in flight")
	case w.state != StateIdle && w.state != StateCameraShowing:
		s := w.state
		w.mu.Unlock()
		return invalidState(op, s)
	}

	acquireCtx, cancel := context.WithCancel(ctx)
	w.cameraGen++
	gen := w.cameraGen
	w.cancelAcquire = cancel
	w.acquiring = true
	w.cameraVisible = true
	w.state = StateCameraShowing
	w.lastErr = nil
	stale := w.active
	w.active = nil
	w.mu.Unlock()

	stale.Release()
	w.changed()

	active, err := w.cfg.Camera.Acquire(acquireCtx, w.cfg.Display)

	w.mu.Lock()
	w.acquiring = false
	cancel()
	if gen != w.cameraGen || w.closed {
		w.mu.Unlock()
		active.Release()
		w.logger.Debug().Msg("camera dismissed during acquisition, released late stream")
		w.changed()
		return kycerr.Errorf(kycerr.SinkUnavailable, op, "camera dismissed")
	}
	w.cancelAcquire = nil

	if err != nil {
		w.lastErr = err
		w.mu.Unlock()
		w.logger.Warn().Err(err).Str("kind", kycerr.KindOf(err).String()).Msg("camera start failed")
		w.changed()
		return err
	}

	w.active = active
	w.state = StateCameraReady
	w.mu.Unlock()

	w.logger.Info().Msg("camera ready")
	w.changed()
	return nil
}

// StopCamera hides the camera and synchronously releases the stream.
//
// An acquisition in flight is cancelled; its stream, if one still arrives, is
// released by StartCamera. Idempotent.
func (w *Workflow) StopCamera() {
	w.mu.Lock()
	active := w.dismissLocked()
	if w.state == StateCameraShowing || w.state == StateCameraReady {
		w.state = StateIdle
	}
	w.mu.Unlock()

	active.Release()
	w.changed()
}

// dismissLocked hides the camera and returns the stream to release.
func (w *Workflow) dismissLocked() *camerasession.ActiveStream {
	w.cameraGen++
	if w.cancelAcquire != nil {
		w.cancelAcquire()
		w.cancelAcquire = nil
	}
	w.cameraVisible = false
	active := w.active
	w.active = nil
	return active
}

// CaptureSelfie snapshots the live preview and releases the camera.
//
// Allowed in CameraReady only. On failure the workflow stays CameraReady with
// LastError set so the capture can be retried.
func (w *Workflow) CaptureSelfie() error {
	const op = "workflow.capture"

	w.mu.Lock()
	if w.state != StateCameraReady || w.active == nil {
		s := w.state
		w.mu.Unlock()
		return invalidState(op, s)
	}

	img, err := w.cfg.Capturer.Capture(w.cfg.Display, w.cfg.Surface)
	if err != nil {
		w.lastErr = err
		w.mu.Unlock()
		w.logger.Warn().Err(err).Str("kind", kycerr.KindOf(err).String()).Msg("capture failed")
		w.changed()
		return err
	}

	w.image = img
	w.status = StatusIdle
	w.statusMessage = ""
	w.lastErr = nil
	w.state = StateImageCaptured
	active := w.dismissLocked()
	w.mu.Unlock()

	active.Release()
	w.logger.Info().Str("image_id", img.ID).Int("width", img.Width).Int("height", img.Height).Msg("selfie captured")
	w.changed()
	return nil
}

// SubmitForVerification sends the captured image to the gateway and applies
// the decision.
//
// A positive decision raises the trust score by TrustScoreBonus (clamped to
// 100), marks the profile verified and stores the selfie. A negative decision
// moves to Rejected without touching the profile. A transport failure returns
// to ImageCaptured with LastError set.
//
// If the decision was positive but the profile write failed, the workflow
// stays in ImageCaptured with PendingSave set; calling SubmitForVerification
// again (or RetryProfileSave) retries the write only.
func (w *Workflow) SubmitForVerification(ctx context.Context) error {
	const op = "workflow.verify"

	w.mu.Lock()
	if w.pendingSave && !w.inFlight {
		w.mu.Unlock()
		return w.RetryProfileSave(ctx)
	}
	switch {
	case w.inFlight:
		w.mu.Unlock()
		return kycerr.Errorf(kycerr.Busy, op, "verification in flight")
	case w.state != StateImageCaptured || w.image == nil:
		s := w.state
		w.mu.Unlock()
		return invalidState(op, s)
	}

	img := w.image
	w.state = StateVerifying
	w.inFlight = true
	w.lastErr = nil
	w.mu.Unlock()
	w.changed()

	res, err := w.cfg.Gateway.Verify(ctx, verificationgateway.NewRequest(w.cfg.SubjectID, img.DataURI))

	w.mu.Lock()
	if w.image != img {
		w.inFlight = false
		w.mu.Unlock()
		w.logger.Info().Str("image_id", img.ID).Msg("discarding verification result for replaced image")
		metrics.RecordVerification("stale")
		w.changed()
		return ErrStaleResult
	}

	if err != nil {
		if kycerr.KindOf(err) == kycerr.KindUnknown {
			err = kycerr.New(kycerr.VerificationTransportFailure, op, err)
		}
		w.inFlight = false
		w.state = StateImageCaptured
		w.lastErr = err
		w.mu.Unlock()
		w.logger.Warn().Err(err).Msg("verification failed")
		w.changed()
		return err
	}

	if !res.Verified {
		w.inFlight = false
		w.state = StateRejected
		w.status = StatusRejected
		w.statusMessage = res.Message
		if w.statusMessage == "" {
			w.statusMessage = MessageRejected
		}
		w.mu.Unlock()
		w.logger.Info().Str("image_id", img.ID).Str("message", res.Message).Msg("selfie rejected")
		w.changed()
		return nil
	}

	// Still in flight: the profile write follows.
	score := profilestore.ClampTrustScore(w.profile.TrustScore + TrustScoreBonus)
	w.pendingScore = score
	w.saving = true
	w.mu.Unlock()

	w.logger.Info().Str("image_id", img.ID).Int("trust_score", score).Msg("selfie verified, saving profile")
	return w.save(ctx, img, score)
}

// RetryProfileSave retries the profile write of a positive decision that
// could not be persisted. The gateway is not called again.
func (w *Workflow) RetryProfileSave(ctx context.Context) error {
	const op = "workflow.retry_save"

	w.mu.Lock()
	switch {
	case w.inFlight:
		w.mu.Unlock()
		return kycerr.Errorf(kycerr.Busy, op, "save in flight")
	case !w.pendingSave || w.image == nil:
		w.mu.Unlock()
		return kycerr.Errorf(kycerr.InvalidState, op, "no pending save")
	}

	img := w.image
	score := w.pendingScore
	w.inFlight = true
	w.saving = true
	w.state = StateVerifying
	w.lastErr = nil
	w.mu.Unlock()
	w.changed()

	return w.save(ctx, img, score)
}

// save persists a positive decision. Must be called with inFlight set.
func (w *Workflow) save(ctx context.Context, img *framecapture.CapturedImage, score int) error {
	const op = "profile.save"

	err := w.cfg.Profiles.Update(ctx, w.cfg.SubjectID, profilestore.Update{
		TrustScore:  profilestore.Ptr(score),
		IsVerified:  profilestore.Ptr(true),
		SelfieImage: profilestore.Ptr(img.DataURI),
	})
	metrics.RecordProfileSave(err == nil)

	w.mu.Lock()
	w.inFlight = false
	w.saving = false
	current := w.image == img

	if err != nil {
		perr := kycerr.New(kycerr.ProfilePersistenceFailure, op, err)
		if current {
			w.state = StateImageCaptured
			w.pendingSave = true
			w.lastErr = perr
			w.statusMessage = MessageSaveFailed
		}
		w.mu.Unlock()
		w.logger.Error().Err(err).Int("trust_score", score).Msg("profile update failed after positive verification")
		w.changed()
		if !current {
			return ErrStaleResult
		}
		return perr
	}

	// The store now holds the decision, whatever happened to the image meanwhile.
	w.profile.TrustScore = score
	w.profile.IsVerified = true
	w.profile.SelfieImage = img.DataURI
	if current {
		w.pendingSave = false
		w.state = StateVerified
		w.status = StatusVerified
		w.statusMessage = MessageVerified
		w.lastErr = nil
	}
	w.mu.Unlock()

	w.logger.Info().Int("trust_score", score).Msg("profile updated")
	w.changed()
	if !current {
		return ErrStaleResult
	}
	return nil
}

// Retake discards the current image and status and starts the camera again.
//
// Allowed from ImageCaptured, Verifying, Rejected and Verified. A gateway call
// still in flight completes on its own; its result is discarded. While the
// profile write of a positive decision runs, Retake fails with Busy: that
// write cannot be taken back.
func (w *Workflow) Retake(ctx context.Context) error {
	const op = "workflow.retake"

	w.mu.Lock()
	switch w.state {
	case StateImageCaptured, StateVerifying, StateRejected, StateVerified:
	default:
		s := w.state
		w.mu.Unlock()
		return invalidState(op, s)
	}
	if w.closed {
		w.mu.Unlock()
		return kycerr.Errorf(kycerr.InvalidState, op, "workflow closed")
	}
	if w.saving {
		w.mu.Unlock()
		return kycerr.Errorf(kycerr.Busy, op, "profile save in flight")
	}

	w.image = nil
	w.status = StatusIdle
	w.statusMessage = ""
	w.lastErr = nil
	w.pendingSave = false
	w.state = StateIdle
	w.mu.Unlock()

	w.logger.Debug().Msg("retake requested")
	w.changed()
	return w.StartCamera(ctx)
}

// Close tears the workflow down and releases the camera. Idempotent.
func (w *Workflow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	active := w.dismissLocked()
	if w.state == StateCameraShowing || w.state == StateCameraReady {
		w.state = StateIdle
	}
	w.mu.Unlock()

	active.Release()
	w.changed()
}
