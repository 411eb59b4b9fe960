package selfieworkflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/devilx291/social-loan-ledger-82/internal/testutil"
	camerasession "github.com/devilx291/social-loan-ledger-82/modules/camera-session"
	framecapture "github.com/devilx291/social-loan-ledger-82/modules/frame-capture"
	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
	profilestore "github.com/devilx291/social-loan-ledger-82/modules/profile-store"
	sw "github.com/devilx291/social-loan-ledger-82/modules/selfie-workflow"
	vg "github.com/devilx291/social-loan-ledger-82/modules/verification-gateway"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const subject = "subject-1"

type harness struct {
	devices *testutil.FakeDevices
	store   *testutil.FlakyStore
	wf      *sw.Workflow

	mu        sync.Mutex
	snapshots []sw.Snapshot
}

type harnessOption func(*sw.Config)

func withCapturer(c sw.Capturer) harnessOption {
	return func(cfg *sw.Config) { cfg.Capturer = c }
}

func newHarness(t *testing.T, profile profilestore.Profile, gateway vg.Verifier, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		devices: &testutil.FakeDevices{Width: 64, Height: 48},
		store:   testutil.NewFlakyStore(profilestore.NewMemoryStore(profile)),
	}
	h.wf = h.build(t, gateway, opts...)
	return h
}

func (h *harness) build(t *testing.T, gateway vg.Verifier, opts ...harnessOption) *sw.Workflow {
	t.Helper()

	cfg := sw.Config{
		SubjectID: subject,
		Profiles:  h.store,
		Gateway:   gateway,
		Camera:    camerasession.NewSession(h.devices, camerasession.WithReadyTimeout(500*time.Millisecond)),
		Capturer:  framecapture.NewCapturer(),
		Display:   camerasession.NewVideoSink(),
		Surface:   framecapture.NewRasterSurface(),
		OnChange: func(s sw.Snapshot) {
			h.mu.Lock()
			h.snapshots = append(h.snapshots, s)
			h.mu.Unlock()
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	wf, err := sw.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(wf.Close)
	return wf
}

func (h *harness) sawBusyVerifying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.snapshots {
		if s.State == sw.StateVerifying && s.Busy {
			return true
		}
	}
	return false
}

func (h *harness) stored(t *testing.T) profilestore.Profile {
	t.Helper()
	p, err := h.store.Read(context.Background(), subject)
	require.NoError(t, err)
	return p
}

func (h *harness) captureReady(t *testing.T) {
	t.Helper()
	require.NoError(t, h.wf.StartCamera(context.Background()))
	snap := h.wf.Snapshot()
	require.Equal(t, sw.StateCameraReady, snap.State)
	require.True(t, snap.CameraReady)
	require.NoError(t, h.wf.CaptureSelfie())
}

func fresh(score int) profilestore.Profile {
	return profilestore.Profile{SubjectID: subject, Name: "Ada", TrustScore: score}
}

func TestVerifiedRaisesTrustScore(t *testing.T) {
	h := newHarness(t, fresh(50), vg.NewMock(0))

	h.captureReady(t)
	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateImageCaptured, snap.State)
	require.NotNil(t, snap.CapturedImage)
	assert.False(t, snap.CameraVisible)
	assert.False(t, snap.CameraReady)
	assert.True(t, h.devices.AllStopped(), "camera released right after capture")

	require.NoError(t, h.wf.SubmitForVerification(context.Background()))

	snap = h.wf.Snapshot()
	assert.Equal(t, sw.StateVerified, snap.State)
	assert.Equal(t, sw.StatusVerified, snap.Status)
	assert.Equal(t, sw.MessageVerified, snap.StatusMessage)
	assert.Equal(t, 70, snap.TrustScore)
	assert.True(t, snap.IsVerified)
	assert.NoError(t, snap.LastError)
	assert.False(t, snap.Busy)

	p := h.stored(t)
	assert.Equal(t, 70, p.TrustScore)
	assert.True(t, p.IsVerified)
	assert.Equal(t, snap.CapturedImage.DataURI, p.SelfieImage)
	assert.True(t, h.sawBusyVerifying())
}

func TestTrustScoreIsClamped(t *testing.T) {
	h := newHarness(t, fresh(95), vg.NewMock(0))

	h.captureReady(t)
	require.NoError(t, h.wf.SubmitForVerification(context.Background()))

	assert.Equal(t, 100, h.wf.Snapshot().TrustScore)
	assert.Equal(t, 100, h.stored(t).TrustScore)
}

func TestRejectedLeavesProfileUntouched(t *testing.T) {
	h := newHarness(t, fresh(50), &vg.Mock{Decide: vg.Reject("blurry")})

	h.captureReady(t)
	require.NoError(t, h.wf.SubmitForVerification(context.Background()))

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateRejected, snap.State)
	assert.Equal(t, sw.StatusRejected, snap.Status)
	assert.Equal(t, "blurry", snap.StatusMessage)
	assert.NoError(t, snap.LastError, "a rejection is an outcome, not an error")

	p := h.stored(t)
	assert.Equal(t, 50, p.TrustScore)
	assert.False(t, p.IsVerified)
	assert.Empty(t, p.SelfieImage)
	assert.Zero(t, h.store.Updates())
}

func TestRejectedWithoutMessageUsesDefault(t *testing.T) {
	h := newHarness(t, fresh(50), &vg.Mock{Decide: vg.Reject("")})

	h.captureReady(t)
	require.NoError(t, h.wf.SubmitForVerification(context.Background()))
	assert.Equal(t, sw.MessageRejected, h.wf.Snapshot().StatusMessage)
}

func TestAlreadyVerifiedSkipsCamera(t *testing.T) {
	stored := fresh(80)
	stored.IsVerified = true
	stored.SelfieImage = "data:image/jpeg;base64,aGVsbG8="
	h := newHarness(t, stored, vg.NewMock(0))

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateVerified, snap.State)
	assert.Equal(t, sw.StatusVerified, snap.Status)
	require.NotNil(t, snap.CapturedImage)
	assert.Equal(t, stored.SelfieImage, snap.CapturedImage.DataURI)
	assert.Equal(t, 80, snap.TrustScore)
	assert.Zero(t, h.devices.Calls(), "no camera acquired")

	err := h.wf.StartCamera(context.Background())
	assert.ErrorIs(t, err, kycerr.ErrInvalidState)
	assert.Zero(t, h.devices.Calls())
}

func TestAlreadyVerifiedSurfacesOpaqueSelfie(t *testing.T) {
	stored := fresh(80)
	stored.IsVerified = true
	stored.SelfieImage = "https://cdn.example.com/selfies/ada.jpg"
	h := newHarness(t, stored, vg.NewMock(0))

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateVerified, snap.State)
	require.NotNil(t, snap.CapturedImage)
	assert.True(t, snap.CapturedImage.Opaque())
	assert.Equal(t, stored.SelfieImage, snap.CapturedImage.DataURI)
	assert.NoError(t, snap.LastError)
}

func TestPermissionDeniedIsRetryable(t *testing.T) {
	h := newHarness(t, fresh(50), vg.NewMock(0))
	h.devices.Err = &camerasession.MediaError{Name: camerasession.ErrNameNotAllowed}

	err := h.wf.StartCamera(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, kycerr.ErrPermissionDenied)

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateCameraShowing, snap.State)
	assert.True(t, snap.CameraVisible)
	assert.False(t, snap.CameraReady)
	assert.Equal(t, "permission_denied", snap.ErrorKind())
	assert.NotEmpty(t, snap.ErrorMessage())
	assert.Equal(t, sw.StatusIdle, snap.Status)

	h.devices.Err = nil
	require.NoError(t, h.wf.StartCamera(context.Background()))
	snap = h.wf.Snapshot()
	assert.True(t, snap.CameraReady)
	assert.NoError(t, snap.LastError)
}

func TestTransportFailureKeepsImage(t *testing.T) {
	var fail = true
	gateway := vg.VerifierFunc(func(ctx context.Context, req vg.Request) (vg.Result, error) {
		if fail {
			return vg.Result{}, errors.New("connection reset")
		}
		return vg.Result{Verified: true}, nil
	})
	h := newHarness(t, fresh(50), gateway)
	h.captureReady(t)

	err := h.wf.SubmitForVerification(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, kycerr.ErrVerificationTransportFailure)

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateImageCaptured, snap.State)
	assert.Equal(t, sw.StatusIdle, snap.Status)
	assert.NotNil(t, snap.CapturedImage)
	assert.Equal(t, 50, h.stored(t).TrustScore)

	fail = false
	require.NoError(t, h.wf.SubmitForVerification(context.Background()))
	assert.Equal(t, sw.StateVerified, h.wf.Snapshot().State)
}

func TestPersistenceFailureIsDistinctAndRetryable(t *testing.T) {
	mock := vg.NewMock(0)
	h := newHarness(t, fresh(50), mock)
	h.captureReady(t)
	h.store.FailUpdates(2)

	err := h.wf.SubmitForVerification(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, kycerr.ErrProfilePersistenceFailure)

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateImageCaptured, snap.State)
	assert.True(t, snap.PendingSave)
	assert.NotEqual(t, sw.StatusRejected, snap.Status, "save failure must not read as a rejection")
	assert.Equal(t, sw.MessageSaveFailed, snap.StatusMessage)
	assert.False(t, h.stored(t).IsVerified)

	// Retry through RetryProfileSave, fails again.
	err = h.wf.RetryProfileSave(context.Background())
	assert.ErrorIs(t, err, kycerr.ErrProfilePersistenceFailure)

	// Retry through another submit, succeeds.
	require.NoError(t, h.wf.SubmitForVerification(context.Background()))

	snap = h.wf.Snapshot()
	assert.Equal(t, sw.StateVerified, snap.State)
	assert.False(t, snap.PendingSave)
	assert.Equal(t, 70, snap.TrustScore, "bonus applied once")
	assert.Equal(t, 70, h.stored(t).TrustScore)
	assert.Len(t, mock.Requests(), 1, "gateway not called again")
	assert.Equal(t, 3, h.store.Updates())
}

func TestRetryProfileSaveWithoutPending(t *testing.T) {
	h := newHarness(t, fresh(50), vg.NewMock(0))
	assert.ErrorIs(t, h.wf.RetryProfileSave(context.Background()), kycerr.ErrInvalidState)
}

func TestStopCameraDuringAcquireReleasesLateStream(t *testing.T) {
	h := newHarness(t, fresh(50), vg.NewMock(0))
	gate := make(chan struct{})
	h.devices.SetGate(gate)

	errCh := make(chan error, 1)
	go func() { errCh <- h.wf.StartCamera(context.Background()) }()
	require.Eventually(t, func() bool { return h.devices.Calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.wf.Snapshot().Busy)

	// A second start while the first is outstanding is refused.
	assert.ErrorIs(t, h.wf.StartCamera(context.Background()), kycerr.ErrBusy)

	h.wf.StopCamera()
	snap := h.wf.Snapshot()
	assert.False(t, snap.CameraVisible)
	assert.False(t, snap.CameraReady)

	close(gate)
	err := <-errCh
	assert.ErrorIs(t, err, kycerr.ErrSinkUnavailable)

	snap = h.wf.Snapshot()
	assert.Equal(t, sw.StateIdle, snap.State)
	assert.False(t, snap.CameraReady)
	assert.False(t, snap.Busy)
	assert.NoError(t, snap.LastError)
	require.Len(t, h.devices.Streams(), 1)
	assert.True(t, h.devices.AllStopped(), "late stream released")
}

func TestStopCameraReleasesReadyStream(t *testing.T) {
	h := newHarness(t, fresh(50), vg.NewMock(0))
	require.NoError(t, h.wf.StartCamera(context.Background()))

	h.wf.StopCamera()
	h.wf.StopCamera()

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateIdle, snap.State)
	assert.False(t, snap.CameraVisible)
	assert.True(t, h.devices.AllStopped())
	assert.Equal(t, 1, h.devices.Streams()[0].Track().Stops())
}

func TestStaleVerificationResultIsDiscarded(t *testing.T) {
	gateway := testutil.NewGatedVerifier(vg.Result{Verified: true})
	h := newHarness(t, fresh(50), gateway)
	h.captureReady(t)

	errCh := make(chan error, 1)
	go func() { errCh <- h.wf.SubmitForVerification(context.Background()) }()
	<-gateway.Entered()

	require.NoError(t, h.wf.Retake(context.Background()))
	gateway.ReleaseAll()
	assert.ErrorIs(t, <-errCh, sw.ErrStaleResult)

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateCameraReady, snap.State)
	assert.Equal(t, sw.StatusIdle, snap.Status)
	assert.Nil(t, snap.CapturedImage)
	assert.False(t, snap.Busy)
	assert.False(t, h.stored(t).IsVerified)
	assert.Equal(t, 50, h.stored(t).TrustScore)
}

func TestRetakeAfterRejection(t *testing.T) {
	h := newHarness(t, fresh(50), &vg.Mock{Decide: vg.Reject("blurry")})
	h.captureReady(t)
	require.NoError(t, h.wf.SubmitForVerification(context.Background()))

	require.NoError(t, h.wf.Retake(context.Background()))

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateCameraReady, snap.State)
	assert.Nil(t, snap.CapturedImage)
	assert.Equal(t, sw.StatusIdle, snap.Status)
	assert.Empty(t, snap.StatusMessage)
	assert.Len(t, h.devices.Streams(), 2)
}

type failingCapturer struct{}

func (failingCapturer) Capture(framecapture.Source, framecapture.Surface) (*framecapture.CapturedImage, error) {
	return nil, kycerr.Errorf(kycerr.FrameNotReady, "capture", "0x0")
}

func TestCaptureFailureStaysReady(t *testing.T) {
	h := newHarness(t, fresh(50), vg.NewMock(0), withCapturer(failingCapturer{}))
	require.NoError(t, h.wf.StartCamera(context.Background()))

	err := h.wf.CaptureSelfie()
	assert.ErrorIs(t, err, kycerr.ErrFrameNotReady)

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateCameraReady, snap.State)
	assert.True(t, snap.CameraReady)
	assert.Nil(t, snap.CapturedImage)
	assert.Equal(t, "frame_not_ready", snap.ErrorKind())
}

func TestCommandsOutOfOrder(t *testing.T) {
	h := newHarness(t, fresh(50), vg.NewMock(0))

	assert.ErrorIs(t, h.wf.CaptureSelfie(), kycerr.ErrInvalidState)
	assert.ErrorIs(t, h.wf.SubmitForVerification(context.Background()), kycerr.ErrInvalidState)
	assert.ErrorIs(t, h.wf.Retake(context.Background()), kycerr.ErrInvalidState)
	assert.Zero(t, h.devices.Calls())
}

func TestProfileReadFailure(t *testing.T) {
	h := &harness{
		devices: &testutil.FakeDevices{},
		store:   testutil.NewFlakyStore(profilestore.NewMemoryStore(fresh(50))),
	}
	h.store.FailReads(1)
	wf := h.build(t, vg.NewMock(0))

	snap := wf.Snapshot()
	assert.Equal(t, sw.StateIdle, snap.State)
	assert.ErrorIs(t, snap.LastError, kycerr.ErrProfilePersistenceFailure)
	assert.ErrorIs(t, snap.LastError, testutil.ErrInjected)
}

func TestCloseReleasesCamera(t *testing.T) {
	h := newHarness(t, fresh(50), vg.NewMock(0))
	require.NoError(t, h.wf.StartCamera(context.Background()))

	h.wf.Close()
	h.wf.Close()

	assert.True(t, h.devices.AllStopped())
	assert.ErrorIs(t, h.wf.StartCamera(context.Background()), kycerr.ErrInvalidState)
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := sw.New(context.Background(), sw.Config{SubjectID: subject})
	assert.Error(t, err)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "camera_showing", sw.StateCameraShowing.String())
	text, err := sw.StateVerifying.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "verifying", string(text))
}

func TestRetakeIsBusyWhileSaving(t *testing.T) {
	h := newHarness(t, fresh(50), vg.NewMock(0))
	h.captureReady(t)

	entered, release := h.store.HoldUpdates()
	done := make(chan error, 1)
	go func() { done <- h.wf.SubmitForVerification(context.Background()) }()
	<-entered

	err := h.wf.Retake(context.Background())
	assert.ErrorIs(t, err, kycerr.ErrBusy)
	assert.Equal(t, sw.StateVerifying, h.wf.Snapshot().State)
	require.NotNil(t, h.wf.Snapshot().CapturedImage, "image kept while its decision is written")

	release()
	require.NoError(t, <-done)

	snap := h.wf.Snapshot()
	assert.Equal(t, sw.StateVerified, snap.State)
	assert.Equal(t, 70, snap.TrustScore)
	assert.Equal(t, 70, h.stored(t).TrustScore)
	assert.Equal(t, 1, h.devices.Calls(), "refused retake restarts no camera")
}

func TestChangesAreDeliveredInOrder(t *testing.T) {
	h := newHarness(t, fresh(50), vg.NewMock(0))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				if (i+n)%2 == 0 {
					_ = h.wf.StartCamera(context.Background())
				} else {
					h.wf.StopCamera()
				}
			}
		}(i)
	}
	wg.Wait()

	final := h.wf.Snapshot()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.snapshots)
	for i := 1; i < len(h.snapshots); i++ {
		require.Greater(t, h.snapshots[i].Seq, h.snapshots[i-1].Seq, "delivery %d out of order", i)
	}
	last := h.snapshots[len(h.snapshots)-1]
	assert.Equal(t, final.Seq, last.Seq)
	assert.Equal(t, final.State, last.State)
	assert.Equal(t, final.CameraVisible, last.CameraVisible)
	assert.Equal(t, final.CameraReady, last.CameraReady)
}
