package camerasession_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/devilx291/social-loan-ledger-82/internal/testutil"
	camerasession "github.com/devilx291/social-loan-ledger-82/modules/camera-session"
	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAcquireReady(t *testing.T) {
	devices := &testutil.FakeDevices{Width: 1280, Height: 720}
	sink := camerasession.NewVideoSink()
	session := camerasession.NewSession(devices)

	active, err := session.Acquire(context.Background(), sink)
	require.NoError(t, err)
	require.NotNil(t, active)
	t.Cleanup(active.Release)

	assert.Equal(t, camerasession.StateReady, session.State())
	assert.True(t, sink.Playing())

	w, h := sink.VideoSize()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
	assert.Same(t, active, session.Active())
}

func TestAcquireNoPlatform(t *testing.T) {
	session := camerasession.NewSession(nil)

	_, err := session.Acquire(context.Background(), camerasession.NewVideoSink())
	require.Error(t, err)
	assert.ErrorIs(t, err, kycerr.ErrPlatformUnsupported)
	assert.Equal(t, camerasession.StateFailed, session.State())
	assert.Equal(t, err, session.Err())
}

func TestAcquireClassifiesPlatformErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want kycerr.Kind
	}{
		{"denied", &camerasession.MediaError{Name: camerasession.ErrNameNotAllowed}, kycerr.PermissionDenied},
		{"security", &camerasession.MediaError{Name: camerasession.ErrNameSecurity}, kycerr.PermissionDenied},
		{"missing", &camerasession.MediaError{Name: camerasession.ErrNameNotFound}, kycerr.DeviceNotFound},
		{"busy", &camerasession.MediaError{Name: camerasession.ErrNameNotReadable}, kycerr.DeviceBusy},
		{"constraints", &camerasession.MediaError{Name: camerasession.ErrNameOverconstrained}, kycerr.ConstraintsUnsatisfiable},
		{"unknown", errors.New("sensor exploded"), kycerr.CameraFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devices := &testutil.FakeDevices{Err: tt.err}
			session := camerasession.NewSession(devices)

			_, err := session.Acquire(context.Background(), camerasession.NewVideoSink())
			require.Error(t, err)
			assert.Equal(t, tt.want, kycerr.KindOf(err))
			assert.Empty(t, devices.Streams())
		})
	}
}

func TestAcquireSinkGoneReleasesStream(t *testing.T) {
	devices := &testutil.FakeDevices{}
	sink := camerasession.NewVideoSink()
	sink.Close()
	session := camerasession.NewSession(devices)

	_, err := session.Acquire(context.Background(), sink)
	require.Error(t, err)
	assert.Equal(t, kycerr.SinkUnavailable, kycerr.KindOf(err))
	assert.True(t, devices.AllStopped())
	assert.Len(t, devices.Streams(), 1)
}

func TestAcquireCancelledWhilePending(t *testing.T) {
	gate := make(chan struct{})
	devices := &testutil.FakeDevices{Gate: gate}
	session := camerasession.NewSession(devices)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := session.Acquire(ctx, camerasession.NewVideoSink())
		errCh <- err
	}()

	require.Eventually(t, func() bool { return devices.Calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	close(gate)

	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, kycerr.SinkUnavailable, kycerr.KindOf(err))
	assert.True(t, devices.AllStopped(), "stream delivered after cancellation must be released")
}

func TestAcquireReadyTimeout(t *testing.T) {
	devices := &testutil.FakeDevices{Silent: true}
	session := camerasession.NewSession(devices, camerasession.WithReadyTimeout(30*time.Millisecond))

	_, err := session.Acquire(context.Background(), camerasession.NewVideoSink())
	require.Error(t, err)
	assert.Equal(t, kycerr.PlaybackFailed, kycerr.KindOf(err))
	assert.True(t, devices.AllStopped())
}

func TestAcquireBusyWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	devices := &testutil.FakeDevices{Gate: gate}
	session := camerasession.NewSession(devices)

	done := make(chan *camerasession.ActiveStream, 1)
	go func() {
		active, _ := session.Acquire(context.Background(), camerasession.NewVideoSink())
		done <- active
	}()
	require.Eventually(t, func() bool { return session.State() == camerasession.StateAcquiring }, time.Second, 5*time.Millisecond)

	_, err := session.Acquire(context.Background(), camerasession.NewVideoSink())
	assert.ErrorIs(t, err, kycerr.ErrBusy)

	close(gate)
	active := <-done
	require.NotNil(t, active)
	active.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	devices := &testutil.FakeDevices{}
	sink := camerasession.NewVideoSink()
	session := camerasession.NewSession(devices)

	active, err := session.Acquire(context.Background(), sink)
	require.NoError(t, err)

	active.Release()
	active.Release()
	session.Release()

	streams := devices.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, 1, streams[0].Track().Stops())
	assert.Equal(t, camerasession.StateReleased, session.State())
	assert.Nil(t, session.Active())
	assert.False(t, sink.Playing())

	var nilStream *camerasession.ActiveStream
	assert.NotPanics(t, nilStream.Release)
	assert.NotPanics(t, func() { camerasession.Release(nil) })
}

func TestAcquireReleasesStaleStream(t *testing.T) {
	devices := &testutil.FakeDevices{}
	session := camerasession.NewSession(devices)

	first, err := session.Acquire(context.Background(), camerasession.NewVideoSink())
	require.NoError(t, err)

	second, err := session.Acquire(context.Background(), camerasession.NewVideoSink())
	require.NoError(t, err)
	t.Cleanup(second.Release)

	streams := devices.Streams()
	require.Len(t, streams, 2)
	assert.True(t, streams[0].Stopped())
	assert.False(t, streams[1].Stopped())
	assert.Equal(t, camerasession.StateReady, session.State())

	// Releasing the stale handle again must not disturb the new stream.
	first.Release()
	assert.Same(t, second, session.Active())
}

func TestDefaultConstraints(t *testing.T) {
	c := camerasession.DefaultConstraints()
	assert.Equal(t, camerasession.FacingUser, c.FacingMode)
	assert.Equal(t, 1280, c.IdealWidth)
	assert.Equal(t, 720, c.IdealHeight)
	assert.Equal(t, "user@1280x720", c.String())
}
