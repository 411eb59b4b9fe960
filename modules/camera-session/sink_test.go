package camerasession_test

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devilx291/social-loan-ledger-82/internal/testutil"
	camerasession "github.com/devilx291/social-loan-ledger-82/modules/camera-session"
	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
)

func waitLoaded(t *testing.T, sink *camerasession.VideoSink) {
	t.Helper()
	select {
	case <-sink.MetadataLoaded():
	case <-time.After(time.Second):
		t.Fatal("metadata never loaded")
	}
}

func TestVideoSinkLifecycle(t *testing.T) {
	stream := testutil.NewFakeStream("s1", 4, 2, 1)
	t.Cleanup(func() { camerasession.Release(stream) })

	sink := camerasession.NewVideoSink()
	t.Cleanup(sink.Close)

	w, h := sink.VideoSize()
	assert.Zero(t, w)
	assert.Zero(t, h)
	assert.Nil(t, sink.CurrentFrame())

	require.NoError(t, sink.Attach(stream))
	waitLoaded(t, sink)

	// Not playing yet: nothing to capture.
	w, _ = sink.VideoSize()
	assert.Zero(t, w)

	require.NoError(t, sink.Play(context.Background()))
	w, h = sink.VideoSize()
	assert.Equal(t, 4, w)
	assert.Equal(t, 2, h)

	img := sink.CurrentFrame()
	require.NotNil(t, img)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, color.RGBA{R: 10, A: 255}, img.At(0, 0))

	sink.Detach()
	assert.False(t, sink.Playing())
	assert.Nil(t, sink.CurrentFrame())
}

func TestVideoSinkKeepsNewestFrame(t *testing.T) {
	stream := testutil.NewFakeStream("s1", 2, 2, 1)
	t.Cleanup(func() { camerasession.Release(stream) })

	sink := camerasession.NewVideoSink()
	t.Cleanup(sink.Close)
	require.NoError(t, sink.Attach(stream))
	waitLoaded(t, sink)
	require.NoError(t, sink.Play(context.Background()))

	require.True(t, stream.Push(testutil.SolidFrame(2, 2, 2, 0, 200, 0)))
	require.True(t, stream.Push(testutil.SolidFrame(3, 2, 2, 0, 0, 200)))

	require.Eventually(t, func() bool {
		return sink.Stats().FramesPublished == 3
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, color.RGBA{B: 200, A: 255}, sink.CurrentFrame().At(1, 1))
}

func TestVideoSinkClosed(t *testing.T) {
	stream := testutil.NewFakeStream("s1", 2, 2, 1)
	t.Cleanup(func() { camerasession.Release(stream) })

	sink := camerasession.NewVideoSink()
	sink.Close()

	err := sink.Attach(stream)
	assert.ErrorIs(t, err, kycerr.ErrSinkUnavailable)
	assert.Error(t, sink.Play(context.Background()))

	sink.Reopen()
	require.NoError(t, sink.Attach(stream))
	sink.Close()
}

func TestVideoSinkStreamEnds(t *testing.T) {
	stream := testutil.NewFakeStream("s1", 2, 2, 0)
	sink := camerasession.NewVideoSink()
	t.Cleanup(sink.Close)

	require.NoError(t, sink.Attach(stream))
	camerasession.Release(stream)

	select {
	case <-sink.MetadataLoaded():
		t.Fatal("loaded without a frame")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestVideoSinkPlayCancelled(t *testing.T) {
	sink := camerasession.NewVideoSink()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, sink.Play(ctx))
}
