// Package testutil provides fakes shared by the package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	camerasession "github.com/devilx291/social-loan-ledger-82/modules/camera-session"
)

// FakeDevices is a scriptable camerasession.MediaDevices.
type FakeDevices struct {
	mu sync.Mutex

	// Err, when set, is returned by every GetUserMedia call.
	Err error
	// Width and Height are the delivered frame size, default 640x480.
	Width, Height int
	// Frames is the number of frames each stream emits on open, default 1.
	// Zero is treated as the default; use Silent for a stream without frames.
	Frames int
	// Silent streams emit no frames, so the sink never loads.
	Silent bool
	// Gate, when set, blocks GetUserMedia until it is closed. The stream is
	// returned even if ctx was cancelled meanwhile.
	Gate chan struct{}

	calls   int32
	streams []*FakeStream
}

// GetUserMedia implements camerasession.MediaDevices.
func (d *FakeDevices) GetUserMedia(ctx context.Context, c camerasession.Constraints) (camerasession.Stream, error) {
	atomic.AddInt32(&d.calls, 1)

	d.mu.Lock()
	gate := d.Gate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}

	w, h := d.Width, d.Height
	if w == 0 || h == 0 {
		w, h = 640, 480
	}
	n := d.Frames
	if n == 0 {
		n = 1
	}
	if d.Silent {
		n = 0
	}

	s := NewFakeStream(fmt.Sprintf("fake-%d", len(d.streams)+1), w, h, n)
	d.streams = append(d.streams, s)
	return s, nil
}

// SetGate installs a gate that blocks the next GetUserMedia calls.
func (d *FakeDevices) SetGate(gate chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Gate = gate
}

// Calls returns the number of GetUserMedia calls.
func (d *FakeDevices) Calls() int {
	return int(atomic.LoadInt32(&d.calls))
}

// Streams returns every stream handed out so far.
func (d *FakeDevices) Streams() []*FakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeStream, len(d.streams))
	copy(out, d.streams)
	return out
}

// AllStopped reports whether every stream handed out has been released.
func (d *FakeDevices) AllStopped() bool {
	for _, s := range d.Streams() {
		if !s.Stopped() {
			return false
		}
	}
	return true
}

// FakeStream is a camerasession.Stream with a single video track.
type FakeStream struct {
	id     string
	track  *FakeTrack
	frames chan camerasession.Frame
	width  int
	height int
}

// NewFakeStream returns a stream that has already queued n frames of w x h.
func NewFakeStream(id string, w, h, n int) *FakeStream {
	s := &FakeStream{
		id:     id,
		frames: make(chan camerasession.Frame, n+8),
		width:  w,
		height: h,
	}
	s.track = &FakeTrack{id: id + "-video", stream: s}
	for i := 0; i < n; i++ {
		s.frames <- SolidFrame(uint64(i+1), w, h, byte(10*(i+1)), 0, 0)
	}
	return s
}

func (s *FakeStream) ID() string                         { return s.id }
func (s *FakeStream) Tracks() []camerasession.Track      { return []camerasession.Track{s.track} }
func (s *FakeStream) Frames() <-chan camerasession.Frame { return s.frames }

// Track returns the video track.
func (s *FakeStream) Track() *FakeTrack { return s.track }

// Stopped reports whether the video track was stopped.
func (s *FakeStream) Stopped() bool { return s.track.Stops() > 0 }

// Push sends one more frame, non-blocking. Returns false once stopped or full.
func (s *FakeStream) Push(f camerasession.Frame) bool {
	s.track.mu.Lock()
	defer s.track.mu.Unlock()
	if s.track.stopped {
		return false
	}
	select {
	case s.frames <- f:
		return true
	default:
		return false
	}
}

// FakeTrack counts Stop calls. Only the first one closes the frame channel.
type FakeTrack struct {
	id     string
	stream *FakeStream

	mu      sync.Mutex
	stopped bool
	stops   int32
}

func (t *FakeTrack) ID() string   { return t.id }
func (t *FakeTrack) Kind() string { return "video" }

// Stop implements camerasession.Track.
func (t *FakeTrack) Stop() {
	atomic.AddInt32(&t.stops, 1)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.stream.frames)
}

// Stops returns how many times Stop was called.
func (t *FakeTrack) Stops() int { return int(atomic.LoadInt32(&t.stops)) }

// SolidFrame returns a w x h frame filled with one RGB color.
func SolidFrame(seq uint64, w, h int, r, g, b byte) camerasession.Frame {
	data := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		data[i*3] = r
		data[i*3+1] = g
		data[i*3+2] = b
	}
	return camerasession.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     w,
		Height:    h,
		Data:      data,
		TraceID:   fmt.Sprintf("frame-%d", seq),
	}
}

// GradientFrame returns a frame whose red channel equals the column index,
// which makes horizontal mirroring observable.
func GradientFrame(seq uint64, w, h int) camerasession.Frame {
	f := SolidFrame(seq, w, h, 0, 0, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Data[(y*w+x)*3] = byte(x)
		}
	}
	return f
}
