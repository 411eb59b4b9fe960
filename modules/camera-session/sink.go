package camerasession

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
)

// frameSlot is a single-slot latest-frame mailbox.
//
// Overwrite policy: a new frame replaces the previous one whether or not it was
// read. The sink renders the newest frame only, so nothing is ever queued.
type frameSlot struct {
	mu        sync.Mutex
	frame     *Frame
	published uint64
	dropped   uint64 // frames overwritten before anyone read them
	read      bool
}

func (s *frameSlot) publish(f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame != nil && !s.read {
		s.dropped++
	}
	s.frame = f
	s.read = false
	s.published++
}

func (s *frameSlot) latest() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.read = true
	return s.frame
}

func (s *frameSlot) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame = nil
	s.read = false
}

// SinkStats is a snapshot of sink activity.
type SinkStats struct {
	FramesPublished uint64
	FramesDropped   uint64
	Playing         bool
	Width           int
	Height          int
}

// VideoSink is the default Sink: it renders the newest frame of the bound stream.
//
// It also serves as the capture source: VideoSize reports the delivered frame
// dimensions (0x0 until the first frame decodes) and CurrentFrame returns the
// newest frame as an image.
//
// Thread-safety: all methods are safe for concurrent use.
type VideoSink struct {
	mu      sync.Mutex
	closed  bool
	stream  Stream
	playing bool
	loaded  chan struct{}
	done    chan struct{} // closed on Detach to stop the pump
	wg      sync.WaitGroup

	slot frameSlot
}

// NewVideoSink returns an open sink with nothing bound.
func NewVideoSink() *VideoSink {
	return &VideoSink{loaded: make(chan struct{})}
}

// Attach binds stream and starts pumping its frames into the sink.
//
// A previously bound stream is detached first. Returns SinkUnavailable if the
// sink was closed.
func (v *VideoSink) Attach(stream Stream) error {
	if stream == nil {
		return kycerr.Errorf(kycerr.SinkUnavailable, "sink.attach", "nil stream")
	}

	v.Detach()

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return kycerr.Errorf(kycerr.SinkUnavailable, "sink.attach", "sink closed")
	}

	v.stream = stream
	v.loaded = make(chan struct{})
	v.done = make(chan struct{})

	v.wg.Add(1)
	go v.pump(stream.Frames(), v.loaded, v.done)

	return nil
}

// pump copies frames from the stream into the slot until the stream ends or
// the sink detaches. The first frame closes loaded.
func (v *VideoSink) pump(frames <-chan Frame, loaded, done chan struct{}) {
	defer v.wg.Done()

	first := true
	for {
		select {
		case <-done:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if f.Width <= 0 || f.Height <= 0 {
				continue
			}
			frame := f
			v.slot.publish(&frame)
			if first {
				close(loaded)
				first = false
			}
		}
	}
}

// Detach unbinds the current stream and stops playback. Idempotent.
//
// Detach does not stop the stream's tracks; the stream owner releases it.
func (v *VideoSink) Detach() {
	v.mu.Lock()
	if v.done != nil {
		close(v.done)
		v.done = nil
	}
	v.stream = nil
	v.playing = false
	v.mu.Unlock()

	v.wg.Wait()
	v.slot.reset()
}

// MetadataLoaded is closed once the bound stream delivered its first frame.
func (v *VideoSink) MetadataLoaded() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loaded
}

// Play starts playback. Requires a bound stream on an open sink.
func (v *VideoSink) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("play: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("play: sink closed")
	}
	if v.stream == nil {
		return fmt.Errorf("play: no stream bound")
	}
	v.playing = true
	return nil
}

// Playing reports whether playback has started.
func (v *VideoSink) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

// Close detaches and marks the sink gone, as when the consuming view is dismissed.
// Later Attach calls fail with SinkUnavailable.
func (v *VideoSink) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	v.Detach()
}

// Reopen clears the closed flag so the sink can be attached again.
func (v *VideoSink) Reopen() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = false
}

// VideoSize returns the dimensions of the newest frame, or 0x0 before the first frame.
func (v *VideoSink) VideoSize() (width, height int) {
	if !v.Playing() {
		return 0, 0
	}
	f := v.peek()
	if f == nil {
		return 0, 0
	}
	return f.Width, f.Height
}

// CurrentFrame returns the newest frame as an image, or nil before the first frame.
func (v *VideoSink) CurrentFrame() image.Image {
	if !v.Playing() {
		return nil
	}
	f := v.slot.latest()
	if f == nil {
		return nil
	}
	img, err := rgbToRGBA(f)
	if err != nil {
		return nil
	}
	return img
}

// Stats returns a snapshot of sink activity.
func (v *VideoSink) Stats() SinkStats {
	v.slot.mu.Lock()
	stats := SinkStats{
		FramesPublished: v.slot.published,
		FramesDropped:   v.slot.dropped,
	}
	if v.slot.frame != nil {
		stats.Width = v.slot.frame.Width
		stats.Height = v.slot.frame.Height
	}
	v.slot.mu.Unlock()

	stats.Playing = v.Playing()
	return stats
}

func (v *VideoSink) peek() *Frame {
	v.slot.mu.Lock()
	defer v.slot.mu.Unlock()
	return v.slot.frame
}

// rgbToRGBA converts RGB raw bytes (3 bytes/pixel) to image.RGBA (4 bytes/pixel).
func rgbToRGBA(f *Frame) (*image.RGBA, error) {
	expected := f.Width * f.Height * 3
	if len(f.Data) != expected {
		return nil, fmt.Errorf("invalid RGB data size: got %d, expected %d", len(f.Data), expected)
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		img.Pix[i*4+0] = f.Data[i*3+0]
		img.Pix[i*4+1] = f.Data[i*3+1]
		img.Pix[i*4+2] = f.Data[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}
