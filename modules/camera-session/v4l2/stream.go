package v4l2

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	camerasession "github.com/devilx291/social-loan-ledger-82/modules/camera-session"
)

// stream is a running v4l2 pipeline exposed as a camerasession.Stream.
type stream struct {
	id       string
	device   string
	elements *pipelineElements
	logger   zerolog.Logger

	frames chan camerasession.Frame
	track  *track

	// sendMu orders frame sends against the final close of frames.
	sendMu sync.RWMutex
	closed bool

	done chan struct{}
	wg   sync.WaitGroup

	frameCount    uint64
	framesDropped uint64
	started       time.Time
}

func newStream(device string, elements *pipelineElements, buffer int, logger zerolog.Logger) *stream {
	s := &stream{
		id:       uuid.New().String(),
		device:   device,
		elements: elements,
		frames:   make(chan camerasession.Frame, buffer),
		done:     make(chan struct{}),
		started:  time.Now(),
	}
	s.logger = logger.With().Str("stream_id", s.id).Str("device", device).Logger()
	s.track = &track{id: uuid.New().String(), stream: s}

	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})
	return s
}

func (s *stream) ID() string { return s.id }

func (s *stream) Tracks() []camerasession.Track { return []camerasession.Track{s.track} }

func (s *stream) Frames() <-chan camerasession.Frame { return s.frames }

// onNewSample is called by GStreamer for every decoded frame.
//
// The frame is copied out of the GStreamer buffer and sent non-blocking, so a
// slow consumer drops frames instead of stalling the device.
func (s *stream) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		s.logger.Warn().Msg("failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		s.logger.Warn().Msg("failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	width, height, ok := capsDimensions(sample.GetCaps())
	if !ok {
		s.logger.Warn().Msg("sample without dimensions, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	packed, err := packRGB(data, width, height)
	buffer.Unmap()
	if err != nil {
		s.logger.Warn().Err(err).Msg("malformed RGB buffer, skipping frame")
		return gst.FlowOK
	}

	frame := camerasession.Frame{
		Seq:       atomic.AddUint64(&s.frameCount, 1),
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Data:      packed,
		TraceID:   uuid.New().String(),
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.closed {
		return gst.FlowEOS
	}
	select {
	case s.frames <- frame:
	default:
		atomic.AddUint64(&s.framesDropped, 1)
		s.logger.Debug().Uint64("seq", frame.Seq).Str("trace_id", frame.TraceID).Msg("dropping frame, channel full")
	}
	return gst.FlowOK
}

// monitor watches the bus after startup and stops the stream on a fatal error
// or end of stream, so the frame channel closes and consumers notice.
func (s *stream) monitor() {
	defer s.wg.Done()

	bus := s.elements.Pipeline.GetPipelineBus()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			s.logger.Info().Dur("uptime", time.Since(s.started)).Msg("end of stream")
			go s.track.Stop()
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			s.logger.Error().
				Str("error", gerr.Error()).
				Str("debug", gerr.DebugString()).
				Uint64("frames_processed", atomic.LoadUint64(&s.frameCount)).
				Msg("pipeline error, stopping stream")
			go s.track.Stop()
			return
		}
	}
}

// stop tears the pipeline down and closes the frame channel.
func (s *stream) stop() {
	close(s.done)

	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(3 * time.Second):
		s.logger.Warn().Msg("stop timeout, bus monitor still running")
	}

	if err := destroyPipeline(s.elements); err != nil {
		s.logger.Warn().Err(err).Msg("failed to stop pipeline")
	}

	s.sendMu.Lock()
	s.closed = true
	close(s.frames)
	s.sendMu.Unlock()

	s.logger.Info().
		Uint64("frames_processed", atomic.LoadUint64(&s.frameCount)).
		Uint64("frames_dropped", atomic.LoadUint64(&s.framesDropped)).
		Dur("uptime", time.Since(s.started)).
		Msg("camera stream stopped")
}

// track is the single video track of a v4l2 stream.
type track struct {
	id     string
	stream *stream
	once   sync.Once
}

func (t *track) ID() string   { return t.id }
func (t *track) Kind() string { return "video" }

// Stop releases the device. Idempotent.
func (t *track) Stop() { t.once.Do(t.stream.stop) }

// capsDimensions reads width and height from the first caps structure.
func capsDimensions(caps *gst.Caps) (int, int, bool) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, false
	}
	st := caps.GetStructureAt(0)
	if st == nil {
		return 0, 0, false
	}
	w, err := st.GetValue("width")
	if err != nil {
		return 0, 0, false
	}
	h, err := st.GetValue("height")
	if err != nil {
		return 0, 0, false
	}
	width, okW := w.(int)
	height, okH := h.(int)
	if !okW || !okH || width <= 0 || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

// packRGB copies an RGB buffer into a tightly packed slice.
//
// GStreamer pads RGB rows to a multiple of four bytes, so for widths that are
// not a multiple of four each row carries trailing padding that is dropped here.
func packRGB(data []byte, width, height int) ([]byte, error) {
	row := width * 3
	want := row * height
	if len(data) == want {
		out := make([]byte, want)
		copy(out, data)
		return out, nil
	}

	if height == 0 || len(data)%height != 0 {
		return nil, fmt.Errorf("buffer size %d is not a whole number of %d rows", len(data), height)
	}
	stride := len(data) / height
	if stride < row {
		return nil, fmt.Errorf("stride %d shorter than row %d", stride, row)
	}

	out := make([]byte, want)
	for y := 0; y < height; y++ {
		copy(out[y*row:(y+1)*row], data[y*stride:y*stride+row])
	}
	return out, nil
}
