// Package v4l2 implements camerasession.MediaDevices on Linux video4linux
// devices through a GStreamer pipeline.
//
// A v4l2 node has no notion of facing mode: the configured device is assumed to
// be the front camera. The ideal size is requested from the device first; if
// caps negotiation fails the pipeline is rebuilt without a size so the device
// picks its own mode.
package v4l2

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/devilx291/social-loan-ledger-82/internal/log"
	camerasession "github.com/devilx291/social-loan-ledger-82/modules/camera-session"
)

// Config configures the v4l2 backend.
type Config struct {
	// Device is the video node, default /dev/video0.
	Device string
	// FrameBuffer is the frame channel capacity, default 10.
	FrameBuffer int
	// StartTimeout bounds the wait for the pipeline to reach PLAYING, default 5s.
	StartTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Device == "" {
		c.Device = "/dev/video0"
	}
	if c.FrameBuffer <= 0 {
		c.FrameBuffer = 10
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 5 * time.Second
	}
	return c
}

// Devices opens the configured v4l2 node on demand.
type Devices struct {
	cfg    Config
	logger zerolog.Logger
}

// New returns a v4l2 media backend. The device is not touched until GetUserMedia.
func New(cfg Config) *Devices {
	return &Devices{
		cfg:    cfg.withDefaults(),
		logger: log.WithComponent("v4l2"),
	}
}

// GetUserMedia opens the device and blocks until the pipeline is playing.
//
// Errors are *camerasession.MediaError values named after the failure so the
// session can classify them.
func (d *Devices) GetUserMedia(ctx context.Context, c camerasession.Constraints) (camerasession.Stream, error) {
	if err := checkGStreamerAvailable(); err != nil {
		return nil, &camerasession.MediaError{Name: camerasession.ErrNameNotSupported, Message: err.Error(), Err: err}
	}
	if err := probeDevice(d.cfg.Device); err != nil {
		return nil, err
	}

	if c.FacingMode != "" && c.FacingMode != camerasession.FacingUser {
		d.logger.Debug().Str("facing_mode", string(c.FacingMode)).Msg("facing mode not selectable on v4l2, using configured device")
	}

	s, err := d.start(ctx, c.IdealWidth, c.IdealHeight)
	if err != nil && isNotNegotiated(err) && c.IdealWidth > 0 && c.IdealHeight > 0 {
		d.logger.Info().
			Int("ideal_width", c.IdealWidth).
			Int("ideal_height", c.IdealHeight).
			Msg("ideal size not supported by device, retrying with device default")
		s, err = d.start(ctx, 0, 0)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Devices) start(ctx context.Context, width, height int) (*stream, error) {
	elements, err := createPipeline(pipelineConfig{
		Device: d.cfg.Device,
		Width:  width,
		Height: height,
	})
	if err != nil {
		return nil, &camerasession.MediaError{Message: err.Error(), Err: err}
	}

	s := newStream(d.cfg.Device, elements, d.cfg.FrameBuffer, d.logger)

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		_ = destroyPipeline(elements)
		return nil, &camerasession.MediaError{Name: camerasession.ErrNameNotReadable, Message: err.Error(), Err: err}
	}

	if err := waitPlaying(ctx, elements, d.cfg.StartTimeout); err != nil {
		_ = destroyPipeline(elements)
		return nil, err
	}

	s.wg.Add(1)
	go s.monitor()

	d.logger.Info().
		Str("stream_id", s.id).
		Str("device", d.cfg.Device).
		Str("caps", buildSizeCaps(width, height)).
		Msg("camera pipeline playing")
	return s, nil
}

// waitPlaying polls the bus until the pipeline reaches PLAYING, reports an error,
// or the timeout expires.
func waitPlaying(ctx context.Context, elements *pipelineElements, timeout time.Duration) error {
	bus := elements.Pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return &camerasession.MediaError{Name: camerasession.ErrNameAbort, Message: err.Error(), Err: err}
		}
		if time.Now().After(deadline) {
			return &camerasession.MediaError{
				Name:    camerasession.ErrNameTrackStart,
				Message: fmt.Sprintf("pipeline did not reach PLAYING within %s", timeout),
			}
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return mediaErrorFromGst(gerr.Error(), gerr.DebugString())

		case gst.MessageEOS:
			return &camerasession.MediaError{Name: camerasession.ErrNameTrackStart, Message: "end of stream during startup"}

		case gst.MessageStateChanged:
			if msg.Source() == elements.Pipeline.GetName() {
				_, newState := msg.ParseStateChanged()
				if newState == gst.StatePlaying {
					return nil
				}
			}
		}
	}
}
