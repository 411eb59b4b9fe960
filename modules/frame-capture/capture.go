// Package framecapture snapshots the current frame of a live video source into
// an encoded still image.
package framecapture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devilx291/social-loan-ledger-82/internal/log"
	"github.com/devilx291/social-loan-ledger-82/internal/metrics"
	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
)

// Source is a live video element.
type Source interface {
	// VideoSize returns the delivered frame size, 0x0 until a frame decoded.
	VideoSize() (width, height int)
	// CurrentFrame returns the newest decoded frame, nil before the first one.
	CurrentFrame() image.Image
}

// Surface is an offscreen drawing target.
type Surface interface {
	// Resize sizes the surface to w x h and returns its drawing context.
	Resize(w, h int) (draw.Image, error)
}

// Format selects the still image encoding.
type Format int

const (
	// JPEG is the default encoding.
	JPEG Format = iota
	// PNG is lossless.
	PNG
)

// MIMEType returns the media type of the encoding.
func (f Format) MIMEType() string {
	if f == PNG {
		return "image/png"
	}
	return "image/jpeg"
}

// DefaultQuality is the JPEG quality used unless WithQuality overrides it.
const DefaultQuality = 92

// CapturedImage is an encoded still taken from a source.
type CapturedImage struct {
	// ID identifies this capture; verification results are matched against it.
	ID string
	// DataURI is the self-describing encoded image, "data:<mime>;base64,<payload>".
	DataURI    string
	MIMEType   string
	Width      int
	Height     int
	CapturedAt time.Time
}

// Opaque reports whether the payload is not a data URI and its type is unknown.
func (c *CapturedImage) Opaque() bool { return c.MIMEType == "" }

// Bytes decodes the data URI payload. An opaque image returns its payload unchanged.
func (c *CapturedImage) Bytes() ([]byte, error) {
	if c.Opaque() {
		return []byte(c.DataURI), nil
	}
	_, payload, err := splitDataURI(c.DataURI)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(payload)
}

// FromDataURI wraps a previously stored payload, such as a profile's selfie.
//
// Dimensions are left zero: the payload is surfaced as-is, never re-encoded.
func FromDataURI(dataURI string, at time.Time) (*CapturedImage, error) {
	mime, _, err := splitDataURI(dataURI)
	if err != nil {
		return nil, err
	}
	return &CapturedImage{
		ID:         uuid.New().String(),
		DataURI:    dataURI,
		MIMEType:   mime,
		CapturedAt: at,
	}, nil
}

// OpaqueImage wraps a stored payload that is not a data URI, such as a URL or
// a legacy encoding. It is surfaced verbatim with an empty MIMEType.
func OpaqueImage(payload string, at time.Time) *CapturedImage {
	return &CapturedImage{
		ID:         uuid.New().String(),
		DataURI:    payload,
		CapturedAt: at,
	}
}

func splitDataURI(uri string) (mime, payload string, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", fmt.Errorf("not a data URI")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("data URI without payload")
	}
	mime, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", "", fmt.Errorf("data URI is not base64 encoded")
	}
	if mime == "" {
		return "", "", fmt.Errorf("data URI without media type")
	}
	return mime, payload, nil
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithMirror toggles horizontal mirroring, on by default so the still matches
// the selfie preview.
func WithMirror(mirror bool) Option {
	return func(c *Capturer) { c.mirror = mirror }
}

// WithFormat selects the encoding.
func WithFormat(f Format) Option {
	return func(c *Capturer) { c.format = f }
}

// WithQuality sets the JPEG quality, clamped to [1,100].
func WithQuality(q int) Option {
	return func(c *Capturer) {
		c.quality = min(max(q, 1), 100)
	}
}

// WithClock overrides time.Now for CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) { c.now = now }
}

// Capturer draws the current source frame onto a surface and encodes it.
//
// Capturer is stateless between calls and safe for concurrent use as long as
// callers do not share a surface.
type Capturer struct {
	mirror  bool
	format  Format
	quality int
	now     func() time.Time
	logger  zerolog.Logger
}

// NewCapturer returns a capturer encoding mirrored JPEG at DefaultQuality.
func NewCapturer(opts ...Option) *Capturer {
	c := &Capturer{
		mirror:  true,
		format:  JPEG,
		quality: DefaultQuality,
		now:     time.Now,
		logger:  log.WithComponent("frame-capture"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture snapshots the source into a still image.
//
// It fails with FrameNotReady while the source reports a zero dimension or has
// no frame, and with SurfaceUnavailable when the surface cannot be drawn on. In
// both cases no image is produced.
func (c *Capturer) Capture(src Source, surface Surface) (*CapturedImage, error) {
	const op = "capture"

	if src == nil {
		metrics.RecordCapture(kycerr.FrameNotReady.String())
		return nil, kycerr.Errorf(kycerr.FrameNotReady, op, "no source")
	}
	w, h := src.VideoSize()
	if w <= 0 || h <= 0 {
		metrics.RecordCapture(kycerr.FrameNotReady.String())
		return nil, kycerr.Errorf(kycerr.FrameNotReady, op, "source reports %dx%d", w, h)
	}
	frame := src.CurrentFrame()
	if frame == nil || frame.Bounds().Empty() {
		metrics.RecordCapture(kycerr.FrameNotReady.String())
		return nil, kycerr.Errorf(kycerr.FrameNotReady, op, "no decoded frame")
	}

	if surface == nil {
		metrics.RecordCapture(kycerr.SurfaceUnavailable.String())
		return nil, kycerr.Errorf(kycerr.SurfaceUnavailable, op, "no surface")
	}
	dst, err := surface.Resize(w, h)
	if err != nil {
		metrics.RecordCapture(kycerr.SurfaceUnavailable.String())
		return nil, kycerr.New(kycerr.SurfaceUnavailable, op, err)
	}
	if dst == nil {
		metrics.RecordCapture(kycerr.SurfaceUnavailable.String())
		return nil, kycerr.Errorf(kycerr.SurfaceUnavailable, op, "surface returned no drawing context")
	}

	drawFrame(dst, frame, c.mirror)

	var buf bytes.Buffer
	switch c.format {
	case PNG:
		err = png.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: c.quality})
	}
	if err != nil {
		metrics.RecordCapture(kycerr.SurfaceUnavailable.String())
		return nil, kycerr.New(kycerr.SurfaceUnavailable, op, fmt.Errorf("encode: %w", err))
	}

	mime := c.format.MIMEType()
	img := &CapturedImage{
		ID:         uuid.New().String(),
		DataURI:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		MIMEType:   mime,
		Width:      w,
		Height:     h,
		CapturedAt: c.now(),
	}

	metrics.RecordCapture("ok")
	c.logger.Debug().
		Str("image_id", img.ID).
		Int("width", w).
		Int("height", h).
		Str("mime", mime).
		Int("bytes", buf.Len()).
		Bool("mirrored", c.mirror).
		Msg("frame captured")
	return img, nil
}

// drawFrame copies src onto dst, scaling nearest-neighbor when the sizes differ
// and flipping horizontally when mirror is set.
func drawFrame(dst draw.Image, src image.Image, mirror bool) {
	db := dst.Bounds()
	sb := src.Bounds()

	if !mirror && db.Size() == sb.Size() {
		draw.Draw(dst, db, src, sb.Min, draw.Src)
		return
	}

	dw, dh := db.Dx(), db.Dy()
	sw, sh := sb.Dx(), sb.Dy()
	for y := 0; y < dh; y++ {
		sy := sb.Min.Y + y*sh/dh
		for x := 0; x < dw; x++ {
			tx := x
			if mirror {
				tx = dw - 1 - x
			}
			sx := sb.Min.X + x*sw/dw
			dst.Set(db.Min.X+tx, db.Min.Y+y, src.At(sx, sy))
		}
	}
}
