package framecapture

import (
	"errors"
	"image"
	"image/draw"
	"sync"
)

// ErrSurfaceReleased is returned by Resize after Release.
var ErrSurfaceReleased = errors.New("surface released")

// RasterSurface is an in-memory Surface backed by an RGBA raster.
type RasterSurface struct {
	mu       sync.Mutex
	img      *image.RGBA
	released bool
}

// NewRasterSurface returns an empty surface.
func NewRasterSurface() *RasterSurface {
	return &RasterSurface{}
}

// Resize reallocates the raster when the size changes and clears it otherwise.
func (s *RasterSurface) Resize(w, h int) (draw.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, ErrSurfaceReleased
	}
	if w <= 0 || h <= 0 {
		return nil, errors.New("surface size must be positive")
	}

	if s.img == nil || s.img.Bounds().Dx() != w || s.img.Bounds().Dy() != h {
		s.img = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		clear(s.img.Pix)
	}
	return s.img, nil
}

// Release drops the raster; later Resize calls fail.
func (s *RasterSurface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.img = nil
}
