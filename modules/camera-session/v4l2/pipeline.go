package v4l2

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// pipelineConfig contains configuration for GStreamer pipeline creation
type pipelineConfig struct {
	Device string
	// Width and Height are the ideal capture size; zero leaves the size to the device.
	Width  int
	Height int
}

// pipelineElements holds references to GStreamer pipeline elements needed for cleanup
type pipelineElements struct {
	Pipeline *gst.Pipeline
	AppSink  *app.Sink
	Source   *gst.Element
}

// createPipeline creates and configures a GStreamer pipeline for local camera capture
//
// Pipeline structure:
//
//	v4l2src → capsfilter(size) → videoconvert → capsfilter(RGB) → appsink
//
// There is no videoscale: the size filter asks the device for its native mode, so a
// device that cannot deliver the ideal size fails negotiation instead of being
// silently upscaled. The caller retries without a size in that case.
//
// The pipeline is configured but NOT started (state remains NULL).
func createPipeline(cfg pipelineConfig) (*pipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", cfg.Device)

	sizeFilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create size capsfilter: %w", err)
	}
	sizeFilter.SetProperty("caps", gst.NewCapsFromString(buildSizeCaps(cfg.Width, cfg.Height)))

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}

	rgbFilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create RGB capsfilter: %w", err)
	}
	rgbFilter.SetProperty("caps", gst.NewCapsFromString("video/x-raw,format=RGB"))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // No sync with clock (real-time)
	appsink.SetProperty("max-buffers", 1) // Keep only latest frame
	appsink.SetProperty("drop", true)     // Drop old frames

	if err := pipeline.AddMany(src, sizeFilter, converter, rgbFilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}

	if err := gst.ElementLinkMany(src, sizeFilter, converter, rgbFilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	return &pipelineElements{
		Pipeline: pipeline,
		AppSink:  appsink,
		Source:   src,
	}, nil
}

// destroyPipeline sets the pipeline to NULL, which closes the device.
// Safe to call on a nil or already destroyed pipeline.
func destroyPipeline(elements *pipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildSizeCaps returns the raw-video caps for the ideal size.
//
// Zero width or height yields unconstrained raw video.
func buildSizeCaps(width, height int) string {
	if width <= 0 || height <= 0 {
		return "video/x-raw"
	}
	return fmt.Sprintf("video/x-raw,width=%d,height=%d", width, height)
}

// checkGStreamerAvailable checks if GStreamer and the v4l2 plugin are available
func checkGStreamerAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("v4l2src not available (install gstreamer1.0-plugins-good): %w", err)
	}
	elem.SetState(gst.StateNull)

	return nil
}
