// Package metrics holds the Prometheus instruments of the selfie KYC core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cameraAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfie_camera_acquisitions_total",
		Help: "Camera acquisition attempts by outcome",
	}, []string{"outcome"}) // outcome=ready|<error kind>

	cameraActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "selfie_camera_active_streams",
		Help: "Camera streams currently held",
	})

	cameraReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "selfie_camera_releases_total",
		Help: "Camera streams released",
	})

	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfie_captures_total",
		Help: "Frame capture attempts by outcome",
	}, []string{"outcome"}) // outcome=ok|<capture error kind>

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfie_verifications_total",
		Help: "Verification outcomes, stale when the image was replaced meanwhile",
	}, []string{"outcome"}) // outcome=verified|rejected|transport_failure|stale

	profileSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfie_profile_saves_total",
		Help: "Profile persistence attempts after a positive verification by outcome",
	}, []string{"outcome"}) // outcome=success|failure
)

// RecordCameraAcquire counts one acquisition attempt.
func RecordCameraAcquire(outcome string) {
	cameraAcquisitions.WithLabelValues(outcome).Inc()
}

// CameraStreamOpened marks a stream as held.
func CameraStreamOpened() {
	cameraActiveStreams.Inc()
}

// CameraStreamReleased marks a held stream as released.
func CameraStreamReleased() {
	cameraActiveStreams.Dec()
	cameraReleases.Inc()
}

// RecordCapture counts one capture attempt.
func RecordCapture(outcome string) {
	capturesTotal.WithLabelValues(outcome).Inc()
}

// RecordVerification counts one verification outcome.
func RecordVerification(outcome string) {
	verificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordProfileSave counts one profile persistence attempt.
func RecordProfileSave(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	profileSavesTotal.WithLabelValues(outcome).Inc()
}
