package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/devilx291/social-loan-ledger-82/internal/metrics"
)

func TestSelfieMetricsExposed(t *testing.T) {
	metrics.RecordCameraAcquire("ready")
	metrics.CameraStreamOpened()
	metrics.CameraStreamReleased()
	metrics.RecordCapture("ok")
	metrics.RecordVerification("stale")
	metrics.RecordVerification("verified")
	metrics.RecordProfileSave(false)

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, want := range []string{
		`selfie_camera_acquisitions_total{outcome="ready"}`,
		"selfie_camera_active_streams",
		"selfie_camera_releases_total",
		`selfie_captures_total{outcome="ok"}`,
		`selfie_verifications_total{outcome="stale"}`,
		`selfie_verifications_total{outcome="verified"}`,
		`selfie_profile_saves_total{outcome="failure"}`,
	} {
		require.True(t, strings.Contains(string(body), want), "missing %s", want)
	}
}
