package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 3*time.Second, cfg.Camera.ReadyTimeout)
	assert.Equal(t, 92, cfg.Capture.Quality)
	assert.True(t, cfg.Capture.Mirror)
	assert.Equal(t, "mock", cfg.Gateway.Mode)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "selfie.yaml", `
subjectId: user-7
listen: 0.0.0.0:9000
camera:
  device: /dev/video2
  readyTimeout: 5s
capture:
  format: png
gateway:
  mode: http
  url: https://kyc.example.com
store:
  driver: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "user-7", cfg.SubjectID)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "/dev/video2", cfg.Camera.Device)
	assert.Equal(t, 5*time.Second, cfg.Camera.ReadyTimeout)
	assert.Equal(t, 1280, cfg.Camera.IdealWidth, "unset keys keep defaults")
	assert.Equal(t, "png", cfg.Capture.Format)
	assert.Equal(t, "http", cfg.Gateway.Mode)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "selfie.yml", "subjectId: from-file\n")
	t.Setenv("SELFIE_SUBJECT_ID", "from-env")
	t.Setenv("SELFIE_CAMERA_READY_TIMEOUT", "1500ms")
	t.Setenv("SELFIE_CAPTURE_MIRROR", "false")
	t.Setenv("SELFIE_CAPTURE_QUALITY", "80")
	t.Setenv("SELFIE_LOG_LEVEL", "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.SubjectID)
	assert.Equal(t, 1500*time.Millisecond, cfg.Camera.ReadyTimeout)
	assert.False(t, cfg.Capture.Mirror)
	assert.Equal(t, 80, cfg.Capture.Quality)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "unknown key", file: "camera:\n  lens: wide\n"},
		{name: "two documents", file: "listen: a:1\n---\nlisten: b:2\n"},
		{name: "http without url", file: "gateway:\n  mode: http\n"},
		{name: "bad url", file: "gateway:\n  mode: http\n  url: not a url\n"},
		{name: "postgres without url", file: "store:\n  driver: postgres\n"},
		{name: "bad format", file: "capture:\n  format: gif\n"},
		{name: "bad quality", file: "capture:\n  quality: 101\n"},
		{name: "bad env int", env: map[string]string{"SELFIE_CAPTURE_QUALITY": "high"}},
		{name: "bad env duration", env: map[string]string{"SELFIE_CAMERA_READY_TIMEOUT": "soon"}},
		{name: "zero ready timeout", env: map[string]string{"SELFIE_CAMERA_READY_TIMEOUT": "0s"}},
		{name: "bad listen", env: map[string]string{"SELFIE_LISTEN": "nowhere"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, "c.yaml", tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsNonYAML(t *testing.T) {
	_, err := Load(writeFile(t, "c.json", "{}"))
	assert.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "c.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestStringMasksStoreURL(t *testing.T) {
	cfg := Default()
	cfg.Store.URL = "postgres://kyc:secret@db/kyc"
	out := cfg.String()
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "***")
}
