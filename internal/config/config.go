// Package config loads the selfie-kyc configuration.
//
// Precedence: environment (SELFIE_*) > YAML file > defaults. The file is
// parsed strictly: unknown keys are an error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/devilx291/social-loan-ledger-82/internal/log"
)

// Config is the full application configuration.
type Config struct {
	SubjectID string        `yaml:"subjectId"`
	Listen    string        `yaml:"listen" validate:"required,hostname_port"`
	LogLevel  string        `yaml:"logLevel" validate:"oneof=trace debug info warn error"`
	Camera    CameraConfig  `yaml:"camera"`
	Capture   CaptureConfig `yaml:"capture"`
	Gateway   GatewayConfig `yaml:"gateway"`
	Store     StoreConfig   `yaml:"store"`
	RateLimit RateLimit     `yaml:"rateLimit"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	Device       string        `yaml:"device" validate:"required"`
	IdealWidth   int           `yaml:"idealWidth" validate:"min=0,max=7680"`
	IdealHeight  int           `yaml:"idealHeight" validate:"min=0,max=4320"`
	ReadyTimeout time.Duration `yaml:"readyTimeout" validate:"gt=0"`
}

// CaptureConfig controls still encoding.
type CaptureConfig struct {
	Mirror  bool   `yaml:"mirror"`
	Format  string `yaml:"format" validate:"oneof=jpeg png"`
	Quality int    `yaml:"quality" validate:"min=1,max=100"`
}

// GatewayConfig selects the verification gateway.
type GatewayConfig struct {
	// Mode is "mock" (in-process, always verifies) or "http".
	Mode      string        `yaml:"mode" validate:"oneof=mock http"`
	URL       string        `yaml:"url" validate:"required_if=Mode http"`
	Timeout   time.Duration `yaml:"timeout" validate:"min=0"`
	MockDelay time.Duration `yaml:"mockDelay" validate:"min=0"`
}

// StoreConfig selects the profile store.
type StoreConfig struct {
	Driver  string `yaml:"driver" validate:"oneof=memory sqlite postgres"`
	Path    string `yaml:"path" validate:"required_if=Driver sqlite"`
	URL     string `yaml:"url" validate:"required_if=Driver postgres"`
	Migrate bool   `yaml:"migrate"`
}

// RateLimit bounds the HTTP surfaces per client IP. Zero Requests disables it.
type RateLimit struct {
	Requests int           `yaml:"requests" validate:"min=0"`
	Window   time.Duration `yaml:"window" validate:"min=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:   "127.0.0.1:8088",
		LogLevel: "info",
		Camera: CameraConfig{
			Device:       "/dev/video0",
			IdealWidth:   1280,
			IdealHeight:  720,
			ReadyTimeout: 3 * time.Second,
		},
		Capture: CaptureConfig{
			Mirror:  true,
			Format:  "jpeg",
			Quality: 92,
		},
		Gateway: GatewayConfig{
			Mode:    "mock",
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "selfie-kyc.db",
		},
		RateLimit: RateLimit{
			Requests: 120,
			Window:   time.Minute,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a configuration.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Gateway.URL != "" {
		if err := validate.Var(cfg.Gateway.URL, "url"); err != nil {
			return fmt.Errorf("gateway.url: %w", err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file at path
// and SELFIE_* environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	env := newEnvReader(log.WithComponent("config"))
	mergeEnv(env, &cfg)
	if len(env.errs) > 0 {
		return cfg, fmt.Errorf("invalid environment: %s", strings.Join(env.errs, "; "))
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Capture.Format = strings.ToLower(cfg.Capture.Format)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg, rejecting unknown fields.
func loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func mergeEnv(env *envReader, cfg *Config) {
	env.string("SELFIE_SUBJECT_ID", &cfg.SubjectID)
	env.string("SELFIE_LISTEN", &cfg.Listen)
	env.string("SELFIE_LOG_LEVEL", &cfg.LogLevel)

	env.string("SELFIE_CAMERA_DEVICE", &cfg.Camera.Device)
	env.int("SELFIE_CAMERA_WIDTH", &cfg.Camera.IdealWidth)
	env.int("SELFIE_CAMERA_HEIGHT", &cfg.Camera.IdealHeight)
	env.duration("SELFIE_CAMERA_READY_TIMEOUT", &cfg.Camera.ReadyTimeout)

	env.bool("SELFIE_CAPTURE_MIRROR", &cfg.Capture.Mirror)
	env.string("SELFIE_CAPTURE_FORMAT", &cfg.Capture.Format)
	env.int("SELFIE_CAPTURE_QUALITY", &cfg.Capture.Quality)

	env.string("SELFIE_GATEWAY_MODE", &cfg.Gateway.Mode)
	env.string("SELFIE_GATEWAY_URL", &cfg.Gateway.URL)
	env.duration("SELFIE_GATEWAY_TIMEOUT", &cfg.Gateway.Timeout)
	env.duration("SELFIE_GATEWAY_MOCK_DELAY", &cfg.Gateway.MockDelay)

	env.string("SELFIE_STORE_DRIVER", &cfg.Store.Driver)
	env.string("SELFIE_STORE_PATH", &cfg.Store.Path)
	env.string("SELFIE_STORE_URL", &cfg.Store.URL)
	env.bool("SELFIE_STORE_MIGRATE", &cfg.Store.Migrate)

	env.int("SELFIE_RATE_LIMIT_REQUESTS", &cfg.RateLimit.Requests)
	env.duration("SELFIE_RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)
}

// String renders the configuration for logs with the store URL masked.
func (c Config) String() string {
	masked := c
	if masked.Store.URL != "" {
		masked.Store.URL = "***"
	}
	out, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}
