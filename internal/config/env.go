package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// envReader reads typed environment overrides and logs where each value came from.
type envReader struct {
	logger zerolog.Logger
	errs   []string
}

func newEnvReader(logger zerolog.Logger) *envReader {
	return &envReader{logger: logger}
}

func sensitive(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "token") ||
		strings.Contains(lower, "password") ||
		strings.Contains(lower, "store_url")
}

// lookup returns a non-empty override for key.
func (r *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	ev := r.logger.Debug().Str("key", key).Str("source", "environment")
	if sensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	return v, true
}

func (r *envReader) string(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) int(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.invalid(key, v, "integer")
		return
	}
	*dst = i
}

func (r *envReader) bool(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.invalid(key, v, "boolean")
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.invalid(key, v, "duration")
		return
	}
	*dst = d
}

// invalid records a malformed override; Load fails on any of them.
func (r *envReader) invalid(key, value, want string) {
	r.logger.Warn().Str("key", key).Str("value", value).Str("expected", want).Msg("invalid environment variable")
	r.errs = append(r.errs, key+": expected "+want)
}
