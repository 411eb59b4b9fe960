// Package api exposes a selfie workflow over HTTP for kiosk front-ends.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/devilx291/social-loan-ledger-82/internal/log"
	"github.com/devilx291/social-loan-ledger-82/internal/ratelimit"
	"github.com/devilx291/social-loan-ledger-82/modules/kycerr"
	sw "github.com/devilx291/social-loan-ledger-82/modules/selfie-workflow"
	"github.com/devilx291/social-loan-ledger-82/modules/statusbus"
)

// Workflow is the command and query surface served. *selfieworkflow.Workflow implements it.
type Workflow interface {
	Snapshot() sw.Snapshot
	StartCamera(ctx context.Context) error
	StopCamera()
	CaptureSelfie() error
	SubmitForVerification(ctx context.Context) error
	RetryProfileSave(ctx context.Context) error
	Retake(ctx context.Context) error
}

// Config configures the router.
type Config struct {
	// ServiceName names the tracing spans, default "selfie-kyc".
	ServiceName string
	RateLimit   ratelimit.Config
	// Events, when set, enables GET /api/v1/selfie/events. Feed it from the
	// workflow's OnChange hook.
	Events *statusbus.Bus[sw.Snapshot]
}

// Server serves one workflow.
type Server struct {
	wf     Workflow
	cfg    Config
	logger zerolog.Logger
}

// New returns a server for wf.
func New(wf Workflow, cfg Config) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "selfie-kyc"
	}
	return &Server{wf: wf, cfg: cfg, logger: log.WithComponent("api")}
}

// Handler returns the router.
//
// Routes:
//
//	GET    /api/v1/selfie          snapshot
//	POST   /api/v1/selfie/camera   start camera (blocks until ready or failed)
//	DELETE /api/v1/selfie/camera   stop camera
//	POST   /api/v1/selfie/capture  capture still
//	POST   /api/v1/selfie/verify   submit for verification
//	POST   /api/v1/selfie/save     retry pending profile save
//	POST   /api/v1/selfie/retake   discard image and restart camera
//	GET    /api/v1/selfie/image    captured image bytes
//	GET    /api/v1/selfie/events   snapshot stream (text/event-stream)
//	GET    /metrics, /healthz
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otelHTTP(s.cfg.ServiceName))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/selfie", func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.cfg.RateLimit))
		r.Use(s.accessLog)

		r.Get("/", s.getSnapshot)
		r.Post("/camera", s.command(func(r *http.Request) error { return s.wf.StartCamera(r.Context()) }))
		r.Delete("/camera", s.command(func(*http.Request) error { s.wf.StopCamera(); return nil }))
		r.Post("/capture", s.command(func(*http.Request) error { return s.wf.CaptureSelfie() }))
		r.Post("/verify", s.command(func(r *http.Request) error { return s.wf.SubmitForVerification(detached(r)) }))
		r.Post("/save", s.command(func(r *http.Request) error { return s.wf.RetryProfileSave(detached(r)) }))
		r.Post("/retake", s.command(func(r *http.Request) error { return s.wf.Retake(r.Context()) }))
		r.Get("/image", s.getImage)
		if s.cfg.Events != nil {
			r.Get("/events", s.streamEvents)
		}
	})
	return r
}

// detached keeps the request's values and trace but not its cancellation. A
// verification or profile write, once started, completes on its own even if
// the client goes away; the gateway client bounds it with its own timeout.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// snapshotResponse is the wire form of a workflow snapshot.
type snapshotResponse struct {
	sw.Snapshot
	ImageID      string `json:"imageId,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func toResponse(snap sw.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		Snapshot:     snap,
		ErrorKind:    snap.ErrorKind(),
		ErrorMessage: snap.ErrorMessage(),
	}
	if snap.CapturedImage != nil {
		resp.ImageID = snap.CapturedImage.ID
		resp.ImageURL = "/api/v1/selfie/image"
	}
	return resp
}

type errorResponse struct {
	Error    string           `json:"error"`
	Detail   string           `json:"detail"`
	Snapshot snapshotResponse `json:"snapshot"`
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toResponse(s.wf.Snapshot()))
}

// command runs fn and answers with the resulting snapshot.
func (s *Server) command(fn func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(r)
		snap := toResponse(s.wf.Snapshot())
		if err != nil {
			code, status := errorStatus(err)
			s.logger.Info().
				Err(err).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("path", r.URL.Path).
				Int("status", status).
				Msg("command failed")
			writeJSON(w, status, errorResponse{Error: code, Detail: errorDetail(err), Snapshot: snap})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) getImage(w http.ResponseWriter, r *http.Request) {
	img := s.wf.Snapshot().CapturedImage
	if img == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no_image", "detail": "No selfie has been captured."})
		return
	}
	raw, err := img.Bytes()
	if err != nil {
		s.logger.Error().Err(err).Str("image_id", img.ID).Msg("captured image payload is corrupt")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "corrupt_image", "detail": "The captured image could not be decoded."})
		return
	}

	contentType := img.MIMEType
	if img.Opaque() {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("ETag", `"`+img.ID+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("trace_id", traceID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// errorStatus maps a workflow error to its wire code and HTTP status.
func errorStatus(err error) (string, int) {
	if errors.Is(err, sw.ErrStaleResult) {
		return "stale_result", http.StatusConflict
	}

	kind := kycerr.KindOf(err)
	switch kind {
	case kycerr.InvalidState, kycerr.Busy, kycerr.DeviceBusy, kycerr.FrameNotReady:
		return kind.String(), http.StatusConflict
	case kycerr.PermissionDenied:
		return kind.String(), http.StatusForbidden
	case kycerr.DeviceNotFound:
		return kind.String(), http.StatusNotFound
	case kycerr.ConstraintsUnsatisfiable:
		return kind.String(), http.StatusUnprocessableEntity
	case kycerr.PlatformUnsupported:
		return kind.String(), http.StatusNotImplemented
	case kycerr.PlaybackFailed, kycerr.SinkUnavailable, kycerr.CameraFailure:
		return kind.String(), http.StatusServiceUnavailable
	case kycerr.VerificationTransportFailure:
		return kind.String(), http.StatusBadGateway
	case kycerr.KindUnknown:
		return "internal", http.StatusInternalServerError
	default:
		return kind.String(), http.StatusInternalServerError
	}
}

func errorDetail(err error) string {
	if errors.Is(err, sw.ErrStaleResult) {
		return "The result arrived for a selfie that was replaced."
	}
	if msg := kycerr.Message(err); msg != "" && kycerr.KindOf(err) != kycerr.KindUnknown {
		return msg
	}
	return "Something went wrong. Please try again."
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
