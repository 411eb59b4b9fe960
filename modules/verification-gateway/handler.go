package verificationgateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/devilx291/social-loan-ledger-82/internal/log"
	"github.com/devilx291/social-loan-ledger-82/internal/ratelimit"
)

// maxRequestBytes bounds an incoming request; selfies are sent inline.
const maxRequestBytes = 8 << 20

// HandlerConfig configures NewHandler.
type HandlerConfig struct {
	// RateLimit is the per-IP request budget per RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

type handler struct {
	verifier Verifier
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewHandler serves the gateway contract on top of verifier.
//
// Routes:
//
//	POST /v1/verifications  Request -> Result
//	GET  /healthz
func NewHandler(verifier Verifier, cfg HandlerConfig) http.Handler {
	h := &handler{
		verifier: verifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log.WithComponent("verification-gateway"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(ratelimit.Config{Requests: cfg.RateLimit, Window: cfg.RateWindow}))
		r.Post(VerificationsPath, h.verify)
	})
	return r
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusUnprocessableEntity, "invalid_request", verrs[0].Field()+" failed "+verrs[0].Tag())
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", err.Error())
		return
	}

	res, err := h.verifier.Verify(r.Context(), req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("subject_id", req.SubjectID).
			Msg("verifier failed")
		writeError(w, http.StatusBadGateway, "verification_unavailable", "verification could not be completed")
		return
	}

	h.logger.Info().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("subject_id", req.SubjectID).
		Bool("verified", res.Verified).
		Msg("verification served")
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
