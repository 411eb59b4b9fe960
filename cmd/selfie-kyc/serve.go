package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilx291/social-loan-ledger-82/internal/api"
	"github.com/devilx291/social-loan-ledger-82/internal/config"
	"github.com/devilx291/social-loan-ledger-82/internal/log"
	"github.com/devilx291/social-loan-ledger-82/internal/ratelimit"
	camerasession "github.com/devilx291/social-loan-ledger-82/modules/camera-session"
	"github.com/devilx291/social-loan-ledger-82/modules/camera-session/v4l2"
	framecapture "github.com/devilx291/social-loan-ledger-82/modules/frame-capture"
	sw "github.com/devilx291/social-loan-ledger-82/modules/selfie-workflow"
	"github.com/devilx291/social-loan-ledger-82/modules/statusbus"
	vg "github.com/devilx291/social-loan-ledger-82/modules/verification-gateway"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the selfie workflow and its control API",
		Long: `Opens the profile store, binds the camera and serves the selfie
workflow over HTTP until interrupted. The subject is the borrower whose
profile is verified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if subject != "" {
				cfg.SubjectID = subject
			}
			if cfg.SubjectID == "" {
				return errors.New("subject id is required (--subject, subjectId or SELFIE_SUBJECT_ID)")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject id of the borrower being verified")
	return cmd
}

func newVerifier(cfg config.GatewayConfig) vg.Verifier {
	if cfg.Mode == "http" {
		return vg.NewHTTPClient(cfg.URL, vg.WithTimeout(cfg.Timeout))
	}
	return vg.NewMock(cfg.MockDelay)
}

func captureFormat(name string) framecapture.Format {
	if name == "png" {
		return framecapture.PNG
	}
	return framecapture.JPEG
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := log.WithComponent("serve")

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	defer closeStore()

	session := camerasession.NewSession(
		v4l2.New(v4l2.Config{Device: cfg.Camera.Device}),
		camerasession.WithConstraints(camerasession.Constraints{
			FacingMode:  camerasession.FacingUser,
			IdealWidth:  cfg.Camera.IdealWidth,
			IdealHeight: cfg.Camera.IdealHeight,
		}),
		camerasession.WithReadyTimeout(cfg.Camera.ReadyTimeout),
	)
	surface := framecapture.NewRasterSurface()
	defer surface.Release()

	events := statusbus.New[sw.Snapshot]()
	defer events.Close()

	wf, err := sw.New(ctx, sw.Config{
		SubjectID: cfg.SubjectID,
		Profiles:  store,
		Gateway:   newVerifier(cfg.Gateway),
		Camera:    session,
		Capturer: framecapture.NewCapturer(
			framecapture.WithMirror(cfg.Capture.Mirror),
			framecapture.WithFormat(captureFormat(cfg.Capture.Format)),
			framecapture.WithQuality(cfg.Capture.Quality),
		),
		Display: camerasession.NewVideoSink(),
		Surface: surface,
		OnChange: func(s sw.Snapshot) {
			logger.Debug().Str("state", s.State.String()).Bool("busy", s.Busy).Msg("workflow changed")
			events.Publish(s)
		},
	})
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	defer wf.Close()

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: api.New(wf, api.Config{
			RateLimit: ratelimit.Config{Requests: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window},
			Events:    events,
		}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info().
		Str("listen", cfg.Listen).
		Str("subject_id", cfg.SubjectID).
		Str("gateway", cfg.Gateway.Mode).
		Str("store", cfg.Store.Driver).
		Msg("selfie workflow serving")

	return runServer(ctx, srv)
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, srv *http.Server) error {
	logger := log.WithComponent("http")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
