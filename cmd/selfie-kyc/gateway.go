package main

import (
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilx291/social-loan-ledger-82/internal/log"
	vg "github.com/devilx291/social-loan-ledger-82/modules/verification-gateway"
)

func newGatewayCmd(opts *rootOptions) *cobra.Command {
	var (
		listen string
		delay  time.Duration
		reject string
	)
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Serve a mock verification gateway",
		Long: `Serves POST /v1/verifications with the in-process mock verifier, so a
kiosk configured with gateway.mode=http can be exercised end to end. By
default every request is verified; --reject answers every request with the
given rejection message instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("delay") {
				delay = cfg.Gateway.MockDelay
			}

			mock := vg.NewMock(delay)
			if reject != "" {
				mock.Decide = vg.Reject(reject)
			}

			srv := &http.Server{
				Addr: listen,
				Handler: vg.NewHandler(mock, vg.HandlerConfig{
					RateLimit:  cfg.RateLimit.Requests,
					RateWindow: cfg.RateLimit.Window,
				}),
				ReadHeaderTimeout: 5 * time.Second,
			}

			log.WithComponent("gateway").Info().
				Str("listen", listen).
				Dur("delay", delay).
				Bool("rejecting", reject != "").
				Msg("mock verification gateway serving")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, srv)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:9090", "listen address")
	cmd.Flags().DurationVar(&delay, "delay", 0, "simulated decision latency (default gateway.mockDelay)")
	cmd.Flags().StringVar(&reject, "reject", "", "reject every request with this message")
	return cmd
}
