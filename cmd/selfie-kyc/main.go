// Command selfie-kyc runs the selfie identity verification kiosk.
//
//	selfie-kyc serve --config selfie.yaml      camera + workflow + control API
//	selfie-kyc gateway --listen :9090          mock verification gateway
//	selfie-kyc profile seed <subject> --score 50
//	selfie-kyc profile show <subject>
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/devilx291/social-loan-ledger-82/internal/config"
	"github.com/devilx291/social-loan-ledger-82/internal/log"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "selfie-kyc",
		Short:         "Selfie identity verification for the lending kiosk",
		Long:          "selfie-kyc drives the camera, captures a selfie, submits it to a verification gateway and raises the borrower's trust score on success.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (YAML)")

	cmd.AddCommand(
		newServeCmd(opts),
		newGatewayCmd(opts),
		newProfileCmd(opts),
	)
	return cmd
}

// load reads the configuration and reconfigures logging from it.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Output: os.Stderr})
	return cfg, nil
}
