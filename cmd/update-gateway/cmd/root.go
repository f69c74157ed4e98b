package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/update-gateway/internal/service/gateway"
	"github.com/oshokin/update-gateway/internal/version"
)

// rootCmd represents the base command for running the update gateway.
//
//nolint:gochecknoglobals // Required by Cobra CLI framework architecture.
var rootCmd = &cobra.Command{
	Use:   "update-gateway [listen-address]",
	Short: "Serve update manifests and proxy release downloads.",
	Long: `Starts the update gateway that fronts a release repository and
re-publishes its artifacts for auto-update clients.

Configuration comes from the environment: set ACCOUNT and REPOSITORY (or
REPO in owner/repo form), and optionally TOKEN for private repositories,
URL for externally visible links, and NOPROXY to serve direct CDN links.
The listen address can be provided as an argument to override the PORT
variable (e.g. :8080, 0.0.0.0:4000).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		// Use listen address argument if provided, otherwise rely on config.
		var listenAddress string
		if len(args) > 0 {
			listenAddress = args[0]
		}

		options := &gateway.Options{
			ListenAddress: listenAddress,
		}

		return gateway.Run(ctx, options)
	},
}

// Execute runs the update-gateway CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
