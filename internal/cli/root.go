// Package cli implements notifyctl, the operator tool for the notifier.
package cli

import (
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Token   string
	Format  string // "json" | "text"
	Verbose bool

	// client is replaced in tests.
	client *http.Client
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the notifyctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{client: &http.Client{Timeout: 15 * time.Second}}

	cmd := &cobra.Command{
		Use:   "notifyctl",
		Short: "Operate the farm notification service",
		Long:  "Inspect the delivery ledger, replay gateway callbacks and watch the live channel.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOr("NOTIFY_SERVER", "http://localhost:8080"), "notifier base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("NOTIFY_TOKEN"), "bearer token for the API")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewWebhookCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))

	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
