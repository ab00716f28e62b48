package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"farm-notify/internal/handler/http/auth"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Secret  string
	Subject string
	Role    string
	FarmID  int64
	TTL     time.Duration
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT",
		Long: `Mint an HS256 token signed with the notifier's JWT_SECRET.

Example:
  notifyctl token --role farmer --sub 42 --farm 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mintToken(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", os.Getenv("JWT_SECRET"), "signing secret")
	cmd.Flags().StringVar(&opts.Subject, "sub", "notifyctl", "token subject (numeric user id for farmers)")
	cmd.Flags().StringVar(&opts.Role, "role", auth.RoleAdmin, "role: admin, service, viewer or farmer")
	cmd.Flags().Int64Var(&opts.FarmID, "farm", 0, "farm id claim")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "token lifetime")

	return cmd
}

func mintToken(opts *TokenOptions, cmd *cobra.Command) error {
	if err := auth.ValidateSecret(opts.Secret); err != nil {
		return err
	}
	token, err := auth.IssueToken([]byte(opts.Secret), auth.Claims{
		Subject: opts.Subject,
		Role:    opts.Role,
		FarmID:  opts.FarmID,
	}, opts.TTL, time.Now())
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"token": token})
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
