package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"farm-notify/internal/handler/http/webhook"
)

// WebhookOptions holds flags for the webhook command.
type WebhookOptions struct {
	*RootOptions
	Secret    string
	MessageID string
	Event     string
	Status    string
	Reason    string
}

// NewWebhookCommand creates the webhook command.
func NewWebhookCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WebhookOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "webhook <provider>",
		Short: "Send a signed delivery callback",
		Long: `Send a delivery status callback as a gateway would, signed with
WEBHOOK_SIGNING_SECRET when one is given.

Example:
  notifyctl webhook sms --message-id 5d0c6f2e-... --status delivered`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendWebhook(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", os.Getenv("WEBHOOK_SIGNING_SECRET"), "HMAC signing secret")
	cmd.Flags().StringVar(&opts.MessageID, "message-id", "", "ledger message id (required)")
	cmd.Flags().StringVar(&opts.Event, "event", "delivered", "gateway event name")
	cmd.Flags().StringVar(&opts.Status, "status", "", "gateway status, defaults to the event")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "failure reason")

	return cmd
}

func sendWebhook(opts *WebhookOptions, provider string, cmd *cobra.Command) error {
	if opts.MessageID == "" {
		return errors.New("--message-id is required")
	}
	status := opts.Status
	if status == "" {
		status = opts.Event
	}
	body, err := json.Marshal(webhook.Request{
		Event:     opts.Event,
		MessageID: opts.MessageID,
		Timestamp: time.Now().UnixMilli(),
		Status:    status,
		Reason:    opts.Reason,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, opts.url("/webhooks/"+provider), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.Secret != "" {
		req.Header.Set(webhook.SignatureHeader, "sha256="+webhook.Sign([]byte(opts.Secret), body))
	}

	var resp webhook.Response
	if err := opts.do(req, &resp); err != nil {
		return err
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", resp.Outcome)
	if resp.Status != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "status:  %s\n", resp.Status)
	}
	return nil
}
