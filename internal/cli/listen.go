package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"farm-notify/internal/domain/entity"
	ws "farm-notify/internal/infra/websocket"
	"farm-notify/internal/observability/logging"
	"farm-notify/internal/usecase/connection"
)

// ErrOffline is returned when the reconnect budget is spent.
var ErrOffline = errors.New("live channel offline")

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	URL            string
	UserID         int64
	FarmID         int64
	ConnectTimeout time.Duration
	Heartbeat      time.Duration
	ReconnectBase  time.Duration
	MaxReconnects  int
	Count          int
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}
	def := connection.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Join the live channel and print notifications",
		Long: `Open the live channel as a farm user and print every local
notification and connection state change until interrupted.

Example:
  notifyctl listen --user 42 --farm 7 --token "$(notifyctl token --role farmer --sub 42 --farm 7)"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listen(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", envOr("LIVE_URL", "ws://localhost:8080/live"), "live channel URL")
	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "user id to connect as (required)")
	cmd.Flags().Int64Var(&opts.FarmID, "farm", 0, "farm id")
	cmd.Flags().DurationVar(&opts.ConnectTimeout, "connect-timeout", def.ConnectTimeout, "dial timeout")
	cmd.Flags().DurationVar(&opts.Heartbeat, "heartbeat", def.HeartbeatInterval, "heartbeat interval")
	cmd.Flags().DurationVar(&opts.ReconnectBase, "reconnect-base", def.ReconnectBase, "first reconnect delay")
	cmd.Flags().IntVar(&opts.MaxReconnects, "max-reconnects", def.MaxReconnectAttempts, "reconnect attempts before going offline")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after this many notifications (0 = run until interrupted)")

	return cmd
}

func listen(opts *ListenOptions, cmd *cobra.Command) error {
	if opts.UserID <= 0 {
		return errors.New("--user is required")
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger := logging.New(cmd.ErrOrStderr(), level, logging.FormatText)

	cfg := connection.DefaultConfig()
	cfg.URL = opts.URL
	cfg.ConnectTimeout = opts.ConnectTimeout
	cfg.HeartbeatInterval = opts.Heartbeat
	cfg.ReconnectBase = opts.ReconnectBase
	cfg.MaxReconnectAttempts = opts.MaxReconnects

	mgr := connection.NewManager(cfg, ws.NewDialer(cfg.ConnectTimeout, 0), connection.StaticToken(opts.Token), logger)
	defer mgr.Close()

	statuses, stopStatuses := mgr.Statuses(ctx)
	defer stopStatuses()
	notes, stopNotes := mgr.Notifications(ctx)
	defer stopNotes()

	for _, t := range []entity.FrameType{entity.FramePresenceOnline, entity.FramePresenceOffline} {
		mgr.On(t, func(f entity.Frame) error {
			if p, ok := f.Payload.(entity.PresencePayload); ok && opts.Format == "text" {
				fmt.Fprintf(out, "%s user=%d farm=%d\n", f.Type, p.UserID, p.FarmID)
			}
			return nil
		})
	}

	res, err := mgr.Connect(ctx, opts.UserID, opts.FarmID)
	if err != nil {
		return err
	}
	logger.Info("connect finished", slog.String("mode", string(res.Mode)), slog.String("state", string(res.State)))
	if res.State == entity.StateDisabled {
		return errors.New("live channel disabled")
	}

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-statuses:
			if !ok {
				return nil
			}
			printStatus(out, opts.Format, st)
			if st.State == entity.StateOffline {
				return ErrOffline
			}
			if errors.Is(st.Err, entity.ErrAuth) {
				return st.Err
			}
		case n, ok := <-notes:
			if !ok {
				return nil
			}
			if err := printNotification(out, opts.Format, n); err != nil {
				return err
			}
			seen++
			if opts.Count > 0 && seen >= opts.Count {
				return nil
			}
		}
	}
}

func printStatus(w io.Writer, format string, st connection.ConnectionStatus) {
	if format == "json" {
		return
	}
	line := fmt.Sprintf("[%s] state=%s", st.At.Format(time.TimeOnly), st.State)
	if st.Attempt > 0 {
		line += fmt.Sprintf(" attempt=%d", st.Attempt)
	}
	if st.Err != nil {
		line += " error=" + st.Err.Error()
	}
	fmt.Fprintln(w, line)
}

func printNotification(w io.Writer, format string, n entity.LocalNotification) error {
	if format == "json" {
		return writeJSON(w, n)
	}
	_, err := fmt.Fprintf(w, "[%s] %s (%s): %s\n", n.Timestamp.Format(time.TimeOnly), n.Title, n.Priority, n.Message)
	return err
}
