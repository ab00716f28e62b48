package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"farm-notify/internal/domain/entity"
	"farm-notify/internal/handler/http/delivery"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show delivery ledger counts per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, rootOpts.url("/deliveries/stats"), nil)
			if err != nil {
				return err
			}
			var stats delivery.StatsResponse
			if err := rootOpts.do(req, &stats); err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			out := cmd.OutOrStdout()
			for _, s := range entity.Statuses {
				fmt.Fprintf(out, "%-11s %d\n", s, stats.Counts[s])
			}
			fmt.Fprintf(out, "%-11s %d\n", "total", stats.Total)
			return nil
		},
	}
}
