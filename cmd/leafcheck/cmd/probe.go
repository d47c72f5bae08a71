package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/connectivity"
	"github.com/spf13/cobra"
)

// probeCmd checks whether the prediction service is worth trying.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check network connectivity",
	Long: `Run the connectivity probe used before every online analysis and
report whether the network is reachable.

Examples:
  leafcheck probe
  leafcheck probe --retries 0 --timeout 1s`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		pc := cfg.ToConnectivityConfig()

		if cmd.Flags().Changed("retries") {
			pc.MaxRetries, _ = cmd.Flags().GetInt("retries")
		}
		if cmd.Flags().Changed("timeout") {
			pc.AttemptTimeout, _ = cmd.Flags().GetDuration("timeout")
		}
		if err := pc.Validate(); err != nil {
			return fmt.Errorf("invalid probe settings: %w", err)
		}

		prober := connectivity.New(pc, connectivity.WithLogger(slog.Default()))
		start := time.Now()
		ok := prober.Probe(cmd.Context(), pc.MaxRetries, pc.AttemptTimeout)

		status := "unreachable"
		if ok {
			status = "reachable"
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", status, time.Since(start).Round(time.Millisecond))
		return err
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().Int("retries", 0, "retries after the first attempt (default from config)")
	probeCmd.Flags().Duration("timeout", 0, "per-attempt timeout (default from config)")
}
