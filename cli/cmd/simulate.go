package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/netsentry/netsentry/cli/internal/client"
	"github.com/netsentry/netsentry/cli/internal/simulator"
	"github.com/netsentry/netsentry/cli/pkg/output"
	"github.com/netsentry/netsentry/common/models"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Send synthetic agent traffic to the gate",
	Long: `Generate realistic agent events and post them to /api/agent/event.

A share of the events (--suspicious) carries process names and hostnames
that trip the default signatures. Rate-limited events are counted and the
run continues. Use --count 0 to run until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")
		suspicious, _ := cmd.Flags().GetFloat64("suspicious")
		seed, _ := cmd.Flags().GetInt64("seed")
		verbose, _ := cmd.Flags().GetBool("verbose")

		if suspicious < 0 || suspicious > 1 {
			return fmt.Errorf("--suspicious must be between 0 and 1")
		}
		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var onEvent func(models.AgentEvent, error)
		if verbose {
			onEvent = func(e models.AgentEvent, err error) {
				switch {
				case err == nil:
					output.Info("→ %s %s -> %s %s", e.Proto, e.Src, e.Dst, e.ProcName)
				case errors.Is(err, client.ErrRateLimited):
					output.Warn("rate limited")
				default:
					output.Error("%v", err)
				}
			}
		}

		runner := simulator.NewRunner(
			simulator.NewGenerator(seed, suspicious),
			gateClient(cmd),
			interval,
			func(err error) bool { return errors.Is(err, client.ErrRateLimited) },
			onEvent,
		)

		output.Info("Simulating agent traffic against %s (seed %d)", activeProfile(cmd).GateURL, seed)
		result, err := runner.Run(ctx, count)
		if errors.Is(err, context.Canceled) {
			err = nil
		}

		if wantJSON(cmd) {
			if jsonErr := output.JSON(result); jsonErr != nil {
				return jsonErr
			}
		} else {
			output.Success("Sent %d events", result.Sent)
			if result.RateLimited > 0 {
				output.Warn("%d events were rate limited", result.RateLimited)
			}
			if result.Failed > 0 {
				output.Warn("%d events failed", result.Failed)
			}
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().IntP("count", "n", 100, "Number of events to send, 0 runs until interrupted")
	simulateCmd.Flags().Duration("interval", 100*time.Millisecond, "Delay between events")
	simulateCmd.Flags().Float64("suspicious", 0.2, "Share of events that should trip a signature (0-1)")
	simulateCmd.Flags().Int64("seed", 0, "Random seed (default: current time)")
	simulateCmd.Flags().BoolP("verbose", "v", false, "Print every event sent")
}
