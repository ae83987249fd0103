package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/netsentry/netsentry/cli/pkg/output"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Alert management",
	Long:  "List alerts held by the gate and submit new ones",
}

var alertsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the latest alert of each type",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		alerts, err := gateClient(cmd).ListAlerts(ctx)
		if err != nil {
			return fmt.Errorf("failed to list alerts: %w", err)
		}

		if wantJSON(cmd) {
			return output.JSON(alerts)
		}
		if len(alerts) == 0 {
			output.Info("No alerts found")
			return nil
		}

		table := output.NewTable([]string{"ID", "Time", "Type", "Severity", "Src", "Dst", "Ack", "Esc"})
		for _, a := range alerts {
			table.AddRow([]string{
				a.ID,
				a.Time.Format(time.RFC3339),
				a.Type,
				a.Severity,
				a.Src,
				a.Dst,
				fmt.Sprintf("%t", a.Acknowledged),
				fmt.Sprintf("%t", a.Escalated),
			})
		}
		table.Render()
		return nil
	},
}

var alertsSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submit an alert to the gate",
	Long:  "Submit an alert in the lightweight format; unset fields take the gate's defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]string{}
		for _, name := range []string{"type", "severity", "src", "dst", "description"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				payload[name] = v
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		alert, err := gateClient(cmd).SubmitAlert(ctx, payload)
		if err != nil {
			return fmt.Errorf("failed to submit alert: %w", err)
		}

		if wantJSON(cmd) {
			return output.JSON(alert)
		}
		output.Success("Alert %s created", alert.ID)
		output.Severity(alert.Severity, "%s %s: %s -> %s", alert.Severity, alert.Type, alert.Src, alert.Dst)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsSendCmd)

	alertsSendCmd.Flags().String("type", "", "Alert type (default: alert)")
	alertsSendCmd.Flags().String("severity", "", "Alert severity (default: medium)")
	alertsSendCmd.Flags().String("src", "", "Source address")
	alertsSendCmd.Flags().String("dst", "", "Destination address")
	alertsSendCmd.Flags().String("description", "", "Free-form description")
}
