package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/netsentry/netsentry/cli/internal/watcher"
	"github.com/netsentry/netsentry/cli/pkg/output"
	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/common/signatures"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the gate's live channel",
	Long: `Subscribe to the gate's websocket channel and print packets and alerts.

Every packet frame is also matched locally against the built-in client
signatures (or --rules), so attribution such as browser launches or
site visits shows up even when the gate's rule set is narrower.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rulesFile, _ := cmd.Flags().GetString("rules")
		hitsOnly, _ := cmd.Flags().GetBool("hits-only")

		rules := signatures.ClientDefaults()
		if rulesFile != "" {
			loaded, err := signatures.LoadFile(rulesFile)
			if err != nil {
				return fmt.Errorf("failed to load rules: %w", err)
			}
			rules = loaded
		}

		p := activeProfile(cmd)
		w, err := watcher.New(p.GateURL, p.Token, rules)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		output.Info("Watching %s (Ctrl-C to stop)", p.GateURL)
		err = w.Run(ctx, &printHandler{json: wantJSON(cmd), hitsOnly: hitsOnly})
		if errors.Is(err, watcher.ErrRejected) {
			return fmt.Errorf("gate rejected the subscription, check the token: %w", err)
		}
		return err
	},
}

// printHandler writes frames to the terminal.
type printHandler struct {
	json     bool
	hitsOnly bool
}

func (h *printHandler) Packet(e models.Event, hits []signatures.Hit) {
	if h.hitsOnly && len(hits) == 0 {
		return
	}
	if h.json {
		_ = output.JSON(map[string]any{"type": "packet", "event": e, "hits": hitNames(hits)})
		return
	}

	line := fmt.Sprintf("%s %-4s %s -> %s", e.Time.Format("15:04:05"), e.Proto, e.Src, e.Dst)
	if e.ProcName != "" {
		line += " [" + e.ProcName + "]"
	}
	if len(hits) == 0 {
		fmt.Fprintln(output.Out, line)
		return
	}
	output.Severity(hits[0].Signature.Severity, "%s  ⚑ %s", line, strings.Join(hitNames(hits), ", "))
}

func (h *printHandler) Alert(a models.Alert) {
	if h.json {
		_ = output.JSON(map[string]any{"type": "alert", "alert": a})
		return
	}
	output.Severity(a.Severity, "ALERT %-8s %s %s -> %s %s", strings.ToUpper(a.Severity), a.Type, a.Src, a.Dst, a.Description)
}

func (h *printHandler) Heartbeat(string) {}

func hitNames(hits []signatures.Hit) []string {
	names := make([]string, 0, len(hits))
	for _, hit := range hits {
		names = append(names, fmt.Sprintf("%s (%s)", hit.Signature.Name, hit.Kind))
	}
	return names
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("rules", "", "Signature file used for local matching (default: built-in client defaults)")
	watchCmd.Flags().Bool("hits-only", false, "Only print packets that matched a signature")
}
