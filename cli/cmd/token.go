package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/netsentry/netsentry/cli/pkg/output"
	"github.com/netsentry/netsentry/common/tokens"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Agent token management",
	Long:  "Mint signed tokens that agents present to the gate",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an agent token",
	Long: `Create a signed agent token with the gate's shared JWT secret.

The secret comes from --secret, the profile's jwt_secret or NSCTL_JWT_SECRET.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, _ := cmd.Flags().GetString("agent")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		secret, _ := cmd.Flags().GetString("secret")
		save, _ := cmd.Flags().GetBool("save")

		p := activeProfile(cmd)
		if secret == "" {
			secret = p.JWTSecret
		}
		if secret == "" {
			return fmt.Errorf("jwt secret is required (--secret, profile jwt_secret or NSCTL_JWT_SECRET)")
		}

		token, err := tokens.NewTokenGenerator(secret).GenerateAgentToken(agent, ttl)
		if err != nil {
			return fmt.Errorf("failed to create token: %w", err)
		}

		if save {
			profile, _ := cmd.Flags().GetString("profile")
			if err := cfg.SaveToken(profile, token); err != nil {
				output.Warn("Failed to save token to profile: %v", err)
			} else {
				output.Info("Token saved to profile")
			}
		}

		if wantJSON(cmd) {
			out := map[string]string{"agent": agent, "token": token}
			if ttl > 0 {
				out["expires"] = time.Now().Add(ttl).UTC().Format(time.RFC3339)
			}
			return output.JSON(out)
		}

		output.Success("Agent token created for %s", agent)
		fmt.Fprintln(output.Out, token)
		if ttl > 0 {
			output.Info("Expires: %s", time.Now().Add(ttl).UTC().Format(time.RFC3339))
		}
		output.Info("Use it with: curl -H 'Authorization: Bearer <token>' %s/api/agent/event", p.GateURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenCreateCmd)

	tokenCreateCmd.Flags().StringP("agent", "a", "", "Agent identity embedded in the token")
	tokenCreateCmd.Flags().Duration("ttl", 0, "Token lifetime (e.g. 720h), 0 never expires")
	tokenCreateCmd.Flags().String("secret", "", "Shared JWT secret")
	tokenCreateCmd.Flags().Bool("save", false, "Save the token on the current profile")
	if err := tokenCreateCmd.MarkFlagRequired("agent"); err != nil {
		panic(fmt.Sprintf("failed to mark agent as required: %v", err))
	}
}
