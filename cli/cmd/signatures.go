package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/netsentry/netsentry/cli/pkg/output"
	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/common/signatures"
	"github.com/netsentry/netsentry/common/storage"
)

var signaturesCmd = &cobra.Command{
	Use:     "signatures",
	Aliases: []string{"sigs"},
	Short:   "Detection signature management",
	Long:    "Seed, validate, list and toggle the signatures the gate matches events against",
}

var signaturesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List signatures known to the gate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		sigs, err := gateClient(cmd).ListSignatures(ctx)
		if err != nil {
			return fmt.Errorf("failed to list signatures: %w", err)
		}

		if wantJSON(cmd) {
			return output.JSON(sigs)
		}
		if len(sigs) == 0 {
			output.Info("No signatures found")
			return nil
		}
		renderSignatures(sigs)
		return nil
	},
}

var signaturesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a signature file",
	Long:  "Parse a JSON or YAML signature file and report the rules it defines",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		sigs, err := signatures.LoadFile(file)
		if err != nil {
			return fmt.Errorf("invalid signature file: %w", err)
		}

		if wantJSON(cmd) {
			return output.JSON(sigs)
		}
		output.Success("%s defines %d valid signatures", file, len(sigs))
		renderSignatures(sigs)
		return nil
	},
}

var signaturesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed signatures into the database",
	Long: `Insert the signatures from a file into the gate's database.

Signatures already present (matched by name, case-insensitively) are left
untouched, so seeding is safe to repeat. Without --file the built-in client
defaults are seeded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		dbURL, _ := cmd.Flags().GetString("database-url")
		migrate, _ := cmd.Flags().GetBool("migrate")

		if dbURL == "" {
			dbURL = activeProfile(cmd).DatabaseURL
		}
		if dbURL == "" {
			return fmt.Errorf("database url is required (--database-url, profile database_url or NSCTL_DATABASE_URL)")
		}

		rules := signatures.ClientDefaults()
		if file != "" {
			loaded, err := signatures.LoadFile(file)
			if err != nil {
				return fmt.Errorf("failed to load signatures: %w", err)
			}
			rules = loaded
		}

		if migrate {
			if err := storage.Migrate(dbURL); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		store, err := storage.NewPostgresStore(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()

		inserted, err := signatures.Reconcile(ctx, store, rules)
		if err != nil {
			return fmt.Errorf("failed to seed signatures: %w", err)
		}

		if len(inserted) == 0 {
			output.Info("All %d signatures already present", len(rules))
			return nil
		}
		output.Success("Seeded %d of %d signatures", len(inserted), len(rules))
		for _, name := range inserted {
			output.Info("  + %s", name)
		}
		return nil
	},
}

var signaturesActivateCmd = &cobra.Command{
	Use:   "activate [id]",
	Short: "Activate a stored signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSignatureActive(cmd, args[0], true)
	},
}

var signaturesDeactivateCmd = &cobra.Command{
	Use:   "deactivate [id]",
	Short: "Deactivate a stored signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSignatureActive(cmd, args[0], false)
	},
}

func setSignatureActive(cmd *cobra.Command, rawID string, active bool) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid signature id %q", rawID)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	sig, err := gateClient(cmd).SetSignatureActive(ctx, id, active)
	if err != nil {
		return fmt.Errorf("failed to update signature: %w", err)
	}

	if wantJSON(cmd) {
		return output.JSON(sig)
	}
	state := "deactivated"
	if sig.Active {
		state = "activated"
	}
	output.Success("Signature %s %s", sig.Name, state)
	return nil
}

func renderSignatures(sigs []models.Signature) {
	table := output.NewTable([]string{"ID", "Name", "Type", "Severity", "Active", "Patterns"})
	for _, s := range sigs {
		id := s.RuleID
		if s.ID != 0 {
			id = strconv.FormatInt(s.ID, 10)
		}
		table.AddRow([]string{
			id,
			s.Name,
			s.Type,
			s.Severity,
			strconv.FormatBool(s.Active),
			strings.Join(s.Patterns, ", "),
		})
	}
	table.Render()
}

func init() {
	rootCmd.AddCommand(signaturesCmd)
	signaturesCmd.AddCommand(signaturesListCmd)
	signaturesCmd.AddCommand(signaturesValidateCmd)
	signaturesCmd.AddCommand(signaturesSeedCmd)
	signaturesCmd.AddCommand(signaturesActivateCmd)
	signaturesCmd.AddCommand(signaturesDeactivateCmd)

	signaturesValidateCmd.Flags().StringP("file", "f", "", "Signature file (.json, .yaml or .yml)")
	if err := signaturesValidateCmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Sprintf("failed to mark file as required: %v", err))
	}

	signaturesSeedCmd.Flags().StringP("file", "f", "", "Signature file (default: built-in client defaults)")
	signaturesSeedCmd.Flags().String("database-url", "", "PostgreSQL connection string")
	signaturesSeedCmd.Flags().Bool("migrate", true, "Apply schema migrations before seeding")
}
