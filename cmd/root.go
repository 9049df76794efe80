package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventar-eval",
		Short: "Error-rate evaluation for inventory card transcriptions",
		Long: `inventar-eval compares predicted inventory card transcriptions against
ground truth annotations.

It reports word and character error rates per field and overall, the mean
precision at character-overlap thresholds, and the best and worst fields, from
the command line or over HTTP.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().String("config", "config.yaml", "Path to a YAML config file (optional)")

	// Add subcommands
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}
