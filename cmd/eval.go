package cmd

import (
	"github.com/lehigh-university-libraries/inventar-eval/internal/evalcmd"
	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Transcription evaluation tools",
		Long: `Evaluation tools for measuring transcription accuracy against annotated tables.

Supports full evaluation reports, single aggregates (column rates, overall
rates, mAP CER), synthetic noisy tables for sanity checks, inspecting tables
and browsing stored runs.`,
	}

	// Add eval subcommands
	cmd.AddCommand(evalcmd.NewRunCmd())
	cmd.AddCommand(evalcmd.NewColumnsCmd())
	cmd.AddCommand(evalcmd.NewOverallCmd())
	cmd.AddCommand(evalcmd.NewMapCmd())
	cmd.AddCommand(evalcmd.NewNoiseCmd())
	cmd.AddCommand(evalcmd.NewInspectCmd())
	cmd.AddCommand(evalcmd.NewHistoryCmd())
	cmd.AddCommand(evalcmd.NewReportCmd())

	return cmd
}
