package evalcmd

import (
	"fmt"

	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/metrics"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command for a full evaluation report
func NewRunCmd() *cobra.Command {
	var tables tableFlags
	var thresholds string
	var topN int
	var outputJSON string
	var outputYAML string
	var store bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a hypothesis table against a reference table",
		Long: `Compute word and character error rates per field and overall, the mean
precision at each character-overlap threshold (mAP CER), and the fields with
the highest and lowest error rates.

Records are matched by the key column; only keys and fields present in both
tables are scored.`,
		Example: `  # Evaluate PERO OCR predictions against the annotations
  inventar-eval eval run --reference dataset/annotations.csv --hypothesis dataset/predictions_pero.csv

  # Custom thresholds, top 10, save JSON and YAML and keep the run in the history
  inventar-eval eval run --reference a.csv --hypothesis b.csv --thresholds 0.5,0.8 --top 10 \
    --output-json results.json --output-yaml evals --store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verbose)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tables.apply(cmd, cfg)
			if cmd.Flags().Changed("thresholds") {
				cfg.ThresholdsStr = thresholds
				if err := reparseThresholds(cfg); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("top") {
				cfg.TopN = topN
			}

			return executeRun(cmd.Context(), cmd.OutOrStdout(), cfg, tables, runOutputs{
				json:  outputJSON,
				yaml:  outputYAML,
				store: store,
			})
		},
	}

	tables.register(cmd)
	cmd.Flags().StringVar(&thresholds, "thresholds", "0.5,0.7,0.9", "Comma separated character-overlap thresholds")
	cmd.Flags().IntVar(&topN, "top", 5, "Number of fields in each ranking (-1 for all)")
	cmd.Flags().StringVar(&outputJSON, "output-json", "", "Path to write the JSON report")
	cmd.Flags().StringVar(&outputYAML, "output-yaml", "", "Directory to write a timestamped YAML report")
	cmd.Flags().BoolVar(&store, "store", false, "Save the run to the history database")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Verbose logging")

	return cmd
}

// NewColumnsCmd creates the columns command for per-field error rates
func NewColumnsCmd() *cobra.Command {
	var tables tableFlags
	var mode string

	cmd := &cobra.Command{
		Use:     "columns",
		Short:   "Print the mean error rate of every aligned field",
		Example: `  inventar-eval eval columns --reference a.csv --hypothesis b.csv --mode cer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := metrics.ParseGranularity(mode)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tables.apply(cmd, cfg)

			return executeColumns(cmd.Context(), cmd.OutOrStdout(), cfg, tables, g)
		},
	}

	tables.register(cmd)
	cmd.Flags().StringVar(&mode, "mode", "cer", "Error rate: wer or cer")

	return cmd
}

// NewOverallCmd creates the overall command for the unit-weighted error rate
func NewOverallCmd() *cobra.Command {
	var tables tableFlags
	var mode string

	cmd := &cobra.Command{
		Use:     "overall",
		Short:   "Print the error rate over all aligned cells",
		Example: `  inventar-eval eval overall --reference a.csv --hypothesis b.csv --mode wer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := metrics.ParseGranularity(mode)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tables.apply(cmd, cfg)

			return executeOverall(cmd.Context(), cmd.OutOrStdout(), cfg, tables, g)
		},
	}

	tables.register(cmd)
	cmd.Flags().StringVar(&mode, "mode", "cer", "Error rate: wer or cer")

	return cmd
}

// NewMapCmd creates the map command for threshold precision
func NewMapCmd() *cobra.Command {
	var tables tableFlags
	var thresholds string
	var detail bool

	cmd := &cobra.Command{
		Use:     "map",
		Short:   "Print the mean per-field precision at each overlap threshold",
		Example: `  inventar-eval eval map --reference a.csv --hypothesis b.csv --thresholds 0.5,0.7,0.9 --detail`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tables.apply(cmd, cfg)
			if cmd.Flags().Changed("thresholds") {
				cfg.ThresholdsStr = thresholds
				if err := reparseThresholds(cfg); err != nil {
					return err
				}
			}

			return executeMap(cmd.Context(), cmd.OutOrStdout(), cfg, tables, detail)
		},
	}

	tables.register(cmd)
	cmd.Flags().StringVar(&thresholds, "thresholds", "0.5,0.7,0.9", "Comma separated character-overlap thresholds")
	cmd.Flags().BoolVar(&detail, "detail", false, "Print the per-field counts")

	return cmd
}

// NewNoiseCmd creates the noise command for generating corrupted hypothesis tables
func NewNoiseCmd() *cobra.Command {
	var input string
	var output string
	var level float64
	var seed int64
	var keyColumn string

	cmd := &cobra.Command{
		Use:   "noise",
		Short: "Write a copy of a table with random character substitutions",
		Long: `Replace a fraction of the characters of every cell with random lowercase
letters. The result is a synthetic hypothesis for checking that error rates
grow with the noise level. The same seed always produces the same output.`,
		Example: `  inventar-eval eval noise --input dataset/annotations.csv --output noisy.csv --level 0.1 --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if level < 0 || level > 1 {
				return fmt.Errorf("--level must be between 0 and 1, got %g", level)
			}
			return executeNoise(cmd.OutOrStdout(), input, output, keyColumn, level, seed)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Table to corrupt (required)")
	cmd.Flags().StringVar(&output, "output", "", "Path of the CSV to write (required)")
	cmd.Flags().Float64Var(&level, "level", 0.1, "Fraction of characters replaced per cell")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().StringVar(&keyColumn, "key", "filename", "Key column")

	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// NewHistoryCmd creates the history command listing stored runs
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "List evaluation runs saved with --store",
		Example: `  inventar-eval eval history --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return executeHistory(cmd.Context(), cmd.OutOrStdout(), cfg.DatabasePath, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list (0 for all)")

	return cmd
}

// NewReportCmd creates the report command for a stored run
func NewReportCmd() *cobra.Command {
	var runID string
	var input string
	var format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a stored evaluation run",
		Long: `Render an evaluation run from the history database (--run) or from a
saved YAML report (--input) as text, json, yaml or csv.`,
		Example: `  # Text summary of a stored run
  inventar-eval eval report --run 3f2c...

  # Per-field CSV of a saved YAML report
  inventar-eval eval report --input evals/predictions_pero-2025-03-01_12-00-00.yaml --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (runID == "") == (input == "") {
				return fmt.Errorf("exactly one of --run or --input is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return executeReport(cmd.Context(), cmd.OutOrStdout(), cfg.DatabasePath, runID, input, format)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "ID of a stored run")
	cmd.Flags().StringVar(&input, "input", "", "Path to a saved YAML report")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json, yaml or csv")

	return cmd
}
