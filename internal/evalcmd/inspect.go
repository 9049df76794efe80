package evalcmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/dataset"
	"github.com/spf13/cobra"
)

// NewInspectCmd creates the inspect command
func NewInspectCmd() *cobra.Command {
	var datasetPath string
	var keyColumn string
	var limit int
	var interactive bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect table records as the evaluator sees them",
		Long: `Inspect records from a csv, tsv, jsonl or parquet table.

Cells are shown after loading, so missing values appear as the missing text
they will be compared as.`,
		Example: `  # Inspect first 5 records interactively
  inventar-eval eval inspect --dataset dataset/annotations.csv --limit 5 --interactive

  # Inspect all records (no limit)
  inventar-eval eval inspect --dataset predictions.parquet --limit 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if datasetPath == "" {
				return fmt.Errorf("--dataset is required")
			}

			// Create a context that gets canceled on an interrupt signal (Ctrl+C)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return executeInspect(ctx, cmd.OutOrStdout(), os.Stdin, datasetPath, keyColumn, limit, interactive)
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "Path to a csv, tsv, jsonl or parquet table (required)")
	cmd.Flags().StringVar(&keyColumn, "key", dataset.DefaultKeyColumn, "Column identifying a record")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of records to inspect (0 for all)")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Pause after each record (press Enter to continue)")

	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

func executeInspect(ctx context.Context, w io.Writer, in io.Reader, datasetPath, keyColumn string, limit int, interactive bool) error {
	table, err := dataset.NewLoader(datasetPath, dataset.WithKeyColumn(keyColumn)).Load()
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	keys := table.Keys
	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
	}

	fmt.Fprintf(w, "Loaded %d records from %s\n", table.Len(), datasetPath)
	fmt.Fprintf(w, "Key column: %s\n", table.Key)
	fmt.Fprintf(w, "Fields (%d): %s\n", len(table.Fields), strings.Join(table.Fields, ", "))
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w)

	width := 0
	for _, field := range table.Fields {
		width = max(width, len(field))
	}

	reader := bufio.NewReader(in)

	for i, key := range keys {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w, "\nInspection interrupted.")
			return nil
		default:
		}

		fmt.Fprintf(w, "RECORD %d/%d: %s\n", i+1, len(keys), key)
		fmt.Fprintln(w, strings.Repeat("-", 80))
		for _, field := range table.Fields {
			value := table.Cell(key, field)
			fmt.Fprintf(w, "%-*s  %s\n", width, field, value)
		}
		fmt.Fprintln(w)

		if interactive {
			fmt.Fprint(w, "Press Enter to continue to next record (or Ctrl+C to quit)...")

			inputCh := make(chan struct{})
			go func() {
				_, _ = reader.ReadString('\n')
				close(inputCh)
			}()

			select {
			case <-ctx.Done():
				fmt.Fprintln(w, "\nInspection interrupted.")
				return nil
			case <-inputCh:
				fmt.Fprintln(w)
			}
		}
	}

	return nil
}
