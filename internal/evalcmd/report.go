package evalcmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/results"
	"github.com/lehigh-university-libraries/inventar-eval/internal/storage"
)

func executeReport(ctx context.Context, w io.Writer, databasePath, runID, input, format string) error {
	var report *results.Report
	var err error

	if input != "" {
		report, err = results.LoadYAML(input)
	} else {
		report, err = loadRun(ctx, databasePath, runID)
	}
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	switch format {
	case "text":
		report.PrintSummary(w)
		return nil
	case "json":
		return report.WriteJSON(w)
	case "yaml":
		return report.WriteYAML(w)
	case "csv":
		return report.WriteCSV(w)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func loadRun(ctx context.Context, databasePath, runID string) (*results.Report, error) {
	store, err := storage.Open(databasePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.Get(ctx, runID)
}

func executeHistory(ctx context.Context, w io.Writer, databasePath string, limit int) error {
	store, err := storage.Open(databasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(ctx, limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No stored runs. Save one with: inventar-eval eval run --store ...")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tHYPOTHESIS\tRECORDS\tWER\tCER")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.4f\t%.4f\n",
			run.ID,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			results.Truncate(run.Hypothesis, 40),
			run.AlignedRecords,
			run.OverallWER,
			run.OverallCER)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "%d run(s)\n", len(runs))
	return nil
}
