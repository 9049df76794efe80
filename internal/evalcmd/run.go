package evalcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lehigh-university-libraries/inventar-eval/internal/config"
	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/dataset"
	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/metrics"
	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/results"
	"github.com/lehigh-university-libraries/inventar-eval/internal/storage"
	"github.com/spf13/cobra"
)

func setupLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

// loadConfig reads the file named by the root --config flag
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func reparseThresholds(cfg *config.Config) error {
	thresholds, err := config.ParseThresholds(cfg.ThresholdsStr)
	if err != nil {
		return err
	}
	cfg.Thresholds = thresholds
	return nil
}

// tableFlags are the input flags shared by the evaluation commands
type tableFlags struct {
	reference   string
	hypothesis  string
	keyColumn   string
	missingText string
	refresh     bool
}

func (f *tableFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.reference, "reference", "", "Ground truth table: csv, tsv, jsonl or parquet (required)")
	cmd.Flags().StringVar(&f.hypothesis, "hypothesis", "", "Predicted table: csv, tsv, jsonl or parquet (required)")
	cmd.Flags().StringVar(&f.keyColumn, "key", dataset.DefaultKeyColumn, "Column identifying a record")
	cmd.Flags().StringVar(&f.missingText, "missing-text", dataset.DefaultMissingText, "Text a missing cell is compared as")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "Download remote tables again instead of using the cache")

	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("hypothesis")
}

// apply lets explicitly set flags override the config
func (f *tableFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("key") {
		cfg.KeyColumn = f.keyColumn
	}
	if cmd.Flags().Changed("missing-text") {
		cfg.MissingText = f.missingText
	}
}

func loadTables(ctx context.Context, cfg *config.Config, f tableFlags) (*dataset.Table, *dataset.Table, error) {
	download := dataset.DownloadConfig{
		CacheDir:      cfg.CacheDir,
		ForceDownload: f.refresh,
		Token:         cfg.DownloadToken,
	}
	opts := []dataset.Option{
		dataset.WithKeyColumn(cfg.KeyColumn),
		dataset.WithMissingText(cfg.MissingText),
	}

	slog.Info("Loading reference", "location", f.reference)
	loader, err := dataset.LoadOrDownload(ctx, f.reference, download, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load reference: %w", err)
	}
	ref, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load reference: %w", err)
	}

	slog.Info("Loading hypothesis", "location", f.hypothesis)
	loader, err = dataset.LoadOrDownload(ctx, f.hypothesis, download, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load hypothesis: %w", err)
	}
	hyp, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load hypothesis: %w", err)
	}

	slog.Info("Tables loaded", "reference_records", ref.Len(), "hypothesis_records", hyp.Len())
	return ref, hyp, nil
}

type runOutputs struct {
	json  string
	yaml  string
	store bool
}

func executeRun(ctx context.Context, w io.Writer, cfg *config.Config, tables tableFlags, out runOutputs) error {
	ref, hyp, err := loadTables(ctx, cfg, tables)
	if err != nil {
		return err
	}

	slog.Info("Starting evaluation run", "thresholds", cfg.Thresholds, "concurrency", cfg.Concurrency)
	eval, err := metrics.Evaluate(ctx, ref, hyp, metrics.Options{
		Thresholds:  cfg.Thresholds,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		return err
	}
	if eval.Alignment.Empty() {
		slog.Warn("No common records or fields; every rate is undefined",
			"key", cfg.KeyColumn,
			"aligned_records", len(eval.Alignment.Keys),
			"aligned_fields", len(eval.Alignment.Fields))
	}

	report := results.NewReport(eval, results.Meta{
		Reference:         tables.reference,
		Hypothesis:        tables.hypothesis,
		KeyColumn:         cfg.KeyColumn,
		ReferenceRecords:  ref.Len(),
		HypothesisRecords: hyp.Len(),
	}, cfg.TopN)

	if out.store {
		store, err := storage.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()

		if _, err := store.Save(ctx, report); err != nil {
			return err
		}
		slog.Info("Run saved", "id", report.ID, "database", cfg.DatabasePath)
	}

	report.PrintSummary(w)

	if out.json != "" {
		slog.Info("Saving results", "json", out.json)
		if err := report.SaveToJSON(out.json); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
		fmt.Fprintf(w, "\nResults saved to: %s\n", out.json)
	}
	if out.yaml != "" {
		path, err := results.SaveToYAML(report, out.yaml)
		if err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
		fmt.Fprintf(w, "YAML report saved to: %s\n", path)
	}
	if report.ID != "" {
		fmt.Fprintf(w, "\nRender this run again with:\n  inventar-eval eval report --run %s\n", report.ID)
	}

	return nil
}

func executeColumns(ctx context.Context, w io.Writer, cfg *config.Config, tables tableFlags, g metrics.Granularity) error {
	ref, hyp, err := loadTables(ctx, cfg, tables)
	if err != nil {
		return err
	}

	rates := metrics.ColumnRates(ref, hyp, g)
	fmt.Fprintf(w, "Column %s\n", g.Label())
	for _, fr := range rates {
		fmt.Fprintf(w, "  %-40s %s\n", fr.Field, results.FormatRate(fr.Rate))
	}
	if len(rates) == 0 {
		fmt.Fprintln(w, "  (no common fields)")
	}
	return nil
}

func executeOverall(ctx context.Context, w io.Writer, cfg *config.Config, tables tableFlags, g metrics.Granularity) error {
	ref, hyp, err := loadTables(ctx, cfg, tables)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Overall %s: %.4f\n", g.Label(), metrics.OverallRate(ref, hyp, g))
	return nil
}

func executeMap(ctx context.Context, w io.Writer, cfg *config.Config, tables tableFlags, detail bool) error {
	ref, hyp, err := loadTables(ctx, cfg, tables)
	if err != nil {
		return err
	}

	for _, ts := range metrics.ThresholdPrecision(ref, hyp, cfg.Thresholds) {
		fmt.Fprintf(w, "mAP CER@%.2f: %s\n", ts.Threshold, results.FormatRate(ts.Precision))
		if !detail {
			continue
		}
		for _, fp := range ts.Fields {
			fmt.Fprintf(w, "  %-40s tp=%d fp=%d fn=%d precision=%.4f recall=%.4f\n",
				fp.Field, fp.TruePositives, fp.FalsePositives, fp.FalseNegatives, fp.Precision, fp.Recall)
		}
	}
	return nil
}

func executeNoise(w io.Writer, input, output, keyColumn string, level float64, seed int64) error {
	table, err := dataset.NewLoader(input, dataset.WithKeyColumn(keyColumn)).Load()
	if err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}

	noisy := dataset.InjectNoise(table, level, seed)
	if err := noisy.SaveCSV(output); err != nil {
		return err
	}

	slog.Info("Noisy table written", "input", input, "output", output, "level", level, "seed", seed)
	fmt.Fprintf(w, "Wrote %d records to %s\n", noisy.Len(), output)
	return nil
}
