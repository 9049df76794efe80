package metrics

import (
	"context"
	"fmt"

	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/dataset"
	"golang.org/x/sync/errgroup"
)

// FieldRate is the mean error rate of one field. Rate is nil when no records were aligned.
type FieldRate struct {
	Field string   `json:"field" yaml:"field"`
	Rate  *float64 `json:"rate" yaml:"rate"`
}

// FieldPrecision holds the match counts of one field at one threshold
type FieldPrecision struct {
	Field          string  `json:"field" yaml:"field"`
	TruePositives  int     `json:"true_positives" yaml:"true_positives"`
	FalsePositives int     `json:"false_positives" yaml:"false_positives"`
	FalseNegatives int     `json:"false_negatives" yaml:"false_negatives"`
	Precision      float64 `json:"precision" yaml:"precision"`
	Recall         float64 `json:"recall" yaml:"recall"`
}

// ThresholdScore is the mean per-field precision at one overlap threshold.
// Precision is nil when there were no fields to score.
type ThresholdScore struct {
	Threshold float64          `json:"threshold" yaml:"threshold"`
	Precision *float64         `json:"precision" yaml:"precision"`
	Fields    []FieldPrecision `json:"fields" yaml:"fields"`
}

// cellScore is one (field, key) comparison
type cellScore struct {
	empty bool // Both cells are the empty string
	hyp   bool // Hypothesis cell is nonempty
	ref   bool // Reference cell is nonempty
	m     Measurement
}

// fieldScores holds the per-record measurements of one aligned field, in aligned key order
type fieldScores struct {
	field string
	cells []cellScore
}

func scoreField(ref, hyp *dataset.Table, field string, keys []string, g Granularity) fieldScores {
	fs := fieldScores{field: field, cells: make([]cellScore, len(keys))}
	for i, key := range keys {
		r := ref.Cell(key, field)
		h := hyp.Cell(key, field)
		fs.cells[i] = cellScore{
			empty: r == "" && h == "",
			hyp:   h != "",
			ref:   r != "",
			m:     Measure(r, h, g),
		}
	}
	return fs
}

func scoreTables(ref, hyp *dataset.Table, a dataset.Alignment, g Granularity) []fieldScores {
	scored := make([]fieldScores, len(a.Fields))
	for i, field := range a.Fields {
		scored[i] = scoreField(ref, hyp, field, a.Keys, g)
	}
	return scored
}

// ColumnRates averages the per-record error rate of every aligned field
// (macro average: each record counts once regardless of its length).
func ColumnRates(ref, hyp *dataset.Table, g Granularity) []FieldRate {
	return columnRates(scoreTables(ref, hyp, dataset.Align(ref, hyp), g))
}

func columnRates(scored []fieldScores) []FieldRate {
	rates := make([]FieldRate, 0, len(scored))
	for _, fs := range scored {
		fr := FieldRate{Field: fs.field}
		if len(fs.cells) > 0 {
			sum := 0.0
			for _, c := range fs.cells {
				sum += c.m.Rate()
			}
			mean := sum / float64(len(fs.cells))
			fr.Rate = &mean
		}
		rates = append(rates, fr)
	}
	return rates
}

// OverallRate is the unit-weighted error rate over all aligned cells: the total
// edit distance divided by the total number of reference units (micro average).
func OverallRate(ref, hyp *dataset.Table, g Granularity) float64 {
	return overallRate(scoreTables(ref, hyp, dataset.Align(ref, hyp), g))
}

func overallRate(scored []fieldScores) float64 {
	var distance, units int
	for _, fs := range scored {
		for _, c := range fs.cells {
			distance += c.m.Distance
			units += c.m.ReferenceUnits
		}
	}
	return float64(distance) / float64(max(1, units))
}

// ThresholdPrecision classifies every aligned cell pair by its character
// overlap (1 - CER) against each threshold and reports the mean per-field
// precision. A below-threshold pair with both cells nonempty is counted as a
// false positive and as a false negative.
func ThresholdPrecision(ref, hyp *dataset.Table, thresholds []float64) []ThresholdScore {
	return thresholdPrecision(scoreTables(ref, hyp, dataset.Align(ref, hyp), Char), thresholds)
}

func thresholdPrecision(charScored []fieldScores, thresholds []float64) []ThresholdScore {
	scores := make([]ThresholdScore, 0, len(thresholds))

	for _, threshold := range thresholds {
		ts := ThresholdScore{
			Threshold: threshold,
			Fields:    make([]FieldPrecision, 0, len(charScored)),
		}

		sum := 0.0
		for _, fs := range charScored {
			fp := classifyField(fs, threshold)
			sum += fp.Precision
			ts.Fields = append(ts.Fields, fp)
		}
		if len(ts.Fields) > 0 {
			mean := sum / float64(len(ts.Fields))
			ts.Precision = &mean
		}

		scores = append(scores, ts)
	}

	return scores
}

func classifyField(fs fieldScores, threshold float64) FieldPrecision {
	fp := FieldPrecision{Field: fs.field}

	for _, c := range fs.cells {
		if c.empty {
			continue
		}

		overlap := 1 - c.m.Rate()
		if overlap >= threshold {
			fp.TruePositives++
			continue
		}
		if c.hyp {
			fp.FalsePositives++
		}
		if c.ref {
			fp.FalseNegatives++
		}
	}

	fp.Precision = ratio(fp.TruePositives, fp.TruePositives+fp.FalsePositives)
	fp.Recall = ratio(fp.TruePositives, fp.TruePositives+fp.FalseNegatives)

	return fp
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Options controls Evaluate
type Options struct {
	Thresholds  []float64
	Concurrency int // Fields scored in parallel; values below 1 mean sequential
}

// Evaluation bundles every aggregate computed over one aligned pair of tables
type Evaluation struct {
	Alignment          dataset.Alignment
	ColumnWER          []FieldRate
	ColumnCER          []FieldRate
	OverallWER         float64
	OverallCER         float64
	ThresholdPrecision []ThresholdScore
}

// Evaluate aligns the tables once and computes word and character column
// rates, overall rates and threshold precision. Fields are scored
// concurrently; the results equal those of the individual functions.
func Evaluate(ctx context.Context, ref, hyp *dataset.Table, opts Options) (*Evaluation, error) {
	alignment := dataset.Align(ref, hyp)

	words := make([]fieldScores, len(alignment.Fields))
	chars := make([]fieldScores, len(alignment.Fields))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.Concurrency))

	for i, field := range alignment.Fields {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			words[i] = scoreField(ref, hyp, field, alignment.Keys, Word)
			chars[i] = scoreField(ref, hyp, field, alignment.Keys, Char)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to score fields: %w", err)
	}

	return &Evaluation{
		Alignment:          alignment,
		ColumnWER:          columnRates(words),
		ColumnCER:          columnRates(chars),
		OverallWER:         overallRate(words),
		OverallCER:         overallRate(chars),
		ThresholdPrecision: thresholdPrecision(chars, opts.Thresholds),
	}, nil
}
