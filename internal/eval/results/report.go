package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/metrics"
)

// Meta describes where an evaluation's inputs came from
type Meta struct {
	Reference         string
	Hypothesis        string
	KeyColumn         string
	ReferenceRecords  int
	HypothesisRecords int
}

// Rankings lists the fields with the highest and lowest error rates
type Rankings struct {
	HighestCER []metrics.FieldRate `json:"highest_cer" yaml:"highest_cer"`
	HighestWER []metrics.FieldRate `json:"highest_wer" yaml:"highest_wer"`
	LowestCER  []metrics.FieldRate `json:"lowest_cer" yaml:"lowest_cer"`
	LowestWER  []metrics.FieldRate `json:"lowest_wer" yaml:"lowest_wer"`
}

// Report is the complete, serializable outcome of one evaluation run
type Report struct {
	ID                string    `json:"id,omitempty" yaml:"id,omitempty"`
	CreatedAt         time.Time `json:"created_at" yaml:"created_at"`
	Reference         string    `json:"reference" yaml:"reference"`
	Hypothesis        string    `json:"hypothesis" yaml:"hypothesis"`
	KeyColumn         string    `json:"key_column" yaml:"key_column"`
	ReferenceRecords  int       `json:"reference_records" yaml:"reference_records"`
	HypothesisRecords int       `json:"hypothesis_records" yaml:"hypothesis_records"`
	AlignedRecords    int       `json:"aligned_records" yaml:"aligned_records"`
	AlignedFields     []string  `json:"aligned_fields" yaml:"aligned_fields"`

	ColumnWER  []metrics.FieldRate `json:"column_wer" yaml:"column_wer"`
	ColumnCER  []metrics.FieldRate `json:"column_cer" yaml:"column_cer"`
	OverallWER float64             `json:"overall_wer" yaml:"overall_wer"`
	OverallCER float64             `json:"overall_cer" yaml:"overall_cer"`

	// Mean per-field precision at each character-overlap threshold
	MapCER []metrics.ThresholdScore `json:"map_cer" yaml:"map_cer"`

	TopN     int      `json:"top_n" yaml:"top_n"`
	Rankings Rankings `json:"rankings" yaml:"rankings"`
}

// NewReport assembles a report from an evaluation
func NewReport(eval *metrics.Evaluation, meta Meta, topN int) *Report {
	return &Report{
		CreatedAt:         time.Now().UTC(),
		Reference:         meta.Reference,
		Hypothesis:        meta.Hypothesis,
		KeyColumn:         meta.KeyColumn,
		ReferenceRecords:  meta.ReferenceRecords,
		HypothesisRecords: meta.HypothesisRecords,
		AlignedRecords:    len(eval.Alignment.Keys),
		AlignedFields:     eval.Alignment.Fields,
		ColumnWER:         eval.ColumnWER,
		ColumnCER:         eval.ColumnCER,
		OverallWER:        eval.OverallWER,
		OverallCER:        eval.OverallCER,
		MapCER:            eval.ThresholdPrecision,
		TopN:              topN,
		Rankings: Rankings{
			HighestCER: metrics.Rank(eval.ColumnCER, topN, metrics.Descending),
			HighestWER: metrics.Rank(eval.ColumnWER, topN, metrics.Descending),
			LowestCER:  metrics.Rank(eval.ColumnCER, topN, metrics.Ascending),
			LowestWER:  metrics.Rank(eval.ColumnWER, topN, metrics.Ascending),
		},
	}
}

// PrintSummary writes a human-readable summary of the evaluation
func (r *Report) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 70))
	fmt.Fprintln(w, "TRANSCRIPTION EVALUATION SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 70))
	if r.ID != "" {
		fmt.Fprintf(w, "Run: %s\n", r.ID)
	}
	fmt.Fprintf(w, "Evaluation Date: %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Reference:  %s (%d records)\n", r.Reference, r.ReferenceRecords)
	fmt.Fprintf(w, "Hypothesis: %s (%d records)\n", r.Hypothesis, r.HypothesisRecords)
	fmt.Fprintf(w, "Aligned: %d records x %d fields (key: %s)\n", r.AlignedRecords, len(r.AlignedFields), r.KeyColumn)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "FIELD-LEVEL ERROR RATES")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	fmt.Fprintf(w, "%-40s %12s %12s\n", "Field", "WER", "CER")
	cer := make(map[string]*float64, len(r.ColumnCER))
	for _, fr := range r.ColumnCER {
		cer[fr.Field] = fr.Rate
	}
	for _, fr := range r.ColumnWER {
		fmt.Fprintf(w, "%-40s %12s %12s\n", Truncate(fr.Field, 40), FormatRate(fr.Rate), FormatRate(cer[fr.Field]))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "OVERALL")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	fmt.Fprintf(w, "Overall WER: %.2f%% (%.4f)\n", r.OverallWER*100, r.OverallWER)
	fmt.Fprintf(w, "Overall CER: %.2f%% (%.4f)\n", r.OverallCER*100, r.OverallCER)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "mAP CER (precision at overlap threshold)")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, ts := range r.MapCER {
		fmt.Fprintf(w, "  %.2f: %s\n", ts.Threshold, FormatRate(ts.Precision))
	}
	fmt.Fprintln(w)

	n := fmt.Sprint(r.TopN)
	if r.TopN < 0 {
		n = "all"
	}
	printRanking(w, fmt.Sprintf("Top %s columns by CER", n), r.Rankings.HighestCER)
	printRanking(w, fmt.Sprintf("Top %s columns by WER", n), r.Rankings.HighestWER)
	printRanking(w, fmt.Sprintf("Lowest %s columns by CER", n), r.Rankings.LowestCER)
	printRanking(w, fmt.Sprintf("Lowest %s columns by WER", n), r.Rankings.LowestWER)
	fmt.Fprintln(w, strings.Repeat("=", 70))
}

func printRanking(w io.Writer, title string, rates []metrics.FieldRate) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(rates) == 0 {
		fmt.Fprintln(w, "  (no data)")
	}
	for _, fr := range rates {
		fmt.Fprintf(w, "  %s: %s\n", fr.Field, FormatRate(fr.Rate))
	}
}

// FormatRate renders an optional rate, using "n/a" when undefined
func FormatRate(rate *float64) string {
	if rate == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *rate)
}

// WriteJSON encodes the report as indented JSON
func (r *Report) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode results to JSON: %w", err)
	}
	return nil
}

// SaveToJSON saves the report to a JSON file
func (r *Report) SaveToJSON(filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	return r.WriteJSON(file)
}

// WriteCSV writes one row per aligned field with its WER, CER and threshold precisions
func (r *Report) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"field", "wer", "cer"}
	for _, ts := range r.MapCER {
		header = append(header, fmt.Sprintf("precision@%g", ts.Threshold))
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	cer := make(map[string]*float64, len(r.ColumnCER))
	for _, fr := range r.ColumnCER {
		cer[fr.Field] = fr.Rate
	}

	for i, fr := range r.ColumnWER {
		row := []string{fr.Field, csvRate(fr.Rate), csvRate(cer[fr.Field])}
		for _, ts := range r.MapCER {
			if i < len(ts.Fields) && ts.Fields[i].Field == fr.Field {
				row = append(row, fmt.Sprintf("%.4f", ts.Fields[i].Precision))
			} else {
				row = append(row, "")
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func csvRate(rate *float64) string {
	if rate == nil {
		return ""
	}
	return fmt.Sprintf("%.4f", *rate)
}

// Truncate shortens s to at most maxLen runes, ending in "..." when cut
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
