package results

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/dataset"
	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/metrics"
)

func testReport(t *testing.T) *Report {
	t.Helper()

	ref := dataset.NewTable(dataset.DefaultKeyColumn, "Gegenstand", "Material", "Leer")
	hyp := dataset.NewTable(dataset.DefaultKeyColumn, "Gegenstand", "Material")
	rows := []struct {
		key            string
		ref, hyp       string
		refMat, hypMat string
	}{
		{"SCH1063.jpeg", "Brosche mit Anhänger", "Brosche mit Anhanger", "Silber", "Silber"},
		{"SCH1064.jpeg", "Ring", "Ring", "Gold, vergoldet", "Gold"},
	}
	for _, r := range rows {
		if err := ref.AddRow(r.key, map[string]string{"Gegenstand": r.ref, "Material": r.refMat}); err != nil {
			t.Fatalf("AddRow failed: %v", err)
		}
		if err := hyp.AddRow(r.key, map[string]string{"Gegenstand": r.hyp, "Material": r.hypMat}); err != nil {
			t.Fatalf("AddRow failed: %v", err)
		}
	}

	eval, err := metrics.Evaluate(context.Background(), ref, hyp, metrics.Options{Thresholds: []float64{0.5, 0.9}})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	return NewReport(eval, Meta{
		Reference:         "dataset/annotations.csv",
		Hypothesis:        "dataset/predictions_pero.csv",
		KeyColumn:         dataset.DefaultKeyColumn,
		ReferenceRecords:  ref.Len(),
		HypothesisRecords: hyp.Len(),
	}, 1)
}

func TestNewReport(t *testing.T) {
	report := testReport(t)

	if report.AlignedRecords != 2 {
		t.Errorf("Expected 2 aligned records, got %d", report.AlignedRecords)
	}
	if len(report.AlignedFields) != 2 {
		t.Errorf("Expected 2 aligned fields, got %v", report.AlignedFields)
	}
	if len(report.MapCER) != 2 {
		t.Errorf("Expected 2 threshold scores, got %d", len(report.MapCER))
	}
	if len(report.Rankings.HighestCER) != 1 || report.Rankings.HighestCER[0].Field != "Material" {
		t.Errorf("Expected Material to have the highest CER, got %+v", report.Rankings.HighestCER)
	}
	if len(report.Rankings.LowestCER) != 1 || report.Rankings.LowestCER[0].Field != "Gegenstand" {
		t.Errorf("Expected Gegenstand to have the lowest CER, got %+v", report.Rankings.LowestCER)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	testReport(t).PrintSummary(&buf)
	out := buf.String()

	for _, want := range []string{
		"TRANSCRIPTION EVALUATION SUMMARY",
		"Aligned: 2 records x 2 fields (key: filename)",
		"Gegenstand",
		"Overall CER:",
		"mAP CER",
		"Top 1 columns by CER:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary missing %q:\n%s", want, out)
		}
	}
}

func TestFormatRate(t *testing.T) {
	v := 0.25
	if got := FormatRate(&v); got != "0.2500" {
		t.Errorf("FormatRate(0.25) = %s", got)
	}
	if got := FormatRate(nil); got != "n/a" {
		t.Errorf("FormatRate(nil) = %s", got)
	}
}

func TestSaveToJSON(t *testing.T) {
	jsonPath := filepath.Join(t.TempDir(), "results.json")

	if err := testReport(t).SaveToJSON(jsonPath); err != nil {
		t.Fatalf("SaveToJSON failed: %v", err)
	}

	content, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("Failed to read JSON file: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	for _, key := range []string{"column_wer", "column_cer", "overall_wer", "overall_cer", "map_cer", "rankings"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON missing key %q", key)
		}
	}
}

func TestUndefinedRateIsNull(t *testing.T) {
	report := &Report{ColumnWER: []metrics.FieldRate{{Field: "f"}}}

	var buf bytes.Buffer
	if err := report.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"rate": null`) {
		t.Errorf("Expected an undefined rate to encode as null:\n%s", buf.String())
	}
}

func TestSaveToYAMLRoundTrip(t *testing.T) {
	report := testReport(t)
	dir := filepath.Join(t.TempDir(), "evals")

	path, err := SaveToYAML(report, dir)
	if err != nil {
		t.Fatalf("SaveToYAML failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "predictions_pero-") {
		t.Errorf("Unexpected file name %s", path)
	}

	loaded, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML failed: %v", err)
	}
	if loaded.OverallCER != report.OverallCER || loaded.OverallWER != report.OverallWER {
		t.Errorf("Overall rates changed in round trip: %v/%v vs %v/%v",
			loaded.OverallWER, loaded.OverallCER, report.OverallWER, report.OverallCER)
	}
	if len(loaded.ColumnCER) != len(report.ColumnCER) {
		t.Errorf("Expected %d column rates, got %d", len(report.ColumnCER), len(loaded.ColumnCER))
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := testReport(t).WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Invalid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "field,wer,cer,precision@0.5,precision@0.9" {
		t.Errorf("Unexpected header %v", records[0])
	}
	if records[1][0] != "Gegenstand" {
		t.Errorf("Expected first row Gegenstand, got %v", records[1])
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"short", "Material", 40, "Material"},
		{"ascii", "abcdefghij", 8, "abcde..."},
		{"umlaut at cut", "Größenangabe", 6, "Grö..."},
		{"exact length", "Gewicht", 7, "Gewicht"},
		{"tiny limit", "Gegenstand", 2, "Ge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.input, tt.maxLen)
			if got != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Truncate(%q, %d) returned invalid UTF-8", tt.input, tt.maxLen)
			}
		})
	}
}
