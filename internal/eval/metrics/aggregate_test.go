package metrics

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/dataset"
)

// table builds a keyed table with rows given in key order
func table(t *testing.T, fields []string, rows ...[]string) *dataset.Table {
	t.Helper()
	tbl := dataset.NewTable(dataset.DefaultKeyColumn, fields...)
	for _, row := range rows {
		values := make(map[string]string, len(fields))
		for i, field := range fields {
			values[field] = row[i+1]
		}
		if err := tbl.AddRow(row[0], values); err != nil {
			t.Fatalf("AddRow failed: %v", err)
		}
	}
	return tbl
}

func helloTables(t *testing.T) (*dataset.Table, *dataset.Table) {
	ref := table(t, []string{"f"},
		[]string{"A", "hello world"},
		[]string{"B", "foo"},
	)
	hyp := table(t, []string{"f"},
		[]string{"A", "hello word"},
		[]string{"B", "foo"},
	)
	return ref, hyp
}

func rateOf(t *testing.T, rates []FieldRate, field string) *float64 {
	t.Helper()
	for _, fr := range rates {
		if fr.Field == field {
			return fr.Rate
		}
	}
	t.Fatalf("field %s not in %v", field, rates)
	return nil
}

func TestColumnRatesMacroAverage(t *testing.T) {
	ref, hyp := helloTables(t)

	rates := ColumnRates(ref, hyp, Word)
	if len(rates) != 1 {
		t.Fatalf("Expected 1 field, got %d", len(rates))
	}

	got := rateOf(t, rates, "f")
	if got == nil || !almostEqual(*got, 0.25) {
		t.Errorf("Expected WER(f)=0.25, got %v", got)
	}
}

func TestColumnRatesOnlyCommonFields(t *testing.T) {
	ref := table(t, []string{"a", "b", "ref_only"}, []string{"k", "x", "y", "z"})
	hyp := table(t, []string{"hyp_only", "b", "a"}, []string{"k", "z", "y", "x"})

	rates := ColumnRates(ref, hyp, Char)

	var fields []string
	for _, fr := range rates {
		fields = append(fields, fr.Field)
	}
	if !reflect.DeepEqual(fields, []string{"a", "b"}) {
		t.Errorf("Expected fields [a b], got %v", fields)
	}
}

func TestColumnRatesNoCommonKeys(t *testing.T) {
	ref := table(t, []string{"f"}, []string{"A", "x"})
	hyp := table(t, []string{"f"}, []string{"B", "x"})

	rates := ColumnRates(ref, hyp, Word)
	if len(rates) != 1 {
		t.Fatalf("Expected the common field to be reported, got %v", rates)
	}
	if rates[0].Rate != nil {
		t.Errorf("Expected undefined rate, got %v", *rates[0].Rate)
	}
}

func TestColumnRatesMissingSentinel(t *testing.T) {
	ref := dataset.NewTable(dataset.DefaultKeyColumn, "f")
	hyp := dataset.NewTable(dataset.DefaultKeyColumn, "f")
	_ = ref.AddRow("A", nil)
	_ = hyp.AddRow("A", map[string]string{"f": "nan"})

	got := rateOf(t, ColumnRates(ref, hyp, Char), "f")
	if got == nil || *got != 0 {
		t.Errorf("Expected a missing cell to compare equal to its sentinel text, got %v", got)
	}
}

func TestOverallRateMicroAverage(t *testing.T) {
	ref, hyp := helloTables(t)

	// "hello world" -> "hello word" is one deletion; "foo" matches.
	// 1 edit over 11 + 3 reference characters.
	if got := OverallRate(ref, hyp, Char); !almostEqual(got, 1.0/14) {
		t.Errorf("Expected overall CER 1/14, got %v", got)
	}

	// One word edit over 2 + 1 reference words, not the mean of 0.5 and 0.
	if got := OverallRate(ref, hyp, Word); !almostEqual(got, 1.0/3) {
		t.Errorf("Expected overall WER 1/3, got %v", got)
	}
}

func TestOverallRateNoData(t *testing.T) {
	ref := table(t, []string{"f"}, []string{"A", "x"})
	hyp := table(t, []string{"g"}, []string{"A", "x"})

	if got := OverallRate(ref, hyp, Char); got != 0 {
		t.Errorf("Expected 0 without aligned data, got %v", got)
	}
}

func TestOverallRateRawReferenceUnits(t *testing.T) {
	// An empty reference adds no units, its edits still count.
	ref := table(t, []string{"f"}, []string{"A", ""}, []string{"B", "abcd"})
	hyp := table(t, []string{"f"}, []string{"A", "xy"}, []string{"B", "abcd"})

	if got := OverallRate(ref, hyp, Char); !almostEqual(got, 2.0/4) {
		t.Errorf("Expected 2/4, got %v", got)
	}
}

func TestThresholdPrecision(t *testing.T) {
	ref := table(t, []string{"f"}, []string{"A", "abc"}, []string{"B", "abc"})
	hyp := table(t, []string{"f"}, []string{"A", "abc"}, []string{"B", "xyz"})

	scores := ThresholdPrecision(ref, hyp, []float64{0.5})
	if len(scores) != 1 {
		t.Fatalf("Expected 1 threshold score, got %d", len(scores))
	}

	ts := scores[0]
	if ts.Precision == nil || !almostEqual(*ts.Precision, 0.5) {
		t.Fatalf("Expected precision 0.5, got %v", ts.Precision)
	}

	fp := ts.Fields[0]
	if fp.TruePositives != 1 || fp.FalsePositives != 1 || fp.FalseNegatives != 1 {
		t.Errorf("Expected TP=1 FP=1 FN=1, got %+v", fp)
	}
	if !almostEqual(fp.Recall, 0.5) {
		t.Errorf("Expected recall 0.5, got %v", fp.Recall)
	}
}

func TestThresholdPrecisionClassification(t *testing.T) {
	tests := []struct {
		name     string
		ref, hyp string
		tp, fp   int
		fn       int
	}{
		{"both empty is ignored", "", "", 0, 0, 0},
		{"match", "Brosche", "Brosche", 1, 0, 0},
		{"empty hypothesis", "Brosche", "", 0, 0, 1},
		{"empty reference", "", "Brosche", 0, 1, 0},
		{"wrong text counts twice", "Brosche", "Ring", 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := table(t, []string{"f"}, []string{"A", tt.ref})
			hyp := table(t, []string{"f"}, []string{"A", tt.hyp})

			fp := ThresholdPrecision(ref, hyp, []float64{0.5})[0].Fields[0]
			if fp.TruePositives != tt.tp || fp.FalsePositives != tt.fp || fp.FalseNegatives != tt.fn {
				t.Errorf("Expected TP=%d FP=%d FN=%d, got %+v", tt.tp, tt.fp, tt.fn, fp)
			}
		})
	}
}

func TestThresholdPrecisionOutOfRange(t *testing.T) {
	ref := table(t, []string{"f"}, []string{"A", "abc"}, []string{"B", "abc"})
	hyp := table(t, []string{"f"}, []string{"A", "abd"}, []string{"B", "xyzxyzxyz"})

	scores := ThresholdPrecision(ref, hyp, []float64{1.5, -10})

	if *scores[0].Precision != 0 {
		t.Errorf("Expected precision 0 above the overlap range, got %v", *scores[0].Precision)
	}
	if *scores[1].Precision != 1 {
		t.Errorf("Expected precision 1 below the overlap range, got %v", *scores[1].Precision)
	}
}

func TestThresholdPrecisionMonotonic(t *testing.T) {
	ref := table(t, []string{"Gegenstand", "Material"},
		[]string{"a", "Brosche mit Anhänger", "Silber"},
		[]string{"b", "Ring", "Gold"},
		[]string{"c", "Kette", "Silber, vergoldet"},
		[]string{"d", "", ""},
	)
	hyp := table(t, []string{"Gegenstand", "Material"},
		[]string{"a", "Brosche mit Anhanger", "Silbr"},
		[]string{"b", "Rinq", "Gold"},
		[]string{"c", "Kelle", "Silber vergoldet"},
		[]string{"d", "", "Zinn"},
	)

	thresholds := []float64{-1, 0, 0.25, 0.5, 0.7, 0.9, 1, 1.1}
	scores := ThresholdPrecision(ref, hyp, thresholds)

	for i := 1; i < len(scores); i++ {
		prev, cur := *scores[i-1].Precision, *scores[i].Precision
		if cur > prev {
			t.Errorf("Precision increased from %v at %v to %v at %v", prev, thresholds[i-1], cur, thresholds[i])
		}
	}
}

func TestThresholdPrecisionNoFields(t *testing.T) {
	ref := table(t, []string{"f"}, []string{"A", "x"})
	hyp := table(t, []string{"g"}, []string{"A", "x"})

	scores := ThresholdPrecision(ref, hyp, []float64{0.5, 0.7})
	if len(scores) != 2 {
		t.Fatalf("Expected one score per threshold, got %d", len(scores))
	}
	for _, ts := range scores {
		if ts.Precision != nil {
			t.Errorf("Expected undefined precision at %v, got %v", ts.Threshold, *ts.Precision)
		}
	}
}

func TestEvaluateMatchesIndividualFunctions(t *testing.T) {
	ref := table(t, []string{"Gegenstand", "Material", "Nummer"},
		[]string{"a", "Brosche mit Anhänger", "Silber", "1063"},
		[]string{"b", "Ring", "Gold", "1064"},
		[]string{"c", "Kette aus Silber", "Silber, vergoldet", "1065"},
	)
	hyp := dataset.InjectNoise(ref, 0.2, 42)
	thresholds := []float64{0.5, 0.7, 0.9}

	for _, concurrency := range []int{0, 1, 4} {
		eval, err := Evaluate(context.Background(), ref, hyp, Options{Thresholds: thresholds, Concurrency: concurrency})
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}

		if !reflect.DeepEqual(eval.ColumnWER, ColumnRates(ref, hyp, Word)) {
			t.Errorf("concurrency %d: column WER differs", concurrency)
		}
		if !reflect.DeepEqual(eval.ColumnCER, ColumnRates(ref, hyp, Char)) {
			t.Errorf("concurrency %d: column CER differs", concurrency)
		}
		if eval.OverallWER != OverallRate(ref, hyp, Word) || eval.OverallCER != OverallRate(ref, hyp, Char) {
			t.Errorf("concurrency %d: overall rates differ", concurrency)
		}
		if !reflect.DeepEqual(eval.ThresholdPrecision, ThresholdPrecision(ref, hyp, thresholds)) {
			t.Errorf("concurrency %d: threshold precision differs", concurrency)
		}
		if len(eval.Alignment.Keys) != 3 || len(eval.Alignment.Fields) != 3 {
			t.Errorf("concurrency %d: unexpected alignment %+v", concurrency, eval.Alignment)
		}
	}
}

func TestEvaluateCanceled(t *testing.T) {
	ref, hyp := helloTables(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Evaluate(ctx, ref, hyp, Options{Thresholds: []float64{0.5}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
