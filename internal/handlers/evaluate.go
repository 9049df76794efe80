package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/inventar-eval/internal/config"
	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/dataset"
	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/metrics"
	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/results"
)

// HandleEvaluate scores an uploaded hypothesis CSV against an uploaded reference CSV
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	if err := r.ParseMultipartForm(2 * maxUploadSize); err != nil {
		h.metrics.RecordFailure("invalid")
		h.writeError(w, "Failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	keyColumn := h.cfg.KeyColumn
	if key := strings.TrimSpace(r.FormValue("key")); key != "" {
		keyColumn = key
	}

	thresholds := h.cfg.Thresholds
	if value := r.FormValue("thresholds"); value != "" {
		parsed, err := config.ParseThresholds(value)
		if err != nil {
			h.metrics.RecordFailure("invalid")
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		thresholds = parsed
	}

	topN := h.cfg.TopN
	if value := r.FormValue("top"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			h.metrics.RecordFailure("invalid")
			h.writeError(w, "Invalid top: "+err.Error(), http.StatusBadRequest)
			return
		}
		topN = n
	}

	loader := dataset.NewLoader("",
		dataset.WithKeyColumn(keyColumn),
		dataset.WithMissingText(h.cfg.MissingText),
	)

	ref, err := h.readTable(r, loader, "reference")
	if err != nil {
		h.metrics.RecordFailure("invalid")
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	hyp, err := h.readTable(r, loader, "hypothesis")
	if err != nil {
		h.metrics.RecordFailure("invalid")
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	eval, err := metrics.Evaluate(r.Context(), ref, hyp, metrics.Options{
		Thresholds:  thresholds,
		Concurrency: h.cfg.Concurrency,
	})
	if err != nil {
		h.metrics.RecordFailure("error")
		h.writeError(w, "Evaluation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	report := results.NewReport(eval, results.Meta{
		Reference:         ref.Source,
		Hypothesis:        hyp.Source,
		KeyColumn:         keyColumn,
		ReferenceRecords:  ref.Len(),
		HypothesisRecords: hyp.Len(),
	}, topN)

	if h.store != nil {
		if _, err := h.store.Save(r.Context(), report); err != nil {
			h.metrics.RecordFailure("error")
			h.writeError(w, "Failed to save run: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	h.metrics.RecordEvaluation("ok", time.Since(start).Seconds(), report.AlignedRecords, report.OverallWER, report.OverallCER)
	slog.Info("Evaluation finished",
		"id", report.ID,
		"reference", report.Reference,
		"hypothesis", report.Hypothesis,
		"aligned_records", report.AlignedRecords,
		"overall_cer", report.OverallCER)

	h.writeJSON(w, report)
}

func (h *Handler) readTable(r *http.Request, loader *dataset.Loader, field string) (*dataset.Table, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", field, err)
	}
	defer file.Close()

	data, err := readUpload(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", field, err)
	}

	return loader.ReadCSV(bytes.NewReader(data), header.Filename)
}

// readUpload reads at most maxUploadSize bytes; a longer upload is an error
func readUpload(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxUploadSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxUploadSize {
		return nil, errors.New("file too large (max 10MB)")
	}
	return data, nil
}
