package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lehigh-university-libraries/inventar-eval/internal/config"
	"github.com/lehigh-university-libraries/inventar-eval/internal/eval/results"
	"github.com/lehigh-university-libraries/inventar-eval/internal/observability"
	"github.com/lehigh-university-libraries/inventar-eval/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	referenceCSV  = "filename,Gegenstand,Material\na.jpeg,hello world,Silber\nb.jpeg,foo bar,Gold\n"
	hypothesisCSV = "filename,Gegenstand,Material\na.jpeg,hello word,Silber\nb.jpeg,foo bar,Gold\n"
)

func testConfig() *config.Config {
	return &config.Config{
		KeyColumn:   "filename",
		MissingText: "nan",
		Thresholds:  []float64{0.5, 0.9},
		TopN:        5,
		Concurrency: 2,
	}
}

func newTestHandler(t *testing.T) (*Handler, *storage.RunStore, *observability.Metrics) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := observability.NewMetrics()
	return New(testConfig(), store, m), store, m
}

func multipartRequest(t *testing.T, files map[string]string, values map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for field, content := range files {
		part, err := writer.CreateFormFile(field, field+".csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range values {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/evaluate", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHandleEvaluate(t *testing.T) {
	h, store, m := newTestHandler(t)

	req := multipartRequest(t, map[string]string{
		"reference":  referenceCSV,
		"hypothesis": hypothesisCSV,
	}, map[string]string{"thresholds": "0.5", "top": "1"})
	rec := httptest.NewRecorder()
	h.HandleEvaluate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report results.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 2, report.AlignedRecords)
	assert.Equal(t, []string{"Gegenstand", "Material"}, report.AlignedFields)
	require.Len(t, report.ColumnWER, 2)
	require.NotNil(t, report.ColumnWER[0].Rate)
	assert.InDelta(t, 0.25, *report.ColumnWER[0].Rate, 1e-12)
	require.Len(t, report.MapCER, 1)
	assert.Len(t, report.Rankings.HighestCER, 1)

	stored, err := store.Get(req.Context(), report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.OverallCER, stored.OverallCER)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationCounter.WithLabelValues("ok")))
}

func TestHandleEvaluateErrors(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		values map[string]string
		code   int
	}{
		{
			name:  "missing hypothesis",
			files: map[string]string{"reference": referenceCSV},
			code:  http.StatusBadRequest,
		},
		{
			name:  "missing key column",
			files: map[string]string{"reference": "name,a\nx,1\n", "hypothesis": hypothesisCSV},
			code:  http.StatusBadRequest,
		},
		{
			name:   "bad thresholds",
			files:  map[string]string{"reference": referenceCSV, "hypothesis": hypothesisCSV},
			values: map[string]string{"thresholds": "abc"},
			code:   http.StatusBadRequest,
		},
		{
			name:   "non-finite threshold",
			files:  map[string]string{"reference": referenceCSV, "hypothesis": hypothesisCSV},
			values: map[string]string{"thresholds": "0.5,inf"},
			code:   http.StatusBadRequest,
		},
		{
			name:   "bad top",
			files:  map[string]string{"reference": referenceCSV, "hypothesis": hypothesisCSV},
			values: map[string]string{"top": "many"},
			code:   http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newTestHandler(t)
			rec := httptest.NewRecorder()
			h.HandleEvaluate(rec, multipartRequest(t, tt.files, tt.values))
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleEvaluateMethodNotAllowed(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.HandleEvaluate(rec, httptest.NewRequest("GET", "/api/evaluate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleRuns(t *testing.T) {
	h, _, _ := newTestHandler(t)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.HandleEvaluate(rec, multipartRequest(t, map[string]string{
			"reference":  referenceCSV,
			"hypothesis": hypothesisCSV,
		}, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.HandleRuns(rec, httptest.NewRequest("GET", "/api/runs?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []storage.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)

	rec = httptest.NewRecorder()
	h.HandleRunDetail(rec, httptest.NewRequest("GET", "/api/runs/"+runs[0].ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report results.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, runs[0].ID, report.ID)
}

func TestHandleRunDetailNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.HandleRunDetail(rec, httptest.NewRequest("GET", "/api/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRunsWithoutStore(t *testing.T) {
	h := New(testConfig(), nil, nil)
	rec := httptest.NewRecorder()
	h.HandleRuns(rec, httptest.NewRequest("GET", "/api/runs", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadUploadLimit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{name: "empty", size: 0},
		{name: "exactly the limit", size: maxUploadSize},
		{name: "one byte over", size: maxUploadSize + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := readUpload(bytes.NewReader(make([]byte, tt.size)))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, data, tt.size)
		})
	}
}
