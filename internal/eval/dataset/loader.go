package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

var (
	ErrMissingKeyColumn  = errors.New("key column not found")
	ErrDuplicateKey      = errors.New("duplicate record key")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// naValues are the cell texts the original CSV tooling read as a missing value
var naValues = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsMissing reports whether a raw cell text stands for a missing value
func IsMissing(raw string) bool {
	_, ok := naValues[raw]
	return ok
}

// Loader reads a keyed table from disk
type Loader struct {
	path        string
	keyColumn   string
	missingText string
}

// Option configures a Loader
type Option func(*Loader)

// WithKeyColumn sets the column that identifies a record
func WithKeyColumn(column string) Option {
	return func(l *Loader) {
		l.keyColumn = column
	}
}

// WithMissingText sets the text a missing cell is materialized as
func WithMissingText(text string) Option {
	return func(l *Loader) {
		l.missingText = text
	}
}

// NewLoader creates a new table loader
func NewLoader(path string, opts ...Option) *Loader {
	l := &Loader{
		path:        path,
		keyColumn:   DefaultKeyColumn,
		missingText: DefaultMissingText,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads the table (CSV, TSV, JSONL or Parquet)
func (l *Loader) Load() (*Table, error) {
	ext := strings.ToLower(filepath.Ext(l.path))

	switch ext {
	case ".csv", ".tsv":
		return l.loadCSV()
	case ".jsonl":
		return l.loadJSONL()
	case ".parquet":
		return l.loadParquet()
	default:
		return nil, fmt.Errorf("%w: %q (supported: .csv, .tsv, .jsonl, .parquet; JSON arrays are not supported)", ErrUnsupportedFormat, ext)
	}
}

func (l *Loader) loadCSV() (*Table, error) {
	slog.Debug("Opening CSV file", "path", l.path)

	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table file: %w", err)
	}
	defer file.Close()

	comma := ','
	if strings.EqualFold(filepath.Ext(l.path), ".tsv") {
		comma = '\t'
	}

	return l.readDelimited(file, l.path, comma)
}

// ReadCSV reads a comma separated table from r. source names the table in errors and reports.
func (l *Loader) ReadCSV(r io.Reader, source string) (*Table, error) {
	return l.readDelimited(r, source, ',')
}

func (l *Loader) readDelimited(r io.Reader, source string, comma rune) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read header of %s: file is empty", source)
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", source, err)
	}

	table, keyIdx, err := l.newTable(header, source)
	if err != nil {
		return nil, err
	}

	lineNum := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNum++
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s at line %d: %w", source, lineNum, err)
		}
		if len(record) > len(header) {
			return nil, fmt.Errorf("failed to parse %s at line %d: %d fields, header has %d", source, lineNum, len(record), len(header))
		}

		raw := make(map[string]*string, len(header))
		for i, name := range header {
			if i == keyIdx {
				continue
			}
			if i < len(record) {
				v := record[i]
				raw[name] = &v
			}
		}

		key := ""
		if keyIdx < len(record) {
			key = record[keyIdx]
		}
		if err := l.addRecord(table, key, raw, lineNum); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", source, err)
		}
	}

	slog.Debug("Finished reading CSV", "source", source, "records", table.Len(), "fields", len(table.Fields))

	return table, nil
}

// newTable validates a header and creates the table for it
func (l *Loader) newTable(header []string, source string) (*Table, int, error) {
	keyIdx := -1
	seen := make(map[string]bool, len(header))
	var fields []string

	for i, name := range header {
		if seen[name] {
			return nil, 0, fmt.Errorf("failed to load %s: duplicate column %q", source, name)
		}
		seen[name] = true

		if name == l.keyColumn {
			keyIdx = i
			continue
		}
		fields = append(fields, name)
	}

	if keyIdx < 0 {
		return nil, 0, fmt.Errorf("failed to load %s: %w: %q", source, ErrMissingKeyColumn, l.keyColumn)
	}

	table := NewTable(l.keyColumn, fields...)
	table.Source = source
	table.Missing = l.missingText

	return table, keyIdx, nil
}

// addRecord materializes raw cells as text and appends the row. A nil cell is missing.
func (l *Loader) addRecord(table *Table, key string, raw map[string]*string, lineNum int) error {
	if IsMissing(key) {
		slog.Debug("Skipping record without key", "source", table.Source, "line", lineNum)
		return nil
	}

	values := make(map[string]string, len(table.Fields))
	for _, field := range table.Fields {
		v, ok := raw[field]
		if !ok || v == nil || IsMissing(*v) {
			values[field] = l.missingText
			continue
		}
		values[field] = *v
	}

	if err := table.AddRow(key, values); err != nil {
		return fmt.Errorf("line %d: %w", lineNum, err)
	}
	return nil
}

// loadJSONL loads one JSON object per line. Field order follows first appearance.
func (l *Loader) loadJSONL() (*Table, error) {
	slog.Debug("Opening JSONL file", "path", l.path)

	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	// Increase buffer size for large JSON lines
	const maxCapacity = 10 * 1024 * 1024 // 10MB per line
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	type jsonRecord struct {
		line   int
		values map[string]*string
	}

	var (
		records []jsonRecord
		columns []string
		seen    = make(map[string]bool)
	)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		names, values, err := decodeObject(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
		records = append(records, jsonRecord{line: lineNum, values: values})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading table: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("failed to load %s: %w: %q", l.path, ErrMissingKeyColumn, l.keyColumn)
	}

	table, _, err := l.newTable(columns, l.path)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		key := ""
		if k := rec.values[l.keyColumn]; k != nil {
			key = *k
		}
		if err := l.addRecord(table, key, rec.values, rec.line); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", l.path, err)
		}
	}

	slog.Debug("Finished reading JSONL file", "records", table.Len(), "total_lines", lineNum)

	return table, nil
}

// decodeObject decodes a flat JSON object keeping member order. null becomes a nil cell.
func decodeObject(line []byte) ([]string, map[string]*string, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, errors.New("expected a JSON object")
	}

	var names []string
	values := make(map[string]*string)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, nil, errors.New("expected an object key")
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}

		names = append(names, name)
		values[name], err = jsonText(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", name, err)
		}
	}

	return names, values, nil
}

// jsonText renders a JSON value as cell text
func jsonText(raw json.RawMessage) (*string, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var s string
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}

	s = string(trimmed)
	return &s, nil
}

// loadParquet loads a flat Parquet file. Every leaf column becomes a text field.
func (l *Loader) loadParquet() (*Table, error) {
	slog.Debug("Opening Parquet file", "path", l.path)

	file, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet file opened successfully", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	var columns []string
	for _, path := range pf.Schema().Columns() {
		columns = append(columns, strings.Join(path, "."))
	}

	table, keyIdx, err := l.newTable(columns, l.path)
	if err != nil {
		return nil, err
	}

	rows := make([]parquet.Row, 128) // Read in batches
	rowNum := 0

	for _, rg := range pf.RowGroups() {
		reader := rg.Rows()
		for {
			n, err := reader.ReadRows(rows)
			for _, row := range rows[:n] {
				rowNum++
				key, raw := parquetRecord(row, columns, keyIdx)
				if addErr := l.addRecord(table, key, raw, rowNum); addErr != nil {
					reader.Close()
					return nil, fmt.Errorf("failed to load %s: %w", l.path, addErr)
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				reader.Close()
				return nil, fmt.Errorf("failed to read parquet rows: %w", err)
			}
		}
		reader.Close()
	}

	slog.Debug("Finished reading Parquet file", "records", table.Len())

	return table, nil
}

func parquetRecord(row parquet.Row, columns []string, keyIdx int) (string, map[string]*string) {
	raw := make(map[string]*string, len(columns))
	key := ""

	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(columns) {
			continue
		}
		if v.IsNull() {
			raw[columns[col]] = nil
			continue
		}

		text := parquetText(v)
		if col == keyIdx {
			key = text
			continue
		}
		raw[columns[col]] = &text
	}

	return key, raw
}

func parquetText(v parquet.Value) string {
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64)
	default:
		return v.String()
	}
}
