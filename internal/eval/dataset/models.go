package dataset

import (
	"fmt"
	"sort"
)

// DefaultKeyColumn is the column that identifies a record (one inventory card image per row)
const DefaultKeyColumn = "filename"

// DefaultMissingText is what an absent cell turns into. It matches the textual
// form of a missing value in previously published evaluation outputs.
const DefaultMissingText = "nan"

// Table is a keyed text table: record key -> field name -> text value.
// Tables are treated as immutable once loaded.
type Table struct {
	Source  string // Path or upload name the table was read from
	Key     string // Name of the key column
	Fields  []string
	Keys    []string
	Rows    map[string]map[string]string
	Missing string // Text used for a cell that has no value
}

// NewTable creates an empty table with the given key column and fields
func NewTable(key string, fields ...string) *Table {
	return &Table{
		Key:     key,
		Fields:  append([]string(nil), fields...),
		Keys:    []string{},
		Rows:    make(map[string]map[string]string),
		Missing: DefaultMissingText,
	}
}

// AddRow appends a record. Values for fields the table does not know about are ignored.
func (t *Table) AddRow(key string, values map[string]string) error {
	if _, exists := t.Rows[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}

	row := make(map[string]string, len(t.Fields))
	for _, field := range t.Fields {
		if v, ok := values[field]; ok {
			row[field] = v
		}
	}

	t.Keys = append(t.Keys, key)
	t.Rows[key] = row
	return nil
}

// Cell returns the text of a cell, falling back to the missing text
func (t *Table) Cell(key, field string) string {
	if row, ok := t.Rows[key]; ok {
		if v, ok := row[field]; ok {
			return v
		}
	}
	return t.Missing
}

// HasField reports whether the table has a (non-key) column with this name
func (t *Table) HasField(field string) bool {
	for _, f := range t.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Len returns the number of records
func (t *Table) Len() int {
	return len(t.Keys)
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	c := &Table{
		Source:  t.Source,
		Key:     t.Key,
		Fields:  append([]string(nil), t.Fields...),
		Keys:    append([]string(nil), t.Keys...),
		Rows:    make(map[string]map[string]string, len(t.Rows)),
		Missing: t.Missing,
	}
	for key, row := range t.Rows {
		r := make(map[string]string, len(row))
		for field, v := range row {
			r[field] = v
		}
		c.Rows[key] = r
	}
	return c
}

// Alignment is the part of two tables that can be compared
type Alignment struct {
	Keys   []string `json:"keys" yaml:"keys"`     // Sorted ascending
	Fields []string `json:"fields" yaml:"fields"` // Reference header order
}

// Empty reports whether there is nothing to compare
func (a Alignment) Empty() bool {
	return len(a.Keys) == 0 || len(a.Fields) == 0
}

// Align intersects the record keys and field names of two tables.
// Keys or fields that exist in only one table are ignored.
func Align(ref, hyp *Table) Alignment {
	a := Alignment{
		Keys:   []string{},
		Fields: []string{},
	}

	for _, key := range ref.Keys {
		if _, ok := hyp.Rows[key]; ok {
			a.Keys = append(a.Keys, key)
		}
	}
	sort.Strings(a.Keys)

	for _, field := range ref.Fields {
		if hyp.HasField(field) {
			a.Fields = append(a.Fields, field)
		}
	}

	return a
}
