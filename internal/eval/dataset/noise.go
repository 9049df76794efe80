package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
)

const noiseAlphabet = "abcdefghijklmnopqrstuvwxyz"

// InjectNoise returns a copy of the table where, in every non-key cell, a
// fraction level of the characters is overwritten with random lowercase
// letters. The same seed, level and input always give the same output.
func InjectNoise(t *Table, level float64, seed int64) *Table {
	return InjectNoiseWith(t, level, rand.New(rand.NewSource(seed)))
}

// InjectNoiseWith is InjectNoise driven by a caller-owned generator
func InjectNoiseWith(t *Table, level float64, rng *rand.Rand) *Table {
	noisy := t.Clone()

	for _, field := range noisy.Fields {
		for _, key := range noisy.Keys {
			chars := []rune(noisy.Cell(key, field))

			n := 0
			if len(chars) > 0 {
				n = max(1, int(float64(len(chars))*level))
			}
			for i := 0; i < n; i++ {
				pos := rng.Intn(len(chars))
				chars[pos] = rune(noiseAlphabet[rng.Intn(len(noiseAlphabet))])
			}

			noisy.Rows[key][field] = string(chars)
		}
	}

	return noisy
}

// WriteCSV writes the table with the key column first
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	header := append([]string{t.Key}, t.Fields...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, key := range t.Keys {
		record := make([]string, 0, len(header))
		record = append(record, key)
		for _, field := range t.Fields {
			record = append(record, t.Cell(key, field))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %q: %w", key, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveCSV writes the table to a CSV file, creating parent directories
func (t *Table) SaveCSV(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	return t.WriteCSV(file)
}
