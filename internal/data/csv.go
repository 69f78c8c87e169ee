// Package data reads sentence-pair regression datasets and batches them
// for the adapter.
package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrMissingColumn is returned when a required column is absent from the
// header row.
var ErrMissingColumn = errors.New("data: missing column")

// Example is one sentence pair with its score.
type Example struct {
	First  string
	Second string
	Label  float64
	// HasLabel is false for prediction sets without a label column.
	HasLabel bool
}

// CSVOptions names the columns of a dataset file.
type CSVOptions struct {
	Sentence1Column string
	// Sentence2Column may be empty for single-sentence datasets.
	Sentence2Column string
	LabelColumn     string
	Delimiter       rune
	// LabelScale divides every label, e.g. 5 maps a 0-5 similarity score
	// onto 0-1. Zero means 1.
	LabelScale float64
	// RequireLabel fails when the label column is absent.
	RequireLabel bool
	// MaxRows stops after this many examples (0 = all).
	MaxRows int
}

// DefaultCSVOptions matches the STS-style sentence1,sentence2,score layout.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Sentence1Column: "sentence1",
		Sentence2Column: "sentence2",
		LabelColumn:     "score",
		Delimiter:       ',',
		LabelScale:      1,
	}
}

// LoadCSV reads every example of the file at path.
func LoadCSV(path string, opts CSVOptions) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	defer f.Close()

	examples, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return examples, nil
}

// ReadCSV reads examples from r. The first row is the header.
func ReadCSV(r io.Reader, opts CSVOptions) ([]Example, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("data: empty file")
		}
		return nil, fmt.Errorf("data: read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	first, ok := columns[opts.Sentence1Column]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingColumn, opts.Sentence1Column)
	}
	second := -1
	if opts.Sentence2Column != "" {
		if second, ok = columns[opts.Sentence2Column]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, opts.Sentence2Column)
		}
	}
	label, hasLabel := columns[opts.LabelColumn]
	if opts.LabelColumn == "" {
		hasLabel = false
	}
	if opts.RequireLabel && !hasLabel {
		return nil, fmt.Errorf("%w %q", ErrMissingColumn, opts.LabelColumn)
	}
	scale := opts.LabelScale
	if scale == 0 {
		scale = 1
	}

	var examples []Example
	for row := 2; opts.MaxRows <= 0 || len(examples) < opts.MaxRows; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("data: row %d: %w", row, err)
		}

		field := func(i int) (string, error) {
			if i >= len(record) {
				return "", fmt.Errorf("data: row %d has %d fields, want at least %d", row, len(record), i+1)
			}
			return record[i], nil
		}

		var ex Example
		if ex.First, err = field(first); err != nil {
			return nil, err
		}
		if second >= 0 {
			if ex.Second, err = field(second); err != nil {
				return nil, err
			}
		}
		if hasLabel {
			raw, err := field(label)
			if err != nil {
				return nil, err
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("data: row %d: invalid label %q: %w", row, raw, err)
			}
			ex.Label = value / scale
			ex.HasLabel = true
		}
		examples = append(examples, ex)
	}
	return examples, nil
}
