// Package csvsource reads ledger rows from uploaded CSV files.
//
// The expected layout is a header line followed by records with the columns
// title, type, value, category. Cells are trimmed and records with any of
// the four cells empty are skipped.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"gofinances/internal/ledger"
)

const columns = 4

var ErrTooManyRows = errors.New("too many rows")

type Reader struct {
	csv     *csv.Reader
	header  bool
	maxRows int
	rows    int
	dropped int
}

var _ ledger.RowSource = (*Reader)(nil)

type Option func(*Reader)

// WithMaxRows makes Read fail with ErrTooManyRows after n kept rows.
func WithMaxRows(n int) Option {
	return func(r *Reader) { r.maxRows = n }
}

func NewReader(in io.Reader, opts ...Option) *Reader {
	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	r := &Reader{csv: cr, header: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns the next complete row, or io.EOF.
func (r *Reader) Read() (ledger.Row, error) {
	for {
		record, err := r.csv.Read()
		if err == io.EOF {
			return ledger.Row{}, io.EOF
		}
		if err != nil {
			return ledger.Row{}, fmt.Errorf("parse csv: %w", err)
		}
		line, _ := r.csv.FieldPos(0)

		if r.header {
			r.header = false
			continue
		}

		row, ok := toRow(record)
		if !ok {
			r.dropped++
			continue
		}
		if r.maxRows > 0 && r.rows >= r.maxRows {
			return ledger.Row{}, fmt.Errorf("line %d: %w (limit %d)", line, ErrTooManyRows, r.maxRows)
		}
		r.rows++
		row.Line = line
		return row, nil
	}
}

// Dropped reports how many incomplete records were skipped so far.
func (r *Reader) Dropped() int {
	return r.dropped
}

func toRow(record []string) (ledger.Row, bool) {
	if len(record) < columns {
		return ledger.Row{}, false
	}
	cells := make([]string, columns)
	for i := range cells {
		cells[i] = strings.TrimSpace(record[i])
		if cells[i] == "" {
			return ledger.Row{}, false
		}
	}
	return ledger.Row{
		Title:    cells[0],
		Type:     cells[1],
		Value:    cells[2],
		Category: cells[3],
	}, true
}
