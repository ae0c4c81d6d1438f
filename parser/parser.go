// Package parser reads the tabular and document inputs of ingestion: startup
// and deal tables from spreadsheets or CSV files, and registry extracts from
// PDF.
package parser

import (
	"context"
	"errors"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = errors.New("fundgraph: unsupported input format")

// Table is a sheet of string cells with a header row.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Record is one table row keyed by header.
type Record map[string]string

// Get returns the trimmed cell of column name, or "" when absent.
func (r Record) Get(name string) string { return strings.TrimSpace(r[name]) }

// Records returns the rows keyed by header. Short rows yield "" for the
// missing trailing cells.
func (t *Table) Records() []Record {
	out := make([]Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(Record, len(t.Header))
		for i, h := range t.Header {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// TableReader reads a table from a file. sheet selects a worksheet for
// formats that have them; "" means the first one.
type TableReader interface {
	ReadTable(ctx context.Context, path, sheet string) (*Table, error)
	SupportedFormats() []string
}

// newTable splits raw rows into header and body, trimming header names and
// dropping fully empty rows.
func newTable(name string, raw [][]string) *Table {
	t := &Table{Name: name}
	if len(raw) == 0 {
		return t
	}
	for _, h := range raw[0] {
		t.Header = append(t.Header, strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	for _, row := range raw[1:] {
		if isBlank(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
