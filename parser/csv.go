package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CSVReader reads comma-separated files. Rows may have differing lengths.
type CSVReader struct{}

func (p *CSVReader) SupportedFormats() []string { return []string{"csv"} }

func (p *CSVReader) ReadTable(ctx context.Context, path, _ string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("reading CSV line %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in %s", path)
	}
	return newTable(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), rows), nil
}
