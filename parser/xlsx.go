package parser

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXReader reads worksheets with excelize.
type XLSXReader struct{}

func (p *XLSXReader) SupportedFormats() []string { return []string{"xlsx", "xlsm"} }

func (p *XLSXReader) ReadTable(ctx context.Context, path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("no sheets in %s", path)
		}
		sheet = sheets[0]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in sheet %q", sheet)
	}
	return newTable(sheet, rows), nil
}
