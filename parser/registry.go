package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Registry maps file extensions to table readers.
type Registry struct {
	readers map[string]TableReader
}

// NewRegistry returns a registry with the built-in xlsx and csv readers.
func NewRegistry() *Registry {
	r := &Registry{readers: make(map[string]TableReader)}
	for _, tr := range []TableReader{&XLSXReader{}, &CSVReader{}} {
		for _, f := range tr.SupportedFormats() {
			r.readers[f] = tr
		}
	}
	return r
}

// Get returns the reader for a format such as "xlsx".
func (r *Registry) Get(format string) (TableReader, error) {
	tr, ok := r.readers[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return tr, nil
}

// Register adds or replaces the reader for format.
func (r *Registry) Register(format string, tr TableReader) {
	r.readers[strings.ToLower(format)] = tr
}

// Read picks a reader by the file extension of path and reads the table.
func (r *Registry) Read(ctx context.Context, path, sheet string) (*Table, error) {
	tr, err := r.Get(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, err
	}
	return tr.ReadTable(ctx, path, sheet)
}
