// Package dataset reads raw tabular sources (CSV/TSV, XLSX, SQLite) into a
// table of nullable string cells. Column names are kept exactly as found;
// schema interpretation belongs to the normalize package.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported indicates no registered reader accepts the file.
var ErrUnsupported = errors.New("unsupported dataset format")

// Cell is a nullable raw value.
type Cell struct {
	Text  string
	Valid bool
}

// Str returns a non-null cell.
func Str(s string) Cell { return Cell{Text: s, Valid: true} }

// Null is the null cell.
var Null = Cell{}

// Table is a raw record table: rows of cells aligned with Columns.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]Cell
	// Truncated reports whether MaxRows stopped the read early.
	Truncated bool
}

// Options controls how sources are read.
type Options struct {
	// MaxRows limits data rows read (header excluded); 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, picks '\t' for .tsv files and ',' otherwise.
	Delimiter rune
	// Sheet selects an XLSX worksheet by name; empty means the first sheet.
	Sheet string
	// Table selects a SQLite table; empty means the first user table.
	Table string
}

// Reader loads one family of file formats.
type Reader interface {
	CanRead(path string) bool
	Read(ctx context.Context, path string, opt Options) (*Table, error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

// Load selects a reader by file name and reads the table.
func Load(ctx context.Context, path string, opt Options) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	for _, r := range registry {
		if r.CanRead(path) {
			t, err := r.Read(ctx, path, opt)
			if err != nil {
				return nil, err
			}
			if t.Name == "" {
				t.Name = filepath.Base(path)
			}
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// Column returns the index of the named column, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// naTokens mirrors the values common dataframe readers treat as missing.
var naTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"null": {}, "NULL": {}, "None": {}, "#N/A": {}, "<NA>": {}, "#NA": {}, "NA/NA": {},
}

// FromText converts a field read from a text source, mapping NA tokens to null.
func FromText(s string) Cell {
	if _, ok := naTokens[strings.TrimSpace(s)]; ok && s == strings.TrimSpace(s) {
		return Null
	}
	return Str(s)
}

// pad grows row to n cells, filling with null.
func pad(row []Cell, n int) []Cell {
	if len(row) >= n {
		return row[:n]
	}
	out := make([]Cell, n)
	copy(out, row)
	return out
}

func init() {
	Register(csvReader{})
	Register(xlsxReader{})
	Register(sqliteReader{})
}
