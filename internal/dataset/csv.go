package dataset

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

type csvReader struct{}

func (csvReader) CanRead(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return true
	}
	return false
}

func (csvReader) Read(ctx context.Context, path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	return readCSV(ctx, f, delim, opt.MaxRows)
}

func readCSV(ctx context.Context, src io.Reader, delim rune, maxRows int) (*Table, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.Comma = delim
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := &Table{Columns: append([]string(nil), header...)}
	ncol := len(header)
	for {
		if maxRows > 0 && len(t.Rows) >= maxRows {
			// Peek one more record so Truncated is only set when rows remain.
			if _, err := r.Read(); err == nil {
				t.Truncated = true
			}
			break
		}
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		if len(t.Rows)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row := make([]Cell, len(rec))
		for i, v := range rec {
			row[i] = FromText(v)
		}
		t.Rows = append(t.Rows, pad(row, ncol))
	}
	return t, nil
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	// Default to comma; the file name is the only hint used so the source is read once.
	return ','
}
