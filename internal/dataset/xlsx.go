package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

type xlsxReader struct{}

func (xlsxReader) CanRead(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// Read streams rows of the selected worksheet. Values come back with the
// cell number format applied, so dates read the way the workbook shows them.
func (xlsxReader) Read(ctx context.Context, path string, opt Options) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := opt.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet '%s' not found in workbook '%s'.\nAvailable sheets: %s",
			sheet, filepath.Base(path), strings.Join(f.GetSheetList(), ", "))
	}
	if sheet == "" {
		return nil, fmt.Errorf("open xlsx: no worksheet found")
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	defer func() { _ = rows.Close() }()

	t := &Table{Name: fmt.Sprintf("%s (sheet: %s)", filepath.Base(path), sheet)}
	first := true
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if first {
			t.Columns = cols
			first = false
			continue
		}
		if opt.MaxRows > 0 && len(t.Rows) >= opt.MaxRows {
			t.Truncated = true
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := make([]Cell, len(cols))
		for i, v := range cols {
			// Missing cells come back as "", which is null for a spreadsheet.
			if v == "" {
				row[i] = Null
				continue
			}
			row[i] = Str(v)
		}
		t.Rows = append(t.Rows, pad(row, len(t.Columns)))
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return t, nil
}
