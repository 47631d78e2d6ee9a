package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteReader struct{}

func (sqliteReader) CanRead(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

func (sqliteReader) Read(ctx context.Context, path string, opt Options) (*Table, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	name := opt.Table
	if name == "" {
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY rowid LIMIT 1`).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("open sqlite: no tables in %s", filepath.Base(path))
		}
		if err != nil {
			return nil, fmt.Errorf("list sqlite tables: %w", err)
		}
	}

	query := "SELECT * FROM " + quoteIdent(name)
	args := []any{}
	if opt.MaxRows > 0 {
		// One extra row tells us whether the limit cut the table short.
		query += " LIMIT ?"
		args = append(args, opt.MaxRows+1)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query table %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	t := &Table{Name: fmt.Sprintf("%s (table: %s)", filepath.Base(path), name), Columns: cols}
	dest := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if opt.MaxRows > 0 && len(t.Rows) >= opt.MaxRows {
			t.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(t.Rows)+1, err)
		}
		row := make([]Cell, len(cols))
		for i, v := range dest {
			if v.Valid {
				row[i] = Str(v.String)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return t, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
