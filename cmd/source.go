package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	cfgpkg "github.com/KaramelBytes/crashlens/internal/config"
	"github.com/KaramelBytes/crashlens/internal/dataset"
	"github.com/KaramelBytes/crashlens/internal/normalize"
)

// sourceFlags are the per-command overrides of the data source settings.
type sourceFlags struct {
	delimiter string
	decimal   string
	thousands string
	sheet     string
	table     string
	maxRows   int
}

func (f *sourceFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (default from config or file extension)")
	fs.StringVar(&f.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma'")
	fs.StringVar(&f.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space'")
	fs.StringVar(&f.sheet, "sheet", "", "XLSX: sheet name (default first sheet)")
	fs.StringVar(&f.table, "table", "", "SQLite: table name (default first table)")
	fs.IntVar(&f.maxRows, "max-rows", -1, "maximum rows to read (0 = unlimited, default from config)")
}

func (f *sourceFlags) reset() {
	*f = sourceFlags{maxRows: -1}
}

// resolve layers the flags over the configuration.
func (f *sourceFlags) resolve(c *cfgpkg.Global) (dataset.Options, normalize.NumberFormat, error) {
	opt := c.DatasetOptions()
	nf := c.NumberFormat()
	if f.maxRows >= 0 {
		opt.MaxRows = f.maxRows
	}
	if f.sheet != "" {
		opt.Sheet = f.sheet
	}
	if f.table != "" {
		opt.Table = f.table
	}
	switch f.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", `\t`, "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	case "|":
		opt.Delimiter = '|'
	default:
		return opt, nf, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(f.decimal)) {
	case ",", "comma":
		nf.DecimalSeparator = ','
	case ".", "dot":
		nf.DecimalSeparator = '.'
	case "":
	default:
		return opt, nf, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", f.decimal)
	}
	switch strings.ToLower(f.thousands) {
	case ",":
		nf.ThousandsSeparator = ','
	case ".":
		nf.ThousandsSeparator = '.'
	case "space", " ":
		nf.ThousandsSeparator = ' '
	case "":
	default:
		return opt, nf, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", f.thousands)
	}
	if nf.DecimalSeparator != 0 && nf.DecimalSeparator == nf.ThousandsSeparator {
		return opt, nf, fmt.Errorf("decimal and thousands separators must differ")
	}
	return opt, nf, nil
}
