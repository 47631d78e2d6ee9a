package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/crashlens/internal/analysis"
	"github.com/KaramelBytes/crashlens/internal/normalize"
	"github.com/KaramelBytes/crashlens/internal/utils"
)

var (
	scSource    sourceFlags
	scOutputDir string
	scSamples   int
	scQuiet     bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema <files...>",
	Short: "Show the detected column mapping and profile of one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		c, err := requireConfig()
		if err != nil {
			return err
		}
		dopt, nf, err := scSource.resolve(c)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		popt := analysis.DefaultOptions()
		popt.Numbers = nf
		if scSamples > 0 {
			popt.FactorSamples = scSamples
		}

		total := len(files)
		for i, path := range files {
			if !scQuiet {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			t, err := loadTable(cmd.Context(), path, dopt, normalize.Options{Numbers: nf})
			if err != nil {
				return err
			}
			md := MappingMarkdown(t.Schema) + "\n" + analysis.Profile(t, popt).Markdown()

			if scOutputDir == "" {
				fmt.Fprintln(out, md)
				continue
			}
			outFile := uniqueOutput(scOutputDir, path)
			if outFile != filepath.Join(scOutputDir, baseName(path)+".schema.md") && !scQuiet {
				fmt.Fprintf(out, "⚠ Detected existing summary, writing to %s to avoid overwrite.\n", filepath.Base(outFile))
			}
			if err := utils.SafeWriteFile(outFile, []byte(md)); err != nil {
				return fmt.Errorf("write schema summary: %w", err)
			}
			if !scQuiet {
				fmt.Fprintf(out, "✓ Wrote %s\n", outFile)
			}
		}
		return nil
	},
}

// expandInputs resolves globs and literal paths, deduplicated and sorted.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// uniqueOutput picks dir/<base>.schema.md, or the first free <base>__N variant.
func uniqueOutput(dir, path string) string {
	base := baseName(path)
	outFile := filepath.Join(dir, base+".schema.md")
	if _, err := os.Stat(outFile); err != nil {
		return outFile
	}
	for idx := 2; ; idx++ {
		cand := filepath.Join(dir, fmt.Sprintf("%s__%d.schema.md", base, idx))
		if _, err := os.Stat(cand); os.IsNotExist(err) {
			return cand
		}
	}
}

// MappingMarkdown lists which source column feeds each derived column.
func MappingMarkdown(s normalize.Schema) string {
	var b strings.Builder
	b.WriteString("[COLUMN MAPPING]\n")
	row := func(target, source string) {
		if source == "" {
			source = "(not found)"
		}
		fmt.Fprintf(&b, "- %s <- %s\n", target, source)
	}
	dt := s.DateSource
	if s.TimeSource != "" && s.TimeSource != s.DateSource {
		dt += " + " + s.TimeSource
	}
	row(normalize.ColDatetime, dt)
	row(normalize.ColLatitude, s.LatitudeSource)
	row(normalize.ColLongitude, s.LongitudeSource)
	row(normalize.ColInjured, s.InjuredSource)
	for i, col := range normalize.FactorColumns {
		row(col, s.FactorSources[i])
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	scSource.register(schemaCmd.Flags())
	schemaCmd.Flags().StringVar(&scOutputDir, "output-dir", "", "write one <name>.schema.md per input into this directory")
	schemaCmd.Flags().IntVar(&scSamples, "factor-samples", 5, "example values shown per factor column")
	schemaCmd.Flags().BoolVar(&scQuiet, "quiet", false, "suppress progress and non-essential output")
}
