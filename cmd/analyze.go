package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/crashlens/internal/charts"
	"github.com/KaramelBytes/crashlens/internal/dashboard"
	"github.com/KaramelBytes/crashlens/internal/dataset"
	"github.com/KaramelBytes/crashlens/internal/logging"
	"github.com/KaramelBytes/crashlens/internal/normalize"
	"github.com/KaramelBytes/crashlens/internal/utils"
)

var (
	anaSource      sourceFlags
	anaOutputPath  string
	anaJSON        bool
	anaChartsDir   string
	anaMinInjuries int
	anaHour        int
	anaFactor      string
	anaTimeFactor  string
	anaSample      bool
	anaDetails     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Render the collision dashboard for a file as Markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(c)
		if err != nil {
			return err
		}
		dopt, nf, err := anaSource.resolve(c)
		if err != nil {
			return err
		}
		t, err := loadTable(cmd.Context(), args[0], dopt, normalize.Options{Numbers: nf, Logger: logging.ForModule(log, "normalize")})
		if err != nil {
			return err
		}

		ctl := c.Controls()
		f := cmd.Flags()
		if f.Changed("min-injuries") {
			ctl.MinInjuries = anaMinInjuries
		}
		if f.Changed("hour") {
			ctl.Hour = anaHour
		}
		ctl.FactorColumn = anaFactor
		ctl.TimeFactorColumn = anaTimeFactor
		ctl.ShowSample = anaSample
		ctl.ShowDebug = anaDetails
		page := c.Renderer().Render(t, ctl)

		var out []byte
		if anaJSON {
			out, err = utils.PrettyJSON(page)
			if err != nil {
				return err
			}
		} else {
			out = []byte(page.Markdown())
		}

		if anaChartsDir != "" {
			if err := writeCharts(cmd, anaChartsDir, page); err != nil {
				return err
			}
		}
		if anaOutputPath != "" {
			if err := utils.SafeWriteFile(anaOutputPath, out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote analysis to %s\n", anaOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func loadTable(ctx context.Context, path string, dopt dataset.Options, nopt normalize.Options) (*normalize.Table, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := dataset.Load(ctx, path, dopt)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return normalize.Normalize(raw, nopt), nil
}

// writeCharts renders every drawable panel into dir.
func writeCharts(cmd *cobra.Command, dir string, p *dashboard.Page) error {
	draws := []struct {
		name string
		draw func(*bytes.Buffer) error
	}{
		{"map.svg", func(b *bytes.Buffer) error { return charts.Map(b, p.Map) }},
		{"daily.svg", func(b *bytes.Buffer) error { return charts.Daily(b, p.TimeSeries) }},
		{"hourly.svg", func(b *bytes.Buffer) error { return charts.Hourly(b, p.TimeSeries) }},
		{"factors.svg", func(b *bytes.Buffer) error { return charts.Factors(b, p.Factors) }},
		{"heatmap.png", func(b *bytes.Buffer) error { return charts.Heatmap(b, p.Heatmap, 0, 0) }},
		{"factor-hour.svg", func(b *bytes.Buffer) error { return charts.FactorHour(b, p.FactorHour) }},
	}
	for _, d := range draws {
		var buf bytes.Buffer
		if err := d.draw(&buf); err != nil {
			if errors.Is(err, charts.ErrNoData) {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Skipped %s: panel has no data\n", d.name)
				continue
			}
			return err
		}
		if err := utils.SafeWriteFile(filepath.Join(dir, d.name), buf.Bytes()); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	anaSource.register(analyzeCmd.Flags())
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write the report")
	analyzeCmd.Flags().BoolVar(&anaJSON, "json", false, "emit the full page as JSON instead of Markdown")
	analyzeCmd.Flags().StringVar(&anaChartsDir, "charts", "", "directory to write chart images into")
	analyzeCmd.Flags().IntVar(&anaMinInjuries, "min-injuries", 1, "minimum injured persons for the map")
	analyzeCmd.Flags().IntVar(&anaHour, "hour", 17, "hour of day to highlight (0-23)")
	analyzeCmd.Flags().StringVar(&anaFactor, "factor", "", "factor column to rank (default first available)")
	analyzeCmd.Flags().StringVar(&anaTimeFactor, "time-factor", "", "factor column for the hourly breakdown")
	analyzeCmd.Flags().BoolVar(&anaSample, "sample", false, "include the first rows of the normalized table")
	analyzeCmd.Flags().BoolVar(&anaDetails, "details", false, "include load and column profile details")
}
