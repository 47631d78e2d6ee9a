package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/crashlens/internal/config"
	"github.com/KaramelBytes/crashlens/internal/logging"
)

var (
	// Global flags
	cfgFile  string
	debug    bool
	dataPath string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "crashlens",
	Short: "crashlens: explore vehicle collision records",
	Long: `crashlens loads a table of vehicle collision records (CSV, XLSX or SQLite),
normalizes its columns, and presents an interactive dashboard of injury
locations, collision timing and contributing factors.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.crashlens/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "collision data file (overrides data_path)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c
	if rootCmd.PersistentFlags().Changed("data") && dataPath != "" {
		cfg.DataPath = dataPath
	}
	if debug {
		cfg.LogLevel = "debug"
	}
}

// requireConfig returns the loaded configuration or the load error.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

// newLogger builds the process logger from the configuration.
func newLogger(c *cfgpkg.Global) (*slog.Logger, error) {
	level := c.LogLevel
	if debug {
		level = "debug"
	}
	return logging.New(logging.Options{Level: level, Format: c.LogFormat, Output: os.Stderr})
}
