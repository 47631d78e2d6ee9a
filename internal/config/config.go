package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/crashlens/internal/dashboard"
	"github.com/KaramelBytes/crashlens/internal/dataset"
	"github.com/KaramelBytes/crashlens/internal/normalize"
	"github.com/KaramelBytes/crashlens/internal/utils"
)

// Global configuration structure.
type Global struct {
	DataPath string `mapstructure:"data_path" yaml:"data_path"`
	MaxRows  int    `mapstructure:"max_rows" yaml:"max_rows"`
	// Source selection for multi-part files
	Sheet     string `mapstructure:"sheet" yaml:"sheet"`
	Table     string `mapstructure:"table" yaml:"table"`
	Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
	// Numeric text parsing
	DecimalSeparator   string `mapstructure:"decimal_separator" yaml:"decimal_separator"`
	ThousandsSeparator string `mapstructure:"thousands_separator" yaml:"thousands_separator"`

	ListenAddr         string `mapstructure:"listen_addr" yaml:"listen_addr"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
	WatchData          bool   `mapstructure:"watch_data" yaml:"watch_data"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Panel defaults
	HeatmapGrid        int     `mapstructure:"heatmap_grid" yaml:"heatmap_grid"`
	HeatmapRadius      float64 `mapstructure:"heatmap_radius" yaml:"heatmap_radius"`
	DefaultMinInjuries int     `mapstructure:"default_min_injuries" yaml:"default_min_injuries"`
	DefaultHour        int     `mapstructure:"default_hour" yaml:"default_hour"`
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"data_path", "max_rows", "sheet", "table", "delimiter",
	"decimal_separator", "thousands_separator",
	"listen_addr", "shutdown_timeout_sec", "watch_data",
	"log_level", "log_format",
	"heatmap_grid", "heatmap_radius", "default_min_injuries", "default_hour",
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".crashlens"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.crashlens/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := defaultDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CRASHLENS")
	v.AutomaticEnv()

	v.SetDefault("data_path", "")
	v.SetDefault("max_rows", 50000)
	v.SetDefault("sheet", "")
	v.SetDefault("table", "")
	v.SetDefault("delimiter", "")
	v.SetDefault("decimal_separator", ".")
	v.SetDefault("thousands_separator", "")
	v.SetDefault("listen_addr", "127.0.0.1:8501")
	v.SetDefault("shutdown_timeout_sec", 10)
	v.SetDefault("watch_data", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("heatmap_grid", 128)
	v.SetDefault("heatmap_radius", 3.0)
	v.SetDefault("default_min_injuries", 1)
	v.SetDefault("default_hour", 17)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// the file is optional; a malformed one is not
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values no command can work with.
func (c *Global) Validate() error {
	if c.MaxRows < 0 {
		return fmt.Errorf("max_rows must be >= 0, got %d", c.MaxRows)
	}
	if c.DefaultHour < 0 || c.DefaultHour > 23 {
		return fmt.Errorf("default_hour must be within 0-23, got %d", c.DefaultHour)
	}
	if c.DefaultMinInjuries < 0 {
		return fmt.Errorf("default_min_injuries must be >= 0, got %d", c.DefaultMinInjuries)
	}
	if len([]rune(c.Delimiter)) > 1 && c.Delimiter != `\t` && c.Delimiter != "tab" {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	if len([]rune(c.DecimalSeparator)) > 1 || len([]rune(c.ThousandsSeparator)) > 1 {
		return fmt.Errorf("number separators must be single characters")
	}
	if c.DecimalSeparator != "" && c.DecimalSeparator == c.ThousandsSeparator {
		return fmt.Errorf("decimal_separator and thousands_separator must differ")
	}
	return nil
}

// DatasetOptions maps the source settings onto loader options.
func (c *Global) DatasetOptions() dataset.Options {
	opt := dataset.Options{MaxRows: c.MaxRows, Sheet: c.Sheet, Table: c.Table}
	switch c.Delimiter {
	case "":
	case `\t`, "tab":
		opt.Delimiter = '\t'
	default:
		opt.Delimiter = []rune(c.Delimiter)[0]
	}
	return opt
}

// NumberFormat returns the configured separators.
func (c *Global) NumberFormat() normalize.NumberFormat {
	return normalize.NumberFormat{
		DecimalSeparator:   firstRune(c.DecimalSeparator),
		ThousandsSeparator: firstRune(c.ThousandsSeparator),
	}
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

// Get returns the string form of a key's value.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "data_path":
		return c.DataPath, nil
	case "max_rows":
		return strconv.Itoa(c.MaxRows), nil
	case "sheet":
		return c.Sheet, nil
	case "table":
		return c.Table, nil
	case "delimiter":
		return c.Delimiter, nil
	case "decimal_separator":
		return c.DecimalSeparator, nil
	case "thousands_separator":
		return c.ThousandsSeparator, nil
	case "listen_addr":
		return c.ListenAddr, nil
	case "shutdown_timeout_sec":
		return strconv.Itoa(c.ShutdownTimeoutSec), nil
	case "watch_data":
		return strconv.FormatBool(c.WatchData), nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "heatmap_grid":
		return strconv.Itoa(c.HeatmapGrid), nil
	case "heatmap_radius":
		return strconv.FormatFloat(c.HeatmapRadius, 'g', -1, 64), nil
	case "default_min_injuries":
		return strconv.Itoa(c.DefaultMinInjuries), nil
	case "default_hour":
		return strconv.Itoa(c.DefaultHour), nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

// Set parses val into key and validates the result.
func (c *Global) Set(key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid int for %s: %w", key, err)
		}
		return i, nil
	}
	var err error
	switch key {
	case "data_path":
		c.DataPath = val
	case "max_rows":
		c.MaxRows, err = atoi()
	case "sheet":
		c.Sheet = val
	case "table":
		c.Table = val
	case "delimiter":
		c.Delimiter = val
	case "decimal_separator":
		c.DecimalSeparator = val
	case "thousands_separator":
		c.ThousandsSeparator = val
	case "listen_addr":
		c.ListenAddr = val
	case "shutdown_timeout_sec":
		c.ShutdownTimeoutSec, err = atoi()
	case "watch_data":
		b, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("invalid bool for watch_data: %w", perr)
		}
		c.WatchData = b
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
		}
	case "log_format":
		switch strings.ToLower(val) {
		case "text", "json":
			c.LogFormat = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_format: %s (use text or json)", val)
		}
	case "heatmap_grid":
		c.HeatmapGrid, err = atoi()
	case "heatmap_radius":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil || f <= 0 {
			return fmt.Errorf("invalid float for heatmap_radius: %v", val)
		}
		c.HeatmapRadius = f
	case "default_min_injuries":
		c.DefaultMinInjuries, err = atoi()
	case "default_hour":
		c.DefaultHour, err = atoi()
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	if err != nil {
		return err
	}
	return c.Validate()
}

// Controls returns the initial page controls.
func (c *Global) Controls() dashboard.Controls {
	ctl := dashboard.DefaultControls()
	ctl.MinInjuries = c.DefaultMinInjuries
	ctl.Hour = c.DefaultHour
	return ctl
}

// Renderer returns the panel rendering parameters.
func (c *Global) Renderer() dashboard.Renderer {
	return dashboard.Renderer{HeatmapGrid: c.HeatmapGrid, HeatmapRadius: c.HeatmapRadius}
}
