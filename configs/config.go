package configs

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose   bool   `mapstructure:"verbose"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Spectral analysis configuration
	Analysis AnalysisConfig `mapstructure:"analysis"`

	// Tempo estimation and beat tracking
	Tempo TempoConfig `mapstructure:"tempo"`

	// Pitch calibration
	Calibration CalibrationConfig `mapstructure:"calibration"`

	// Output configuration
	Output OutputConfig `mapstructure:"output"`
}

// AnalysisConfig contains per-frame analysis settings
type AnalysisConfig struct {
	SampleRate     int     `mapstructure:"sample_rate"`
	BufferSize     int     `mapstructure:"buffer_size"`
	WindowFunction string  `mapstructure:"window_function"`
	MinMagnitude   float64 `mapstructure:"min_magnitude"`
	ReferenceLevel float64 `mapstructure:"reference_level"`
	MinDB          float64 `mapstructure:"min_db"`
}

// TempoConfig contains tempo and beat tracking settings
type TempoConfig struct {
	MaxLag      int     `mapstructure:"max_lag"`
	Decay       float64 `mapstructure:"decay"`
	History     int     `mapstructure:"history"`
	Threshold   float64 `mapstructure:"threshold"`
	OctaveWidth float64 `mapstructure:"octave_width"`
}

// CalibrationConfig contains pitch calibration settings
type CalibrationConfig struct {
	References []string `mapstructure:"references"`
	// Table is an optional calibrated table exported by the calibrate command
	Table string `mapstructure:"table"`
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Format    string `mapstructure:"format"`
	Precision int    `mapstructure:"precision"`
	Colors    bool   `mapstructure:"colors"`
}

// Supported values
var (
	LogLevels     = []string{"debug", "info", "warn", "error"}
	LogFormats    = []string{"json", "console"}
	OutputFormats = []string{"table", "json", "yaml"}
	Windows       = []string{"bartlett", "blackman", "flattop", "hamming", "hann", "rectangular"}
)

// LoadConfig loads configuration from the global viper instance
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(viper.GetViper())
}

// LoadConfigFrom applies defaults to v, decodes and validates the result
func LoadConfigFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var err error

	if !slices.Contains(LogLevels, strings.ToLower(c.LogLevel)) {
		err = multierr.Append(err, fmt.Errorf("log_level %q must be one of %v", c.LogLevel, LogLevels))
	}
	if !slices.Contains(LogFormats, strings.ToLower(c.LogFormat)) {
		err = multierr.Append(err, fmt.Errorf("log_format %q must be one of %v", c.LogFormat, LogFormats))
	}

	a := c.Analysis
	if a.SampleRate <= 0 {
		err = multierr.Append(err, fmt.Errorf("analysis.sample_rate must be positive, got %d", a.SampleRate))
	}
	if a.BufferSize <= 0 || a.BufferSize&(a.BufferSize-1) != 0 {
		err = multierr.Append(err, fmt.Errorf("analysis.buffer_size must be a power of two, got %d", a.BufferSize))
	}
	if !slices.Contains(Windows, strings.ToLower(a.WindowFunction)) {
		err = multierr.Append(err, fmt.Errorf("analysis.window_function %q must be one of %v", a.WindowFunction, Windows))
	}
	if a.MinMagnitude < 0 {
		err = multierr.Append(err, fmt.Errorf("analysis.min_magnitude must not be negative, got %g", a.MinMagnitude))
	}
	if a.ReferenceLevel <= 0 {
		err = multierr.Append(err, fmt.Errorf("analysis.reference_level must be positive, got %g", a.ReferenceLevel))
	}

	t := c.Tempo
	if t.MaxLag < 2 {
		err = multierr.Append(err, fmt.Errorf("tempo.max_lag must be at least 2, got %d", t.MaxLag))
	}
	if t.Decay <= 0 || t.Decay >= 1 {
		err = multierr.Append(err, fmt.Errorf("tempo.decay must be in (0, 1), got %g", t.Decay))
	}
	if t.History < 2 {
		err = multierr.Append(err, fmt.Errorf("tempo.history must be at least 2, got %d", t.History))
	}
	if t.Threshold < 0 {
		err = multierr.Append(err, fmt.Errorf("tempo.threshold must not be negative, got %g", t.Threshold))
	}
	if t.OctaveWidth < 0 {
		err = multierr.Append(err, fmt.Errorf("tempo.octave_width must not be negative, got %g", t.OctaveWidth))
	}

	if len(c.Calibration.References) < 2 {
		err = multierr.Append(err, fmt.Errorf("calibration.references needs at least 2 notes, got %d",
			len(c.Calibration.References)))
	}

	if !slices.Contains(OutputFormats, strings.ToLower(c.Output.Format)) {
		err = multierr.Append(err, fmt.Errorf("output.format %q must be one of %v", c.Output.Format, OutputFormats))
	}
	if c.Output.Precision < 0 {
		err = multierr.Append(err, fmt.Errorf("output.precision must not be negative, got %d", c.Output.Precision))
	}

	return err
}
