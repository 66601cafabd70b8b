package configs

import (
	"github.com/spf13/viper"
)

// setDefaults sets default configuration values for all components
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Application defaults
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)

	// Analysis defaults
	v.SetDefault("analysis.sample_rate", d.Analysis.SampleRate)
	v.SetDefault("analysis.buffer_size", d.Analysis.BufferSize)
	v.SetDefault("analysis.window_function", d.Analysis.WindowFunction)
	v.SetDefault("analysis.min_magnitude", d.Analysis.MinMagnitude)
	v.SetDefault("analysis.reference_level", d.Analysis.ReferenceLevel)
	v.SetDefault("analysis.min_db", d.Analysis.MinDB)

	// Tempo defaults
	v.SetDefault("tempo.max_lag", d.Tempo.MaxLag)
	v.SetDefault("tempo.decay", d.Tempo.Decay)
	v.SetDefault("tempo.history", d.Tempo.History)
	v.SetDefault("tempo.threshold", d.Tempo.Threshold)
	v.SetDefault("tempo.octave_width", d.Tempo.OctaveWidth)

	// Calibration defaults
	v.SetDefault("calibration.references", d.Calibration.References)
	v.SetDefault("calibration.table", d.Calibration.Table)

	// Output defaults
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.precision", d.Output.Precision)
	v.SetDefault("output.colors", d.Output.Colors)
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		Verbose:     false,
		LogLevel:    "info",
		LogFormat:   "console",
		Analysis:    DefaultAnalysisConfig(),
		Tempo:       DefaultTempoConfig(),
		Calibration: DefaultCalibrationConfig(),
		Output:      DefaultOutputConfig(),
	}
}

// DefaultAnalysisConfig returns default spectral analysis settings
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		SampleRate:     44100,
		BufferSize:     1024,
		WindowFunction: "blackman",
		MinMagnitude:   0.01,
		ReferenceLevel: 0.1,
		MinDB:          -160,
	}
}

// DefaultTempoConfig returns default tempo settings. An octave width of 0
// means the analyzer bandwidth is used.
func DefaultTempoConfig() TempoConfig {
	return TempoConfig{
		MaxLag:      100,
		Decay:       0.997,
		History:     120,
		Threshold:   0.1,
		OctaveWidth: 0,
	}
}

// DefaultCalibrationConfig returns the default reference notes
func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{
		References: []string{"C4", "F4", "A4", "C5"},
	}
}

// DefaultOutputConfig returns default output settings
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Format:    "table",
		Precision: 2,
		Colors:    true,
	}
}

