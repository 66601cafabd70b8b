package configs

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 44100, cfg.Analysis.SampleRate)
	assert.Equal(t, 1024, cfg.Analysis.BufferSize)
	assert.Equal(t, 0.997, cfg.Tempo.Decay)
	assert.Equal(t, []string{"C4", "F4", "A4", "C5"}, cfg.Calibration.References)
}

func TestLoadConfigFromYAML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
log_level: debug
analysis:
  buffer_size: 2048
  window_function: hann
tempo:
  threshold: 0.2
calibration:
  references: [C4, E4, G4, C5]
output:
  format: json
`)))

	cfg, err := LoadConfigFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2048, cfg.Analysis.BufferSize)
	assert.Equal(t, "hann", cfg.Analysis.WindowFunction)
	assert.Equal(t, 44100, cfg.Analysis.SampleRate)
	assert.Equal(t, 0.2, cfg.Tempo.Threshold)
	assert.Equal(t, 120, cfg.Tempo.History)
	assert.Equal(t, []string{"C4", "E4", "G4", "C5"}, cfg.Calibration.References)
	assert.Equal(t, "json", cfg.Output.Format)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	cfg.Analysis.BufferSize = 1000
	cfg.Analysis.WindowFunction = "kaiser"
	cfg.Tempo.Decay = 1.5
	cfg.Calibration.References = []string{"A4"}
	cfg.Output.Format = "csv"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 6)
	assert.Contains(t, err.Error(), "analysis.buffer_size")
	assert.Contains(t, err.Error(), "output.format")
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	v := viper.New()
	v.Set("tempo.max_lag", 1)

	_, err := LoadConfigFrom(v)
	assert.ErrorContains(t, err, "tempo.max_lag")
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
