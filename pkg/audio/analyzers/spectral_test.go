package analyzers

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

type staticFilter struct {
	min, max float64
	ok       bool
}

func (f staticFilter) FrequencyRange() (float64, float64, bool) {
	return f.min, f.max, f.ok
}

func newTestAnalyzer(t *testing.T) *SpectralAnalyzer {
	t.Helper()
	sa, err := NewSpectralAnalyzer(DefaultSpectralConfig(), logging.NewNopLogger())
	require.NoError(t, err)
	return sa
}

func TestNewSpectralAnalyzerValidation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*SpectralConfig)
	}{
		{"zero sample rate", func(c *SpectralConfig) { c.SampleRate = 0 }},
		{"non power of two", func(c *SpectralConfig) { c.BufferSize = 1000 }},
		{"zero reference", func(c *SpectralConfig) { c.ReferenceLevel = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSpectralConfig()
			tt.mod(&cfg)
			_, err := NewSpectralAnalyzer(cfg, logging.NewNopLogger())
			assert.Error(t, err)
		})
	}
}

func TestLevel(t *testing.T) {
	sa := newTestAnalyzer(t)

	samples := make([]float64, 1024)
	for i := range samples {
		samples[i] = 0.1
	}
	rms, db := sa.Level(samples)
	assert.InDelta(t, 0.1, rms, 1e-12)
	assert.InDelta(t, 0.0, db, 1e-9)

	for i := range samples {
		samples[i] = 1.0
	}
	_, db = sa.Level(samples)
	assert.InDelta(t, 20.0, db, 1e-9)

	rms, db = sa.Level(make([]float64, 1024))
	assert.Equal(t, 0.0, rms)
	assert.Equal(t, -160.0, db)
}

func TestDominantFrequencyPureTone(t *testing.T) {
	sa := newTestAnalyzer(t)
	rng := rand.New(rand.NewSource(7))

	for _, bin := range []int{5, 40, 93, 200, 511, 1000} {
		spectrum := make([]float64, 1024)
		spectrum[bin] = 0.8
		// neighbours never exceed the peak
		spectrum[bin-1] = 0.8 * rng.Float64()
		spectrum[bin+1] = 0.8 * rng.Float64()

		hz, index, ok := sa.DominantFrequency(spectrum, 0, 1023)
		require.True(t, ok)

		tone := float64(bin) * sa.BinWidth()
		assert.InDelta(t, tone, hz, sa.BinWidth(), "bin %d", bin)
		assert.LessOrEqual(t, math.Abs(index-float64(bin)), 0.5, "bin %d", bin)
	}
}

func TestDominantFrequencyInterpolation(t *testing.T) {
	sa := newTestAnalyzer(t)

	spectrum := make([]float64, 1024)
	spectrum[40] = 1.0
	spectrum[41] = 0.5

	_, index, ok := sa.DominantFrequency(spectrum, 0, 1023)
	require.True(t, ok)
	assert.InDelta(t, 40.125, index, 1e-12)

	spectrum[39] = 0.5
	_, index, _ = sa.DominantFrequency(spectrum, 0, 1023)
	assert.InDelta(t, 40.0, index, 1e-12)
}

func TestDominantFrequencyBelowThreshold(t *testing.T) {
	sa := newTestAnalyzer(t)

	spectrum := make([]float64, 1024)
	spectrum[100] = 0.01

	hz, _, ok := sa.DominantFrequency(spectrum, 0, 1023)
	assert.False(t, ok)
	assert.Equal(t, 0.0, hz)
}

func TestAnalyzeWithFilter(t *testing.T) {
	sa := newTestAnalyzer(t)

	frame := NewSpectralFrame(1024, 44100)
	frame.Spectrum[300] = 0.9
	frame.Spectrum[20] = 0.3

	require.NoError(t, sa.Analyze(frame, nil))
	assert.True(t, frame.SoundDetected)
	assert.InDelta(t, 300*sa.BinWidth(), frame.Frequency, 1e-9)

	// C4..C6 keeps the search well below bin 300
	filter := staticFilter{min: 262, max: 1047, ok: true}
	require.NoError(t, sa.Analyze(frame, filter))
	assert.InDelta(t, 20*sa.BinWidth(), frame.Frequency, 1e-9)

	lo, hi := sa.SearchRange(filter)
	assert.Equal(t, 12, lo)
	assert.Equal(t, 49, hi)

	lo, hi = sa.SearchRange(staticFilter{})
	assert.Equal(t, 0, lo)
	assert.Equal(t, 1023, hi)
}

func TestAnalyzeRejectsMismatchedBuffers(t *testing.T) {
	sa := newTestAnalyzer(t)

	frame := &SpectralFrame{
		Samples:  make([]float64, 1024),
		Spectrum: make([]float64, 512),
	}
	err := sa.Analyze(frame, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBufferMismatch))
	assert.False(t, frame.SoundDetected)
}

func TestCalculateIndex(t *testing.T) {
	sa := newTestAnalyzer(t)

	assert.Equal(t, 0, sa.CalculateIndex(0))
	assert.Equal(t, 0, sa.CalculateIndex(sa.BinWidth()/2-0.001))
	assert.Equal(t, 1023, sa.CalculateIndex(22050))
	assert.Equal(t, 1023, sa.CalculateIndex(30000))
	assert.Equal(t, 20, sa.CalculateIndex(20*sa.BinWidth()))
	assert.Equal(t, 21, sa.CalculateIndex(20.6*sa.BinWidth()))
	assert.InDelta(t, 43.066, sa.Bandwidth(), 0.001)
}
