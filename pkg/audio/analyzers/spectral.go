package analyzers

import (
	"errors"
	"fmt"
	"math"

	"github.com/richmond2010/DoRaeMi/pkg/logging"
	"gonum.org/v1/gonum/floats"
)

// ErrBufferMismatch is returned when a frame's sample and spectrum buffers
// are not the same length, or do not match the analyzer's buffer size.
var ErrBufferMismatch = errors.New("buffer size mismatch")

// FrequencyFilter restricts the dominant-frequency search to the band
// spanned by a pitch table
type FrequencyFilter interface {
	// FrequencyRange returns the lowest and highest frequency in Hz.
	// ok is false when the filter has no entries.
	FrequencyRange() (min, max float64, ok bool)
}

// SpectralConfig holds the analyzer parameters
type SpectralConfig struct {
	SampleRate     int     `json:"sample_rate"`
	BufferSize     int     `json:"buffer_size"`
	MinMagnitude   float64 `json:"min_magnitude"`   // bins at or below this are ignored
	ReferenceLevel float64 `json:"reference_level"` // RMS that maps to 0 dB
	MinDB          float64 `json:"min_db"`          // dB floor
}

// DefaultSpectralConfig returns the analyzer defaults
func DefaultSpectralConfig() SpectralConfig {
	return SpectralConfig{
		SampleRate:     44100,
		BufferSize:     1024,
		MinMagnitude:   0.01,
		ReferenceLevel: 0.1,
		MinDB:          -160,
	}
}

// SpectralAnalyzer derives level and dominant pitch from one frame. It keeps
// no state between frames.
type SpectralAnalyzer struct {
	cfg    SpectralConfig
	logger logging.Logger
}

// NewSpectralAnalyzer creates a new spectral analyzer
func NewSpectralAnalyzer(cfg SpectralConfig, logger logging.Logger) (*SpectralAnalyzer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if !isPowerOfTwo(cfg.BufferSize) {
		return nil, fmt.Errorf("buffer size must be a power of two, got %d", cfg.BufferSize)
	}
	if cfg.ReferenceLevel <= 0 {
		return nil, fmt.Errorf("reference level must be positive, got %g", cfg.ReferenceLevel)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &SpectralAnalyzer{
		cfg: cfg,
		logger: logger.WithFields(logging.Fields{
			"component":   "spectral_analyzer",
			"sample_rate": cfg.SampleRate,
			"buffer_size": cfg.BufferSize,
		}),
	}, nil
}

// Config returns the analyzer parameters
func (sa *SpectralAnalyzer) Config() SpectralConfig {
	return sa.cfg
}

// Nyquist returns half the sample rate
func (sa *SpectralAnalyzer) Nyquist() float64 {
	return float64(sa.cfg.SampleRate) / 2
}

// BinWidth returns the Hz spacing between adjacent spectrum bins
func (sa *SpectralAnalyzer) BinWidth() float64 {
	return sa.Nyquist() / float64(sa.cfg.BufferSize)
}

// Bandwidth returns the frequency resolution of the transform,
// sampleRate/bufferSize.
func (sa *SpectralAnalyzer) Bandwidth() float64 {
	return float64(sa.cfg.SampleRate) / float64(sa.cfg.BufferSize)
}

// FrequencyForIndex converts a (fractional) bin index to Hz
func (sa *SpectralAnalyzer) FrequencyForIndex(index float64) float64 {
	return index * sa.Nyquist() / float64(sa.cfg.BufferSize)
}

// CalculateIndex finds the bin closest to frequency
func (sa *SpectralAnalyzer) CalculateIndex(frequency float64) int {
	return frequencyToIndex(frequency, sa.cfg.SampleRate, sa.cfg.BufferSize)
}

// Level computes the RMS of samples and its dB value relative to the
// reference level, floor-clamped to MinDB.
func (sa *SpectralAnalyzer) Level(samples []float64) (rms, db float64) {
	if len(samples) == 0 {
		return 0, sa.cfg.MinDB
	}

	rms = math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
	db = 20 * math.Log10(rms/sa.cfg.ReferenceLevel)
	if math.IsNaN(db) || db < sa.cfg.MinDB {
		db = sa.cfg.MinDB
	}
	return rms, db
}

// DominantFrequency scans spectrum[lo..hi] for the strongest bin above the
// magnitude threshold and refines its index from the two neighbours.
//
// The refinement uses linear magnitude ratios,
//
//	index += 0.5 * ((right/center)^2 - (left/center)^2)
//
// rather than the log-magnitude three point estimator. It is only applied
// when both neighbours lie inside [lo, hi], which keeps the shift within
// half a bin.
func (sa *SpectralAnalyzer) DominantFrequency(spectrum []float64, lo, hi int) (frequency, index float64, ok bool) {
	if len(spectrum) == 0 {
		return 0, 0, false
	}
	if lo < 0 {
		lo = 0
	}
	if hi > len(spectrum)-1 {
		hi = len(spectrum) - 1
	}

	highest := 0.0
	peak := -1
	for i := lo; i <= hi; i++ {
		if spectrum[i] > highest && spectrum[i] > sa.cfg.MinMagnitude {
			highest = spectrum[i]
			peak = i
		}
	}

	if peak < 0 {
		return 0, 0, false
	}

	index = float64(peak)
	if peak > lo && peak < hi {
		dL := spectrum[peak-1] / highest
		dR := spectrum[peak+1] / highest
		index += 0.5 * (dR*dR - dL*dL)
	}

	return sa.FrequencyForIndex(index), index, true
}

// SearchRange returns the inclusive bin range to search, narrowed to the
// filter's frequency span when one is supplied.
func (sa *SpectralAnalyzer) SearchRange(filter FrequencyFilter) (lo, hi int) {
	lo, hi = 0, sa.cfg.BufferSize-1
	if filter == nil {
		return lo, hi
	}

	minHz, maxHz, ok := filter.FrequencyRange()
	if !ok {
		return lo, hi
	}

	lo = sa.CalculateIndex(minHz)
	hi = sa.CalculateIndex(maxHz)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

// Analyze fills the derived fields of frame. filter may be nil.
func (sa *SpectralAnalyzer) Analyze(frame *SpectralFrame, filter FrequencyFilter) error {
	if frame == nil {
		return fmt.Errorf("nil frame")
	}

	frame.ResetDerived()

	if len(frame.Samples) != sa.cfg.BufferSize || len(frame.Spectrum) != sa.cfg.BufferSize {
		sa.logger.Debug("Rejecting malformed frame", logging.Fields{
			"samples":  len(frame.Samples),
			"spectrum": len(frame.Spectrum),
		})
		return fmt.Errorf("%w: samples=%d spectrum=%d expected=%d",
			ErrBufferMismatch, len(frame.Samples), len(frame.Spectrum), sa.cfg.BufferSize)
	}

	frame.RMS, frame.DB = sa.Level(frame.Samples)

	lo, hi := sa.SearchRange(filter)
	frame.Frequency, frame.BinIndex, frame.SoundDetected = sa.DominantFrequency(frame.Spectrum, lo, hi)

	return nil
}

// frequencyToIndex maps Hz onto the nearest bin of a bufferSize-bin spectrum
// spanning 0..nyquist. Frequencies within half a bin of either end snap to
// the end bins.
func frequencyToIndex(frequency float64, sampleRate, bufferSize int) int {
	nyquist := float64(sampleRate) / 2
	binWidth := nyquist / float64(bufferSize)

	if frequency < binWidth/2 {
		return 0
	}
	if frequency > nyquist-binWidth/2 {
		return bufferSize - 1
	}

	index := int(math.Round(frequency / binWidth))
	if index > bufferSize-1 {
		index = bufferSize - 1
	}
	return index
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
