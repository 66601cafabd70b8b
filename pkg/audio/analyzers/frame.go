// Package analyzers derives per-frame level, dominant pitch and onset
// strength from a sample buffer and its magnitude spectrum.
package analyzers

// SpectralFrame holds one analysis tick: the buffers supplied by the audio
// source and the values derived from them by the SpectralAnalyzer.
type SpectralFrame struct {
	// Time-domain samples, length is a power of two
	Samples []float64 `json:"-"`
	// Magnitude spectrum aligned with Samples; bin i is i*nyquist/len(Spectrum) Hz
	Spectrum []float64 `json:"-"`

	SampleRate int `json:"sample_rate"`

	RMS           float64 `json:"rms"`
	DB            float64 `json:"db"`
	Frequency     float64 `json:"frequency"` // dominant frequency in Hz, 0 when no sound
	BinIndex      float64 `json:"bin_index"` // interpolated bin of the dominant peak
	SoundDetected bool    `json:"sound_detected"`
}

// NewSpectralFrame allocates a frame with both buffers sized to bufferSize
func NewSpectralFrame(bufferSize, sampleRate int) *SpectralFrame {
	return &SpectralFrame{
		Samples:    make([]float64, bufferSize),
		Spectrum:   make([]float64, bufferSize),
		SampleRate: sampleRate,
	}
}

// Size returns the buffer length
func (f *SpectralFrame) Size() int {
	return len(f.Samples)
}

// ResetDerived clears the analyzer outputs, leaving the buffers untouched
func (f *SpectralFrame) ResetDerived() {
	f.RMS = 0
	f.DB = 0
	f.Frequency = 0
	f.BinIndex = 0
	f.SoundDetected = false
}
