package analyzers

import (
	"fmt"
	"math"

	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

// NumBands is the number of octave bands the onset detector tracks
const NumBands = 12

// Band is an inclusive range of spectrum bins
type Band struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// BandEnergyOnsetDetector reduces each spectrum to octave band levels and
// reports how much they rose since the previous frame.
//
// Band i spans nyquist/2^(12-i) .. nyquist/2^(11-i), the lowest band starting
// at 0 Hz. Band level is max(-100, 20*log10(avg)+160) * 0.025.
type BandEnergyOnsetDetector struct {
	bufferSize int
	bands      [NumBands]Band
	previous   [NumBands]float64
	primed     bool
	logger     logging.Logger
}

// NewBandEnergyOnsetDetector builds the band layout for the given sample rate
// and buffer size
func NewBandEnergyOnsetDetector(sampleRate, bufferSize int, logger logging.Logger) (*BandEnergyOnsetDetector, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if !isPowerOfTwo(bufferSize) {
		return nil, fmt.Errorf("buffer size must be a power of two, got %d", bufferSize)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	d := &BandEnergyOnsetDetector{
		bufferSize: bufferSize,
		logger: logger.WithFields(logging.Fields{
			"component": "onset_detector",
		}),
	}

	nyquist := float64(sampleRate) / 2
	for i := 0; i < NumBands; i++ {
		lowFreq := 0.0
		if i != 0 {
			lowFreq = nyquist / math.Pow(2, float64(NumBands-i))
		}
		highFreq := nyquist / math.Pow(2, float64(NumBands-1-i))

		d.bands[i] = Band{
			Low:  frequencyToIndex(lowFreq, sampleRate, bufferSize),
			High: frequencyToIndex(highFreq, sampleRate, bufferSize),
		}
	}

	d.logger.Debug("Band layout computed", logging.Fields{
		"bands": d.bands,
	})

	return d, nil
}

// Bands returns the bin range of every band
func (d *BandEnergyOnsetDetector) Bands() []Band {
	out := make([]Band, NumBands)
	copy(out, d.bands[:])
	return out
}

// Levels returns the band levels of the most recent frame
func (d *BandEnergyOnsetDetector) Levels() []float64 {
	out := make([]float64, NumBands)
	copy(out, d.previous[:])
	return out
}

// Process returns the onset strength of spectrum: the summed change of every
// band level since the previous frame. Decreases count negatively. The first
// frame only establishes the baseline and yields 0.
func (d *BandEnergyOnsetDetector) Process(spectrum []float64) (float64, error) {
	if len(spectrum) != d.bufferSize {
		return 0, fmt.Errorf("%w: spectrum=%d expected=%d", ErrBufferMismatch, len(spectrum), d.bufferSize)
	}

	onset := 0.0
	for i, band := range d.bands {
		level := bandLevel(bandAverage(spectrum, band))
		onset += level - d.previous[i]
		d.previous[i] = level
	}

	if !d.primed {
		d.primed = true
		return 0, nil
	}
	return onset, nil
}

// Reset forgets the previous frame
func (d *BandEnergyOnsetDetector) Reset() {
	d.previous = [NumBands]float64{}
	d.primed = false
}

func bandAverage(spectrum []float64, band Band) float64 {
	sum := 0.0
	for j := band.Low; j <= band.High; j++ {
		sum += spectrum[j]
	}
	return sum / float64(band.High-band.Low+1)
}

func bandLevel(average float64) float64 {
	return math.Max(-100, 20*math.Log10(average)+160) * 0.025
}
