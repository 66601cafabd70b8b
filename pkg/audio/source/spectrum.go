// Package source supplies the analysis loop with frames: time-domain
// samples plus the magnitude spectrum computed from them.
package source

import (
	"fmt"
	"math/cmplx"
	"sort"
	"strings"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
)

// WindowType names a window function
type WindowType string

const (
	WindowHann        WindowType = "hann"
	WindowHamming     WindowType = "hamming"
	WindowBlackman    WindowType = "blackman"
	WindowBartlett    WindowType = "bartlett"
	WindowFlatTop     WindowType = "flattop"
	WindowRectangular WindowType = "rectangular"
)

var windows = map[WindowType]func(int) []float64{
	WindowHann:        window.Hann,
	WindowHamming:     window.Hamming,
	WindowBlackman:    window.Blackman,
	WindowBartlett:    window.Bartlett,
	WindowFlatTop:     window.FlatTop,
	WindowRectangular: window.Rectangular,
}

// WindowTypes returns the supported window names
func WindowTypes() []string {
	names := make([]string, 0, len(windows))
	for w := range windows {
		names = append(names, string(w))
	}
	sort.Strings(names)
	return names
}

// ParseWindowType validates a window name
func ParseWindowType(name string) (WindowType, error) {
	w := WindowType(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := windows[w]; !ok {
		return "", fmt.Errorf("unknown window function %q (supported: %s)",
			name, strings.Join(WindowTypes(), ", "))
	}
	return w, nil
}

// SpectrumComputer turns N samples into an N-bin magnitude spectrum. The
// windowed frame is zero-padded to 2N before the FFT so bin i sits at
// i*nyquist/N. Magnitudes are scaled by the window's coherent gain, so a
// sine of amplitude A centred on a bin reads close to A.
type SpectrumComputer struct {
	size   int
	window []float64
	gain   float64
	padded []float64
}

// NewSpectrumComputer creates a computer for frames of size samples
func NewSpectrumComputer(size int, windowType WindowType) (*SpectrumComputer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", size)
	}
	fn, ok := windows[windowType]
	if !ok {
		return nil, fmt.Errorf("unknown window function %q", windowType)
	}

	w := fn(size)
	sum := floats.Sum(w)
	if sum <= 0 {
		return nil, fmt.Errorf("window %s has no gain at size %d", windowType, size)
	}

	return &SpectrumComputer{
		size:   size,
		window: w,
		gain:   2 / sum,
		padded: make([]float64, 2*size),
	}, nil
}

// Size returns the frame size
func (sc *SpectrumComputer) Size() int {
	return sc.size
}

// Compute writes the magnitude spectrum of samples into spectrum. Both
// slices must hold Size() values.
func (sc *SpectrumComputer) Compute(samples, spectrum []float64) error {
	if len(samples) != sc.size || len(spectrum) != sc.size {
		return fmt.Errorf("spectrum computer expects %d samples and bins, got %d and %d",
			sc.size, len(samples), len(spectrum))
	}

	floats.MulTo(sc.padded[:sc.size], samples, sc.window)
	clear(sc.padded[sc.size:])

	bins := fft.FFTReal(sc.padded)
	for i := range spectrum {
		spectrum[i] = cmplx.Abs(bins[i]) * sc.gain
	}
	return nil
}
