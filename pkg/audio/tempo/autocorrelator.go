// Package tempo estimates the beat period of an onset-strength signal and
// tracks the beat instants within it.
package tempo

import (
	"fmt"
	"math"
)

// PreferredBPM is the tempo the log-lag prior is centred on
const PreferredBPM = 120.0

// Autocorrelator keeps an exponentially decayed autocorrelation of the onset
// signal for every lag in [0, maxLag), weighted by a log-lag Gaussian prior
// centred on PreferredBPM.
type Autocorrelator struct {
	decay   float64
	delays  []float64
	outputs []float64
	index   int

	bpms    []float64
	weights []float64
}

// NewAutocorrelator precomputes the tempo prior. framePeriod is seconds per
// frame; octaveWidth is the prior's standard deviation in octaves.
func NewAutocorrelator(maxLag int, decay, framePeriod, octaveWidth float64) (*Autocorrelator, error) {
	if maxLag < 2 {
		return nil, fmt.Errorf("max lag must be at least 2, got %d", maxLag)
	}
	if decay <= 0 || decay >= 1 {
		return nil, fmt.Errorf("decay must be in (0, 1), got %g", decay)
	}
	if framePeriod <= 0 {
		return nil, fmt.Errorf("frame period must be positive, got %g", framePeriod)
	}
	if octaveWidth <= 0 {
		return nil, fmt.Errorf("octave width must be positive, got %g", octaveWidth)
	}

	ac := &Autocorrelator{
		decay:   decay,
		delays:  make([]float64, maxLag),
		outputs: make([]float64, maxLag),
		bpms:    make([]float64, maxLag),
		weights: make([]float64, maxLag),
	}

	// lag 0 has no tempo; its weight stays 0 so it never wins
	for lag := 1; lag < maxLag; lag++ {
		bpm := 60.0 / (framePeriod * float64(lag))
		ac.bpms[lag] = bpm
		octaves := math.Log2(bpm/PreferredBPM) / octaveWidth
		ac.weights[lag] = math.Exp(-0.5 * octaves * octaves)
	}

	return ac, nil
}

// MaxLag returns the number of lags tracked
func (ac *Autocorrelator) MaxLag() int {
	return len(ac.delays)
}

// Push adds one onset-strength value and updates every lag
func (ac *Autocorrelator) Push(value float64) {
	n := len(ac.delays)
	ac.delays[ac.index] = value

	gain := 1 - ac.decay
	for lag := 0; lag < n; lag++ {
		delayed := ac.delays[(ac.index-lag+n)%n]
		ac.outputs[lag] += gain * (value*delayed - ac.outputs[lag])
	}

	ac.index++
	if ac.index == n {
		ac.index = 0
	}
}

// Weighted returns the prior-weighted autocorrelation at lag
func (ac *Autocorrelator) Weighted(lag int) float64 {
	if lag < 0 || lag >= len(ac.outputs) {
		return 0
	}
	return ac.weights[lag] * ac.outputs[lag]
}

// BPM returns the tempo a period of lag frames corresponds to, 0 for lag 0
func (ac *Autocorrelator) BPM(lag int) float64 {
	if lag <= 0 || lag >= len(ac.bpms) {
		return 0
	}
	return ac.bpms[lag]
}

// Weight returns the prior weight of lag
func (ac *Autocorrelator) Weight(lag int) float64 {
	if lag < 0 || lag >= len(ac.weights) {
		return 0
	}
	return ac.weights[lag]
}

// Period returns the lag with the largest sqrt(weighted autocorrelation)
// and that value. Negative correlations never win; period is 0 until some
// lag correlates positively.
func (ac *Autocorrelator) Period() (period int, strength float64) {
	for lag := range ac.outputs {
		w := ac.Weighted(lag)
		if w <= 0 {
			continue
		}
		if v := math.Sqrt(w); v > strength {
			strength = v
			period = lag
		}
	}
	return period, strength
}

// Trace writes sqrt of the weighted autocorrelation of every lag into dst,
// longest lag first, and returns it. Negative lags are reported as 0.
func (ac *Autocorrelator) Trace(dst []float64) []float64 {
	n := len(ac.outputs)
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]

	for lag := 0; lag < n; lag++ {
		v := 0.0
		if w := ac.Weighted(lag); w > 0 {
			v = math.Sqrt(w)
		}
		dst[n-1-lag] = v
	}
	return dst
}

// Reset clears the delay line and the running outputs
func (ac *Autocorrelator) Reset() {
	for i := range ac.delays {
		ac.delays[i] = 0
		ac.outputs[i] = 0
	}
	ac.index = 0
}
