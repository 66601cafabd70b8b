// Package pipeline runs one analysis tick per frame: spectral analysis,
// onset detection, tempo estimation and beat tracking.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/richmond2010/DoRaeMi/pkg/audio/analyzers"
	"github.com/richmond2010/DoRaeMi/pkg/audio/tempo"
	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

// ErrReentrantAdvance is returned when Advance is called while another call
// is still running, e.g. from inside a beat listener
var ErrReentrantAdvance = errors.New("advance called re-entrantly")

// ErrSampleRateMismatch is returned for frames recorded at another rate
var ErrSampleRateMismatch = errors.New("sample rate mismatch")

// Config holds the engine parameters
type Config struct {
	Spectral analyzers.SpectralConfig `json:"spectral"`

	MaxLag    int     `json:"max_lag"`
	Decay     float64 `json:"decay"`
	History   int     `json:"history"`
	Threshold float64 `json:"threshold"`
	// OctaveWidth of the tempo prior, 0 selects the analyzer bandwidth
	OctaveWidth float64 `json:"octave_width"`
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		Spectral:  analyzers.DefaultSpectralConfig(),
		MaxLag:    100,
		Decay:     0.997,
		History:   120,
		Threshold: 0.1,
	}
}

// FrameResult is what one tick produced
type FrameResult struct {
	Index         uint64  `json:"index"`
	Time          float64 `json:"time"` // seconds since the first frame
	RMS           float64 `json:"rms"`
	DB            float64 `json:"db"`
	Frequency     float64 `json:"frequency"`
	SoundDetected bool    `json:"sound_detected"`
	Onset         float64 `json:"onset"`
	TempoPeriod   int     `json:"tempo_period"`
	TempoStrength float64 `json:"tempo_strength"`
	BPM           float64 `json:"bpm"`
	Beat          bool    `json:"beat"`
}

// Engine owns the per-frame components. Advance must be driven by a single
// caller; SetFilter and the listener methods may be called concurrently.
type Engine struct {
	cfg            Config
	analyzer       *analyzers.SpectralAnalyzer
	onsets         *analyzers.BandEnergyOnsetDetector
	autocorrelator *tempo.Autocorrelator
	tracker        *tempo.BeatTracker

	filterMu sync.RWMutex
	filter   analyzers.FrequencyFilter

	advancing   atomic.Bool
	frames      atomic.Uint64
	framePeriod float64
	period      int
	bpm         float64

	logger logging.Logger
}

// NewEngine builds the analysis chain
func NewEngine(cfg Config, logger logging.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	analyzer, err := analyzers.NewSpectralAnalyzer(cfg.Spectral, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create spectral analyzer: %w", err)
	}

	onsets, err := analyzers.NewBandEnergyOnsetDetector(cfg.Spectral.SampleRate, cfg.Spectral.BufferSize, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create onset detector: %w", err)
	}

	framePeriod := float64(cfg.Spectral.BufferSize) / float64(cfg.Spectral.SampleRate)
	width := cfg.OctaveWidth
	if width == 0 {
		width = analyzer.Bandwidth()
	}

	ac, err := tempo.NewAutocorrelator(cfg.MaxLag, cfg.Decay, framePeriod, width)
	if err != nil {
		return nil, fmt.Errorf("failed to create autocorrelator: %w", err)
	}

	tracker, err := tempo.NewBeatTracker(cfg.History, cfg.Threshold, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create beat tracker: %w", err)
	}

	e := &Engine{
		cfg:            cfg,
		analyzer:       analyzer,
		onsets:         onsets,
		autocorrelator: ac,
		tracker:        tracker,
		framePeriod:    framePeriod,
		logger: logger.WithFields(logging.Fields{
			"component": "engine",
		}),
	}

	e.logger.Debug("Engine created", logging.Fields{
		"frame_period": framePeriod,
		"octave_width": width,
		"max_lag":      cfg.MaxLag,
		"history":      cfg.History,
	})

	return e, nil
}

// Config returns the engine parameters
func (e *Engine) Config() Config {
	return e.cfg
}

// Analyzer returns the spectral analyzer
func (e *Engine) Analyzer() *analyzers.SpectralAnalyzer {
	return e.analyzer
}

// FramePeriod returns the seconds covered by one frame
func (e *Engine) FramePeriod() float64 {
	return e.framePeriod
}

// SetFilter restricts the dominant-frequency search. nil searches the
// whole spectrum.
func (e *Engine) SetFilter(filter analyzers.FrequencyFilter) {
	e.filterMu.Lock()
	e.filter = filter
	e.filterMu.Unlock()
}

func (e *Engine) currentFilter() analyzers.FrequencyFilter {
	e.filterMu.RLock()
	defer e.filterMu.RUnlock()
	return e.filter
}

// AddListener registers l for beat notifications
func (e *Engine) AddListener(l tempo.Listener) {
	e.tracker.AddListener(l)
}

// RemoveListener unregisters l and reports whether it was registered
func (e *Engine) RemoveListener(l tempo.Listener) bool {
	return e.tracker.RemoveListener(l)
}

// FrameIndex returns the index of the frame being processed, or of the
// next one between calls
func (e *Engine) FrameIndex() uint64 {
	return e.frames.Load()
}

// Tempo returns the most recent tempo period in frames and its BPM
func (e *Engine) Tempo() (int, float64) {
	return e.period, e.bpm
}

// Advance processes one frame. A malformed frame returns an error and
// leaves every component untouched, so the next call proceeds normally.
func (e *Engine) Advance(frame *analyzers.SpectralFrame) (FrameResult, error) {
	if !e.advancing.CompareAndSwap(false, true) {
		return FrameResult{}, ErrReentrantAdvance
	}
	defer e.advancing.Store(false)

	if frame == nil {
		return FrameResult{}, fmt.Errorf("nil frame")
	}
	if frame.SampleRate != 0 && frame.SampleRate != e.cfg.Spectral.SampleRate {
		return FrameResult{}, fmt.Errorf("%w: frame=%d engine=%d",
			ErrSampleRateMismatch, frame.SampleRate, e.cfg.Spectral.SampleRate)
	}

	if err := e.analyzer.Analyze(frame, e.currentFilter()); err != nil {
		return FrameResult{}, err
	}

	onset, err := e.onsets.Process(frame.Spectrum)
	if err != nil {
		return FrameResult{}, err
	}

	e.autocorrelator.Push(onset)
	period, strength := e.autocorrelator.Period()
	e.period = period
	e.bpm = e.autocorrelator.BPM(period)

	index := e.frames.Load()
	beat := e.tracker.Update(onset, period, int(frame.Frequency))
	e.frames.Add(1)

	return FrameResult{
		Index:         index,
		Time:          float64(index) * e.framePeriod,
		RMS:           frame.RMS,
		DB:            frame.DB,
		Frequency:     frame.Frequency,
		SoundDetected: frame.SoundDetected,
		Onset:         onset,
		TempoPeriod:   period,
		TempoStrength: strength,
		BPM:           e.bpm,
		Beat:          beat,
	}, nil
}

// Reset clears all history. Listeners and the filter are kept.
func (e *Engine) Reset() {
	e.onsets.Reset()
	e.autocorrelator.Reset()
	e.tracker.Reset()
	e.frames.Store(0)
	e.period = 0
	e.bpm = 0
}
