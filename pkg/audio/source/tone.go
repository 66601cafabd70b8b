package source

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/richmond2010/DoRaeMi/pkg/audio/analyzers"
)

// ToneConfig describes a synthetic test signal: a sine with an optional
// click (a single-sample impulse in the middle of the frame) every
// ClickEvery frames, which gives the onset detector a steady beat.
type ToneConfig struct {
	SampleRate     int
	BufferSize     int
	Frequency      float64
	Amplitude      float64
	ClickEvery     int
	ClickAmplitude float64
	// Frames limits the signal length, 0 means unbounded
	Frames int
	Window WindowType
}

// ToneSource generates frames from a ToneConfig
type ToneSource struct {
	cfg      ToneConfig
	spectrum *SpectrumComputer
	frame    int
}

// NewToneSource creates a tone generator
func NewToneSource(cfg ToneConfig) (*ToneSource, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Frequency < 0 || cfg.Frequency >= float64(cfg.SampleRate)/2 {
		return nil, fmt.Errorf("tone frequency %g Hz outside [0, %d)", cfg.Frequency, cfg.SampleRate/2)
	}
	if cfg.Window == "" {
		cfg.Window = WindowBlackman
	}

	sc, err := NewSpectrumComputer(cfg.BufferSize, cfg.Window)
	if err != nil {
		return nil, err
	}
	return &ToneSource{cfg: cfg, spectrum: sc}, nil
}

// Next generates the next frame
func (s *ToneSource) Next(ctx context.Context, frame *analyzers.SpectralFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.Frames > 0 && s.frame >= s.cfg.Frames {
		return io.EOF
	}
	if frame.Size() != s.cfg.BufferSize {
		return fmt.Errorf("%w: frame holds %d samples, source produces %d",
			analyzers.ErrBufferMismatch, frame.Size(), s.cfg.BufferSize)
	}

	s.render(s.frame, frame.Samples)
	s.frame++

	frame.SampleRate = s.cfg.SampleRate
	frame.ResetDerived()
	return s.spectrum.Compute(frame.Samples, frame.Spectrum)
}

func (s *ToneSource) render(index int, dst []float64) {
	n := len(dst)
	step := 2 * math.Pi * s.cfg.Frequency / float64(s.cfg.SampleRate)
	start := index * n

	for i := range dst {
		dst[i] = s.cfg.Amplitude * math.Sin(step*float64(start+i))
	}
	if s.cfg.ClickEvery > 0 && index%s.cfg.ClickEvery == 0 {
		dst[n/2] += s.cfg.ClickAmplitude
	}
}

// Render returns the samples of frames consecutive frames
func (s *ToneSource) Render(frames int) []float64 {
	n := s.cfg.BufferSize
	out := make([]float64, frames*n)
	for f := range frames {
		s.render(f, out[f*n:(f+1)*n])
	}
	return out
}

// SampleRate returns the generator's sample rate
func (s *ToneSource) SampleRate() int {
	return s.cfg.SampleRate
}

// BufferSize returns the frame size
func (s *ToneSource) BufferSize() int {
	return s.cfg.BufferSize
}

// Close is a no-op
func (s *ToneSource) Close() error {
	return nil
}
