package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/richmond2010/DoRaeMi/pkg/audio/analyzers"
	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

// Source delivers one frame per analysis tick. Next fills the frame's
// sample and spectrum buffers and returns io.EOF once the source is drained.
type Source interface {
	Next(ctx context.Context, frame *analyzers.SpectralFrame) error
	SampleRate() int
	BufferSize() int
	Close() error
}

// ErrInvalidWAV is returned for files the WAV decoder rejects
var ErrInvalidWAV = errors.New("invalid wav file")

// PCMSource serves frames from an in-memory mono signal with hop = buffer size
type PCMSource struct {
	samples    []float64
	sampleRate int
	spectrum   *SpectrumComputer
	pos        int
}

// NewPCMSource wraps mono samples in [-1, 1]
func NewPCMSource(samples []float64, sampleRate, bufferSize int, windowType WindowType) (*PCMSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	sc, err := NewSpectrumComputer(bufferSize, windowType)
	if err != nil {
		return nil, err
	}
	return &PCMSource{samples: samples, sampleRate: sampleRate, spectrum: sc}, nil
}

// Next copies the next buffer of samples into frame, zero-padding the tail
func (s *PCMSource) Next(ctx context.Context, frame *analyzers.SpectralFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.pos >= len(s.samples) {
		return io.EOF
	}
	if frame.Size() != s.spectrum.Size() {
		return fmt.Errorf("%w: frame holds %d samples, source produces %d",
			analyzers.ErrBufferMismatch, frame.Size(), s.spectrum.Size())
	}

	n := copy(frame.Samples, s.samples[s.pos:])
	clear(frame.Samples[n:])
	s.pos += len(frame.Samples)

	frame.SampleRate = s.sampleRate
	frame.ResetDerived()
	return s.spectrum.Compute(frame.Samples, frame.Spectrum)
}

// SampleRate returns the signal's sample rate
func (s *PCMSource) SampleRate() int {
	return s.sampleRate
}

// BufferSize returns the frame size
func (s *PCMSource) BufferSize() int {
	return s.spectrum.Size()
}

// Frames returns the number of frames the source yields in total
func (s *PCMSource) Frames() int {
	n := s.spectrum.Size()
	return (len(s.samples) + n - 1) / n
}

// Duration returns the length of the signal
func (s *PCMSource) Duration() time.Duration {
	return time.Duration(float64(len(s.samples)) / float64(s.sampleRate) * float64(time.Second))
}

// Close is a no-op
func (s *PCMSource) Close() error {
	return nil
}

// OpenWAV decodes a PCM WAV file, mixing all channels down to mono
func OpenWAV(path string, bufferSize int, windowType WindowType, logger logging.Logger) (*PCMSource, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	samples, sampleRate, err := ReadWAV(path)
	if err != nil {
		return nil, err
	}

	logger.Debug("Decoded WAV file", logging.Fields{
		"component":   "wav_source",
		"path":        path,
		"samples":     len(samples),
		"sample_rate": sampleRate,
	})

	return NewPCMSource(samples, sampleRate, bufferSize, windowType)
}

// ReadWAV returns the mono mixdown of a WAV file, normalised to [-1, 1]
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int(1) << (bitDepth - 1))
	// 8-bit PCM is unsigned, centred on 128
	offset := 0.0
	if bitDepth == 8 {
		offset = 128
	}

	frames := len(buf.Data) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(buf.Data[i*channels+c]) - offset
		}
		mono[i] = sum / float64(channels) / scale
	}

	return mono, buf.Format.SampleRate, nil
}

// WriteWAV writes mono samples in [-1, 1] as a 16-bit PCM WAV file.
// Samples outside the range are clipped.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	const bitDepth = 16
	const fullScale = 1<<(bitDepth-1) - 1

	data := make([]int, len(samples))
	for i, v := range samples {
		v = max(-1, min(1, v))
		data[i] = int(v * fullScale)
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalise %s: %w", path, err)
	}
	return f.Close()
}
