package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richmond2010/DoRaeMi/pkg/audio/analyzers"
	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

type beatRecorder struct {
	freqs []int
}

func (r *beatRecorder) OnBeatDetected(frequencyHz int) {
	r.freqs = append(r.freqs, frequencyHz)
}

type reentrantListener struct {
	engine *Engine
	frame  *analyzers.SpectralFrame
	errs   []error
}

func (l *reentrantListener) OnBeatDetected(int) {
	_, err := l.engine.Advance(l.frame)
	l.errs = append(l.errs, err)
}

type fixedRange struct{ lo, hi float64 }

func (f fixedRange) FrequencyRange() (float64, float64, bool) { return f.lo, f.hi, true }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), logging.NewNopLogger())
	require.NoError(t, err)
	return e
}

// pulseFrame is a tone in bin 20 with a broadband burst every period frames
func pulseFrame(frame *analyzers.SpectralFrame, n, period int) {
	for i := range frame.Spectrum {
		frame.Spectrum[i] = 0
		frame.Samples[i] = 0
	}
	frame.Spectrum[20] = 0.5
	if n%period == 0 {
		for i := range frame.Spectrum {
			frame.Spectrum[i] += 0.3
		}
	}
}

func TestEngineTracksPulseTrain(t *testing.T) {
	const period = 20
	e := newTestEngine(t)
	rec := &beatRecorder{}
	e.AddListener(rec)

	cfg := e.Config().Spectral
	frame := analyzers.NewSpectralFrame(cfg.BufferSize, cfg.SampleRate)

	var beats []uint64
	var last FrameResult
	for n := 0; n < 1200; n++ {
		pulseFrame(frame, n, period)
		res, err := e.Advance(frame)
		require.NoError(t, err)
		assert.Equal(t, uint64(n), res.Index)
		if res.Beat {
			beats = append(beats, res.Index)
		}
		last = res
	}

	assert.Equal(t, period, last.TempoPeriod)
	assert.InDelta(t, 129.2, last.BPM, 0.1)
	assert.InDelta(t, 1199*e.FramePeriod(), last.Time, 1e-9)
	assert.True(t, last.SoundDetected)

	require.GreaterOrEqual(t, len(beats), 50)
	for i := 1; i < len(beats); i++ {
		assert.InDelta(t, period, float64(beats[i]-beats[i-1]), 1)
	}

	require.Len(t, rec.freqs, len(beats))
	assert.Equal(t, 430, rec.freqs[0])
	assert.Equal(t, uint64(1200), e.FrameIndex())

	p, bpm := e.Tempo()
	assert.Equal(t, period, p)
	assert.Equal(t, last.BPM, bpm)
}

func TestEngineFirstFrameHasNoOnset(t *testing.T) {
	e := newTestEngine(t)
	frame := analyzers.NewSpectralFrame(1024, 44100)
	pulseFrame(frame, 0, 20)

	res, err := e.Advance(frame)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Onset)
	assert.False(t, res.Beat)
	assert.InDelta(t, 430.66, res.Frequency, 0.01)
}

func TestEngineSurvivesMalformedFrame(t *testing.T) {
	e := newTestEngine(t)
	good := analyzers.NewSpectralFrame(1024, 44100)
	pulseFrame(good, 1, 20)

	_, err := e.Advance(analyzers.NewSpectralFrame(512, 44100))
	assert.ErrorIs(t, err, analyzers.ErrBufferMismatch)

	_, err = e.Advance(analyzers.NewSpectralFrame(1024, 48000))
	assert.ErrorIs(t, err, ErrSampleRateMismatch)

	_, err = e.Advance(nil)
	assert.Error(t, err)
	assert.Equal(t, uint64(0), e.FrameIndex())

	res, err := e.Advance(good)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Index)
}

func TestEngineFilterRestrictsSearch(t *testing.T) {
	e := newTestEngine(t)
	frame := analyzers.NewSpectralFrame(1024, 44100)
	frame.Spectrum[20] = 0.5
	frame.Spectrum[40] = 0.2

	res, err := e.Advance(frame)
	require.NoError(t, err)
	assert.InDelta(t, 430.66, res.Frequency, 0.01)

	// bins 35..60
	e.SetFilter(fixedRange{lo: 754, hi: 1292})
	res, err = e.Advance(frame)
	require.NoError(t, err)
	assert.InDelta(t, 861.33, res.Frequency, 0.01)

	e.SetFilter(nil)
	res, err = e.Advance(frame)
	require.NoError(t, err)
	assert.InDelta(t, 430.66, res.Frequency, 0.01)
}

func TestEngineRejectsReentrantAdvance(t *testing.T) {
	e := newTestEngine(t)
	cfg := e.Config().Spectral
	frame := analyzers.NewSpectralFrame(cfg.BufferSize, cfg.SampleRate)

	l := &reentrantListener{engine: e, frame: analyzers.NewSpectralFrame(cfg.BufferSize, cfg.SampleRate)}
	e.AddListener(l)

	for n := 0; n < 200; n++ {
		pulseFrame(frame, n, 20)
		_, err := e.Advance(frame)
		require.NoError(t, err)
	}

	require.NotEmpty(t, l.errs)
	for _, err := range l.errs {
		assert.ErrorIs(t, err, ErrReentrantAdvance)
	}
	assert.Equal(t, uint64(200), e.FrameIndex())

	assert.True(t, e.RemoveListener(l))
}

func TestEngineReset(t *testing.T) {
	e := newTestEngine(t)
	frame := analyzers.NewSpectralFrame(1024, 44100)
	for n := 0; n < 100; n++ {
		pulseFrame(frame, n, 20)
		_, err := e.Advance(frame)
		require.NoError(t, err)
	}

	e.Reset()
	assert.Equal(t, uint64(0), e.FrameIndex())
	p, bpm := e.Tempo()
	assert.Zero(t, p)
	assert.Zero(t, bpm)
}

func TestNewEngineValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Spectral.BufferSize = 1000
	_, err := NewEngine(cfg, logging.NewNopLogger())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Decay = 1
	_, err = NewEngine(cfg, logging.NewNopLogger())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.History = 0
	_, err = NewEngine(cfg, logging.NewNopLogger())
	assert.Error(t, err)
}
