package tempo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

type recordingListener struct {
	name  string
	calls *[]string
	freqs []int
}

func (l *recordingListener) OnBeatDetected(frequencyHz int) {
	l.freqs = append(l.freqs, frequencyHz)
	if l.calls != nil {
		*l.calls = append(*l.calls, l.name)
	}
}

// BeatTrackerTestSuite drives the tracker with synthetic onset trains
type BeatTrackerTestSuite struct {
	suite.Suite
	tracker *BeatTracker
}

func (s *BeatTrackerTestSuite) SetupTest() {
	tracker, err := NewBeatTracker(120, 0.1, logging.NewNopLogger())
	s.Require().NoError(err)
	s.tracker = tracker
}

func (s *BeatTrackerTestSuite) run(onsets []float64, period int, hz int) []int {
	var beats []int
	for i, v := range onsets {
		if s.tracker.Update(v, period, hz) {
			beats = append(beats, i)
		}
	}
	return beats
}

func (s *BeatTrackerTestSuite) TestPeriodicTrainIsTracked() {
	const period = 20
	beats := s.run(impulseTrain(600, period), period, 440)

	s.Require().GreaterOrEqual(len(beats), 25)
	for i := 1; i < len(beats); i++ {
		s.InDelta(period, beats[i]-beats[i-1], 1, "gap before beat %d", i)
	}
}

func (s *BeatTrackerTestSuite) TestNoisyTrainIsDebounced() {
	const period = 20
	rng := rand.New(rand.NewSource(42))

	onsets := impulseTrain(600, period)
	for i := range onsets {
		onsets[i] += 0.3 * rng.Float64()
		// spurious bonus peaks shortly after the real ones
		if i%period == 3 && rng.Float64() < 0.5 {
			onsets[i] += 2
		}
	}

	beats := s.run(onsets, period, 440)
	s.Require().NotEmpty(beats)
	for i := 1; i < len(beats); i++ {
		s.Greater(beats[i]-beats[i-1], period/4)
	}
}

func (s *BeatTrackerTestSuite) TestNoTempoNoBeat() {
	beats := s.run(impulseTrain(300, 20), 0, 440)
	s.Empty(beats)
}

func (s *BeatTrackerTestSuite) TestScoresAreRebased() {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		s.tracker.Update(rng.Float64()*5, 17, 300)

		scores := s.tracker.Scores()
		minimum := scores[0]
		for _, v := range scores {
			minimum = min(minimum, v)
		}
		s.Equal(0.0, minimum)
	}
	s.Equal(500%120, s.tracker.Index())
}

func (s *BeatTrackerTestSuite) TestBeatFlagsMarkFiredFrames() {
	beats := s.run(impulseTrain(100, 20), 20, 440)
	s.Require().NotEmpty(beats)

	flags := s.tracker.BeatFlags()
	for _, b := range beats {
		s.Equal(1.0, flags[b%120])
	}
	s.Equal(100-1-beats[len(beats)-1], s.tracker.SinceLastBeat())
}

func (s *BeatTrackerTestSuite) TestListenersInRegistrationOrder() {
	var calls []string
	first := &recordingListener{name: "first", calls: &calls}
	second := &recordingListener{name: "second", calls: &calls}

	s.tracker.AddListener(first)
	s.tracker.AddListener(second)
	s.Equal(2, s.tracker.ListenerCount())

	beats := s.run(impulseTrain(100, 20), 20, 392)
	s.Require().NotEmpty(beats)

	s.Len(calls, 2*len(beats))
	s.Equal("first", calls[0])
	s.Equal("second", calls[1])
	s.Equal(392, first.freqs[0])
}

func (s *BeatTrackerTestSuite) TestRemovedListenerIsNotCalled() {
	kept := &recordingListener{}
	removed := &recordingListener{}

	s.tracker.AddListener(kept)
	s.tracker.AddListener(removed)
	s.True(s.tracker.RemoveListener(removed))
	s.False(s.tracker.RemoveListener(removed))

	s.run(impulseTrain(100, 20), 20, 440)

	s.NotEmpty(kept.freqs)
	s.Empty(removed.freqs)
}

func (s *BeatTrackerTestSuite) TestSilentFrameSuppressesNotification() {
	l := &recordingListener{}
	s.tracker.AddListener(l)

	beats := s.run(impulseTrain(100, 20), 20, 0)

	s.NotEmpty(beats)
	s.Empty(l.freqs)
}

func TestBeatTrackerSuite(t *testing.T) {
	suite.Run(t, new(BeatTrackerTestSuite))
}

func TestNewBeatTrackerValidation(t *testing.T) {
	_, err := NewBeatTracker(1, 0.1, nil)
	assert.Error(t, err)

	_, err = NewBeatTracker(120, -1, nil)
	assert.Error(t, err)

	tracker, err := NewBeatTracker(120, 0.1, logging.NewNopLogger())
	require.NoError(t, err)
	tracker.SetThreshold(0.2)
	assert.Equal(t, 20.0, tracker.alpha)
}
