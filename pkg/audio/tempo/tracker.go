package tempo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

// BeatTracker locates periodic beat instants with a dynamic-programming
// score over a circular history of onset strengths.
//
// For each frame t the score is
//
//	score[t] = onset + max_i(score[t-i] - alpha*log(i/p)^2),  i in [p/2, min(C, 2p))
//
// where p is the current tempo period and alpha = 100*threshold. The buffer
// is re-based on its minimum every frame. A beat is declared when score[t] is
// the buffer maximum and more than p/4 frames have passed since the last one.
type BeatTracker struct {
	onsets    []float64
	scores    []float64
	beatFlags []float64

	current   int
	sinceLast int
	threshold float64
	alpha     float64

	registry listenerRegistry
	logger   logging.Logger
}

// NewBeatTracker creates a tracker remembering history frames
func NewBeatTracker(history int, threshold float64, logger logging.Logger) (*BeatTracker, error) {
	if history < 2 {
		return nil, fmt.Errorf("history must be at least 2 frames, got %d", history)
	}
	if threshold < 0 {
		return nil, fmt.Errorf("threshold must not be negative, got %g", threshold)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &BeatTracker{
		onsets:    make([]float64, history),
		scores:    make([]float64, history),
		beatFlags: make([]float64, history),
		threshold: threshold,
		alpha:     100 * threshold,
		logger: logger.WithFields(logging.Fields{
			"component": "beat_tracker",
			"history":   history,
		}),
	}, nil
}

// AddListener registers l for beat notifications
func (bt *BeatTracker) AddListener(l Listener) {
	bt.registry.add(l)
}

// RemoveListener unregisters l and reports whether it was registered
func (bt *BeatTracker) RemoveListener(l Listener) bool {
	return bt.registry.remove(l)
}

// ListenerCount returns the number of registered listeners
func (bt *BeatTracker) ListenerCount() int {
	return bt.registry.len()
}

// SetThreshold changes the tempo-deviation penalty
func (bt *BeatTracker) SetThreshold(threshold float64) {
	bt.threshold = threshold
	bt.alpha = 100 * threshold
}

// Update consumes one frame's onset strength given the current tempo period
// and returns whether a beat was declared at this frame. Listeners are only
// notified when frequencyHz is nonzero, after the tracker state is updated.
func (bt *BeatTracker) Update(onset float64, period int, frequencyHz int) bool {
	size := len(bt.scores)
	t := bt.current

	bt.onsets[t] = onset
	bt.beatFlags[t] = 0
	bt.sinceLast++

	best, ok := bt.bestPredecessor(t, onset, period)
	if ok {
		bt.scores[t] = best
	} else {
		bt.scores[t] = floats.Min(bt.scores)
	}

	floats.AddConst(-floats.Min(bt.scores), bt.scores)

	beat := false
	if ok && floats.MaxIdx(bt.scores) == t && bt.sinceLast > period/4 {
		beat = true
		bt.beatFlags[t] = 1
		bt.sinceLast = 0
	}

	bt.current++
	if bt.current == size {
		bt.current = 0
	}

	if beat {
		bt.logger.Debug("Beat detected", logging.Fields{
			"index":     t,
			"period":    period,
			"frequency": frequencyHz,
		})
		if frequencyHz != 0 {
			bt.registry.notify(frequencyHz)
		}
	}

	return beat
}

func (bt *BeatTracker) bestPredecessor(t int, onset float64, period int) (float64, bool) {
	if period < 1 {
		return 0, false
	}

	size := len(bt.scores)
	lo := max(1, period/2)
	hi := min(size, 2*period)

	best := math.Inf(-1)
	found := false
	for i := lo; i < hi; i++ {
		deviation := math.Log(float64(i) / float64(period))
		candidate := onset + bt.scores[(t-i+size)%size] - bt.alpha*deviation*deviation
		if !found || candidate > best {
			best = candidate
			found = true
		}
	}
	return best, found
}

// Index returns the circular index the next frame will be written to
func (bt *BeatTracker) Index() int {
	return bt.current
}

// SinceLastBeat returns the number of frames since the last declared beat
func (bt *BeatTracker) SinceLastBeat() int {
	return bt.sinceLast
}

// Scores returns a copy of the score buffer
func (bt *BeatTracker) Scores() []float64 {
	out := make([]float64, len(bt.scores))
	copy(out, bt.scores)
	return out
}

// Onsets returns a copy of the onset history
func (bt *BeatTracker) Onsets() []float64 {
	out := make([]float64, len(bt.onsets))
	copy(out, bt.onsets)
	return out
}

// BeatFlags returns a copy of the per-frame beat markers (1 where a beat fired)
func (bt *BeatTracker) BeatFlags() []float64 {
	out := make([]float64, len(bt.beatFlags))
	copy(out, bt.beatFlags)
	return out
}

// Reset clears the history and the debounce counter. Listeners stay registered.
func (bt *BeatTracker) Reset() {
	for i := range bt.scores {
		bt.onsets[i] = 0
		bt.scores[i] = 0
		bt.beatFlags[i] = 0
	}
	bt.current = 0
	bt.sinceLast = 0
}
