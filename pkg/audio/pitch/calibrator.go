package pitch

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

// DefaultReferences are the reference notes captured during calibration
var DefaultReferences = []string{"C4", "F4", "A4", "C5"}

// State is the calibrator's capture state
type State int

const (
	StateIdle State = iota
	StateListening
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Calibrator captures the frequencies of a few reference notes and derives a
// full C4..C6 table from them.
//
// Capture runs Idle -> Listening(note) -> Idle: StartListening selects the
// note, Observe feeds it frequencies from the analysis loop and Commit stores
// the last one. Calibrate validates the references, repairs out-of-order
// ones where it can and publishes the filled-in table atomically.
type Calibrator struct {
	mu         sync.Mutex
	references []Note
	captured   map[string]float64
	state      State
	target     Note
	lastHz     int

	table  atomic.Pointer[Table]
	logger logging.Logger
}

// NewCalibrator creates a calibrator for the given reference labels, which
// must be at least two distinct notes in C4..C6.
func NewCalibrator(references []string, logger logging.Logger) (*Calibrator, error) {
	if len(references) == 0 {
		references = DefaultReferences
	}
	if len(references) < 2 {
		return nil, fmt.Errorf("calibration needs at least 2 reference notes, got %d", len(references))
	}

	notes := make([]Note, 0, len(references))
	for _, label := range references {
		n, err := ParseNote(label)
		if err != nil {
			return nil, fmt.Errorf("invalid reference: %w", err)
		}
		notes = append(notes, n)
	}
	for i := 1; i < len(notes); i++ {
		if notes[i].MIDI <= notes[i-1].MIDI {
			return nil, fmt.Errorf("reference notes must be ascending: %s follows %s", notes[i], notes[i-1])
		}
	}

	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &Calibrator{
		references: notes,
		captured:   make(map[string]float64, len(notes)),
		logger: logger.WithFields(logging.Fields{
			"component": "pitch_calibrator",
		}),
	}, nil
}

// References returns the reference notes in ascending order
func (c *Calibrator) References() []Note {
	out := make([]Note, len(c.references))
	copy(out, c.references)
	return out
}

func (c *Calibrator) reference(label string) (Note, error) {
	n, err := ParseNote(label)
	if err != nil {
		return Note{}, err
	}
	for _, ref := range c.references {
		if ref.MIDI == n.MIDI {
			return ref, nil
		}
	}
	return Note{}, fmt.Errorf("%w: %s is not a reference note", ErrUnknownNote, n)
}

// StartListening selects the reference note to capture next and resets the
// last observed frequency
func (c *Calibrator) StartListening(label string) error {
	n, err := c.reference(label)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateListening
	c.target = n
	c.lastHz = 0

	c.logger.Debug("Listening for reference", logging.Fields{"note": n.Name})
	return nil
}

// Observe records a detected frequency while listening. Zero frequencies
// and frequencies observed while idle are ignored.
func (c *Calibrator) Observe(frequencyHz int) {
	if frequencyHz <= 0 {
		return
	}

	c.mu.Lock()
	if c.state == StateListening {
		c.lastHz = frequencyHz
	}
	c.mu.Unlock()
}

// LastFrequency returns the last frequency observed while listening
func (c *Calibrator) LastFrequency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHz
}

// Listening returns the note being captured, if any
func (c *Calibrator) Listening() (Note, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.state == StateListening
}

// Commit stores the last observed frequency for the note being captured and
// returns to Idle
func (c *Calibrator) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateListening {
		return ErrNotListening
	}
	if c.lastHz == 0 {
		return fmt.Errorf("%w for %s", ErrNoFrequency, c.target)
	}

	c.captured[c.target.Name] = float64(c.lastHz)
	c.state = StateIdle

	c.logger.Info("Reference captured", logging.Fields{
		"note":      c.target.Name,
		"frequency": c.lastHz,
	})
	return nil
}

// IsCaptured reports whether a frequency was committed for label
func (c *Calibrator) IsCaptured(label string) bool {
	n, err := ParseNote(label)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.captured[n.Name]
	return ok
}

// Captured returns a copy of the committed reference frequencies
func (c *Calibrator) Captured() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]float64, len(c.captured))
	for k, v := range c.captured {
		out[k] = v
	}
	return out
}

// State returns the capture state
func (c *Calibrator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Calibrated reports whether a calibrated table has been published
func (c *Calibrator) Calibrated() bool {
	return c.table.Load() != nil
}

// Table returns the published table or nil
func (c *Calibrator) Table() *Table {
	return c.table.Load()
}

// Reset discards captured references and the published table
func (c *Calibrator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.captured)
	c.state = StateIdle
	c.lastHz = 0
	c.table.Store(nil)
}

// Calibrate validates the captured references and builds the full table.
// On failure the captured references are discarded, the state becomes
// StateFailed and the previously published table, if any, is kept.
func (c *Calibrator) Calibrate() (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	freqs := make([]float64, len(c.references))
	var missing []string
	for i, ref := range c.references {
		hz, ok := c.captured[ref.Name]
		if !ok {
			missing = append(missing, ref.Name)
			continue
		}
		freqs[i] = hz
	}
	if len(missing) > 0 {
		return nil, NewCalibrationError(ErrCodeIncompleteReferences,
			"missing reference notes "+strings.Join(missing, ", "), nil)
	}

	table, err := c.build(freqs)
	if err != nil {
		clear(c.captured)
		c.state = StateFailed
		c.logger.Warn("Calibration failed", logging.Fields{"error": err.Error()})
		return nil, err
	}

	c.table.Store(table)
	c.state = StateIdle
	c.logger.Info("Calibration complete", logging.Fields{
		"notes":  table.Len(),
		"lowest": table.entries[0].Frequency,
	})
	return table, nil
}

func (c *Calibrator) build(freqs []float64) (*Table, error) {
	semis := make([]int, len(c.references))
	for i, ref := range c.references {
		semis[i] = ref.Semitone()
	}

	corrected, err := reconcile(semis, freqs)
	if err != nil {
		return nil, err
	}
	for i, ref := range c.references {
		if corrected[i] != freqs[i] {
			c.logger.Debug("Reference corrected", logging.Fields{
				"note":      ref.Name,
				"captured":  freqs[i],
				"corrected": corrected[i],
			})
		}
	}

	table, err := NewTable(fill(semis, corrected))
	if err != nil {
		return nil, NewCalibrationError(ErrCodeInvalidTable, "calibrated table is not ascending", err)
	}
	return table, nil
}

// orderedPairs reports, for each adjacent reference pair, whether the higher
// note has the higher frequency
func orderedPairs(freqs []float64) ([]bool, int) {
	valid := make([]bool, len(freqs)-1)
	bad := 0
	for i := range valid {
		valid[i] = freqs[i+1] > freqs[i]
		if !valid[i] {
			bad++
		}
	}
	return valid, bad
}

// reconcile repairs out-of-order references. A single bad pair is fixed by
// recomputing its lower note from the higher one. With several bad pairs
// every reference outside a valid pair is recomputed from the nearest
// reference inside one. When no pair is valid the references are rejected.
func reconcile(semis []int, freqs []float64) ([]float64, error) {
	out := make([]float64, len(freqs))
	copy(out, freqs)

	valid, bad := orderedPairs(out)
	switch {
	case bad == 0:
		return out, nil
	case bad == len(valid):
		return nil, NewCalibrationError(ErrCodeInconsistentReferences,
			"no pair of reference notes is in ascending order", nil)
	case bad == 1:
		for i, ok := range valid {
			if !ok {
				out[i] = math.Round(EqualTempered(out[i+1], semis[i]-semis[i+1]))
			}
		}
	default:
		anchored := make([]bool, len(out))
		for i, ok := range valid {
			if ok {
				anchored[i], anchored[i+1] = true, true
			}
		}
		for i := range out {
			if anchored[i] {
				continue
			}
			j := nearestAnchor(anchored, i)
			out[i] = math.Round(EqualTempered(freqs[j], semis[i]-semis[j]))
		}
	}

	if _, stillBad := orderedPairs(out); stillBad > 0 {
		return nil, NewCalibrationError(ErrCodeInconsistentReferences,
			"reference notes are out of order after correction", nil)
	}
	return out, nil
}

// nearestAnchor returns the anchored index closest to i, preferring the
// higher one on ties
func nearestAnchor(anchored []bool, i int) int {
	for d := 1; d < len(anchored); d++ {
		if i+d < len(anchored) && anchored[i+d] {
			return i + d
		}
		if i-d >= 0 && anchored[i-d] {
			return i - d
		}
	}
	return i
}

// fill produces every semitone from C4 to C6. References are copied,
// semitones between two references average the equal-tempered estimates
// from both, and semitones outside the references extrapolate from the
// closest one. All values are rounded to whole Hz.
func fill(semis []int, freqs []float64) []Entry {
	last := len(semis) - 1
	entries := make([]Entry, 0, NumNotes)

	for _, n := range Chromatic() {
		s := n.Semitone()

		var hz float64
		switch {
		case s <= semis[0]:
			hz = EqualTempered(freqs[0], s-semis[0])
		case s >= semis[last]:
			hz = EqualTempered(freqs[last], s-semis[last])
		default:
			k := 0
			for semis[k+1] <= s {
				k++
			}
			if s == semis[k] {
				hz = freqs[k]
			} else {
				below := EqualTempered(freqs[k], s-semis[k])
				above := EqualTempered(freqs[k+1], s-semis[k+1])
				hz = (below + above) / 2
			}
		}

		entries = append(entries, Entry{Note: n, Frequency: math.Round(hz)})
	}
	return entries
}
