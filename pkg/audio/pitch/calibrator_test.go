package pitch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richmond2010/DoRaeMi/pkg/logging"
)

func newTestCalibrator(t *testing.T, refs ...string) *Calibrator {
	t.Helper()
	c, err := NewCalibrator(refs, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func capture(t *testing.T, c *Calibrator, values map[string]int) {
	t.Helper()
	for label, hz := range values {
		require.NoError(t, c.StartListening(label))
		c.Observe(hz)
		require.NoError(t, c.Commit())
	}
}

func frequencyOf(t *testing.T, table *Table, label string) float64 {
	t.Helper()
	hz, err := table.Lookup(label)
	require.NoError(t, err)
	return hz
}

func TestNewCalibratorValidation(t *testing.T) {
	_, err := NewCalibrator([]string{"C4"}, nil)
	assert.Error(t, err)

	_, err = NewCalibrator([]string{"A4", "C4"}, nil)
	assert.Error(t, err)

	_, err = NewCalibrator([]string{"C4", "X4"}, nil)
	assert.ErrorIs(t, err, ErrUnknownNote)

	c, err := NewCalibrator(nil, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Len(t, c.References(), len(DefaultReferences))
}

func TestCaptureStateMachine(t *testing.T) {
	c := newTestCalibrator(t)
	assert.Equal(t, StateIdle, c.State())

	assert.ErrorIs(t, c.Commit(), ErrNotListening)
	assert.ErrorIs(t, c.StartListening("D4"), ErrUnknownNote)

	require.NoError(t, c.StartListening("A4"))
	assert.Equal(t, StateListening, c.State())
	note, listening := c.Listening()
	assert.True(t, listening)
	assert.Equal(t, "A4", note.Name)

	assert.ErrorIs(t, c.Commit(), ErrNoFrequency)

	c.Observe(438)
	c.Observe(0)
	c.Observe(441)
	assert.Equal(t, 441, c.LastFrequency())

	require.NoError(t, c.Commit())
	assert.Equal(t, StateIdle, c.State())
	assert.True(t, c.IsCaptured("A4"))
	assert.False(t, c.IsCaptured("C4"))
	assert.Equal(t, map[string]float64{"A4": 441}, c.Captured())

	// idle calibrators ignore the analysis feed
	c.Observe(500)
	assert.Equal(t, 441, c.LastFrequency())

	// starting a new capture resets the observed frequency
	require.NoError(t, c.StartListening("C4"))
	assert.Equal(t, 0, c.LastFrequency())
}

func TestCalibrateConsistentReferences(t *testing.T) {
	c := newTestCalibrator(t)
	capture(t, c, map[string]int{"C4": 262, "F4": 349, "A4": 440, "C5": 523})

	table, err := c.Calibrate()
	require.NoError(t, err)
	assert.True(t, c.Calibrated())
	assert.Same(t, table, c.Table())
	require.Equal(t, NumNotes, table.Len())

	c4 := frequencyOf(t, table, "C4")
	c5 := frequencyOf(t, table, "C5")
	assert.InEpsilon(t, 2.0, c5/c4, 0.005)

	assert.Equal(t, 294.0, frequencyOf(t, table, "D4"))
	assert.Equal(t, 1046.0, frequencyOf(t, table, "C6"))

	entries := table.Entries()
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Frequency, entries[i-1].Frequency)
	}
}

func TestCalibrateCorrectsSingleInversion(t *testing.T) {
	t.Run("F4 above A4", func(t *testing.T) {
		c := newTestCalibrator(t)
		capture(t, c, map[string]int{"C4": 262, "F4": 500, "A4": 440, "C5": 523})

		table, err := c.Calibrate()
		require.NoError(t, err)
		assert.Equal(t, 349.0, frequencyOf(t, table, "F4"))
	})

	t.Run("E4 above G4", func(t *testing.T) {
		c := newTestCalibrator(t, "C4", "E4", "G4", "C5")
		capture(t, c, map[string]int{"C4": 262, "E4": 500, "G4": 392, "C5": 523})

		table, err := c.Calibrate()
		require.NoError(t, err)
		assert.Equal(t, 330.0, frequencyOf(t, table, "E4"))
	})
}

func TestCalibrateCorrectsTwoInversions(t *testing.T) {
	c := newTestCalibrator(t)
	capture(t, c, map[string]int{"C4": 500, "F4": 450, "A4": 440, "C5": 523})

	table, err := c.Calibrate()
	require.NoError(t, err)
	assert.Equal(t, 262.0, frequencyOf(t, table, "C4"))
	assert.Equal(t, 349.0, frequencyOf(t, table, "F4"))
	assert.Equal(t, 440.0, frequencyOf(t, table, "A4"))
}

func TestCalibrateFails(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]int
	}{
		{"all pairs inverted", map[string]int{"C4": 600, "F4": 500, "A4": 450, "C5": 400}},
		{"still inverted after correction", map[string]int{"C4": 262, "F4": 349, "A4": 300, "C5": 523}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCalibrator(t)
			capture(t, c, tt.values)

			table, err := c.Calibrate()
			assert.Nil(t, table)
			assert.False(t, c.Calibrated())
			assert.Equal(t, StateFailed, c.State())

			var calErr *CalibrationError
			require.True(t, errors.As(err, &calErr))
			assert.Equal(t, ErrCodeInconsistentReferences, calErr.Code)

			// captured references are discarded and must be captured again
			assert.Empty(t, c.Captured())
		})
	}
}

func TestCalibrateIncomplete(t *testing.T) {
	c := newTestCalibrator(t)
	capture(t, c, map[string]int{"C4": 262, "A4": 440})

	_, err := c.Calibrate()
	var calErr *CalibrationError
	require.True(t, errors.As(err, &calErr))
	assert.Equal(t, ErrCodeIncompleteReferences, calErr.Code)
	assert.Contains(t, calErr.Error(), "F4, C5")
	assert.False(t, c.Calibrated())
}

func TestFailedCalibrationKeepsPublishedTable(t *testing.T) {
	c := newTestCalibrator(t)
	capture(t, c, map[string]int{"C4": 262, "F4": 349, "A4": 440, "C5": 523})
	first, err := c.Calibrate()
	require.NoError(t, err)

	capture(t, c, map[string]int{"C4": 600, "F4": 500, "A4": 450, "C5": 400})
	_, err = c.Calibrate()
	require.Error(t, err)
	assert.Same(t, first, c.Table())

	c.Reset()
	assert.False(t, c.Calibrated())
	assert.Equal(t, StateIdle, c.State())
}
