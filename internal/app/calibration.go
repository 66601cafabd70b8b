package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/richmond2010/DoRaeMi/pkg/audio/analyzers"
	"github.com/richmond2010/DoRaeMi/pkg/audio/pitch"
	"github.com/richmond2010/DoRaeMi/pkg/audio/source"
	"github.com/richmond2010/DoRaeMi/pkg/logging"
	"github.com/richmond2010/DoRaeMi/pkg/output"
)

// CaptureFrequency stores a known frequency for a reference note by running
// the calibrator's listen/observe/commit cycle
func (c *Context) CaptureFrequency(label string, frequencyHz int) error {
	if err := c.Calibrator.StartListening(label); err != nil {
		return err
	}
	c.Calibrator.Observe(frequencyHz)
	return c.Calibrator.Commit()
}

// CaptureSource listens for label while src plays through the pipeline and
// commits the last pitch the analyzer detected
func (c *Context) CaptureSource(ctx context.Context, label string, src source.Source) error {
	spectral := c.Engine.Config().Spectral
	if src.SampleRate() != spectral.SampleRate || src.BufferSize() != spectral.BufferSize {
		return fmt.Errorf("reference for %s is %d Hz with %d sample frames, engine expects %d Hz and %d",
			label, src.SampleRate(), src.BufferSize(), spectral.SampleRate, spectral.BufferSize)
	}

	if err := c.Calibrator.StartListening(label); err != nil {
		return err
	}

	frame := analyzers.NewSpectralFrame(src.BufferSize(), src.SampleRate())
	for {
		err := src.Next(ctx, frame)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read reference for %s: %w", label, err)
		}
		if _, err := c.Tick(frame); err != nil {
			c.Logger.Warn("Skipping frame", logging.Fields{"note": label, "error": err.Error()})
		}
	}

	c.Logger.Debug("Reference listened", logging.Fields{
		"note":      label,
		"frequency": c.Calibrator.LastFrequency(),
	})
	return c.Calibrator.Commit()
}

// Calibrate finalises the captured references. A failure leaves the
// calibrator ready for a new capture round.
func (c *Context) Calibrate() (*TableView, error) {
	refs := c.Calibrator.Captured()

	table, err := c.Calibrator.Calibrate()
	if err != nil {
		return nil, err
	}
	return NewTableView("Calibrated pitch table", table, true, refs), nil
}

// TableView presents a pitch table as command output
type TableView struct {
	Heading    string             `json:"-" yaml:"-"`
	Calibrated bool               `json:"calibrated" yaml:"calibrated"`
	References map[string]float64 `json:"references,omitempty" yaml:"references,omitempty"`
	Notes      []pitch.Entry      `json:"notes" yaml:"notes"`
}

// NewTableView wraps table. references are the captured frequencies, if any.
func NewTableView(heading string, table *pitch.Table, calibrated bool, references map[string]float64) *TableView {
	return &TableView{
		Heading:    heading,
		Calibrated: calibrated,
		References: references,
		Notes:      table.Entries(),
	}
}

// Title implements output.Titled
func (v *TableView) Title() string {
	return v.Heading
}

// Headers implements output.Tabular
func (v *TableView) Headers() []string {
	return []string{"note", "midi", "frequency_hz", "captured_hz"}
}

// Rows implements output.Tabular
func (v *TableView) Rows(precision int) [][]string {
	rows := make([][]string, 0, len(v.Notes))
	for _, e := range v.Notes {
		captured := ""
		if hz, ok := v.References[e.Note.Name]; ok {
			captured = output.Float(hz, precision)
		}
		rows = append(rows, []string{
			e.Note.Name,
			strconv.Itoa(e.Note.MIDI),
			output.Float(e.Frequency, precision),
			captured,
		})
	}
	return rows
}

// Highlight implements output.Highlighter, marking reference notes
func (v *TableView) Highlight(row int) bool {
	if row < 0 || row >= len(v.Notes) {
		return false
	}
	_, ok := v.References[v.Notes[row].Note.Name]
	return ok
}
