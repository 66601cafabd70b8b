package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type noteRows struct {
	names []string
	freqs []float64
}

func (n noteRows) Title() string     { return "Pitch table" }
func (n noteRows) Headers() []string { return []string{"note", "frequency_hz"} }
func (n noteRows) Rows(precision int) [][]string {
	rows := make([][]string, len(n.names))
	for i := range n.names {
		rows[i] = []string{n.names[i], Float(n.freqs[i], precision)}
	}
	return rows
}
func (n noteRows) Highlight(row int) bool { return row == 0 }
func (n noteRows) Summary(int) [][2]string {
	return [][2]string{{"Notes", "2"}}
}

func TestNewFormatter(t *testing.T) {
	for _, format := range []string{"table", "JSON", "yaml", ""} {
		_, err := NewFormatter(format, Options{})
		assert.NoError(t, err, format)
	}

	_, err := NewFormatter("csv", Options{})
	assert.Error(t, err)
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, map[string]float64{"bpm": 129.2}))

	var got map[string]float64
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 129.2, got["bpm"])
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLFormatter{}).Format(&buf, map[string]any{"note": "A4", "frequency": 440}))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "A4", got["note"])
}

func TestTableFormatter(t *testing.T) {
	f, err := NewFormatter("table", Options{Precision: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	rows := noteRows{names: []string{"A4", "A#4"}, freqs: []float64{440, 466.16}}
	require.NoError(t, f.Format(&buf, rows))

	out := buf.String()
	assert.Contains(t, out, "Pitch table")
	assert.Contains(t, out, "Frequency Hz")
	assert.Contains(t, out, "466.2")
	assert.Contains(t, out, "A#4")
	assert.Contains(t, out, "Notes: 2")
}

func TestTableFormatterFallsBackToYAML(t *testing.T) {
	f, err := NewFormatter("table", Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, map[string]int{"frames": 10}))
	assert.Equal(t, "frames: 10\n", buf.String())
}

func TestHeaderName(t *testing.T) {
	assert.Equal(t, "Tempo Bpm", HeaderName("tempo_bpm"))
	assert.Equal(t, "Note", HeaderName("note"))
}
