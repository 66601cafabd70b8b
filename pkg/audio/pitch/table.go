package pitch

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gopkg.in/yaml.v3"
)

// Entry pairs a note with its frequency in Hz
type Entry struct {
	Note      Note    `json:"note" yaml:"note"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
}

// Table is an immutable note table ordered by ascending frequency. Once
// built it is safe for concurrent readers.
type Table struct {
	entries []Entry
	byName  map[string]int
}

// NewTable validates and sorts entries. Frequencies must be positive and
// strictly increasing once ordered by pitch.
func NewTable(entries []Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("pitch table is empty")
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Note.MIDI < sorted[j].Note.MIDI
	})

	byName := make(map[string]int, len(sorted))
	for i, e := range sorted {
		if e.Frequency <= 0 || math.IsNaN(e.Frequency) || math.IsInf(e.Frequency, 0) {
			return nil, fmt.Errorf("note %s has invalid frequency %g", e.Note, e.Frequency)
		}
		if _, dup := byName[e.Note.Name]; dup {
			return nil, fmt.Errorf("note %s appears more than once", e.Note)
		}
		if i > 0 && e.Frequency <= sorted[i-1].Frequency {
			return nil, fmt.Errorf("note %s (%g Hz) is not above %s (%g Hz)",
				e.Note, e.Frequency, sorted[i-1].Note, sorted[i-1].Frequency)
		}
		byName[e.Note.Name] = i
	}

	return &Table{entries: sorted, byName: byName}, nil
}

// Len returns the number of notes in the table
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the table in ascending frequency order
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup returns the frequency of the named note
func (t *Table) Lookup(label string) (float64, error) {
	n, err := ParseNote(label)
	if err != nil {
		return 0, err
	}
	i, ok := t.byName[n.Name]
	if !ok {
		return 0, fmt.Errorf("%w: %s not in table", ErrUnknownNote, n)
	}
	return t.entries[i].Frequency, nil
}

// FrequencyRange returns the lowest and highest frequencies of the table.
// It lets a table restrict the spectral analyzer's peak search.
func (t *Table) FrequencyRange() (float64, float64, bool) {
	if t == nil || len(t.entries) == 0 {
		return 0, 0, false
	}
	return t.entries[0].Frequency, t.entries[len(t.entries)-1].Frequency, true
}

// MatchKind describes how a frequency relates to the table
type MatchKind int

const (
	// MatchNone is returned for a zero frequency (no pitch)
	MatchNone MatchKind = iota
	// MatchExact means the frequency equals a table entry
	MatchExact
	// MatchNearest means the frequency lies between two entries
	MatchNearest
	// BelowRange means the frequency is lower than the lowest entry
	BelowRange
	// AboveRange means the frequency is higher than the highest entry
	AboveRange
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchNearest:
		return "nearest"
	case BelowRange:
		return "too low"
	case AboveRange:
		return "too high"
	default:
		return "none"
	}
}

// Classification is the result of Classify
type Classification struct {
	Kind  MatchKind `json:"kind" yaml:"kind"`
	Entry Entry     `json:"entry" yaml:"entry"`
	// Cents is the signed deviation of the frequency from Entry
	Cents float64 `json:"cents" yaml:"cents"`
}

// Classify labels hz with the nearest note. Between two neighbours the
// midpoint of their frequencies decides. Outside the table the closest
// edge entry is reported together with BelowRange or AboveRange.
func (t *Table) Classify(hz float64) Classification {
	if hz <= 0 || len(t.entries) == 0 {
		return Classification{Kind: MatchNone}
	}

	n := len(t.entries)
	i := sort.Search(n, func(i int) bool {
		return t.entries[i].Frequency >= hz
	})

	var kind MatchKind
	var e Entry
	switch {
	case i < n && t.entries[i].Frequency == hz:
		kind, e = MatchExact, t.entries[i]
	case i == 0:
		kind, e = BelowRange, t.entries[0]
	case i == n:
		kind, e = AboveRange, t.entries[n-1]
	default:
		lower, upper := t.entries[i-1], t.entries[i]
		kind, e = MatchNearest, lower
		if hz >= (lower.Frequency+upper.Frequency)/2 {
			e = upper
		}
	}

	return Classification{
		Kind:  kind,
		Entry: e,
		Cents: 1200 * math.Log2(hz/e.Frequency),
	}
}

type tableDocument struct {
	Calibrated bool        `yaml:"calibrated"`
	Notes      []noteValue `yaml:"notes"`
}

type noteValue struct {
	Note      string  `yaml:"note"`
	Frequency float64 `yaml:"frequency"`
}

// WriteYAML exports the table. calibrated is recorded for the reader's benefit.
func (t *Table) WriteYAML(w io.Writer, calibrated bool) error {
	doc := tableDocument{Calibrated: calibrated}
	for _, e := range t.entries {
		doc.Notes = append(doc.Notes, noteValue{Note: e.Note.Name, Frequency: e.Frequency})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode pitch table: %w", err)
	}
	return enc.Close()
}

// ReadTableYAML imports a table written by WriteYAML
func ReadTableYAML(r io.Reader) (*Table, error) {
	var doc tableDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode pitch table: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Notes))
	for _, v := range doc.Notes {
		n, err := ParseNote(v.Note)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Note: n, Frequency: v.Frequency})
	}
	return NewTable(entries)
}
