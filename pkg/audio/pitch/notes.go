// Package pitch models the two-octave chromatic range C4..C6, the ordered
// frequency tables used to label a raw frequency with a note, and the
// calibrator that derives such a table from a few sung or played references.
package pitch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// LowestMIDI is C4
	LowestMIDI = 60
	// HighestMIDI is C6
	HighestMIDI = 84
	// NumNotes is the number of semitones from C4 to C6 inclusive
	NumNotes = HighestMIDI - LowestMIDI + 1

	// ConcertA is the ISO 16 reference for A4
	ConcertA     = 440.0
	concertAMIDI = 69
)

// ErrUnknownNote is returned for labels that are not notes in C4..C6
var ErrUnknownNote = errors.New("unknown note")

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var flats = map[string]string{
	"DB": "C#", "EB": "D#", "GB": "F#", "AB": "G#", "BB": "A#",
}

// Note is a chromatic note within C4..C6
type Note struct {
	Name string `json:"name" yaml:"name"`
	MIDI int    `json:"midi" yaml:"midi"`
}

// NoteForMIDI returns the note with the given MIDI number
func NoteForMIDI(midi int) (Note, error) {
	if midi < LowestMIDI || midi > HighestMIDI {
		return Note{}, fmt.Errorf("%w: midi %d outside C4..C6", ErrUnknownNote, midi)
	}
	return Note{
		Name: noteNames[midi%12] + strconv.Itoa(midi/12-1),
		MIDI: midi,
	}, nil
}

// ParseNote parses labels such as "C4", "c#5" or "Bb4"
func ParseNote(label string) (Note, error) {
	s := strings.ToUpper(strings.TrimSpace(label))
	if len(s) < 2 {
		return Note{}, fmt.Errorf("%w: %q", ErrUnknownNote, label)
	}

	split := strings.IndexAny(s, "0123456789-")
	if split <= 0 {
		return Note{}, fmt.Errorf("%w: %q", ErrUnknownNote, label)
	}

	name, octaveStr := s[:split], s[split:]
	if sharp, ok := flats[name]; ok {
		name = sharp
	}

	octave, err := strconv.Atoi(octaveStr)
	if err != nil {
		return Note{}, fmt.Errorf("%w: %q", ErrUnknownNote, label)
	}

	for i, n := range noteNames {
		if n == name {
			return NoteForMIDI((octave+1)*12 + i)
		}
	}
	return Note{}, fmt.Errorf("%w: %q", ErrUnknownNote, label)
}

// Semitone returns the note's distance above C4
func (n Note) Semitone() int {
	return n.MIDI - LowestMIDI
}

// String returns the note name
func (n Note) String() string {
	return n.Name
}

// Chromatic returns every note from C4 to C6 in ascending order
func Chromatic() []Note {
	notes := make([]Note, 0, NumNotes)
	for midi := LowestMIDI; midi <= HighestMIDI; midi++ {
		n, _ := NoteForMIDI(midi)
		notes = append(notes, n)
	}
	return notes
}

// EqualTempered returns the frequency steps semitones away from reference,
// f = reference * 2^(steps/12)
func EqualTempered(reference float64, steps int) float64 {
	return reference * math.Pow(2, float64(steps)/12)
}

// DefaultTable returns the ISO 16 table (A4 = 440 Hz) rounded to whole Hz
func DefaultTable() *Table {
	entries := make([]Entry, 0, NumNotes)
	for _, n := range Chromatic() {
		entries = append(entries, Entry{
			Note:      n,
			Frequency: math.Round(EqualTempered(ConcertA, n.MIDI-concertAMIDI)),
		})
	}

	table, err := NewTable(entries)
	if err != nil {
		panic(fmt.Sprintf("default pitch table: %v", err))
	}
	return table
}
